package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// FileStore keeps one state_<account>.json file per account in a directory.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("state dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) Path(account string) string {
	return filepath.Join(s.dir, "state_"+account+".json")
}

func (s *FileStore) Load(ctx context.Context, account string) ([]byte, error) {
	if err := checkAccount(account); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(s.Path(account))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read state %s: %w", account, err)
	}
	return b, nil
}

// Save writes to a temp file in the same directory, syncs it and renames it
// over the target, then syncs the directory so the rename is durable.
func (s *FileStore) Save(ctx context.Context, account string, data []byte) error {
	if err := checkAccount(account); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, ".state_"+account+"-*.tmp")
	if err != nil {
		return fmt.Errorf("save state %s: %w", account, err)
	}
	tmpName := tmp.Name()
	defer func() {
		// no-op once renamed
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("save state %s: %w", account, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("save state %s: %w", account, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("save state %s: %w", account, err)
	}
	if err := os.Rename(tmpName, s.Path(account)); err != nil {
		return fmt.Errorf("save state %s: %w", account, err)
	}
	return syncDir(s.dir)
}

func (s *FileStore) Close() error { return nil }

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	// Some filesystems refuse fsync on directories; the rename has still
	// happened, so that is not an error for the caller.
	_ = d.Sync()
	return nil
}
