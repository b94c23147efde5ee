package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS grid_state (
	account TEXT PRIMARY KEY,
	data BLOB NOT NULL,
	updated_at DATETIME NOT NULL
);
`

// SQLiteStore keeps one row per account.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("state schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Load(ctx context.Context, account string) ([]byte, error) {
	if err := checkAccount(account); err != nil {
		return nil, err
	}
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM grid_state WHERE account = ?`, account).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read state %s: %w", account, err)
	}
	return data, nil
}

func (s *SQLiteStore) Save(ctx context.Context, account string, data []byte) error {
	if err := checkAccount(account); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save state %s: %w", account, err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO grid_state (account, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(account) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		account, data, time.Now().UTC(),
	)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("save state %s: %w", account, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save state %s: %w", account, err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
