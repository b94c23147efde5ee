// Package store persists one grid state record per account.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound = errors.New("state not found")
	ErrCorrupt  = errors.New("state corrupt")
)

// Store holds encoded records keyed by account id. Save must be atomic: a
// crash leaves either the previous record or the new one.
type Store interface {
	Load(ctx context.Context, account string) ([]byte, error)
	Save(ctx context.Context, account string, data []byte) error
	Close() error
}

// Open builds the store selected by driver ("file", "sqlite" or "badger").
// path is the state directory for file and badger, the database file for
// sqlite.
func Open(driver, path string) (Store, error) {
	switch strings.ToLower(driver) {
	case "", "file":
		return NewFileStore(path)
	case "sqlite", "sqlite3":
		return NewSQLiteStore(path)
	case "badger":
		return NewBadgerStore(path)
	}
	return nil, fmt.Errorf("unknown store driver %q", driver)
}

func checkAccount(account string) error {
	if strings.TrimSpace(account) == "" {
		return errors.New("account is required")
	}
	if strings.ContainsAny(account, `/\`) || account == "." || account == ".." {
		return fmt.Errorf("invalid account id %q", account)
	}
	return nil
}
