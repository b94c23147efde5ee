package journal

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"

	"github.com/rustyeddy/gridscalp/internal/id"
)

type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLite{db: db}, nil
}

func (j *SQLite) Record(e Event) error {
	if e.ID == "" {
		e.ID = id.At(e.Time)
	}
	_, err := j.db.Exec(`
		INSERT INTO events
		(id, time, account, symbol, kind, level, ticket, side, volume, price, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Time.UTC(), e.Account, e.Symbol, string(e.Kind), e.Level,
		e.Ticket, e.Side.String(), e.Volume, e.Price, e.Reason,
	)
	return err
}

func (j *SQLite) Close() error {
	return j.db.Close()
}
