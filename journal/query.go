package journal

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rustyeddy/gridscalp/market"
)

const selectEvents = `
	SELECT id, time, account, symbol, kind, level, ticket, side, volume, price, reason
	FROM events`

// Filter narrows ListEvents. Zero fields match everything.
type Filter struct {
	Account string
	Kind    Kind
	Since   time.Time
	Until   time.Time
	Limit   int
}

// GetEvent returns a single event by ID.
func (j *SQLite) GetEvent(eventID string) (Event, error) {
	row := j.db.QueryRow(selectEvents+` WHERE id = ?`, eventID)
	e, err := scanEvent(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return Event{}, fmt.Errorf("event %q not found", eventID)
		}
		return Event{}, err
	}
	return e, nil
}

// ListEvents returns matching events oldest first.
func (j *SQLite) ListEvents(flt Filter) ([]Event, error) {
	var (
		where []string
		args  []any
	)
	if flt.Account != "" {
		where = append(where, "account = ?")
		args = append(args, flt.Account)
	}
	if flt.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(flt.Kind))
	}
	if !flt.Since.IsZero() {
		where = append(where, "time >= ?")
		args = append(args, flt.Since.UTC())
	}
	if !flt.Until.IsZero() {
		where = append(where, "time < ?")
		args = append(args, flt.Until.UTC())
	}

	q := selectEvents
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY time ASC, id ASC"
	if flt.Limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", flt.Limit)
	}

	rows, err := j.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ListEventsBetween returns events whose time is within [start, end).
func (j *SQLite) ListEventsBetween(start, end time.Time) ([]Event, error) {
	return j.ListEvents(Filter{Since: start, Until: end})
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(s scanner) (Event, error) {
	var (
		e    Event
		kind string
		side string
	)
	err := s.Scan(
		&e.ID,
		&e.Time,
		&e.Account,
		&e.Symbol,
		&kind,
		&e.Level,
		&e.Ticket,
		&side,
		&e.Volume,
		&e.Price,
		&e.Reason,
	)
	if err != nil {
		return Event{}, err
	}
	e.Kind = Kind(kind)
	if e.Side, err = market.ParseSide(side); err != nil {
		return Event{}, err
	}
	return e, nil
}
