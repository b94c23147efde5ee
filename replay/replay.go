// Package replay drives the paper venue from recorded ticks so a grid
// configuration can be exercised offline.
package replay

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rustyeddy/gridscalp/market"
	"github.com/rustyeddy/gridscalp/risk"
	"github.com/rustyeddy/gridscalp/signal"
	"github.com/rustyeddy/gridscalp/sim"
)

// Dispatcher accepts the signals found in the file.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev signal.Event) (signal.Result, error)
}

// Rounder runs one reconciliation tick of every engine.
type Rounder interface {
	Round(ctx context.Context) error
}

// Stats summarises a replay.
type Stats struct {
	Rows        int
	Signals     int
	RoundErrors int
	First, Last time.Time
}

// CSV replays the file at path. See Run for the format.
func CSV(ctx context.Context, path string, venue *sim.Engine, d Dispatcher, r Rounder) (Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return Stats{}, err
	}
	defer f.Close()
	return Run(ctx, f, venue, d, r)
}

// Run reads rows of
//
//	time,symbol,bid,ask[,event,arg1,arg2]
//
// with an optional header. Each row publishes the quote, dispatches the
// event if there is one and then runs a round, so signals see the row's
// prices. Events (case-insensitive):
//
//	ENTRY:       arg1=BUY|SELL  arg2=restriction (optional)
//	CLOSE_RANGE: no arguments
//
// Tick errors are counted, not fatal; bad rows and rejected signals are.
func Run(ctx context.Context, rd io.Reader, venue *sim.Engine, d Dispatcher, r Rounder) (Stats, error) {
	var st Stats

	cr := csv.NewReader(rd)
	cr.FieldsPerRecord = -1
	cr.Comment = '#'

	first := true
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return st, nil
		}
		if err != nil {
			return st, err
		}
		line, _ := cr.FieldPos(0)
		header := first && strings.EqualFold(strings.TrimSpace(row[0]), "time")
		first = false
		if header {
			continue
		}
		if err := ctx.Err(); err != nil {
			return st, err
		}

		q, ev, err := parseRow(row)
		if err != nil {
			return st, fmt.Errorf("line %d: %w", line, err)
		}
		venue.SetQuote(q)
		if st.First.IsZero() {
			st.First = q.Time
		}
		st.Last = q.Time
		st.Rows++

		if ev != nil {
			if _, err := d.Dispatch(ctx, *ev); err != nil {
				return st, fmt.Errorf("line %d: %w", line, err)
			}
			st.Signals++
		}
		if err := r.Round(ctx); err != nil {
			st.RoundErrors++
		}
	}
}

func parseRow(row []string) (market.Quote, *signal.Event, error) {
	for i := range row {
		row[i] = strings.TrimSpace(row[i])
	}
	if len(row) < 4 {
		return market.Quote{}, nil, fmt.Errorf("need at least 4 cols time,symbol,bid,ask: %v", row)
	}

	t, err := time.Parse(time.RFC3339, row[0])
	if err != nil {
		return market.Quote{}, nil, fmt.Errorf("bad time %q: %w", row[0], err)
	}
	bid, err := strconv.ParseFloat(row[2], 64)
	if err != nil {
		return market.Quote{}, nil, fmt.Errorf("bad bid %q: %w", row[2], err)
	}
	ask, err := strconv.ParseFloat(row[3], 64)
	if err != nil {
		return market.Quote{}, nil, fmt.Errorf("bad ask %q: %w", row[3], err)
	}
	if ask < bid {
		return market.Quote{}, nil, fmt.Errorf("ask %v below bid %v", ask, bid)
	}
	q := market.Quote{Symbol: row[1], Bid: bid, Ask: ask, Time: t}

	if len(row) < 5 || row[4] == "" {
		return q, nil, nil
	}
	ev := &signal.Event{Type: signal.Type(row[4]), Symbol: row[1]}
	if len(row) > 5 {
		side, err := market.ParseSide(row[5])
		if err != nil {
			return q, nil, err
		}
		ev.Side = side
	}
	if len(row) > 6 {
		ev.Restriction = risk.Restriction(row[6])
	}
	if err := ev.Normalize(); err != nil {
		return q, nil, err
	}
	return q, ev, nil
}
