package replay

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/gridscalp/broker"
	"github.com/rustyeddy/gridscalp/grid"
	"github.com/rustyeddy/gridscalp/loop"
	"github.com/rustyeddy/gridscalp/signal"
	"github.com/rustyeddy/gridscalp/sim"
	"github.com/rustyeddy/gridscalp/store"
)

const acct = "70001"

type rig struct {
	venue  *sim.Engine
	engine *grid.Engine
	router *signal.Router
	loop   *loop.Loop
}

func newRig(t *testing.T) *rig {
	t.Helper()
	venue := sim.NewEngine()
	session := broker.NewSession(venue)
	st, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)

	e, err := grid.NewEngine(grid.Params{
		Account:        acct,
		Symbol:         "XAUUSD",
		Tag:            7,
		Comment:        "grid",
		PipSize:        0.10,
		StepPips:       10,
		EntryLot:       0.1,
		EntryOrders:    1,
		AveragingLot:   0.1,
		MaxLevels:      4,
		OrdersPerLevel: 1,
	}, session.Bind(acct, venue), st)
	require.NoError(t, err)

	return &rig{
		venue:  venue,
		engine: e,
		router: signal.NewRouter([]signal.Target{e}),
		loop:   loop.New([]loop.Manager{e}),
	}
}

const ladder = `time,symbol,bid,ask,event,arg1
2026-01-05T09:00:00Z,XAUUSD,2650.00,2650.00,ENTRY,BUY
2026-01-05T09:00:01Z,XAUUSD,2649.00,2649.00
2026-01-05T09:00:02Z,XAUUSD,2649.00,2649.00
# back above the entry, the rung takes profit
2026-01-05T09:00:03Z,XAUUSD,2650.10,2650.10
2026-01-05T09:00:04Z,XAUUSD,2650.10,2650.10,close_range
`

func TestRunLadder(t *testing.T) {
	r := newRig(t)

	st, err := Run(context.Background(), strings.NewReader(ladder), r.venue, r.router, r.loop)
	require.NoError(t, err)

	assert.Equal(t, 5, st.Rows)
	assert.Equal(t, 2, st.Signals)
	assert.Zero(t, st.RoundErrors)
	assert.Equal(t, time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC), st.First)
	assert.Equal(t, time.Date(2026, 1, 5, 9, 0, 4, 0, time.UTC), st.Last)

	assert.Empty(t, r.venue.Positions(acct))
	assert.Len(t, r.venue.Closed(acct), 2)
	assert.True(t, r.engine.State().IsIdle())
}

func TestRunRestrictionColumn(t *testing.T) {
	r := newRig(t)

	csv := "2026-01-05T09:00:00Z,XAUUSD,2650.00,2650.00,ENTRY,SELL,SIN_PROMEDIOS\n" +
		"2026-01-05T09:00:01Z,XAUUSD,2653.00,2653.00\n" +
		"2026-01-05T09:00:02Z,XAUUSD,2653.00,2653.00\n"

	_, err := Run(context.Background(), strings.NewReader(csv), r.venue, r.router, r.loop)
	require.NoError(t, err)
	assert.Len(t, r.venue.Positions(acct), 1, "no averaging rungs")
}

func TestRunBadRows(t *testing.T) {
	tests := []struct {
		name string
		csv  string
		want string
	}{
		{"short", "2026-01-05T09:00:00Z,XAUUSD,2650\n", "at least 4"},
		{"time", "yesterday,XAUUSD,1,1\n", "bad time"},
		{"bid", "2026-01-05T09:00:00Z,XAUUSD,x,1\n", "bad bid"},
		{"crossed", "2026-01-05T09:00:00Z,XAUUSD,2,1\n", "below bid"},
		{"side", "2026-01-05T09:00:00Z,XAUUSD,1,1,ENTRY,UP\n", "line 1"},
		{"event", "2026-01-05T09:00:00Z,XAUUSD,1,1,HOLD\n", "invalid signal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRig(t)
			_, err := Run(context.Background(), strings.NewReader(tt.csv), r.venue, r.router, r.loop)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestRunCancelled(t *testing.T) {
	r := newRig(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, strings.NewReader(ladder), r.venue, r.router, r.loop)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestCSVMissingFile(t *testing.T) {
	r := newRig(t)
	_, err := CSV(context.Background(), "does-not-exist.csv", r.venue, r.router, r.loop)
	assert.Error(t, err)
}
