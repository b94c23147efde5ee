package signal

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/gridscalp/market"
	"github.com/rustyeddy/gridscalp/risk"
)

type fakeTarget struct {
	account string
	symbol  string
	err     error

	mu          sync.Mutex
	sides       []market.Side
	restriction risk.Restriction
	closes      int
	deadline    bool
}

func (f *fakeTarget) Account() string { return f.account }
func (f *fakeTarget) Symbol() string  { return f.symbol }

func (f *fakeTarget) HandleSignal(_ context.Context, side market.Side, r risk.Restriction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sides = append(f.sides, side)
	f.restriction = r
	return f.err
}

func (f *fakeTarget) CloseAll(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	_, f.deadline = ctx.Deadline()
	return f.err
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   Event
		want Event
		err  bool
	}{
		{
			name: "entry",
			in:   Event{ID: "s1", Type: "entry", Side: market.Buy, Symbol: "xau_usd", Restriction: "sin promedios"},
			want: Event{ID: "s1", Type: Entry, Side: market.Buy, Symbol: "XAUUSD", Restriction: risk.NoAveraging},
		},
		{
			name: "close aliases",
			in:   Event{ID: "s2", Type: "close-range"},
			want: Event{ID: "s2", Type: CloseRange},
		},
		{name: "entry without side", in: Event{Type: Entry}, err: true},
		{name: "unknown type", in: Event{Type: "HOLD"}, err: true},
		{name: "bad restriction", in: Event{Type: Entry, Side: market.Sell, Restriction: "maybe"}, err: true},
		{name: "negative price", in: Event{Type: Entry, Side: market.Sell, Price: -1}, err: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ev := tt.in
			err := ev.Normalize()
			if tt.err {
				require.ErrorIs(t, err, ErrInvalid)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, ev)
		})
	}
}

func TestNormalizeAssignsID(t *testing.T) {
	t.Parallel()

	ev := Event{Type: CloseRange}
	require.NoError(t, ev.Normalize())
	assert.Len(t, ev.ID, 26)
}

func TestEventJSON(t *testing.T) {
	t.Parallel()

	var ev Event
	require.NoError(t, json.Unmarshal([]byte(`{"type":"ENTRY","side":"sell","symbol":"XAUUSD-ECN","restriction":"RIESGO"}`), &ev))
	require.NoError(t, ev.Normalize())
	assert.Equal(t, market.Sell, ev.Side)
	assert.Equal(t, "XAUUSD", ev.Symbol)
	assert.Equal(t, risk.SingleTrade, ev.Restriction)
}

func TestDispatchEntryBySymbol(t *testing.T) {
	t.Parallel()

	gold1 := &fakeTarget{account: "1", symbol: "XAUUSD"}
	gold2 := &fakeTarget{account: "2", symbol: "XAUUSD.m"}
	fx := &fakeTarget{account: "3", symbol: "EURUSD"}
	r := NewRouter([]Target{gold1, gold2, fx})

	res, err := r.Dispatch(context.Background(), Event{Type: Entry, Side: market.Buy, Symbol: "XAUUSD", Restriction: "SOLO_1_PROMEDIO"})
	require.NoError(t, err)
	assert.Len(t, res.Outcomes, 2)
	assert.Equal(t, []market.Side{market.Buy}, gold1.sides)
	assert.Equal(t, []market.Side{market.Buy}, gold2.sides)
	assert.Equal(t, risk.OneAveraging, gold2.restriction)
	assert.Empty(t, fx.sides)

	_, err = r.Dispatch(context.Background(), Event{Type: Entry, Side: market.Buy, Symbol: "BTCUSD"})
	assert.ErrorIs(t, err, ErrNoTarget)
}

func TestDispatchEntryWithoutSymbol(t *testing.T) {
	t.Parallel()

	a := &fakeTarget{account: "1", symbol: "XAUUSD"}
	b := &fakeTarget{account: "2", symbol: "EURUSD", err: errors.New("no entry order filled")}
	r := NewRouter([]Target{a, b})

	res, err := r.Dispatch(context.Background(), Event{Type: Entry, Side: market.Sell})
	require.NoError(t, err)
	require.Len(t, res.Outcomes, 2)
	assert.Empty(t, res.Outcomes[0].Error)
	assert.Equal(t, "2", res.Outcomes[1].Account)
	assert.Contains(t, res.Outcomes[1].Error, "no entry order filled")
}

func TestDispatchCloseRange(t *testing.T) {
	t.Parallel()

	a := &fakeTarget{account: "1", symbol: "XAUUSD"}
	b := &fakeTarget{account: "2", symbol: "EURUSD"}
	r := NewRouter([]Target{a, b}, WithCloseTimeout(time.Minute))

	res, err := r.Dispatch(context.Background(), Event{Type: CloseRange, Symbol: "XAUUSD"})
	require.NoError(t, err)
	assert.Len(t, res.Outcomes, 2)
	assert.Equal(t, 1, a.closes)
	assert.Equal(t, 1, b.closes)
	assert.True(t, a.deadline)
}

func TestDispatchDuplicate(t *testing.T) {
	t.Parallel()

	a := &fakeTarget{account: "1", symbol: "XAUUSD"}
	r := NewRouter([]Target{a})

	ev := Event{ID: "msg-42", Type: Entry, Side: market.Buy}
	_, err := r.Dispatch(context.Background(), ev)
	require.NoError(t, err)
	_, err = r.Dispatch(context.Background(), ev)
	require.ErrorIs(t, err, ErrDuplicate)
	assert.Len(t, a.sides, 1)
}

func TestRememberIsBounded(t *testing.T) {
	t.Parallel()

	r := NewRouter(nil)
	for i := 0; i < defaultRemember+10; i++ {
		assert.True(t, r.remember(string(rune('a'+i%26))+time.Duration(i).String()))
	}
	assert.Len(t, r.seen, defaultRemember)
	assert.Len(t, r.recent, defaultRemember)
}
