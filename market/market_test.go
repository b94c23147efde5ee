package market

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuotePrices(t *testing.T) {
	t.Parallel()

	q := Quote{Symbol: "XAUUSD", Bid: 2650.00, Ask: 2650.30}

	assert.InDelta(t, 2650.15, q.Mid(), 1e-9)
	assert.InDelta(t, 0.30, q.Spread(), 1e-9)
	assert.True(t, q.Valid())

	assert.Equal(t, 2650.00, q.ClosePrice(Buy))
	assert.Equal(t, 2650.30, q.ClosePrice(Sell))
	assert.Equal(t, 2650.30, q.OpenPrice(Buy))
	assert.Equal(t, 2650.00, q.OpenPrice(Sell))

	assert.False(t, Quote{Bid: 1}.Valid())
}

func TestLookup(t *testing.T) {
	t.Parallel()

	tests := []struct {
		symbol string
		want   string
		ok     bool
	}{
		{"XAUUSD", "XAUUSD", true},
		{"xauusd", "XAUUSD", true},
		{"XAU_USD", "XAUUSD", true},
		{"XAUUSD-ECN", "XAUUSD", true},
		{"EURUSD.m", "EURUSD", true},
		{"BTCUSD", "", false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.symbol, func(t *testing.T) {
			t.Parallel()
			m, ok := Lookup(tt.symbol)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, m.Name)
		})
	}
}

func TestPips(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 1.0, Pips(10, 0.10), 1e-12)
	assert.InDelta(t, 11.0, ToPips(1.10, 0.10), 1e-9)
	assert.Equal(t, 0.0, ToPips(1, 0))
	assert.Equal(t, 2649.12, Round(2649.1234, 2))
}

func TestSideJSON(t *testing.T) {
	t.Parallel()

	b, err := json.Marshal(struct {
		S Side `json:"s"`
	}{None})
	require.NoError(t, err)
	assert.JSONEq(t, `{"s":null}`, string(b))

	var got struct {
		S Side `json:"s"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"s":"sell"}`), &got))
	assert.Equal(t, Sell, got.S)

	require.NoError(t, json.Unmarshal([]byte(`{"s":null}`), &got))
	assert.Equal(t, None, got.S)

	assert.Error(t, json.Unmarshal([]byte(`{"s":"up"}`), &got))
}

func TestSideHelpers(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Sell, Buy.Opposite())
	assert.Equal(t, Buy, Sell.Opposite())
	assert.Equal(t, None, None.Opposite())
	assert.Equal(t, 1.0, Buy.Sign())
	assert.Equal(t, -1.0, Sell.Sign())
	assert.Equal(t, "NONE", None.String())
}
