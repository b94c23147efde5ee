package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/gridscalp/market"
)

func fp(v float64) *float64 { return &v }

func TestEncodeDecodeCurrent(t *testing.T) {
	t.Parallel()

	in := Record{
		Side:          market.Sell,
		Entry:         fp(2650.00),
		EntryOpen:     true,
		EntrySL:       fp(2648.20),
		PendingLevels: []int{3, 1, 3, 0},
	}
	b, err := Encode(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"side":"SELL","entry":2650,"entryOpen":true,"entrySL":2648.2,"pendingLevels":[1,3],"version":2}`, string(b))

	out, err := Decode(b)
	require.NoError(t, err)
	assert.Equal(t, market.Sell, out.Side)
	assert.Equal(t, 2650.00, *out.Entry)
	assert.Equal(t, []int{1, 3}, out.PendingLevels)
}

func TestEncodeIdle(t *testing.T) {
	t.Parallel()

	b, err := Encode(Record{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"side":null,"entry":null,"entryOpen":false,"entrySL":null,"pendingLevels":[],"version":2}`, string(b))
}

func TestEncodeClosing(t *testing.T) {
	t.Parallel()

	b, err := Encode(Record{Side: market.Buy, Entry: fp(2650.00), Closing: true})
	require.NoError(t, err)
	assert.Contains(t, string(b), `"closing":true`)

	out, err := Decode(b)
	require.NoError(t, err)
	assert.True(t, out.Closing)
	assert.Equal(t, market.Buy, out.Side)
}

func TestDecodeLegacy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		in    string
		side  market.Side
		entry *float64
		open  bool
		sl    *float64
		want  []int
	}{
		{
			name: "snake case with duplicates",
			in:   `{"side":"BUY","entry":2650.0,"entry_open":true,"entry_sl":null,"pending_levels":[1,1,2]}`,
			side: market.Buy, entry: fp(2650), open: true,
			want: []int{1, 2},
		},
		{
			name: "camel case without version",
			in:   `{"side":"SELL","entry":1.1,"entryOpen":false,"entrySL":1.09,"pendingLevels":[2,2,2]}`,
			side: market.Sell, entry: fp(1.1), sl: fp(1.09),
			want: []int{2},
		},
		{
			name: "idle",
			in:   `{"side":null,"entry":null,"entry_open":false,"entry_sl":null,"pending_levels":[]}`,
			want: []int{},
		},
		{
			name: "floats and junk levels",
			in:   `{"side":"BUY","entry":5,"pending_levels":[3.0,0,-1,1.5,1]}`,
			side: market.Buy, entry: fp(5),
			want: []int{1, 3},
		},
		{
			name: "missing fields",
			in:   `{}`,
			want: []int{},
		},
		{
			name: "older version number",
			in:   `{"version":1,"side":"BUY","pending_levels":[4,4]}`,
			side: market.Buy,
			want: []int{4},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r, err := Decode([]byte(tt.in))
			require.NoError(t, err)
			assert.Equal(t, tt.side, r.Side)
			assert.Equal(t, tt.entry, r.Entry)
			assert.Equal(t, tt.open, r.EntryOpen)
			assert.Equal(t, tt.sl, r.EntrySL)
			assert.Equal(t, tt.want, r.PendingLevels)
			assert.Equal(t, Version, r.Version)
		})
	}
}

func TestDecodeCorrupt(t *testing.T) {
	t.Parallel()

	for _, in := range []string{
		``,
		`   `,
		`{"side":"BUY",`,
		`null`,
		`[1,2]`,
		`{"side":"UP"}`,
		`{"pending_levels":"1,2"}`,
		`{"version":"two"}`,
		`{"version":2,"pendingLevels":{"1":true}}`,
	} {
		_, err := Decode([]byte(in))
		assert.ErrorIs(t, err, ErrCorrupt, "input %q", in)
	}
}
