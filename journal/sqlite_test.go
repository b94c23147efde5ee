package journal

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/gridscalp/market"
)

func newTestSQLite(t *testing.T) (*SQLite, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	j, err := NewSQLite(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })

	return j, path
}

func sampleEvents() []Event {
	t0 := time.Date(2025, 2, 3, 9, 0, 0, 0, time.UTC)
	return []Event{
		{ID: "E1", Time: t0, Account: "1001", Symbol: "XAUUSD", Kind: KindSignal, Side: market.Buy, Reason: "ENTRY"},
		{ID: "E2", Time: t0.Add(time.Second), Account: "1001", Symbol: "XAUUSD", Kind: KindOpen, Level: 0, Ticket: "T1", Side: market.Buy, Volume: 0.1, Price: 2650.00},
		{ID: "E3", Time: t0.Add(time.Minute), Account: "1001", Symbol: "XAUUSD", Kind: KindOpen, Level: 1, Ticket: "T2", Side: market.Buy, Volume: 0.1, Price: 2649.00},
		{ID: "E4", Time: t0.Add(2 * time.Minute), Account: "1002", Symbol: "XAUUSD", Kind: KindCloseAll},
		{ID: "E5", Time: t0.Add(3 * time.Minute), Account: "1001", Symbol: "XAUUSD", Kind: KindClose, Level: 1, Ticket: "T2", Side: market.Buy, Volume: 0.1, Price: 2650.10, Reason: "take_profit"},
	}
}

func TestSQLiteSchemaCreated(t *testing.T) {
	t.Parallel()

	j, path := newTestSQLite(t)
	require.NoError(t, j.Close())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	var name string
	err = db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name='events'`).Scan(&name)
	require.NoError(t, err)
	assert.Equal(t, "events", name)
}

func TestSQLiteRecordAndGet(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	for _, e := range sampleEvents() {
		require.NoError(t, j.Record(e))
	}

	got, err := j.GetEvent("E5")
	require.NoError(t, err)
	assert.Equal(t, KindClose, got.Kind)
	assert.Equal(t, 1, got.Level)
	assert.Equal(t, market.Buy, got.Side)
	assert.Equal(t, 2650.10, got.Price)
	assert.Equal(t, "take_profit", got.Reason)
	assert.True(t, got.Time.Equal(sampleEvents()[4].Time))

	got, err = j.GetEvent("E4")
	require.NoError(t, err)
	assert.Equal(t, market.None, got.Side)

	_, err = j.GetEvent("missing")
	assert.Error(t, err)
}

func TestSQLiteAssignsID(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	require.NoError(t, j.Record(Event{Time: time.Now(), Account: "1001", Kind: KindUpdate}))

	evs, err := j.ListEvents(Filter{Account: "1001"})
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Len(t, evs[0].ID, 26)
}

func TestSQLiteListEvents(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	evs := sampleEvents()
	for _, e := range evs {
		require.NoError(t, j.Record(e))
	}

	tests := []struct {
		name string
		flt  Filter
		want []string
	}{
		{"all", Filter{}, []string{"E1", "E2", "E3", "E4", "E5"}},
		{"account", Filter{Account: "1001"}, []string{"E1", "E2", "E3", "E5"}},
		{"kind", Filter{Kind: KindOpen}, []string{"E2", "E3"}},
		{"window", Filter{Since: evs[1].Time, Until: evs[4].Time}, []string{"E2", "E3", "E4"}},
		{"limit", Filter{Account: "1001", Limit: 2}, []string{"E1", "E2"}},
	}

	for _, tt := range tests {
		got, err := j.ListEvents(tt.flt)
		require.NoError(t, err, tt.name)
		ids := make([]string, 0, len(got))
		for _, e := range got {
			ids = append(ids, e.ID)
		}
		assert.Equal(t, tt.want, ids, tt.name)
	}

	between, err := j.ListEventsBetween(evs[2].Time, evs[4].Time.Add(time.Second))
	require.NoError(t, err)
	assert.Len(t, between, 3)
}
