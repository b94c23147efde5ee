package journal

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestCSVJournalAppends(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "events.csv")
	evs := sampleEvents()

	j, err := NewCSV(path)
	require.NoError(t, err)
	require.NoError(t, j.Record(evs[0]))
	require.NoError(t, j.Record(evs[2]))
	require.NoError(t, j.Close())

	// reopening must not repeat the header
	j, err = NewCSV(path)
	require.NoError(t, err)
	require.NoError(t, j.Record(evs[4]))
	require.NoError(t, j.Close())

	rows := readCSV(t, path)
	require.Len(t, rows, 4)
	assert.Equal(t, csvHeader, rows[0])

	assert.Equal(t, []string{
		"E3", "2025-02-03T09:01:00Z", "1001", "XAUUSD", "open", "1", "T2", "BUY",
		"0.100000", "2649.000000", "",
	}, rows[2])
	assert.Equal(t, "close", rows[3][4])
	assert.Equal(t, "take_profit", rows[3][10])
}
