package journal

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memJournal struct {
	events []Event
	err    error
	closed bool
}

func (m *memJournal) Record(e Event) error {
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, e)
	return nil
}

func (m *memJournal) Close() error {
	m.closed = true
	return m.err
}

func TestMultiFansOut(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	a, b, c := &memJournal{}, &memJournal{err: boom}, &memJournal{}
	m := Multi{a, b, c}

	err := m.Record(sampleEvents()[0])
	assert.ErrorIs(t, err, boom)
	assert.Len(t, a.events, 1)
	assert.Len(t, c.events, 1)

	assert.ErrorIs(t, m.Close(), boom)
	assert.True(t, a.closed && b.closed && c.closed)

	assert.NoError(t, Nop{}.Record(Event{}))
	assert.NoError(t, Multi{}.Close())
}

func TestFormatEventOrg(t *testing.T) {
	t.Parallel()

	e := sampleEvents()[4]
	e.ID = "01JKABCDEFGHJKMNPQRSTVWXYZ"
	out := FormatEventOrg(e)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.NotEmpty(t, lines)
	assert.Equal(t, "** CLOSE XAUUSD L1 (RSTVWXYZ)", lines[0])
	assert.Contains(t, out, ":TIME: 2025-02-03T09:03:00Z\n")
	assert.Contains(t, out, ":TICKET: T2\n")
	assert.Contains(t, out, ":SIDE: BUY\n")
	assert.Contains(t, out, ":PRICE: 2650.10000\n")
	assert.Contains(t, out, ":REASON: take_profit\n")
	assert.Equal(t, ":END:", lines[len(lines)-1])

	sig := FormatEventOrg(sampleEvents()[3])
	assert.NotContains(t, sig, ":TICKET:")
	assert.Contains(t, sig, ":SIDE: NONE\n")

	both := FormatEventsOrg(sampleEvents()[:2])
	assert.Equal(t, 2, strings.Count(both, ":PROPERTIES:"))
}
