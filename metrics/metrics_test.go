package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/gridscalp/grid"
)

var _ grid.Observer = (*Metrics)(nil)

func TestObserverCounts(t *testing.T) {
	t.Parallel()
	m := New()

	m.Tick("1", 20*time.Millisecond, nil)
	m.Tick("1", 30*time.Millisecond, errors.New("quote"))
	m.QuoteFailed("1")
	m.OrderSubmitted("1", 0)
	m.OrderSubmitted("1", 2)
	m.OrderRejected("1", 2)
	m.RungClosed("1", 2)
	m.TrailingHit("1")
	m.Levels("1", 2, 3)
	m.SessionWait("1", 5*time.Millisecond)
	m.Round(40*time.Millisecond, 1)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ticks.WithLabelValues("1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.tickErrors.WithLabelValues("1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.quoteFailures.WithLabelValues("1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.orders.WithLabelValues("1", "2", "submitted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.orders.WithLabelValues("1", "2", "rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rungsClosed.WithLabelValues("1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.trailingHits.WithLabelValues("1")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.pending.WithLabelValues("1")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.live.WithLabelValues("1")))

	m.Levels("1", 0, 1)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.pending.WithLabelValues("1")))
}

func TestHandler(t *testing.T) {
	t.Parallel()
	m := New()
	m.OrderSubmitted("70001", 1)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `gridscalp_orders_total{account="70001",level="1",result="submitted"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestInstancesAreIndependent(t *testing.T) {
	t.Parallel()
	a, b := New(), New()
	a.TrailingHit("x")
	assert.Equal(t, 0.0, testutil.ToFloat64(b.trailingHits.WithLabelValues("x")))
}
