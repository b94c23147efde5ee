package loop

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEngine struct {
	account string
	delay   time.Duration
	err     error
	calls   atomic.Int32

	mu       sync.Mutex
	inFlight int
	maxSeen  int
}

func (f *fakeEngine) Account() string { return f.account }

func (f *fakeEngine) Manage(ctx context.Context) error {
	f.calls.Add(1)
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.maxSeen {
		f.maxSeen = f.inFlight
	}
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return f.err
}

func TestRoundRunsEnginesConcurrently(t *testing.T) {
	t.Parallel()

	a := &fakeEngine{account: "a", delay: 50 * time.Millisecond}
	b := &fakeEngine{account: "b", delay: 50 * time.Millisecond}
	c := &fakeEngine{account: "c", delay: 50 * time.Millisecond}
	l := New([]Manager{a, b, c})

	start := time.Now()
	require.NoError(t, l.Round(context.Background()))
	assert.Less(t, time.Since(start), 140*time.Millisecond)
	for _, e := range []*fakeEngine{a, b, c} {
		assert.Equal(t, int32(1), e.calls.Load())
	}
}

func TestRoundCollectsErrors(t *testing.T) {
	t.Parallel()

	boom := errors.New("venue down")
	var rounds, failures int
	l := New([]Manager{
		&fakeEngine{account: "ok"},
		&fakeEngine{account: "bad", err: boom},
	}, WithRoundHook(func(_ time.Duration, failed int) {
		rounds++
		failures += failed
	}))

	err := l.Round(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "account bad")
	assert.Equal(t, 1, rounds)
	assert.Equal(t, 1, failures)
}

func TestRoundTickTimeout(t *testing.T) {
	t.Parallel()

	slow := &fakeEngine{account: "slow", delay: time.Second}
	l := New([]Manager{slow}, WithTickTimeout(20*time.Millisecond))

	start := time.Now()
	err := l.Round(context.Background())
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestRunTicksUntilCancelled(t *testing.T) {
	t.Parallel()

	e := &fakeEngine{account: "a", delay: 5 * time.Millisecond}
	l := New([]Manager{e}, WithPeriod(10*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()
	require.NoError(t, l.Run(ctx))

	assert.GreaterOrEqual(t, e.calls.Load(), int32(3))
	assert.Equal(t, 1, e.maxSeen, "one tick per account at a time")
}

func TestRunSlowRoundDoesNotOverlap(t *testing.T) {
	t.Parallel()

	e := &fakeEngine{account: "a", delay: 30 * time.Millisecond}
	l := New([]Manager{e}, WithPeriod(5*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.NoError(t, l.Run(ctx))

	assert.Equal(t, 1, e.maxSeen)
	assert.LessOrEqual(t, e.calls.Load(), int32(5))
}
