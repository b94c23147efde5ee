package signal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rustyeddy/gridscalp/logger"
	"github.com/rustyeddy/gridscalp/market"
	"github.com/rustyeddy/gridscalp/risk"
)

var (
	ErrDuplicate = errors.New("duplicate signal")
	ErrNoTarget  = errors.New("no account trades this symbol")
)

// Target is one account able to act on signals. grid.Engine satisfies it.
type Target interface {
	Account() string
	Symbol() string
	HandleSignal(ctx context.Context, side market.Side, restriction risk.Restriction) error
	CloseAll(ctx context.Context) error
}

// Outcome is what one account did with a signal.
type Outcome struct {
	Account string `json:"account"`
	Error   string `json:"error,omitempty"`
}

// Result reports a dispatched signal.
type Result struct {
	ID       string    `json:"id"`
	Type     Type      `json:"type"`
	Outcomes []Outcome `json:"outcomes"`
}

const defaultRemember = 256

// Router fans signals out to accounts. Entries go to every account trading
// the signal's symbol (all of them when the symbol is empty); close-range
// goes to every account. Accounts are handled concurrently; each engine
// serialises its own work and the broker session serialises venue calls.
type Router struct {
	targets      []Target
	closeTimeout time.Duration
	log          *logrus.Entry

	mu     sync.Mutex
	seen   map[string]struct{}
	recent []string
}

type RouterOption func(*Router)

// WithCloseTimeout bounds how long a close-range may keep retrying.
func WithCloseTimeout(d time.Duration) RouterOption {
	return func(r *Router) { r.closeTimeout = d }
}

func NewRouter(targets []Target, opts ...RouterOption) *Router {
	r := &Router{
		targets: targets,
		log:     logger.WithComponent("signal"),
		seen:    make(map[string]struct{}),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Dispatch normalises ev and runs it. A repeated ID returns ErrDuplicate
// without touching any account.
func (r *Router) Dispatch(ctx context.Context, ev Event) (Result, error) {
	if err := ev.Normalize(); err != nil {
		return Result{}, err
	}
	if !r.remember(ev.ID) {
		return Result{ID: ev.ID, Type: ev.Type}, fmt.Errorf("signal %s: %w", ev.ID, ErrDuplicate)
	}

	log := r.log.WithFields(logrus.Fields{"id": ev.ID, "type": ev.Type, "side": ev.Side, "symbol": ev.Symbol})
	log.Info("signal received")

	var targets []Target
	for _, t := range r.targets {
		if ev.Type == CloseRange || ev.Symbol == "" || canonicalSymbol(t.Symbol()) == ev.Symbol {
			targets = append(targets, t)
		}
	}
	if len(targets) == 0 {
		log.Warn("signal matched no account")
		return Result{ID: ev.ID, Type: ev.Type}, fmt.Errorf("%s: %w", ev.Symbol, ErrNoTarget)
	}

	if ev.Type == CloseRange && r.closeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.closeTimeout)
		defer cancel()
	}

	outcomes := make([]Outcome, len(targets))
	var wg sync.WaitGroup
	for i, t := range targets {
		wg.Add(1)
		go func(i int, t Target) {
			defer wg.Done()
			var err error
			switch ev.Type {
			case Entry:
				err = t.HandleSignal(ctx, ev.Side, ev.Restriction)
			case CloseRange:
				err = t.CloseAll(ctx)
			}
			outcomes[i] = Outcome{Account: t.Account()}
			if err != nil {
				outcomes[i].Error = err.Error()
				log.WithError(err).WithField("account", t.Account()).Warn("signal failed on account")
			}
		}(i, t)
	}
	wg.Wait()

	return Result{ID: ev.ID, Type: ev.Type, Outcomes: outcomes}, nil
}

// remember records id and reports whether it was new. Only the most recent
// ids are kept.
func (r *Router) remember(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.seen[id]; ok {
		return false
	}
	r.seen[id] = struct{}{}
	r.recent = append(r.recent, id)
	if len(r.recent) > defaultRemember {
		delete(r.seen, r.recent[0])
		r.recent = r.recent[1:]
	}
	return true
}
