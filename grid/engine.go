// Package grid runs the averaging ladder of one account: it opens the entry
// rung on a signal, adds rungs as price moves against the entry, takes
// profit rung by rung, trails a virtual stop on the entry rung and unwinds
// everything on request.
package grid

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rustyeddy/gridscalp/broker"
	"github.com/rustyeddy/gridscalp/internal/id"
	"github.com/rustyeddy/gridscalp/journal"
	"github.com/rustyeddy/gridscalp/logger"
	"github.com/rustyeddy/gridscalp/market"
	"github.com/rustyeddy/gridscalp/risk"
	"github.com/rustyeddy/gridscalp/store"
)

var (
	ErrNoFill = errors.New("no entry order filled")

	// ErrClosePending is returned while an interrupted close-all still has
	// positions open at the venue.
	ErrClosePending = errors.New("close all pending")
)

// Params configures one engine. Distances are in pips; PipSize converts
// them to price.
type Params struct {
	Account string
	Symbol  string
	Tag     int64
	Comment string
	PipSize float64

	StepPips float64

	EntryLot    float64
	EntryOrders int

	AveragingLot   float64
	MaxLevels      int
	OrdersPerLevel int

	TrailingEnabled   bool
	TrailActivatePips float64
	TrailBackPips     float64
	TrailStepPips     float64
	TrailBufferPips   float64

	QuoteRetries     int
	QuoteBackoff     time.Duration
	CloseRetries     int
	ClosePassBackoff time.Duration
}

func (p Params) Validate() error {
	switch {
	case p.Account == "":
		return errors.New("account is required")
	case p.Symbol == "":
		return errors.New("symbol is required")
	case p.PipSize <= 0:
		return errors.New("pip size must be > 0")
	case p.StepPips <= 0:
		return errors.New("step must be > 0")
	case p.EntryLot <= 0:
		return errors.New("entry lot must be > 0")
	case p.EntryOrders <= 0:
		return errors.New("entry orders must be > 0")
	case p.MaxLevels < 0:
		return errors.New("max levels must be >= 0")
	case p.MaxLevels > 0 && p.AveragingLot <= 0:
		return errors.New("averaging lot must be > 0")
	}
	return nil
}

func (p Params) step() float64 { return p.StepPips * p.PipSize }

func (p Params) trailing() Trailing {
	return Trailing{
		Activate: p.TrailActivatePips * p.PipSize,
		Back:     p.TrailBackPips * p.PipSize,
		Step:     p.TrailStepPips * p.PipSize,
		Buffer:   p.TrailBufferPips * p.PipSize,
	}
}

func (p Params) policy() risk.Policy {
	return risk.Policy{
		EntryOrders:    p.EntryOrders,
		MaxLevels:      p.MaxLevels,
		OrdersPerLevel: p.OrdersPerLevel,
	}
}

// Observer receives engine activity, typically for metrics.
type Observer interface {
	Tick(account string, d time.Duration, err error)
	QuoteFailed(account string)
	OrderSubmitted(account string, level int)
	OrderRejected(account string, level int)
	RungClosed(account string, level int)
	TrailingHit(account string)
	Levels(account string, pending, live int)
}

type nopObserver struct{}

func (nopObserver) Tick(string, time.Duration, error) {}
func (nopObserver) QuoteFailed(string)                {}
func (nopObserver) OrderSubmitted(string, int)        {}
func (nopObserver) OrderRejected(string, int)         {}
func (nopObserver) RungClosed(string, int)            {}
func (nopObserver) TrailingHit(string)                {}
func (nopObserver) Levels(string, int, int)           {}

// Engine owns one account's State. HandleSignal, Manage, CloseAll and
// Restore are serialised by mu; the closing flag lets CloseAll preempt
// ticks that have not started yet.
type Engine struct {
	mu      sync.Mutex
	closing atomic.Int32

	p       Params
	gw      broker.Gateway
	store   store.Store
	journal journal.Journal
	obs     Observer
	log     *logrus.Entry
	now     func() time.Time

	state    State
	dirty    bool
	live     map[int]int
	lastTick time.Time
	lastErr  error

	snapMu sync.RWMutex
	snap   Snapshot
}

type Option func(*Engine)

func WithJournal(j journal.Journal) Option {
	return func(e *Engine) {
		if j != nil {
			e.journal = j
		}
	}
}

func WithObserver(o Observer) Option {
	return func(e *Engine) {
		if o != nil {
			e.obs = o
		}
	}
}

func WithLogger(l *logrus.Entry) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine builds an idle engine. gw is usually a session-bound gateway so
// venue calls are serialised with other accounts.
func NewEngine(p Params, gw broker.Gateway, st store.Store, opts ...Option) (*Engine, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("grid %s: %w", p.Account, err)
	}
	if p.QuoteRetries <= 0 {
		p.QuoteRetries = 1
	}
	if p.CloseRetries <= 0 {
		p.CloseRetries = 1
	}
	if p.OrdersPerLevel <= 0 {
		p.OrdersPerLevel = 1
	}

	e := &Engine{
		p:       p,
		gw:      gw,
		store:   st,
		journal: journal.Nop{},
		obs:     nopObserver{},
		log:     logger.ForAccount(p.Account),
		now:     time.Now,
		state:   Idle(),
		live:    map[int]int{},
	}
	for _, o := range opts {
		o(e)
	}
	e.log = e.log.WithField("symbol", p.Symbol)
	e.publishLocked()
	return e, nil
}

func (e *Engine) Account() string { return e.p.Account }
func (e *Engine) Symbol() string  { return e.p.Symbol }
func (e *Engine) Params() Params  { return e.p }

// Closing reports whether a close-all is running or still has to be
// finished by later ticks.
func (e *Engine) Closing() bool {
	if e.closing.Load() > 0 {
		return true
	}
	e.snapMu.RLock()
	defer e.snapMu.RUnlock()
	return e.snap.Closing
}

// Snapshot is a point-in-time view of an engine.
type Snapshot struct {
	Account       string      `json:"account"`
	Symbol        string      `json:"symbol"`
	Side          market.Side `json:"side"`
	Entry         *float64    `json:"entry"`
	EntryOpen     bool        `json:"entryOpen"`
	EntrySL       *float64    `json:"entrySL"`
	PendingLevels []int       `json:"pendingLevels"`
	Restriction   string      `json:"restriction,omitempty"`
	LiveLevels    map[int]int `json:"liveLevels"`
	Closing       bool        `json:"closing"`
	LastTick      time.Time   `json:"lastTick"`
	LastError     string      `json:"lastError,omitempty"`
}

// Snapshot returns the view published at the end of the last operation. It
// never waits for an in-flight tick or close-all.
func (e *Engine) Snapshot() Snapshot {
	e.snapMu.RLock()
	snap := e.snap
	e.snapMu.RUnlock()

	snap.Closing = snap.Closing || e.closing.Load() > 0
	snap.PendingLevels = append([]int{}, snap.PendingLevels...)
	snap.Entry = clonePtr(snap.Entry)
	snap.EntrySL = clonePtr(snap.EntrySL)
	live := make(map[int]int, len(snap.LiveLevels))
	for k, v := range snap.LiveLevels {
		live[k] = v
	}
	snap.LiveLevels = live
	return snap
}

func (e *Engine) publishLocked() {
	s := e.state.Clone()
	live := make(map[int]int, len(e.live))
	for k, v := range e.live {
		live[k] = v
	}
	snap := Snapshot{
		Account:       e.p.Account,
		Symbol:        e.p.Symbol,
		Side:          s.Side,
		Entry:         s.Entry,
		EntryOpen:     s.EntryOpen,
		EntrySL:       s.EntrySL,
		PendingLevels: s.Pending.Sorted(),
		Restriction:   string(s.Restriction),
		LiveLevels:    live,
		Closing:       s.Closing,
		LastTick:      e.lastTick,
	}
	if e.lastErr != nil {
		snap.LastError = e.lastErr.Error()
	}

	e.snapMu.Lock()
	e.snap = snap
	e.snapMu.Unlock()
}

// State returns a copy of the current state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Clone()
}

// persistLocked saves the state; a failed save leaves the engine dirty so
// the next tick retries it.
func (e *Engine) persistLocked(ctx context.Context) error {
	data, err := store.Encode(e.state.record())
	if err == nil {
		err = e.store.Save(ctx, e.p.Account, data)
	}
	if err != nil {
		e.dirty = true
		e.log.WithError(err).Error("save state")
		return fmt.Errorf("save state: %w", err)
	}
	e.dirty = false
	return nil
}

func (e *Engine) record(ev journal.Event) {
	ev.ID = id.New()
	ev.Time = e.now()
	ev.Account = e.p.Account
	ev.Symbol = e.p.Symbol
	if err := e.journal.Record(ev); err != nil {
		e.log.WithError(err).WithField("kind", ev.Kind).Warn("journal event")
	}
}

func (e *Engine) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// quote fetches a valid quote with a bounded number of attempts.
func (e *Engine) quote(ctx context.Context) (market.Quote, error) {
	var lastErr error
	for i := 0; i < e.p.QuoteRetries; i++ {
		q, err := e.gw.GetQuote(ctx, e.p.Symbol)
		if err == nil && q.Valid() {
			return q, nil
		}
		if err == nil {
			err = fmt.Errorf("empty quote: %w", broker.ErrUnavailable)
		}
		lastErr = err
		if i < e.p.QuoteRetries-1 {
			if serr := e.sleep(ctx, e.p.QuoteBackoff); serr != nil {
				return market.Quote{}, fmt.Errorf("quote %s: %w", e.p.Symbol, serr)
			}
		}
	}
	return market.Quote{}, fmt.Errorf("quote %s after %d attempts: %w", e.p.Symbol, e.p.QuoteRetries, lastErr)
}

// HandleSignal starts a fresh activation on side. The reset state is saved
// before any order goes out, then EntryOrders entry orders are submitted.
// The first fill anchors the ladder. If nothing fills the side stays set
// with no entry and ErrNoFill is returned; later ticks leave it alone.
// An unfinished close-all is completed first; while positions remain the
// signal is refused with ErrClosePending.
func (e *Engine) HandleSignal(ctx context.Context, side market.Side, restriction risk.Restriction) error {
	if side != market.Buy && side != market.Sell {
		return fmt.Errorf("signal side %q: invalid", side)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.publishLocked()

	if e.state.Closing {
		if err := e.drainCloseLocked(ctx); err != nil {
			return fmt.Errorf("signal %s: %w", side, err)
		}
	}

	e.state = State{Side: side, Pending: LevelSet{}, Restriction: restriction}
	e.live = map[int]int{}
	_ = e.persistLocked(ctx)

	e.record(journal.Event{Kind: journal.KindSignal, Side: side, Reason: string(restriction)})
	e.log.WithFields(logrus.Fields{"side": side, "restriction": restriction}).Info("signal")

	policy := e.p.policy().Apply(restriction)
	for i := 0; i < policy.EntryOrders; i++ {
		fill, err := e.gw.CreateMarketOrder(ctx, broker.MarketOrderRequest{
			Symbol:  e.p.Symbol,
			Side:    side,
			Volume:  e.p.EntryLot,
			Tag:     e.p.Tag,
			Comment: e.comment(0),
		})
		if err != nil {
			e.obs.OrderRejected(e.p.Account, 0)
			e.log.WithError(err).WithField("order", i+1).Warn("entry order failed")
			continue
		}
		e.obs.OrderSubmitted(e.p.Account, 0)
		if e.state.Entry == nil {
			px := fill.Price
			e.state.Entry = &px
		}
		e.state.EntryOpen = true
		e.record(journal.Event{Kind: journal.KindOpen, Level: 0, Ticket: fill.Ticket, Side: side, Volume: e.p.EntryLot, Price: fill.Price})
		e.log.WithFields(logrus.Fields{"ticket": fill.Ticket, "price": fill.Price, "lot": e.p.EntryLot}).Info("entry filled")
	}

	perr := e.persistLocked(ctx)
	if !e.state.EntryOpen {
		return fmt.Errorf("%s %s: %w", side, e.p.Symbol, ErrNoFill)
	}
	return perr
}

func (e *Engine) comment(level int) string {
	c := e.p.Comment
	if c == "" {
		c = "grid"
	}
	return fmt.Sprintf("%s L%d", c, level)
}

// closePositions closes every position, treating ErrNotFound as already
// closed. It returns the positions that are still open.
func (e *Engine) closePositions(ctx context.Context, ps []broker.Position, level int, price float64, reason string) []broker.Position {
	var left []broker.Position
	for _, p := range ps {
		err := e.gw.ClosePosition(ctx, p.Ticket)
		if err != nil && !errors.Is(err, broker.ErrNotFound) {
			e.log.WithError(err).WithFields(logrus.Fields{"ticket": p.Ticket, "level": level}).Warn("close failed")
			left = append(left, p)
			continue
		}
		e.record(journal.Event{Kind: journal.KindClose, Level: level, Ticket: p.Ticket, Side: p.Side, Volume: p.Volume, Price: price, Reason: reason})
	}
	return left
}
