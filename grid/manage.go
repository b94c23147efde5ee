package grid

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rustyeddy/gridscalp/broker"
	"github.com/rustyeddy/gridscalp/journal"
	"github.com/rustyeddy/gridscalp/risk"
	"github.com/rustyeddy/gridscalp/store"
)

// Manage runs one reconciliation tick. It is a no-op while a close-all is
// running, while the account is idle and while no entry anchors the ladder.
// An interrupted close-all is continued instead of managing the grid.
// Venue failures end the tick early; whatever was already changed is kept
// and saved.
func (e *Engine) Manage(ctx context.Context) (err error) {
	if e.closing.Load() > 0 {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closing.Load() > 0 {
		return nil
	}

	if e.state.Closing {
		return e.resumeCloseLocked(ctx)
	}

	if e.state.IsIdle() || e.state.Entry == nil {
		if e.dirty {
			_ = e.persistLocked(ctx)
		}
		return nil
	}

	start := e.now()
	defer func() {
		e.lastTick = start
		e.lastErr = err
		e.obs.Tick(e.p.Account, e.now().Sub(start), err)
		e.obs.Levels(e.p.Account, e.state.Pending.Len(), sumLive(e.live))
		e.publishLocked()
	}()

	changed := e.dirty
	defer func() {
		if changed {
			if perr := e.persistLocked(ctx); perr != nil && err == nil {
				err = perr
			}
		}
	}()

	q, err := e.quote(ctx)
	if err != nil {
		e.obs.QuoteFailed(e.p.Account)
		return err
	}

	side := e.state.Side
	entry := *e.state.Entry
	step := e.p.step()
	price := q.ClosePrice(side)

	// trailing stop update
	if e.p.TrailingEnabled && e.state.EntryOpen {
		if sl, moved := e.p.trailing().Next(side, entry, price, q.Spread(), e.state.EntrySL); moved {
			e.state.EntrySL = &sl
			changed = true
			e.record(journal.Event{Kind: journal.KindUpdate, Level: 0, Side: side, Price: sl, Reason: "trailing_stop"})
			e.log.WithFields(logrus.Fields{"sl": sl, "price": price}).Info("trailing stop moved")
		}
	}

	positions, err := e.gw.ListPositions(ctx, e.p.Symbol, e.p.Tag)
	if err != nil {
		return fmt.Errorf("list positions: %w", err)
	}
	levels := groupPositions(positions, entry, step)

	// trailing stop trigger
	if e.state.EntrySL != nil && stopHit(side, price, *e.state.EntrySL) {
		left := e.closePositions(ctx, levels[0], 0, price, "trailing_stop")
		if len(left) == 0 {
			e.obs.TrailingHit(e.p.Account)
			e.log.WithFields(logrus.Fields{"sl": *e.state.EntrySL, "price": price, "closed": len(levels[0])}).Info("trailing stop hit")
			e.state.EntryOpen = false
			e.state.EntrySL = nil
			changed = true
		}
		delete(levels, 0)
	}

	// profit taking, one rung at a time
	for _, lvl := range sortedLevels(levels) {
		if lvl == 0 {
			continue
		}
		lst := levels[lvl]
		gain := side.Sign() * (price - lst[0].OpenPrice)
		if gain < step-eps {
			continue
		}
		left := e.closePositions(ctx, lst, lvl, price, "take_profit")
		if len(left) > 0 {
			levels[lvl] = left
			continue
		}
		delete(levels, lvl)
		if e.state.Pending.Has(lvl) {
			e.state.Pending.Remove(lvl)
		}
		changed = true
		e.obs.RungClosed(e.p.Account, lvl)
		e.log.WithFields(logrus.Fields{"level": lvl, "price": price, "gain": gain}).Info("rung closed")
	}

	// pending reconciliation
	if e.reconcilePendingLocked(ctx, levels, entry, step) {
		changed = true
	}
	e.live = liveCounts(levels)

	// new rungs
	against := side.Sign() * (entry - price)
	if against >= step-eps {
		deepest := ClassifyLevel(against, step)
		if e.openRungsLocked(ctx, levels, deepest, price) {
			changed = true
		}
	}

	return nil
}

// reconcilePendingLocked drops pending levels that are now live and levels
// with neither a live order nor a live position. If orders cannot be listed
// only promotions are applied.
func (e *Engine) reconcilePendingLocked(ctx context.Context, levels map[int][]broker.Position, entry, step float64) bool {
	if e.state.Pending.Len() == 0 {
		return false
	}
	changed := false
	for _, lvl := range e.state.Pending.Sorted() {
		if len(levels[lvl]) > 0 {
			e.state.Pending.Remove(lvl)
			changed = true
		}
	}
	if e.state.Pending.Len() == 0 {
		return changed
	}

	orders, err := e.gw.ListOrders(ctx, e.p.Symbol, e.p.Tag)
	if err != nil {
		e.log.WithError(err).Warn("list orders, pending levels kept")
		return changed
	}
	working := orderLevels(orders, entry, step)
	for _, lvl := range e.state.Pending.Sorted() {
		if !working[lvl] && len(levels[lvl]) == 0 {
			e.state.Pending.Remove(lvl)
			changed = true
			e.log.WithField("level", lvl).Info("pending level dropped, no order at venue")
		}
	}
	return changed
}

// openRungsLocked submits one averaging order for each level up to deepest
// that the policy allows. Levels shallower than the deepest live rung are
// skipped: rungs filled together after a gap all classify to the deepest
// level and already stand in for the shallower ones.
func (e *Engine) openRungsLocked(ctx context.Context, levels map[int][]broker.Position, deepest int, price float64) bool {
	policy := e.p.policy().Apply(e.state.Restriction)
	ladder := risk.Ladder{Live: liveCounts(levels), Pending: e.state.Pending.bools()}
	floor := deepestLive(ladder.Live)

	changed := false
	for lvl := 1; lvl <= deepest; lvl++ {
		if lvl < floor {
			continue
		}
		d := risk.EvaluateRung(policy, ladder, lvl)
		if !d.Allowed {
			if d.Free <= 0 {
				break
			}
			continue
		}

		fill, err := e.gw.CreateMarketOrder(ctx, broker.MarketOrderRequest{
			Symbol:  e.p.Symbol,
			Side:    e.state.Side,
			Volume:  e.p.AveragingLot,
			Tag:     e.p.Tag,
			Comment: e.comment(lvl),
		})
		if err != nil {
			e.obs.OrderRejected(e.p.Account, lvl)
			e.log.WithError(err).WithField("level", lvl).Warn("averaging order failed")
			continue
		}

		e.state.Pending.Add(lvl)
		ladder.Pending[lvl] = true
		changed = true
		e.obs.OrderSubmitted(e.p.Account, lvl)

		fillPrice := fill.Price
		if fillPrice == 0 {
			fillPrice = price
		}
		e.record(journal.Event{Kind: journal.KindOpen, Level: lvl, Ticket: fill.Ticket, Side: e.state.Side, Volume: e.p.AveragingLot, Price: fillPrice})
		e.log.WithFields(logrus.Fields{"level": lvl, "ticket": fill.Ticket, "price": fillPrice}).Info("rung opened")
	}
	return changed
}

// CloseAll closes every position of the account and resets it to idle. It
// keeps listing and closing until the venue reports nothing open, since
// fills can race with the closes. The request is saved before the first
// pass: if ctx ends early the account stays marked as closing and later
// ticks finish the unwind.
func (e *Engine) CloseAll(ctx context.Context) error {
	e.closing.Add(1)
	defer e.closing.Add(-1)

	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.publishLocked()

	e.log.Info("close all")
	if !e.state.Closing {
		e.state.Closing = true
		_ = e.persistLocked(ctx)
	}

	for pass := 1; ; pass++ {
		flat, failed := e.closePassLocked(ctx, pass)
		if flat {
			break
		}
		if cerr := ctx.Err(); cerr != nil {
			return e.abortCloseLocked(ctx, cerr)
		}
		if failed {
			if serr := e.sleep(ctx, e.p.ClosePassBackoff); serr != nil {
				return e.abortCloseLocked(ctx, serr)
			}
		}
	}
	return e.finishCloseLocked(ctx)
}

func (e *Engine) abortCloseLocked(ctx context.Context, cause error) error {
	e.log.WithError(cause).Warn("close all interrupted, resuming on next tick")
	if e.dirty {
		_ = e.persistLocked(context.WithoutCancel(ctx))
	}
	return fmt.Errorf("close all %s: %w", e.p.Account, cause)
}

// resumeClosePasses bounds the passes one tick spends on an interrupted
// close-all.
const resumeClosePasses = 3

// resumeCloseLocked is the tick of an account marked as closing: no rungs
// are opened and no profit is taken, only close passes run.
func (e *Engine) resumeCloseLocked(ctx context.Context) (err error) {
	start := e.now()
	defer func() {
		e.lastTick = start
		e.lastErr = err
		e.obs.Tick(e.p.Account, e.now().Sub(start), err)
		e.obs.Levels(e.p.Account, e.state.Pending.Len(), sumLive(e.live))
		e.publishLocked()
	}()
	if e.dirty {
		_ = e.persistLocked(ctx)
	}
	return e.drainCloseLocked(ctx)
}

// drainCloseLocked runs close passes without waiting between them and
// finishes the close-all once the venue is flat.
func (e *Engine) drainCloseLocked(ctx context.Context) error {
	for pass := 1; pass <= resumeClosePasses; pass++ {
		flat, failed := e.closePassLocked(ctx, pass)
		if flat {
			return e.finishCloseLocked(ctx)
		}
		if failed || ctx.Err() != nil {
			break
		}
	}
	return fmt.Errorf("close all %s: %w", e.p.Account, ErrClosePending)
}

// closePassLocked lists the account's positions and closes each one. flat
// means the venue reported nothing open; failed means a list or a close did
// not go through.
func (e *Engine) closePassLocked(ctx context.Context, pass int) (flat, failed bool) {
	ps, err := e.gw.ListPositions(ctx, e.p.Symbol, e.p.Tag)
	if err != nil {
		e.log.WithError(err).WithField("pass", pass).Warn("close all: list positions")
		return false, true
	}
	if len(ps) == 0 {
		return true, false
	}

	price := 0.0
	if q, qerr := e.gw.GetQuote(ctx, e.p.Symbol); qerr == nil {
		price = q.ClosePrice(e.state.Side)
	}
	for _, p := range ps {
		if !e.closeWithRetryLocked(ctx, p, price) {
			failed = true
		}
	}
	return false, failed
}

func (e *Engine) finishCloseLocked(ctx context.Context) error {
	e.state = Idle()
	e.live = map[int]int{}
	e.record(journal.Event{Kind: journal.KindCloseAll, Reason: "close_range"})
	e.log.Info("all positions closed")
	return e.persistLocked(ctx)
}

// closeWithRetryLocked makes up to CloseRetries attempts on one position.
func (e *Engine) closeWithRetryLocked(ctx context.Context, p broker.Position, price float64) bool {
	lvl := 0
	if e.state.Entry != nil {
		lvl = ClassifyLevel(math.Abs(p.OpenPrice-*e.state.Entry), e.p.step())
	}
	for try := 0; try < e.p.CloseRetries; try++ {
		if len(e.closePositions(ctx, []broker.Position{p}, lvl, price, "close_all")) == 0 {
			return true
		}
		if ctx.Err() != nil {
			return false
		}
	}
	return false
}

// Restore loads the saved state. A missing or unreadable record starts the
// account idle. Pending levels are then checked against the venue so an
// unclean shutdown cannot leave stale levels blocking the ladder; if the
// venue cannot be read they are kept as loaded.
func (e *Engine) Restore(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.publishLocked()

	e.state = Idle()
	data, err := e.store.Load(ctx, e.p.Account)
	switch {
	case err == nil:
		rec, derr := store.Decode(data)
		if derr != nil {
			e.log.WithError(derr).Error("state corrupt, starting idle")
			break
		}
		e.state = stateFromRecord(rec)
	case errors.Is(err, store.ErrNotFound):
		e.log.Debug("no saved state")
	default:
		e.log.WithError(err).Error("state unreadable, starting idle")
	}

	if e.state.Pending.Len() > 0 && e.state.Entry != nil {
		e.sanitizePendingLocked(ctx)
	}

	e.log.WithFields(logrus.Fields{
		"side":    e.state.Side,
		"pending": e.state.Pending.Sorted(),
		"closing": e.state.Closing,
	}).Info("state restored")
	return e.persistLocked(ctx)
}

func (e *Engine) sanitizePendingLocked(ctx context.Context) {
	ps, err := e.gw.ListPositions(ctx, e.p.Symbol, e.p.Tag)
	if err != nil {
		e.log.WithError(err).Warn("restore: venue unavailable, pending levels kept")
		return
	}
	os, err := e.gw.ListOrders(ctx, e.p.Symbol, e.p.Tag)
	if err != nil {
		e.log.WithError(err).Warn("restore: venue unavailable, pending levels kept")
		return
	}

	entry, step := *e.state.Entry, e.p.step()
	live := groupPositions(ps, entry, step)
	working := orderLevels(os, entry, step)
	for _, lvl := range e.state.Pending.Sorted() {
		if len(live[lvl]) == 0 && !working[lvl] {
			e.state.Pending.Remove(lvl)
			e.log.WithField("level", lvl).Info("restore: stale pending level dropped")
		}
	}
	e.live = liveCounts(live)
}

func sumLive(m map[int]int) int {
	n := 0
	for _, c := range m {
		n += c
	}
	return n
}

// Age is how long ago the last tick ran.
func (e *Engine) Age() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lastTick.IsZero() {
		return 0
	}
	return e.now().Sub(e.lastTick)
}
