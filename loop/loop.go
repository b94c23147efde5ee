// Package loop drives the periodic reconciliation of every grid engine.
package loop

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rustyeddy/gridscalp/logger"
)

const (
	DefaultPeriod      = 500 * time.Millisecond
	DefaultTickTimeout = 10 * time.Second
)

// Manager is one account's tick. grid.Engine satisfies it.
type Manager interface {
	Account() string
	Manage(ctx context.Context) error
}

// Loop runs Manage for every engine once per period. Engines of one round
// run concurrently and the next round starts only after all of them return,
// so an account never has two ticks in flight.
type Loop struct {
	engines     []Manager
	period      time.Duration
	tickTimeout time.Duration
	log         *logrus.Entry
	onRound     func(d time.Duration, failed int)
}

type Option func(*Loop)

func WithPeriod(d time.Duration) Option {
	return func(l *Loop) {
		if d > 0 {
			l.period = d
		}
	}
}

func WithTickTimeout(d time.Duration) Option {
	return func(l *Loop) {
		if d > 0 {
			l.tickTimeout = d
		}
	}
}

// WithRoundHook is called after every round with its duration and the
// number of engines whose tick failed.
func WithRoundHook(fn func(d time.Duration, failed int)) Option {
	return func(l *Loop) { l.onRound = fn }
}

func New(engines []Manager, opts ...Option) *Loop {
	l := &Loop{
		engines:     engines,
		period:      DefaultPeriod,
		tickTimeout: DefaultTickTimeout,
		log:         logger.WithComponent("loop"),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Run ticks until ctx is cancelled. The first round runs immediately.
// Ticks missed while a round is slow are dropped, not queued.
func (l *Loop) Run(ctx context.Context) error {
	l.log.WithFields(logrus.Fields{
		"engines": len(l.engines),
		"period":  l.period,
	}).Info("reconciliation loop started")

	ticker := time.NewTicker(l.period)
	defer ticker.Stop()

	for {
		_ = l.Round(ctx)

		select {
		case <-ctx.Done():
			l.log.Info("reconciliation loop stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Round runs one tick of every engine and waits for all of them. Errors are
// logged per account and returned joined.
func (l *Loop) Round(ctx context.Context) error {
	start := time.Now()
	errs := make([]error, len(l.engines))

	var wg sync.WaitGroup
	for i, e := range l.engines {
		wg.Add(1)
		go func(i int, e Manager) {
			defer wg.Done()
			tctx, cancel := context.WithTimeout(ctx, l.tickTimeout)
			defer cancel()

			if err := e.Manage(tctx); err != nil {
				errs[i] = fmt.Errorf("account %s: %w", e.Account(), err)
				l.log.WithError(err).WithField("account", e.Account()).Warn("tick failed")
			}
		}(i, e)
	}
	wg.Wait()

	failed := 0
	for _, err := range errs {
		if err != nil {
			failed++
		}
	}
	d := time.Since(start)
	if d > l.period {
		l.log.WithField("took", d).Debug("round overran period")
	}
	if l.onRound != nil {
		l.onRound(d, failed)
	}
	return errors.Join(errs...)
}
