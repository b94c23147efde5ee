package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rustyeddy/gridscalp/api"
	"github.com/rustyeddy/gridscalp/broker"
	"github.com/rustyeddy/gridscalp/config"
	"github.com/rustyeddy/gridscalp/grid"
	"github.com/rustyeddy/gridscalp/journal"
	"github.com/rustyeddy/gridscalp/logger"
	"github.com/rustyeddy/gridscalp/loop"
	"github.com/rustyeddy/gridscalp/metrics"
	"github.com/rustyeddy/gridscalp/report"
	"github.com/rustyeddy/gridscalp/signal"
	"github.com/rustyeddy/gridscalp/sim"
	"github.com/rustyeddy/gridscalp/store"
)

// app is the wired process: one paper venue shared through a session,
// one engine per account, and the loop, router and API around them.
type app struct {
	cfg      *config.Config
	venue    *sim.Engine
	session  *broker.Session
	store    store.Store
	journal  journal.Journal
	reporter *report.Reporter
	metrics  *metrics.Metrics
	engines  []*grid.Engine
	router   *signal.Router
	loop     *loop.Loop
	server   *api.Server
	log      *logrus.Entry
	started  time.Time
}

func newApp(ctx context.Context, cfg *config.Config) (a *app, err error) {
	a = &app{
		cfg:     cfg,
		venue:   sim.NewEngine(),
		metrics: metrics.New(),
		log:     logger.WithComponent("app"),
		started: time.Now(),
	}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	a.session = broker.NewSession(a.venue, broker.WithWaitObserver(a.metrics.SessionWait))

	if a.store, err = store.Open(cfg.Store.Driver, cfg.Store.Path); err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if a.journal, err = openJournal(cfg.Journal); err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if cfg.Report.Enabled {
		a.reporter = report.New(report.Config{
			BaseURL:           cfg.Report.BaseURL,
			APIKey:            cfg.Report.APIKey,
			Version:           version,
			Timeout:           cfg.Report.Timeout.Std(),
			QueueSize:         cfg.Report.QueueSize,
			HeartbeatInterval: cfg.Report.HeartbeatInterval.Std(),
		}, a.heartbeat)
		a.journal = journal.Multi{a.journal, a.reporter}
	}

	var (
		targets  []signal.Target
		accounts []api.Account
		managers []loop.Manager
	)
	for _, ac := range cfg.Accounts {
		e, err := grid.NewEngine(cfg.GridParams(ac), a.session.Bind(ac.ID, a.venue), a.store,
			grid.WithJournal(a.journal),
			grid.WithObserver(a.metrics),
		)
		if err != nil {
			return nil, err
		}
		if err := e.Restore(ctx); err != nil {
			// the engine runs from the loaded state; the next tick retries the save
			a.log.WithError(err).WithField("account", ac.ID).Warn("restore")
		}
		a.engines = append(a.engines, e)
		targets = append(targets, e)
		accounts = append(accounts, e)
		managers = append(managers, e)
	}

	a.router = signal.NewRouter(targets, signal.WithCloseTimeout(cfg.Broker.CloseTimeout.Std()))
	a.loop = loop.New(managers,
		loop.WithPeriod(cfg.Loop.Period.Std()),
		loop.WithTickTimeout(cfg.Loop.TickTimeout.Std()),
		loop.WithRoundHook(a.metrics.Round),
	)
	if cfg.API.Enabled {
		a.server = api.NewServer(api.Config{
			Addr:         cfg.API.Addr,
			Token:        cfg.API.Token,
			CloseTimeout: cfg.Broker.CloseTimeout.Std(),
		}, accounts, a.router, a.metrics.Handler())
	}
	return a, nil
}

func openJournal(c config.JournalConfig) (journal.Journal, error) {
	switch c.Type {
	case "csv":
		j, err := journal.NewCSV(c.Path)
		if err != nil {
			return nil, err
		}
		return j, nil
	case "sqlite":
		j, err := journal.NewSQLite(c.Path)
		if err != nil {
			return nil, err
		}
		return j, nil
	}
	return journal.Nop{}, nil
}

// run blocks until ctx is cancelled. Open positions are left at the venue
// and picked up again by Restore on the next start.
func (a *app) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for _, f := range a.cfg.Simulation.Feeds {
		feed := sim.Feed{
			Symbol:   f.Symbol,
			Start:    f.Start,
			Spread:   f.Spread,
			MaxStep:  f.MaxStep,
			Interval: f.Interval.Std(),
			Seed:     f.Seed,
			Path:     f.Path,
		}
		go func() {
			if err := feed.Run(ctx, a.venue); err != nil && !errors.Is(err, context.Canceled) {
				a.log.WithError(err).WithField("symbol", feed.Symbol).Error("price feed stopped")
			}
		}()
	}

	if a.reporter != nil {
		a.reporter.Start(ctx)
	}

	errc := make(chan error, 1)
	if a.server != nil {
		go func() {
			if err := a.server.Start(); err != nil {
				errc <- fmt.Errorf("control api: %w", err)
				cancel()
			}
		}()
	}

	err := a.loop.Run(ctx)

	if a.server != nil {
		sctx, scancel := context.WithTimeout(context.Background(), a.cfg.Broker.CloseTimeout.Std())
		defer scancel()
		if serr := a.server.Shutdown(sctx); serr != nil {
			a.log.WithError(serr).Warn("control api shutdown")
		}
	}

	select {
	case serr := <-errc:
		return errors.Join(err, serr)
	default:
		return err
	}
}

// close releases the journal (flushing the reporter) and the store.
func (a *app) close() error {
	var errs []error
	if a.journal != nil {
		errs = append(errs, a.journal.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	return errors.Join(errs...)
}

func (a *app) heartbeat() report.Heartbeat {
	hb := report.Heartbeat{Connected: true}
	for _, e := range a.engines {
		s := e.Snapshot()
		positions := len(a.venue.Positions(s.Account))
		orders := len(a.venue.Orders(s.Account))
		hb.OpenPositions += positions
		hb.PendingOrders += orders

		live := 0
		for _, n := range s.LiveLevels {
			if n > 0 {
				live++
			}
		}
		hb.Accounts = append(hb.Accounts, report.AccountStatus{
			ID:            s.Account,
			Symbol:        s.Symbol,
			Side:          string(s.Side),
			EntryOpen:     s.EntryOpen,
			PendingLevels: len(s.PendingLevels),
			LiveLevels:    live,
			Closing:       s.Closing,
			LastError:     s.LastError,
		})
	}
	return hb
}
