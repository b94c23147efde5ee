package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/rustyeddy/gridscalp/market"
)

// Session serialises every venue call across all accounts. The underlying
// connection holds one active login, so switching accounts happens inside
// the same critical section as the call that needs it.
type Session struct {
	slot     chan struct{}
	switcher Switcher
	active   string // guarded by slot
	onWait   func(account string, d time.Duration)
}

type SessionOption func(*Session)

// WithWaitObserver reports how long each call waited for the session.
func WithWaitObserver(fn func(account string, d time.Duration)) SessionOption {
	return func(s *Session) { s.onWait = fn }
}

// NewSession returns a session. sw may be nil for venues that do not need a
// login switch.
func NewSession(sw Switcher, opts ...SessionOption) *Session {
	s := &Session{
		slot:     make(chan struct{}, 1),
		switcher: sw,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Session) acquire(ctx context.Context, account string) error {
	start := time.Now()
	select {
	case s.slot <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("session busy: %w", ctx.Err())
	}
	if s.onWait != nil {
		s.onWait(account, time.Since(start))
	}
	return nil
}

func (s *Session) release() { <-s.slot }

// Do runs fn while holding the session with account logged in.
func (s *Session) Do(ctx context.Context, account string, fn func(context.Context) error) error {
	if err := s.acquire(ctx, account); err != nil {
		return err
	}
	defer s.release()

	if s.switcher != nil && s.active != account {
		if err := s.switcher.Login(ctx, account); err != nil {
			s.active = ""
			return fmt.Errorf("login %s: %v: %w", account, err, ErrUnavailable)
		}
		s.active = account
	}
	return fn(ctx)
}

// Active returns the account currently logged in. Only meaningful for
// diagnostics; it may change as soon as it returns.
func (s *Session) Active() string {
	if err := s.acquire(context.Background(), ""); err != nil {
		return ""
	}
	defer s.release()
	return s.active
}

// Bind returns a Gateway for account whose calls all run through the session.
func (s *Session) Bind(account string, gw Gateway) Gateway {
	return &boundGateway{s: s, account: account, gw: gw}
}

type boundGateway struct {
	s       *Session
	account string
	gw      Gateway
}

func (b *boundGateway) GetQuote(ctx context.Context, symbol string) (q market.Quote, err error) {
	err = b.s.Do(ctx, b.account, func(ctx context.Context) error {
		q, err = b.gw.GetQuote(ctx, symbol)
		return err
	})
	return q, err
}

func (b *boundGateway) ListPositions(ctx context.Context, symbol string, tag int64) (ps []Position, err error) {
	err = b.s.Do(ctx, b.account, func(ctx context.Context) error {
		ps, err = b.gw.ListPositions(ctx, symbol, tag)
		return err
	})
	return ps, err
}

func (b *boundGateway) ListOrders(ctx context.Context, symbol string, tag int64) (os []Order, err error) {
	err = b.s.Do(ctx, b.account, func(ctx context.Context) error {
		os, err = b.gw.ListOrders(ctx, symbol, tag)
		return err
	})
	return os, err
}

func (b *boundGateway) CreateMarketOrder(ctx context.Context, req MarketOrderRequest) (f OrderFill, err error) {
	err = b.s.Do(ctx, b.account, func(ctx context.Context) error {
		f, err = b.gw.CreateMarketOrder(ctx, req)
		return err
	})
	return f, err
}

func (b *boundGateway) ClosePosition(ctx context.Context, ticket string) error {
	return b.s.Do(ctx, b.account, func(ctx context.Context) error {
		return b.gw.ClosePosition(ctx, ticket)
	})
}
