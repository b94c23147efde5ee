package broker

import (
	"context"
	"errors"
	"time"

	"github.com/rustyeddy/gridscalp/market"
)

var (
	// ErrUnavailable means the venue could not answer (no quote, dropped
	// connection, failed login). Callers retry on the next tick.
	ErrUnavailable = errors.New("venue unavailable")
	// ErrRejected means the venue refused an order.
	ErrRejected = errors.New("order rejected")
	// ErrNotFound means a ticket is not open at the venue.
	ErrNotFound = errors.New("ticket not found")
)

// Gateway is the execution venue as seen by one account. Every call may
// fail transiently.
type Gateway interface {
	GetQuote(ctx context.Context, symbol string) (market.Quote, error)
	ListPositions(ctx context.Context, symbol string, tag int64) ([]Position, error)
	ListOrders(ctx context.Context, symbol string, tag int64) ([]Order, error)
	CreateMarketOrder(ctx context.Context, req MarketOrderRequest) (OrderFill, error)
	ClosePosition(ctx context.Context, ticket string) error
}

// Switcher is implemented by venues whose connection carries a single active
// login. Session calls Login before running calls for a different account.
type Switcher interface {
	Login(ctx context.Context, account string) error
}

type Position struct {
	Ticket    string
	Symbol    string
	Side      market.Side
	Volume    float64
	OpenPrice float64
	Tag       int64
	Comment   string
	OpenTime  time.Time
}

// Order is a working (not yet filled) order at the venue.
type Order struct {
	Ticket  string
	Symbol  string
	Side    market.Side
	Volume  float64
	Price   float64
	Tag     int64
	Comment string
	Time    time.Time
}

type MarketOrderRequest struct {
	Symbol  string
	Side    market.Side
	Volume  float64
	Tag     int64
	Comment string
}

type OrderFill struct {
	Ticket string
	Symbol string
	Side   market.Side
	Volume float64
	Price  float64
	Time   time.Time

	// Pending is set when the venue accepted the order but it is still
	// working. Price is then the requested price.
	Pending bool
}
