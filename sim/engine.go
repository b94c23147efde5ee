package sim

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rustyeddy/gridscalp/broker"
	"github.com/rustyeddy/gridscalp/internal/id"
	"github.com/rustyeddy/gridscalp/market"
)

// Engine is an in-memory paper venue. It keeps one book per login and, like
// a terminal connection, only one login is active at a time. Faults can be
// injected to exercise the failure paths of callers.
type Engine struct {
	mu     sync.Mutex
	quotes *market.QuoteStore
	books  map[string]*book
	active string
	now    func() time.Time

	// fault injection, all guarded by mu
	quoteOutage   bool
	quoteFailures int
	rejectNext    int
	closeFailures int
	orderListFail int
	badLogins     map[string]bool
	deferFills    bool
}

type book struct {
	balance float64
	trades  map[string]*Trade
	orders  map[string]broker.Order
	closed  []Trade
}

func newBook() *book {
	return &book{
		trades: make(map[string]*Trade),
		orders: make(map[string]broker.Order),
	}
}

func NewEngine() *Engine {
	return &Engine{
		quotes:    market.NewQuoteStore(),
		books:     map[string]*book{"": newBook()},
		badLogins: make(map[string]bool),
		now:       time.Now,
	}
}

var _ broker.Gateway = (*Engine)(nil)
var _ broker.Switcher = (*Engine)(nil)

// Login makes account the active book, creating it on first use.
func (e *Engine) Login(ctx context.Context, account string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.badLogins[account] {
		return fmt.Errorf("login %s: authorization failed", account)
	}
	if _, ok := e.books[account]; !ok {
		e.books[account] = newBook()
	}
	e.active = account
	return nil
}

func (e *Engine) activeLocked() *book {
	b, ok := e.books[e.active]
	if !ok {
		b = newBook()
		e.books[e.active] = b
	}
	return b
}

func (e *Engine) bookLocked(login string) *book {
	b, ok := e.books[login]
	if !ok {
		b = newBook()
		e.books[login] = b
	}
	return b
}

// SetQuote publishes a quote for its symbol.
func (e *Engine) SetQuote(q market.Quote) {
	if q.Time.IsZero() {
		q.Time = e.now()
	}
	e.quotes.Set(q)
}

// SetPrice publishes bid/ask for symbol.
func (e *Engine) SetPrice(symbol string, bid, ask float64) {
	e.SetQuote(market.Quote{Symbol: symbol, Bid: bid, Ask: ask})
}

func (e *Engine) GetQuote(ctx context.Context, symbol string) (market.Quote, error) {
	if err := ctx.Err(); err != nil {
		return market.Quote{}, err
	}

	e.mu.Lock()
	fail := e.quoteOutage || e.quoteFailures > 0
	if e.quoteFailures > 0 {
		e.quoteFailures--
	}
	e.mu.Unlock()
	if fail {
		return market.Quote{}, fmt.Errorf("quote %s: %w", symbol, broker.ErrUnavailable)
	}

	q, err := e.quotes.Get(symbol)
	if err != nil || !q.Valid() {
		return market.Quote{}, fmt.Errorf("quote %s: %w", symbol, broker.ErrUnavailable)
	}
	return q, nil
}

func matches(symbol string, tag int64, s string, t int64) bool {
	return (symbol == "" || symbol == s) && (tag == 0 || tag == t)
}

func (e *Engine) ListPositions(ctx context.Context, symbol string, tag int64) ([]broker.Position, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []broker.Position
	for _, t := range e.activeLocked().trades {
		if t.Open && matches(symbol, tag, t.Symbol, t.Tag) {
			out = append(out, t.position())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticket < out[j].Ticket })
	return out, nil
}

func (e *Engine) ListOrders(ctx context.Context, symbol string, tag int64) ([]broker.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.orderListFail > 0 {
		e.orderListFail--
		return nil, fmt.Errorf("orders: %w", broker.ErrUnavailable)
	}

	var out []broker.Order
	for _, o := range e.activeLocked().orders {
		if matches(symbol, tag, o.Symbol, o.Tag) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticket < out[j].Ticket })
	return out, nil
}

// CreateMarketOrder fills at the ask for buys and the bid for sells. With
// deferred fills enabled the order rests as a working order until FillOrders.
func (e *Engine) CreateMarketOrder(ctx context.Context, req broker.MarketOrderRequest) (broker.OrderFill, error) {
	if err := ctx.Err(); err != nil {
		return broker.OrderFill{}, err
	}
	if req.Side != market.Buy && req.Side != market.Sell {
		return broker.OrderFill{}, fmt.Errorf("order side %q: %w", req.Side, broker.ErrRejected)
	}
	if req.Volume <= 0 {
		return broker.OrderFill{}, fmt.Errorf("order volume %v: %w", req.Volume, broker.ErrRejected)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.rejectNext > 0 {
		e.rejectNext--
		return broker.OrderFill{}, fmt.Errorf("order %s %s: %w", req.Side, req.Symbol, broker.ErrRejected)
	}

	q, err := e.quotes.Get(req.Symbol)
	if err != nil || !q.Valid() {
		return broker.OrderFill{}, fmt.Errorf("order %s: no price: %w", req.Symbol, broker.ErrRejected)
	}

	price := q.OpenPrice(req.Side)
	ticket := id.New()
	now := e.now()
	b := e.activeLocked()

	if e.deferFills {
		b.orders[ticket] = broker.Order{
			Ticket:  ticket,
			Symbol:  req.Symbol,
			Side:    req.Side,
			Volume:  req.Volume,
			Price:   price,
			Tag:     req.Tag,
			Comment: req.Comment,
			Time:    now,
		}
		return broker.OrderFill{
			Ticket:  ticket,
			Symbol:  req.Symbol,
			Side:    req.Side,
			Volume:  req.Volume,
			Price:   price,
			Time:    now,
			Pending: true,
		}, nil
	}

	b.trades[ticket] = &Trade{
		Ticket:    ticket,
		Symbol:    req.Symbol,
		Side:      req.Side,
		Volume:    req.Volume,
		OpenPrice: price,
		Tag:       req.Tag,
		Comment:   req.Comment,
		OpenTime:  now,
		Open:      true,
	}

	return broker.OrderFill{
		Ticket: ticket,
		Symbol: req.Symbol,
		Side:   req.Side,
		Volume: req.Volume,
		Price:  price,
		Time:   now,
	}, nil
}

// ClosePosition closes a position of the active login at market.
// Longs close on the bid, shorts on the ask.
func (e *Engine) ClosePosition(ctx context.Context, ticket string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closeFailures > 0 {
		e.closeFailures--
		return fmt.Errorf("close %s: %w", ticket, broker.ErrUnavailable)
	}

	b := e.activeLocked()
	t, ok := b.trades[ticket]
	if !ok || !t.Open {
		return fmt.Errorf("close %s: %w", ticket, broker.ErrNotFound)
	}

	q, err := e.quotes.Get(t.Symbol)
	if err != nil {
		return fmt.Errorf("close %s: no price for %q: %w", ticket, t.Symbol, broker.ErrUnavailable)
	}

	closePrice := q.ClosePrice(t.Side)
	t.ClosePrice = closePrice
	t.CloseTime = e.now()
	t.RealizedPL = t.UnrealizedPL(closePrice)
	t.Open = false
	b.balance += t.RealizedPL
	b.closed = append(b.closed, *t)
	delete(b.trades, ticket)
	return nil
}

// Equity is balance plus open PL for login, valued at current quotes.
func (e *Engine) Equity(login string) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	b := e.bookLocked(login)
	eq := b.balance
	for _, t := range b.trades {
		q, err := e.quotes.Get(t.Symbol)
		if err != nil {
			continue
		}
		eq += t.UnrealizedPL(q.ClosePrice(t.Side))
	}
	return eq
}

// Balance is the realized PL of login.
func (e *Engine) Balance(login string) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bookLocked(login).balance
}

// Positions returns the open positions of login regardless of the active
// session.
func (e *Engine) Positions(login string) []broker.Position {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []broker.Position
	for _, t := range e.bookLocked(login).trades {
		out = append(out, t.position())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticket < out[j].Ticket })
	return out
}

// Orders returns the working orders of login.
func (e *Engine) Orders(login string) []broker.Order {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []broker.Order
	for _, o := range e.bookLocked(login).orders {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticket < out[j].Ticket })
	return out
}

// Closed returns the trades closed on login, oldest first.
func (e *Engine) Closed(login string) []Trade {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Trade(nil), e.bookLocked(login).closed...)
}

// AddPosition places a position directly on login's book.
func (e *Engine) AddPosition(login string, p broker.Position) string {
	e.mu.Lock()
	defer e.mu.Unlock()

	if p.Ticket == "" {
		p.Ticket = id.New()
	}
	if p.OpenTime.IsZero() {
		p.OpenTime = e.now()
	}
	e.bookLocked(login).trades[p.Ticket] = &Trade{
		Ticket:    p.Ticket,
		Symbol:    p.Symbol,
		Side:      p.Side,
		Volume:    p.Volume,
		OpenPrice: p.OpenPrice,
		Tag:       p.Tag,
		Comment:   p.Comment,
		OpenTime:  p.OpenTime,
		Open:      true,
	}
	return p.Ticket
}

// AddOrder places a working order directly on login's book.
func (e *Engine) AddOrder(login string, o broker.Order) string {
	e.mu.Lock()
	defer e.mu.Unlock()

	if o.Ticket == "" {
		o.Ticket = id.New()
	}
	if o.Time.IsZero() {
		o.Time = e.now()
	}
	e.bookLocked(login).orders[o.Ticket] = o
	return o.Ticket
}

// FillOrders turns every working order of login into a position at the
// order price.
func (e *Engine) FillOrders(login string) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	b := e.bookLocked(login)
	n := 0
	for ticket, o := range b.orders {
		b.trades[ticket] = &Trade{
			Ticket:    ticket,
			Symbol:    o.Symbol,
			Side:      o.Side,
			Volume:    o.Volume,
			OpenPrice: o.Price,
			Tag:       o.Tag,
			Comment:   o.Comment,
			OpenTime:  e.now(),
			Open:      true,
		}
		delete(b.orders, ticket)
		n++
	}
	return n
}

// CancelOrders drops every working order of login, as a venue would after
// an expiry or rejection it reports asynchronously.
func (e *Engine) CancelOrders(login string) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	b := e.bookLocked(login)
	n := len(b.orders)
	b.orders = make(map[string]broker.Order)
	return n
}

// SetQuoteOutage makes every quote request fail until cleared.
func (e *Engine) SetQuoteOutage(on bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.quoteOutage = on
}

// FailQuotes makes the next n quote requests fail.
func (e *Engine) FailQuotes(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.quoteFailures = n
}

// RejectNext makes the next n market orders fail with ErrRejected.
func (e *Engine) RejectNext(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rejectNext = n
}

// FailCloses makes the next n close requests fail with ErrUnavailable.
func (e *Engine) FailCloses(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closeFailures = n
}

// FailOrderLists makes the next n ListOrders calls fail.
func (e *Engine) FailOrderLists(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.orderListFail = n
}

// FailLogin makes logins for account fail.
func (e *Engine) FailLogin(account string, fail bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.badLogins[account] = fail
}

// DeferFills makes market orders rest as working orders instead of filling.
func (e *Engine) DeferFills(on bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.deferFills = on
}
