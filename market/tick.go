package market

import (
	"errors"
	"sync"
	"time"
)

// Quote is a top-of-book snapshot for one symbol.
type Quote struct {
	Symbol string
	Bid    float64
	Ask    float64
	Time   time.Time
}

func (q Quote) Mid() float64 {
	return (q.Bid + q.Ask) / 2
}

func (q Quote) Spread() float64 {
	return q.Ask - q.Bid
}

// Valid reports whether both sides are quoted.
func (q Quote) Valid() bool {
	return q.Bid > 0 && q.Ask > 0
}

// ClosePrice is the side of the book a position of the given side closes on:
// longs close on the bid, shorts on the ask.
func (q Quote) ClosePrice(s Side) float64 {
	if s == Sell {
		return q.Ask
	}
	return q.Bid
}

// OpenPrice is the side of the book a new position of the given side fills on.
func (q Quote) OpenPrice(s Side) float64 {
	if s == Sell {
		return q.Bid
	}
	return q.Ask
}

var ErrNoQuote = errors.New("quote not found")

type QuoteStore struct {
	mu     sync.RWMutex
	quotes map[string]Quote
}

func NewQuoteStore() *QuoteStore {
	return &QuoteStore{quotes: make(map[string]Quote)}
}

func (qs *QuoteStore) Set(q Quote) {
	qs.mu.Lock()
	defer qs.mu.Unlock()
	qs.quotes[q.Symbol] = q
}

func (qs *QuoteStore) Get(symbol string) (Quote, error) {
	qs.mu.RLock()
	defer qs.mu.RUnlock()
	q, ok := qs.quotes[symbol]
	if !ok {
		return Quote{}, ErrNoQuote
	}
	return q, nil
}
