package sim

import (
	"time"

	"github.com/rustyeddy/gridscalp/broker"
	"github.com/rustyeddy/gridscalp/market"
)

type Trade struct {
	Ticket    string
	Symbol    string
	Side      market.Side
	Volume    float64
	OpenPrice float64
	Tag       int64
	Comment   string
	OpenTime  time.Time

	// Realized
	ClosePrice float64
	CloseTime  time.Time
	RealizedPL float64 // quote currency
	Open       bool
}

// UnrealizedPL values the trade at price in quote currency.
func (t *Trade) UnrealizedPL(price float64) float64 {
	return t.Side.Sign() * t.Volume * contractSize(t.Symbol) * (price - t.OpenPrice)
}

func (t *Trade) position() broker.Position {
	return broker.Position{
		Ticket:    t.Ticket,
		Symbol:    t.Symbol,
		Side:      t.Side,
		Volume:    t.Volume,
		OpenPrice: t.OpenPrice,
		Tag:       t.Tag,
		Comment:   t.Comment,
		OpenTime:  t.OpenTime,
	}
}

func contractSize(symbol string) float64 {
	if m, ok := market.Lookup(symbol); ok && m.ContractSize > 0 {
		return m.ContractSize
	}
	return 1
}
