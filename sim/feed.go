package sim

import (
	"context"
	"math/rand"
	"time"

	"github.com/rustyeddy/gridscalp/market"
)

// Feed drives the paper venue's quotes. With Path set the bids are replayed
// in order (then held); otherwise the bid follows a seeded random walk of at
// most MaxStep per interval.
type Feed struct {
	Symbol   string
	Start    float64
	Spread   float64
	MaxStep  float64
	Interval time.Duration
	Seed     int64
	Path     []float64
}

// Run publishes quotes until ctx is done.
func (f Feed) Run(ctx context.Context, e *Engine) error {
	interval := f.Interval
	if interval <= 0 {
		interval = time.Second
	}
	rng := rand.New(rand.NewSource(f.Seed))
	digits := 5
	if m, ok := market.Lookup(f.Symbol); ok {
		digits = m.Digits
	}

	bid := f.Start
	i := 0
	next := func() float64 {
		if len(f.Path) > 0 {
			if i < len(f.Path) {
				bid = f.Path[i]
				i++
			}
			return bid
		}
		bid += (rng.Float64()*2 - 1) * f.MaxStep
		if bid <= 0 {
			bid = f.MaxStep
		}
		return bid
	}

	publish := func(b float64) {
		e.SetQuote(market.Quote{
			Symbol: f.Symbol,
			Bid:    market.Round(b, digits),
			Ask:    market.Round(b+f.Spread, digits),
			Time:   time.Now(),
		})
	}

	if len(f.Path) == 0 {
		publish(bid)
	} else {
		publish(next())
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			publish(next())
		}
	}
}
