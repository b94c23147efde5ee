package journal

import (
	"errors"
	"time"

	"github.com/rustyeddy/gridscalp/market"
)

type Kind string

const (
	KindOpen     Kind = "open"
	KindClose    Kind = "close"
	KindUpdate   Kind = "update"
	KindSignal   Kind = "signal"
	KindCloseAll Kind = "close_all"
)

// Event is one thing the grid did on an account: a rung opened or closed,
// the trailing stop moved, a signal arrived, or the account was unwound.
type Event struct {
	ID      string
	Time    time.Time
	Account string
	Symbol  string
	Kind    Kind
	Level   int
	Ticket  string
	Side    market.Side
	Volume  float64
	Price   float64
	Reason  string
}

type Journal interface {
	Record(Event) error
	Close() error
}

// Nop discards everything.
type Nop struct{}

func (Nop) Record(Event) error { return nil }
func (Nop) Close() error       { return nil }

// Multi fans events out to every journal. All journals are tried; the
// errors are joined.
type Multi []Journal

func (m Multi) Record(e Event) error {
	var errs []error
	for _, j := range m {
		if err := j.Record(e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, j := range m {
		if err := j.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
