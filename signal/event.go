// Package signal routes normalised trading signals to the grid engines.
// Extracting signals from chat messages happens upstream; this package only
// sees structured events.
package signal

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rustyeddy/gridscalp/internal/id"
	"github.com/rustyeddy/gridscalp/market"
	"github.com/rustyeddy/gridscalp/risk"
)

type Type string

const (
	// Entry activates the grid on a side.
	Entry Type = "ENTRY"
	// CloseRange unwinds every account.
	CloseRange Type = "CLOSE_RANGE"
)

var ErrInvalid = errors.New("invalid signal")

// Event is a structured signal. Price is informational; entries always go
// to market.
type Event struct {
	ID          string           `json:"id"`
	Type        Type             `json:"type"`
	Side        market.Side      `json:"side"`
	Symbol      string           `json:"symbol,omitempty"`
	Price       float64          `json:"price,omitempty"`
	Restriction risk.Restriction `json:"restriction,omitempty"`
}

// Normalize canonicalises the type, symbol and restriction spellings and
// assigns an ID when missing. It returns ErrInvalid for events that cannot
// be routed.
func (e *Event) Normalize() error {
	t := strings.ToUpper(strings.TrimSpace(string(e.Type)))
	t = strings.NewReplacer("-", "_", " ", "_").Replace(t)
	switch t {
	case "ENTRY", "OPEN":
		e.Type = Entry
	case "CLOSE_RANGE", "CLOSE", "CLOSE_ALL":
		e.Type = CloseRange
	default:
		return fmt.Errorf("type %q: %w", e.Type, ErrInvalid)
	}

	r, err := risk.ParseRestriction(string(e.Restriction))
	if err != nil {
		return fmt.Errorf("%v: %w", err, ErrInvalid)
	}
	e.Restriction = r

	e.Symbol = canonicalSymbol(e.Symbol)
	if e.ID == "" {
		e.ID = id.New()
	}
	return e.Validate()
}

func (e Event) Validate() error {
	switch e.Type {
	case Entry:
		if e.Side != market.Buy && e.Side != market.Sell {
			return fmt.Errorf("entry needs BUY or SELL, got %s: %w", e.Side, ErrInvalid)
		}
		if e.Price < 0 {
			return fmt.Errorf("negative price: %w", ErrInvalid)
		}
	case CloseRange:
	default:
		return fmt.Errorf("type %q: %w", e.Type, ErrInvalid)
	}
	return nil
}

// canonicalSymbol maps broker spellings to the instrument name when known.
func canonicalSymbol(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if m, ok := market.Lookup(s); ok {
		return m.Name
	}
	return strings.ToUpper(s)
}
