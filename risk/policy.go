package risk

import (
	"fmt"
	"regexp"
	"strings"
)

// Restriction limits the ladder for one activation. It arrives with the
// entry signal.
type Restriction string

const (
	Unrestricted Restriction = ""
	// NoAveraging keeps the entry rung only.
	NoAveraging Restriction = "SIN_PROMEDIOS"
	// OneAveraging allows a single averaging rung.
	OneAveraging Restriction = "SOLO_1_PROMEDIO"
	// SingleTrade allows one entry order and no averaging.
	SingleTrade Restriction = "RIESGO"
)

var nonAlnum = regexp.MustCompile(`[^A-Z0-9]+`)

// ParseRestriction normalises free-form spellings such as "sin promedios"
// or "Solo-1-Promedio".
func ParseRestriction(s string) (Restriction, error) {
	k := nonAlnum.ReplaceAllString(strings.ToUpper(strings.TrimSpace(s)), "")
	switch k {
	case "", "NONE":
		return Unrestricted, nil
	case "SINPROMEDIOS", "SINPROMEDIO":
		return NoAveraging, nil
	case "SOLO1PROMEDIO", "SOLO1PROMEDIOS":
		return OneAveraging, nil
	case "RIESGO":
		return SingleTrade, nil
	}
	return Unrestricted, fmt.Errorf("unknown restriction %q", s)
}

// Policy is the ladder capacity in force for an account.
type Policy struct {
	// EntryOrders is the number of orders opened on the entry rung.
	EntryOrders int
	// MaxLevels caps live averaging positions plus pending levels.
	MaxLevels int
	// OrdersPerLevel caps live positions on a single averaging level.
	OrdersPerLevel int
}

// Apply narrows p for an activation carrying r.
func (p Policy) Apply(r Restriction) Policy {
	switch r {
	case NoAveraging:
		p.MaxLevels = 0
	case OneAveraging:
		if p.MaxLevels > 1 {
			p.MaxLevels = 1
		}
	case SingleTrade:
		p.MaxLevels = 0
		if p.EntryOrders > 1 {
			p.EntryOrders = 1
		}
	}
	return p
}
