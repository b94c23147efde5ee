package grid

import "github.com/rustyeddy/gridscalp/market"

// Trailing holds the virtual stop distances of the entry rung, in price
// units.
type Trailing struct {
	Activate float64
	Back     float64
	Step     float64
	Buffer   float64
}

// Next computes the stop for a position of side entered at entry, with the
// close price at price. Once price has moved Activate in favour, the
// candidate sits Back behind price plus Buffer and the spread. The stop only
// moves when unset or when the candidate improves it by at least Step, so
// for a buy it never decreases and for a sell it never increases.
func (t Trailing) Next(side market.Side, entry, price, spread float64, current *float64) (float64, bool) {
	buffer := t.Buffer + spread

	var candidate float64
	switch side {
	case market.Buy:
		if price < entry+t.Activate {
			return 0, false
		}
		candidate = price - t.Back - buffer
	case market.Sell:
		if price > entry-t.Activate {
			return 0, false
		}
		candidate = price + t.Back + buffer
	default:
		return 0, false
	}

	if current == nil {
		return candidate, true
	}
	improve := side.Sign() * (candidate - *current)
	if improve >= t.Step-eps {
		return candidate, true
	}
	return *current, false
}

// stopHit reports whether price has crossed sl against a position of side.
func stopHit(side market.Side, price, sl float64) bool {
	switch side {
	case market.Buy:
		return price <= sl
	case market.Sell:
		return price >= sl
	}
	return false
}
