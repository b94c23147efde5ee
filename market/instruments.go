package market

import (
	"math"
	"strings"
)

type InstrumentMeta struct {
	Name          string
	BaseCurrency  string
	QuoteCurrency string
	// PipSize is the grid distance unit in price terms (1 pip of XAUUSD = 0.10).
	PipSize          float64
	Digits           int
	ContractSize     float64
	MinimumTradeSize float64
	VolumeStep       float64
}

var Instruments = map[string]InstrumentMeta{
	"XAUUSD": {
		Name:             "XAUUSD",
		BaseCurrency:     "XAU",
		QuoteCurrency:    "USD",
		PipSize:          0.10,
		Digits:           2,
		ContractSize:     100,
		MinimumTradeSize: 0.01,
		VolumeStep:       0.01,
	},
	"XAGUSD": {
		Name:             "XAGUSD",
		BaseCurrency:     "XAG",
		QuoteCurrency:    "USD",
		PipSize:          0.01,
		Digits:           3,
		ContractSize:     5000,
		MinimumTradeSize: 0.01,
		VolumeStep:       0.01,
	},
	"EURUSD": {
		Name:             "EURUSD",
		BaseCurrency:     "EUR",
		QuoteCurrency:    "USD",
		PipSize:          0.0001,
		Digits:           5,
		ContractSize:     100000,
		MinimumTradeSize: 0.01,
		VolumeStep:       0.01,
	},
	"USDJPY": {
		Name:             "USDJPY",
		BaseCurrency:     "USD",
		QuoteCurrency:    "JPY",
		PipSize:          0.01,
		Digits:           3,
		ContractSize:     100000,
		MinimumTradeSize: 0.01,
		VolumeStep:       0.01,
	},
}

// Lookup resolves a venue symbol to its metadata. Broker suffixes such as
// "XAUUSD-ECN", "XAUUSD.m" and the OANDA form "XAU_USD" all map to XAUUSD.
func Lookup(symbol string) (InstrumentMeta, bool) {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if m, ok := Instruments[s]; ok {
		return m, true
	}
	s = strings.ReplaceAll(s, "_", "")
	if i := strings.IndexAny(s, "-."); i > 0 {
		s = s[:i]
	}
	m, ok := Instruments[s]
	return m, ok
}

// Pips converts a pip count into a price distance.
func Pips(n, pipSize float64) float64 {
	return n * pipSize
}

// ToPips converts a price distance into pips.
func ToPips(distance, pipSize float64) float64 {
	if pipSize == 0 {
		return 0
	}
	return distance / pipSize
}

// Round normalises a price to the instrument digits.
func Round(price float64, digits int) float64 {
	p := math.Pow(10, float64(digits))
	return math.Round(price*p) / p
}
