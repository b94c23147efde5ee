package market

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Side is the direction of a grid activation or a position.
type Side string

const (
	None Side = ""
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// ParseSide accepts BUY/SELL in any case; empty and "NONE" map to None.
func ParseSide(s string) (Side, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY":
		return Buy, nil
	case "SELL":
		return Sell, nil
	case "", "NONE", "NULL":
		return None, nil
	}
	return None, fmt.Errorf("unknown side %q", s)
}

func (s Side) String() string {
	if s == None {
		return "NONE"
	}
	return string(s)
}

// Opposite returns the side that closes a position of side s.
func (s Side) Opposite() Side {
	switch s {
	case Buy:
		return Sell
	case Sell:
		return Buy
	}
	return None
}

// Sign is +1 for Buy, -1 for Sell and 0 for None.
func (s Side) Sign() float64 {
	switch s {
	case Buy:
		return 1
	case Sell:
		return -1
	}
	return 0
}

// MarshalJSON writes None as null.
func (s Side) MarshalJSON() ([]byte, error) {
	if s == None {
		return []byte("null"), nil
	}
	return json.Marshal(string(s))
}

func (s *Side) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*s = None
		return nil
	}
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	v, err := ParseSide(raw)
	if err != nil {
		return err
	}
	*s = v
	return nil
}
