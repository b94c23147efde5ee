package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/rustyeddy/gridscalp/market"
)

// Version is written into every record. Records without it predate the
// current layout and go through the legacy branch of Decode.
const Version = 2

// Record is the persisted shape of one account's grid state.
type Record struct {
	Side          market.Side `json:"side"`
	Entry         *float64    `json:"entry"`
	EntryOpen     bool        `json:"entryOpen"`
	EntrySL       *float64    `json:"entrySL"`
	PendingLevels []int       `json:"pendingLevels"`
	Restriction   string      `json:"restriction,omitempty"`
	Closing       bool        `json:"closing,omitempty"`
	Version       int         `json:"version"`
}

// Encode stamps the current version and writes pending levels as a sorted,
// duplicate-free list.
func Encode(r Record) ([]byte, error) {
	r.Version = Version
	r.PendingLevels = cleanLevels(r.PendingLevels)
	return json.Marshal(r)
}

// Decode parses a stored record. Anything that is not a JSON object with
// sensible fields yields ErrCorrupt.
func Decode(data []byte) (Record, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return Record{}, fmt.Errorf("empty record: %w", ErrCorrupt)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return Record{}, fmt.Errorf("%v: %w", err, ErrCorrupt)
	}
	if raw == nil {
		return Record{}, fmt.Errorf("null record: %w", ErrCorrupt)
	}

	if v, ok := raw["version"]; ok {
		var version int
		if err := json.Unmarshal(v, &version); err != nil {
			return Record{}, fmt.Errorf("version: %v: %w", err, ErrCorrupt)
		}
		if version >= Version {
			return decodeCurrent(data)
		}
	}
	return decodeLegacy(raw)
}

func decodeCurrent(data []byte) (Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return Record{}, fmt.Errorf("%v: %w", err, ErrCorrupt)
	}
	r.PendingLevels = cleanLevels(r.PendingLevels)
	r.Version = Version
	return r, nil
}

// decodeLegacy accepts the snake_case files of the older bot and camelCase
// records written before versioning. Pending levels were a plain list that
// could hold duplicates.
func decodeLegacy(raw map[string]json.RawMessage) (Record, error) {
	field := func(names ...string) json.RawMessage {
		for _, n := range names {
			if v, ok := raw[n]; ok {
				return v
			}
		}
		return nil
	}

	var r Record
	if v := field("side"); v != nil {
		if err := json.Unmarshal(v, &r.Side); err != nil {
			return Record{}, fmt.Errorf("side: %v: %w", err, ErrCorrupt)
		}
	}
	if v := field("entry"); v != nil {
		if err := json.Unmarshal(v, &r.Entry); err != nil {
			return Record{}, fmt.Errorf("entry: %v: %w", err, ErrCorrupt)
		}
	}
	if v := field("entryOpen", "entry_open"); v != nil {
		if err := json.Unmarshal(v, &r.EntryOpen); err != nil {
			return Record{}, fmt.Errorf("entry_open: %v: %w", err, ErrCorrupt)
		}
	}
	if v := field("entrySL", "entry_sl"); v != nil {
		if err := json.Unmarshal(v, &r.EntrySL); err != nil {
			return Record{}, fmt.Errorf("entry_sl: %v: %w", err, ErrCorrupt)
		}
	}
	if v := field("pendingLevels", "pending_levels"); v != nil {
		var nums []float64
		if err := json.Unmarshal(v, &nums); err != nil {
			return Record{}, fmt.Errorf("pending_levels: %v: %w", err, ErrCorrupt)
		}
		for _, n := range nums {
			if n == math.Trunc(n) {
				r.PendingLevels = append(r.PendingLevels, int(n))
			}
		}
	}

	r.PendingLevels = cleanLevels(r.PendingLevels)
	r.Version = Version
	return r, nil
}

// cleanLevels dedupes and sorts, dropping level 0 and anything negative.
func cleanLevels(levels []int) []int {
	if len(levels) == 0 {
		return []int{}
	}
	seen := make(map[int]struct{}, len(levels))
	out := make([]int, 0, len(levels))
	for _, l := range levels {
		if l <= 0 {
			continue
		}
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	sort.Ints(out)
	return out
}
