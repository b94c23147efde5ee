package grid

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/rustyeddy/gridscalp/broker"
)

// eps is the tolerance of threshold comparisons (gain, adverse excursion,
// trailing hysteresis).
const eps = 1e-6

// ClassifyLevel maps a distance from the entry price to a ladder level:
// floor((distance + step/2) / step). A distance exactly on the half step
// rounds up to the deeper level. The result is never negative.
func ClassifyLevel(distance, step float64) int {
	if step <= 0 || distance <= 0 || math.IsNaN(distance) {
		return 0
	}
	x := (distance + step/2) / step
	// absorb binary noise from price subtraction (2650.0-2649.5 etc)
	return int(math.Floor(x + x*1e-9))
}

// LevelSet is a set of averaging levels. Level 0 never belongs to it.
type LevelSet map[int]struct{}

func NewLevelSet(levels ...int) LevelSet {
	s := LevelSet{}
	for _, l := range levels {
		s.Add(l)
	}
	return s
}

// Add ignores non-positive levels.
func (s LevelSet) Add(l int) {
	if l > 0 {
		s[l] = struct{}{}
	}
}

func (s LevelSet) Remove(l int) { delete(s, l) }

func (s LevelSet) Has(l int) bool {
	_, ok := s[l]
	return ok
}

func (s LevelSet) Len() int { return len(s) }

// Sorted returns the levels in ascending order, never nil.
func (s LevelSet) Sorted() []int {
	out := make([]int, 0, len(s))
	for l := range s {
		out = append(out, l)
	}
	sort.Ints(out)
	return out
}

func (s LevelSet) Clone() LevelSet {
	c := make(LevelSet, len(s))
	for l := range s {
		c[l] = struct{}{}
	}
	return c
}

func (s LevelSet) bools() map[int]bool {
	m := make(map[int]bool, len(s))
	for l := range s {
		m[l] = true
	}
	return m
}

// groupPositions classifies positions by distance of their open price from
// entry. Within a level the oldest position comes first.
func groupPositions(ps []broker.Position, entry, step float64) map[int][]broker.Position {
	out := map[int][]broker.Position{}
	for _, p := range ps {
		lvl := ClassifyLevel(math.Abs(p.OpenPrice-entry), step)
		out[lvl] = append(out[lvl], p)
	}
	for _, lst := range out {
		sort.SliceStable(lst, func(i, j int) bool {
			if !lst[i].OpenTime.Equal(lst[j].OpenTime) {
				return lst[i].OpenTime.Before(lst[j].OpenTime)
			}
			return lst[i].Ticket < lst[j].Ticket
		})
	}
	return out
}

// orderLevels maps working orders to levels. The level written into the
// order comment wins; a market order's price is only where it was requested
// and several rungs sent in one tick share it.
func orderLevels(os []broker.Order, entry, step float64) map[int]bool {
	out := map[int]bool{}
	for _, o := range os {
		if lvl, ok := commentLevel(o.Comment); ok {
			out[lvl] = true
			continue
		}
		out[ClassifyLevel(math.Abs(o.Price-entry), step)] = true
	}
	return out
}

// commentLevel parses the "<prefix> L<n>" comment set on grid orders.
func commentLevel(c string) (int, bool) {
	i := strings.LastIndex(c, " L")
	if i < 0 {
		return 0, false
	}
	n, err := strconv.Atoi(c[i+2:])
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func liveCounts(levels map[int][]broker.Position) map[int]int {
	out := make(map[int]int, len(levels))
	for lvl, lst := range levels {
		if lvl > 0 && len(lst) > 0 {
			out[lvl] = len(lst)
		}
	}
	return out
}

// deepestLive is the deepest averaging level holding a position, or 0.
func deepestLive(live map[int]int) int {
	out := 0
	for lvl, n := range live {
		if n > 0 && lvl > out {
			out = lvl
		}
	}
	return out
}

func sortedLevels(levels map[int][]broker.Position) []int {
	out := make([]int, 0, len(levels))
	for l := range levels {
		out = append(out, l)
	}
	sort.Ints(out)
	return out
}
