package risk

import (
	"fmt"
	"sort"
)

type Violation struct {
	Code string
	Msg  string
}

type Decision struct {
	Allowed    bool
	Violations []Violation

	// Free is the account-wide capacity left before this rung.
	Free int
}

func (d *Decision) add(code, msg string) {
	d.Violations = append(d.Violations, Violation{Code: code, Msg: msg})
	d.Allowed = false
}

// Ladder is the current shape of an account's averaging rungs.
type Ladder struct {
	// Live counts live positions per non-zero level.
	Live map[int]int
	// Pending holds levels with a submitted, unconfirmed order.
	Pending map[int]bool
}

// LiveCount is the number of live averaging positions.
func (l Ladder) LiveCount() int {
	n := 0
	for lvl, c := range l.Live {
		if lvl > 0 {
			n += c
		}
	}
	return n
}

// PendingLevels returns the pending levels in ascending order.
func (l Ladder) PendingLevels() []int {
	out := make([]int, 0, len(l.Pending))
	for lvl, ok := range l.Pending {
		if ok {
			out = append(out, lvl)
		}
	}
	sort.Ints(out)
	return out
}

// Free is MaxLevels minus live averaging positions minus pending levels.
func (l Ladder) Free(p Policy) int {
	return p.MaxLevels - l.LiveCount() - len(l.PendingLevels())
}

// EvaluateRung decides whether one more averaging order may be submitted at
// level.
func EvaluateRung(p Policy, l Ladder, level int) Decision {
	d := Decision{Allowed: true, Free: l.Free(p)}

	if level <= 0 {
		d.add("LEVEL_ZERO", "level 0 is the entry rung")
		return d
	}
	if p.MaxLevels <= 0 {
		d.add("AVERAGING_DISABLED", "averaging is disabled for this activation")
		return d
	}
	if l.Pending[level] {
		d.add("LEVEL_PENDING", fmt.Sprintf("level %d already has an order in flight", level))
	}

	perLevel := p.OrdersPerLevel
	if perLevel <= 0 {
		perLevel = 1
	}
	if live := l.Live[level]; live >= perLevel {
		d.add("LEVEL_FULL", fmt.Sprintf("level %d has %d live positions, max %d", level, live, perLevel))
	}
	if d.Free <= 0 {
		d.add("MAX_LEVELS", fmt.Sprintf("%d live + %d pending reach max %d",
			l.LiveCount(), len(l.PendingLevels()), p.MaxLevels))
	}
	return d
}
