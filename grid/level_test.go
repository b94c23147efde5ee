package grid

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/rustyeddy/gridscalp/broker"
)

func TestClassifyLevel(t *testing.T) {
	t.Parallel()

	// step of 10 pips with a 0.10 pip: 1.0 price units
	tests := []struct {
		name     string
		distance float64
		step     float64
		want     int
	}{
		{"just under half step", 0.49, 1.0, 0},
		{"half step rounds up", 0.5, 1.0, 1},
		{"one step", 1.0, 1.0, 1},
		{"just over one step", 1.01, 1.0, 1},
		{"one and a half", 1.5, 1.0, 2},
		{"price subtraction", 2650.0 - 2649.5, 1.0, 1},
		{"far", 7.2, 1.0, 7},
		{"negative", -3, 1.0, 0},
		{"zero step", 3, 0, 0},
		{"nan", math.NaN(), 1.0, 0},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ClassifyLevel(tt.distance, tt.step))
		})
	}
}

func TestClassifyLevelMonotonic(t *testing.T) {
	t.Parallel()

	prev := 0
	for d := 0.0; d < 20; d += 0.01 {
		got := ClassifyLevel(d, 0.5)
		assert.GreaterOrEqual(t, got, prev, "distance %v", d)
		prev = got
	}
}

func TestLevelSet(t *testing.T) {
	t.Parallel()

	s := NewLevelSet(3, 1, 1, 0, -2)
	assert.Equal(t, []int{1, 3}, s.Sorted())
	assert.True(t, s.Has(1))
	assert.False(t, s.Has(0))

	c := s.Clone()
	c.Remove(1)
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, 1, c.Len())

	assert.NotNil(t, LevelSet{}.Sorted())
}

func TestGroupPositions(t *testing.T) {
	t.Parallel()

	t0 := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	ps := []broker.Position{
		{Ticket: "c", OpenPrice: 2648.0, OpenTime: t0.Add(2 * time.Minute)},
		{Ticket: "a", OpenPrice: 2650.0, OpenTime: t0},
		{Ticket: "b", OpenPrice: 2648.1, OpenTime: t0.Add(time.Minute)},
		{Ticket: "d", OpenPrice: 2649.0, OpenTime: t0},
	}

	got := groupPositions(ps, 2650.0, 1.0)
	assert.Len(t, got[0], 1)
	assert.Len(t, got[1], 1)
	if assert.Len(t, got[2], 2) {
		assert.Equal(t, "b", got[2][0].Ticket)
		assert.Equal(t, "c", got[2][1].Ticket)
	}

	assert.Equal(t, map[int]int{1: 1, 2: 2}, liveCounts(got))
	assert.Equal(t, []int{0, 1, 2}, sortedLevels(got))

	orders := orderLevels([]broker.Order{
		{Price: 2647.0},
		{Price: 2652.0},
		{Price: 2647.0, Comment: "grid L1"},
		{Price: 2647.0, Comment: "manual L"},
	}, 2650.0, 1.0)
	assert.Equal(t, map[int]bool{1: true, 2: true, 3: true}, orders)
}

func TestCommentLevel(t *testing.T) {
	t.Parallel()

	lvl, ok := commentLevel("grid L3")
	assert.True(t, ok)
	assert.Equal(t, 3, lvl)

	lvl, ok = commentLevel("my bot L0")
	assert.True(t, ok)
	assert.Equal(t, 0, lvl)

	for _, c := range []string{"", "grid", "grid Lx", "grid L-1"} {
		_, ok := commentLevel(c)
		assert.False(t, ok, c)
	}
}
