package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func codes(d Decision) []string {
	out := make([]string, 0, len(d.Violations))
	for _, v := range d.Violations {
		out = append(out, v.Code)
	}
	return out
}

func TestEvaluateRung(t *testing.T) {
	t.Parallel()

	base := Policy{EntryOrders: 1, MaxLevels: 4, OrdersPerLevel: 1}

	tests := []struct {
		name   string
		policy Policy
		ladder Ladder
		level  int
		allow  bool
		free   int
		codes  []string
	}{
		{"empty ladder", base, Ladder{}, 1, true, 4, []string{}},
		{"level zero", base, Ladder{}, 0, false, 4, []string{"LEVEL_ZERO"}},
		{"pending blocks", base, Ladder{Pending: map[int]bool{1: true}}, 1, false, 3, []string{"LEVEL_PENDING"}},
		{"live blocks", base, Ladder{Live: map[int]int{2: 1}}, 2, false, 3, []string{"LEVEL_FULL"}},
		{
			"two per level",
			Policy{MaxLevels: 4, OrdersPerLevel: 2},
			Ladder{Live: map[int]int{2: 1}}, 2, true, 3, []string{},
		},
		{
			"global cap",
			base,
			Ladder{Live: map[int]int{1: 1, 2: 1}, Pending: map[int]bool{3: true, 4: true}}, 5, false, 0,
			[]string{"MAX_LEVELS"},
		},
		{
			"entry positions do not count",
			base,
			Ladder{Live: map[int]int{0: 3}}, 1, true, 4, []string{},
		},
		{"disabled", base.Apply(NoAveraging), Ladder{}, 1, false, 0, []string{"AVERAGING_DISABLED"}},
		{
			"one averaging used",
			base.Apply(OneAveraging),
			Ladder{Live: map[int]int{1: 1}}, 2, false, 0, []string{"MAX_LEVELS"},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := EvaluateRung(tt.policy, tt.ladder, tt.level)
			assert.Equal(t, tt.allow, d.Allowed)
			assert.Equal(t, tt.free, d.Free)
			assert.Equal(t, tt.codes, codes(d))
		})
	}
}

func TestLadderHelpers(t *testing.T) {
	t.Parallel()

	l := Ladder{
		Live:    map[int]int{0: 2, 1: 1, 3: 2},
		Pending: map[int]bool{4: true, 2: true, 5: false},
	}
	assert.Equal(t, 3, l.LiveCount())
	assert.Equal(t, []int{2, 4}, l.PendingLevels())
	assert.Equal(t, 1, l.Free(Policy{MaxLevels: 6}))
}

func TestApplyRestriction(t *testing.T) {
	t.Parallel()

	p := Policy{EntryOrders: 3, MaxLevels: 4, OrdersPerLevel: 2}

	assert.Equal(t, p, p.Apply(Unrestricted))
	assert.Equal(t, 0, p.Apply(NoAveraging).MaxLevels)
	assert.Equal(t, 3, p.Apply(NoAveraging).EntryOrders)
	assert.Equal(t, 1, p.Apply(OneAveraging).MaxLevels)
	assert.Equal(t, 0, Policy{}.Apply(OneAveraging).MaxLevels)

	single := p.Apply(SingleTrade)
	assert.Equal(t, 1, single.EntryOrders)
	assert.Equal(t, 0, single.MaxLevels)
}

func TestParseRestriction(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]Restriction{
		"":                Unrestricted,
		"none":            Unrestricted,
		"SIN_PROMEDIOS":   NoAveraging,
		"sin promedios":   NoAveraging,
		"Solo-1-Promedio": OneAveraging,
		"SOLO_1_PROMEDIO": OneAveraging,
		" riesgo ":        SingleTrade,
	} {
		got, err := ParseRestriction(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseRestriction("half size")
	assert.Error(t, err)
}
