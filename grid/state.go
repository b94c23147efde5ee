package grid

import (
	"github.com/rustyeddy/gridscalp/market"
	"github.com/rustyeddy/gridscalp/risk"
	"github.com/rustyeddy/gridscalp/store"
)

// State is one account's grid. Entry and EntrySL are nil when unset.
// Closing marks an unwind that has not yet seen the venue flat; it outlives
// an aborted CloseAll and a restart.
type State struct {
	Side        market.Side
	Entry       *float64
	EntryOpen   bool
	EntrySL     *float64
	Pending     LevelSet
	Restriction risk.Restriction
	Closing     bool
}

// Idle is the state of an account with no activation.
func Idle() State {
	return State{Pending: LevelSet{}}
}

func (s State) IsIdle() bool {
	return s.Side == market.None
}

func (s State) Clone() State {
	c := s
	c.Entry = clonePtr(s.Entry)
	c.EntrySL = clonePtr(s.EntrySL)
	c.Pending = s.Pending.Clone()
	return c
}

// normalize repairs a loaded state so it satisfies the invariants: nothing
// but side survives without an entry anchor, and an idle account holds
// nothing but a pending unwind.
func (s *State) normalize() {
	if s.Pending == nil {
		s.Pending = LevelSet{}
	}
	for l := range s.Pending {
		if l <= 0 {
			delete(s.Pending, l)
		}
	}
	if s.Side != market.Buy && s.Side != market.Sell {
		closing := s.Closing
		*s = Idle()
		s.Closing = closing
		return
	}
	if s.Entry == nil {
		s.EntryOpen = false
		s.EntrySL = nil
		s.Pending = LevelSet{}
	}
}

func (s State) record() store.Record {
	return store.Record{
		Side:          s.Side,
		Entry:         clonePtr(s.Entry),
		EntryOpen:     s.EntryOpen,
		EntrySL:       clonePtr(s.EntrySL),
		PendingLevels: s.Pending.Sorted(),
		Restriction:   string(s.Restriction),
		Closing:       s.Closing,
	}
}

func stateFromRecord(r store.Record) State {
	s := State{
		Side:        r.Side,
		Entry:       clonePtr(r.Entry),
		EntryOpen:   r.EntryOpen,
		EntrySL:     clonePtr(r.EntrySL),
		Pending:     NewLevelSet(r.PendingLevels...),
		Restriction: risk.Restriction(r.Restriction),
		Closing:     r.Closing,
	}
	s.normalize()
	return s
}

func clonePtr(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
