// Package slotclient drives one user's selection on a space-day grid: it
// holds slots optimistically while the user picks a range, books it, and
// gives way whenever the server reports a different truth.
package slotclient

import (
	"errors"
	"sort"
	"time"

	"coworking/internal/domain"
)

type Phase string

const (
	PhaseIdle          Phase = "idle"
	PhaseStartSelected Phase = "start-selected"
	PhaseRangeSelected Phase = "range-selected"
	PhaseHoldPending   Phase = "hold-pending"
	PhaseHeld          Phase = "held"
	PhaseBooking       Phase = "booking"
	PhaseDone          Phase = "done"
)

var (
	ErrNotSelectable    = errors.New("slot is not available")
	ErrInvalidSelection = errors.New("end slot must be after start slot")
	ErrHoldLost         = errors.New("a held slot was taken back by the server")
	ErrUnknownTimes     = errors.New("slot times not loaded yet")
)

// State is the controller's view of one space-day. Reduce never mutates
// the State it is given.
type State struct {
	Phase   Phase
	SpaceID int64
	Date    string

	Start int
	End   int

	// held slots were acknowledged by the server; pending ones are in flight.
	held    map[int]bool
	pending map[int]bool
	// seen marks held slots the push stream has already shown as ours.
	seen map[int]bool

	Grid map[int]domain.SlotView

	ReservationID string
	Err           error
	LostSlot      int
}

func NewState(spaceID int64, date string) State {
	return State{Phase: PhaseIdle, SpaceID: spaceID, Date: date}
}

// Selected reports whether slot idx is part of the local selection.
func (s State) Selected(idx int) bool {
	return s.held[idx] || s.pending[idx]
}

// Display is the status to render for slot idx: selected slots show as
// occupied-own before the server has answered.
func (s State) Display(idx int) domain.SlotStatus {
	if s.Selected(idx) {
		return domain.SlotOccupiedOwn
	}
	if v, ok := s.Grid[idx]; ok {
		return v.Status
	}
	return domain.SlotAvailable
}

func (s State) Held() []int    { return sortedKeys(s.held) }
func (s State) Pending() []int { return sortedKeys(s.pending) }

func (s State) clone() State {
	out := s
	out.held = cloneSet(s.held)
	out.pending = cloneSet(s.pending)
	out.seen = cloneSet(s.seen)
	if s.Grid != nil {
		out.Grid = make(map[int]domain.SlotView, len(s.Grid))
		for k, v := range s.Grid {
			out.Grid[k] = v
		}
	}
	return out
}

// bounds returns the start of the first and the end of the last selected slot.
func (s State) bounds() (time.Time, time.Time, bool) {
	first, okFirst := s.Grid[s.Start]
	last, okLast := s.Grid[s.last()]
	if !okFirst || !okLast {
		return time.Time{}, time.Time{}, false
	}
	return first.Metadata.StartAt, last.Metadata.EndAt, true
}

func (s State) last() int {
	if s.End == 0 {
		return s.Start
	}
	return s.End
}

func cloneSet(in map[int]bool) map[int]bool {
	out := make(map[int]bool, len(in))
	for k, v := range in {
		if v {
			out[k] = true
		}
	}
	return out
}

func sortedKeys(in map[int]bool) []int {
	out := make([]int, 0, len(in))
	for k, v := range in {
		if v {
			out = append(out, k)
		}
	}
	sort.Ints(out)
	return out
}
