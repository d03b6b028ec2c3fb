package slotclient

import (
	"errors"
	"sort"

	"coworking/internal/domain"
)

// Reduce applies a to s and returns the next state plus the effects the
// controller must run. It is pure.
func Reduce(s State, a Action) (State, []Effect) {
	next := s.clone()
	switch a := a.(type) {
	case Click:
		return next.click(a.Slot)
	case Confirm:
		return next.confirm()
	case AcquireSucceeded:
		return next.acquired(a.First, a.Last)
	case AcquireFailed:
		return next.acquireFailed(a.First, a.Last, a.Err)
	case BookingSucceeded:
		if next.Phase != PhaseBooking {
			return next, nil
		}
		next = next.cleared(PhaseDone)
		next.ReservationID = a.ReservationID
		return next, nil
	case BookingFailed:
		if next.Phase != PhaseBooking {
			return next, nil
		}
		// The holds survive a failed booking so Confirm can retry it.
		next.Phase = PhaseHeld
		next.Err = a.Err
		return next, nil
	case Abandon:
		return next.revert(nil, 0)
	case Reset:
		reset := NewState(next.SpaceID, next.Date)
		reset.Grid = next.Grid
		return reset, nil
	case ServerUpdate:
		return next.serverUpdate(a)
	}
	return next, nil
}

func (s State) click(idx int) (State, []Effect) {
	switch s.Phase {
	case PhaseIdle, PhaseDone:
		if !s.selectable(idx) {
			s.Err = ErrNotSelectable
			return s, nil
		}
		s = s.cleared(PhaseStartSelected)
		s.Start = idx
		s.pending[idx] = true
		return s, []Effect{s.acquire(idx, idx)}

	case PhaseStartSelected:
		switch {
		case idx == s.Start:
			return s.revert(nil, 0)
		case idx < s.Start:
			s.Err = ErrInvalidSelection
			return s, nil
		}
		for i := s.Start + 1; i <= idx; i++ {
			if !s.selectable(i) {
				s.Err = ErrNotSelectable
				return s, nil
			}
		}
		s.Err = nil
		s.End = idx
		for i := s.Start + 1; i <= idx; i++ {
			s.pending[i] = true
		}
		s.Phase = PhaseRangeSelected
		return s, []Effect{s.acquire(s.Start+1, idx)}
	}
	return s, nil
}

func (s State) confirm() (State, []Effect) {
	switch s.Phase {
	case PhaseStartSelected, PhaseRangeSelected:
		if len(s.pending) > 0 {
			s.Phase = PhaseHoldPending
			return s, nil
		}
		return s.book()
	case PhaseHeld:
		return s.book()
	}
	return s, nil
}

func (s State) book() (State, []Effect) {
	start, end, ok := s.bounds()
	if !ok {
		s.Err = ErrUnknownTimes
		return s, nil
	}
	s.Phase = PhaseBooking
	s.Err = nil
	return s, []Effect{BookEffect{SpaceID: s.SpaceID, StartAt: start, EndAt: end, First: s.Start, Last: s.last()}}
}

func (s State) acquired(first, last int) (State, []Effect) {
	var stray []int
	for i := first; i <= last; i++ {
		if !s.pending[i] {
			stray = append(stray, i)
			continue
		}
		delete(s.pending, i)
		s.held[i] = true
	}

	var effects []Effect
	if len(stray) > 0 {
		// The selection moved on while this request was in flight.
		effects = append(effects, s.release(stray))
	}
	if len(s.pending) > 0 {
		return s, effects
	}
	switch s.Phase {
	case PhaseRangeSelected:
		s.Phase = PhaseHeld
	case PhaseHoldPending:
		var more []Effect
		s, more = s.book()
		effects = append(effects, more...)
	}
	return s, effects
}

func (s State) acquireFailed(first, last int, err error) (State, []Effect) {
	ours := false
	for i := first; i <= last; i++ {
		if s.pending[i] {
			ours = true
			delete(s.pending, i)
		}
	}
	if !ours {
		return s, nil
	}
	lost := 0
	var conflict *domain.SlotConflictError
	if errors.As(err, &conflict) {
		lost = conflict.SlotIndex
	}
	return s.revert(err, lost)
}

// serverUpdate merges pushed statuses and enforces that the server wins:
// a held slot the stream no longer shows as ours ends the selection.
func (s State) serverUpdate(u ServerUpdate) (State, []Effect) {
	if u.SpaceID != s.SpaceID || u.Date != s.Date {
		return s, nil
	}
	if s.Grid == nil || u.Snapshot {
		s.Grid = make(map[int]domain.SlotView, len(u.Slots))
	}

	lost := 0
	for _, v := range u.Slots {
		s.Grid[v.SlotIndex] = v
		if !s.held[v.SlotIndex] {
			continue
		}
		switch {
		case v.Status == domain.SlotOccupiedOwn:
			s.seen[v.SlotIndex] = true
		case v.Status == domain.SlotBooked && s.Phase == PhaseBooking:
			// our own booking landing
		case s.seen[v.SlotIndex] && lost == 0:
			lost = v.SlotIndex
		}
	}
	if lost == 0 {
		return s, nil
	}
	delete(s.held, lost)
	return s.revert(ErrHoldLost, lost)
}

// revert drops the whole selection, releasing whatever is held or in
// flight, and returns to idle.
func (s State) revert(err error, lost int) (State, []Effect) {
	toRelease := append(s.Held(), s.Pending()...)
	sort.Ints(toRelease)
	next := s.cleared(PhaseIdle)
	next.Err = err
	next.LostSlot = lost
	if len(toRelease) == 0 {
		return next, nil
	}
	return next, []Effect{s.release(toRelease)}
}

func (s State) cleared(phase Phase) State {
	s.Phase = phase
	s.Start, s.End = 0, 0
	s.held = map[int]bool{}
	s.pending = map[int]bool{}
	s.seen = map[int]bool{}
	s.ReservationID = ""
	s.Err = nil
	s.LostSlot = 0
	return s
}

func (s State) selectable(idx int) bool {
	v, ok := s.Grid[idx]
	if !ok {
		return false
	}
	return v.Status == domain.SlotAvailable || v.Status == domain.SlotOccupiedOwn
}

func (s State) acquire(first, last int) AcquireEffect {
	return AcquireEffect{SpaceID: s.SpaceID, Date: s.Date, First: first, Last: last}
}

func (s State) release(slots []int) ReleaseEffect {
	return ReleaseEffect{SpaceID: s.SpaceID, Date: s.Date, Slots: slots}
}
