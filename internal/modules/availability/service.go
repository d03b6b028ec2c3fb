package availability

import (
	"context"
	"time"

	"coworking/internal/clock"
	"coworking/internal/domain"
	"coworking/internal/slotgrid"
)

// Service resolves the merged status of every slot in a space-day.
type Service struct {
	spaces       SpaceGrids
	reservations ReservationReader
	holds        HoldReader
	clock        clock.Clock
}

func NewService(spaces SpaceGrids, reservations ReservationReader, holds HoldReader, clk clock.Clock) *Service {
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &Service{
		spaces:       spaces,
		reservations: reservations,
		holds:        holds,
		clock:        clk,
	}
}

// ComputeStatus returns the grid as viewerID sees it. Ownership is read
// from the hold rows on every call; viewer 0 is anonymous.
func (s *Service) ComputeStatus(ctx context.Context, spaceID int64, date string, viewerID int64) ([]domain.SlotView, error) {
	states, err := s.Snapshot(ctx, spaceID, date)
	if err != nil {
		return nil, err
	}
	return domain.ForViewer(states, viewerID), nil
}

// Snapshot returns the viewer-independent state of every slot.
func (s *Service) Snapshot(ctx context.Context, spaceID int64, date string) ([]domain.SlotState, error) {
	grid, err := s.spaces.Grid(ctx, spaceID)
	if err != nil {
		return nil, err
	}
	day, err := grid.ParseDate(date)
	if err != nil {
		return nil, err
	}
	slots := grid.Slots(day)
	if len(slots) == 0 {
		return []domain.SlotState{}, nil
	}

	now := s.clock.Now()
	confirmed, err := s.reservations.FindOverlapping(ctx, spaceID, slots[0].Start, slots[len(slots)-1].End)
	if err != nil {
		return nil, err
	}
	holds, err := s.holds.ListActive(ctx, spaceID, date, now)
	if err != nil {
		return nil, err
	}
	return Compute(slots, confirmed, holds, now), nil
}

// SlotKeys lists the key of every slot the space has on date.
func (s *Service) SlotKeys(ctx context.Context, spaceID int64, date string) ([]domain.SlotKey, error) {
	grid, err := s.spaces.Grid(ctx, spaceID)
	if err != nil {
		return nil, err
	}
	day, err := grid.ParseDate(date)
	if err != nil {
		return nil, err
	}
	return domain.SlotKeys(spaceID, date, 1, grid.Count(day)), nil
}

// States returns the state of the listed slots only, in the given order.
func (s *Service) States(ctx context.Context, spaceID int64, date string, indexes ...int) ([]domain.SlotState, error) {
	all, err := s.Snapshot(ctx, spaceID, date)
	if err != nil {
		return nil, err
	}
	byIndex := make(map[int]domain.SlotState, len(all))
	for _, st := range all {
		byIndex[st.SlotIndex] = st
	}
	out := make([]domain.SlotState, 0, len(indexes))
	for _, idx := range indexes {
		if st, ok := byIndex[idx]; ok {
			out = append(out, st)
		}
	}
	return out, nil
}

// Compute merges the sources with precedence booked > occupied > past >
// available. Expired holds and holds on booked slots never surface.
func Compute(slots []slotgrid.Slot, confirmed []domain.Reservation, holds []domain.Hold, now time.Time) []domain.SlotState {
	active := make(map[int]domain.Hold, len(holds))
	for _, h := range holds {
		if h.ActiveAt(now) {
			active[h.SlotIndex] = h
		}
	}

	out := make([]domain.SlotState, 0, len(slots))
	for _, slot := range slots {
		st := domain.SlotState{
			SlotIndex: slot.Index,
			StartAt:   slot.Start,
			EndAt:     slot.End,
			Status:    domain.SlotAvailable,
		}
		if !slot.End.After(now) {
			st.Status = domain.SlotPast
		}
		if h, ok := active[slot.Index]; ok {
			until := h.ExpiresAt
			st.Status = domain.SlotOccupied
			st.HolderID = h.UserID
			st.HoldUntil = &until
		}
		for _, r := range confirmed {
			if r.Status == domain.ReservationConfirmed && r.Overlaps(slot.Start, slot.End) {
				st.Status = domain.SlotBooked
				st.HolderID = 0
				st.HoldUntil = nil
				break
			}
		}
		out = append(out, st)
	}
	return out
}
