package domain

import "time"

type SlotStatus string

const (
	SlotAvailable   SlotStatus = "available"
	SlotOccupied    SlotStatus = "occupied"
	SlotOccupiedOwn SlotStatus = "occupied-own"
	SlotBooked      SlotStatus = "booked"
	SlotPast        SlotStatus = "past"
)

// SlotState is the viewer-independent status of one slot.
type SlotState struct {
	SlotIndex int        `json:"slot_index"`
	StartAt   time.Time  `json:"start_at"`
	EndAt     time.Time  `json:"end_at"`
	Status    SlotStatus `json:"status"`
	HolderID  int64      `json:"-"`
	HoldUntil *time.Time `json:"-"`
}

// SlotView is what a particular viewer is allowed to see.
type SlotView struct {
	SlotIndex int          `json:"slot_index"`
	Status    SlotStatus   `json:"status"`
	Metadata  SlotMetadata `json:"metadata"`
}

type SlotMetadata struct {
	StartAt   time.Time  `json:"start_at"`
	EndAt     time.Time  `json:"end_at"`
	HoldUntil *time.Time `json:"hold_until,omitempty"`
}

// View renders the state for viewerID. Viewer 0 is anonymous and never
// sees ownership.
func (s SlotState) View(viewerID int64) SlotView {
	v := SlotView{
		SlotIndex: s.SlotIndex,
		Status:    s.Status,
		Metadata:  SlotMetadata{StartAt: s.StartAt, EndAt: s.EndAt},
	}
	if s.Status == SlotOccupied && viewerID != 0 && s.HolderID == viewerID {
		v.Status = SlotOccupiedOwn
		v.Metadata.HoldUntil = s.HoldUntil
	}
	return v
}

func ForViewer(states []SlotState, viewerID int64) []SlotView {
	out := make([]SlotView, 0, len(states))
	for _, s := range states {
		out = append(out, s.View(viewerID))
	}
	return out
}
