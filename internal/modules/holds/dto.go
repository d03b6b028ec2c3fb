package holds

import (
	"coworking/internal/domain"
	"coworking/internal/modules/availability"
)

type SlotRequest struct {
	SpaceID int64  `json:"space_id" binding:"required,gt=0"`
	Date    string `json:"date" binding:"required,datetime=2006-01-02"`
}

type RangeRequest struct {
	SpaceID   int64  `json:"space_id" binding:"required,gt=0"`
	Date      string `json:"date" binding:"required,datetime=2006-01-02"`
	StartSlot int    `json:"start_slot" binding:"required,gt=0"`
	EndSlot   int    `json:"end_slot" binding:"required,gtefield=StartSlot"`
}

// HoldResponse carries the requester's fresh grid so the next read is
// never stale relative to this write.
type HoldResponse struct {
	Holds    []domain.Hold             `json:"holds,omitempty"`
	Released []int                     `json:"released,omitempty"`
	Grid     availability.GridResponse `json:"grid"`
}
