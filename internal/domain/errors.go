package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidRange            = errors.New("invalid time range")
	ErrInvalidSlot             = errors.New("invalid slot")
	ErrSlotUnavailable         = errors.New("slot unavailable")
	ErrOverlap                 = errors.New("reservation overlaps a confirmed booking")
	ErrStoreUnavailable        = errors.New("store unavailable")
	ErrExpiredHold             = errors.New("hold expired")
	ErrHoldNotFound            = errors.New("hold not found")
	ErrReservationNotFound     = errors.New("reservation not found")
	ErrSpaceNotFound           = errors.New("space not found")
	ErrInvalidStatusTransition = errors.New("invalid status transition")
	ErrForbidden               = errors.New("forbidden")
)

// SlotConflictError reports which slot was lost to contention.
type SlotConflictError struct {
	SpaceID   int64
	Date      string
	SlotIndex int
	Reason    string
}

func (e *SlotConflictError) Error() string {
	return fmt.Sprintf("slot %d of space %d on %s unavailable: %s", e.SlotIndex, e.SpaceID, e.Date, e.Reason)
}

func (e *SlotConflictError) Unwrap() error { return ErrSlotUnavailable }

const (
	ConflictHeld   = "held"
	ConflictBooked = "booked"
)
