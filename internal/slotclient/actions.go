package slotclient

import (
	"time"

	"coworking/internal/domain"
)

// Action is an input to Reduce: a user gesture, an API result or a push
// from the server.
type Action interface{ action() }

type Click struct{ Slot int }

// Confirm asks to book the current selection.
type Confirm struct{}

type AcquireSucceeded struct{ First, Last int }

type AcquireFailed struct {
	First, Last int
	Err         error
}

type BookingSucceeded struct{ ReservationID string }

type BookingFailed struct{ Err error }

// Abandon drops the selection, e.g. when the user navigates away.
type Abandon struct{}

// Reset forgets everything local without touching the server.
type Reset struct{}

// ServerUpdate is a slot_update or slots_status_update for this viewer.
type ServerUpdate struct {
	SpaceID  int64
	Date     string
	Snapshot bool
	Slots    []domain.SlotView
}

func (Click) action()            {}
func (Confirm) action()          {}
func (AcquireSucceeded) action() {}
func (AcquireFailed) action()    {}
func (BookingSucceeded) action() {}
func (BookingFailed) action()    {}
func (Abandon) action()          {}
func (Reset) action()            {}
func (ServerUpdate) action()     {}

// Effect is work Reduce asks the controller to perform.
type Effect interface{ effect() }

type AcquireEffect struct {
	SpaceID     int64
	Date        string
	First, Last int
}

// ReleaseEffect lists slots to release; they need not be contiguous.
type ReleaseEffect struct {
	SpaceID int64
	Date    string
	Slots   []int
}

type BookEffect struct {
	SpaceID     int64
	StartAt     time.Time
	EndAt       time.Time
	First, Last int
}

func (AcquireEffect) effect() {}
func (ReleaseEffect) effect() {}
func (BookEffect) effect()    {}
