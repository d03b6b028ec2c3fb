package domain

import "time"

type SpaceType string

const (
	SpaceDesk        SpaceType = "desk"
	SpaceOffice      SpaceType = "office"
	SpaceMeetingRoom SpaceType = "meeting_room"
)

// Space is a bookable unit owned by the catalog. The core only reads it.
type Space struct {
	ID             int64     `json:"id"`
	LocationID     int64     `json:"location_id"`
	Name           string    `json:"name"`
	Type           SpaceType `json:"type"`
	Capacity       int       `json:"capacity"`
	OpenTime       string    `json:"open_time"`  // "09:00"
	CloseTime      string    `json:"close_time"` // "17:00"
	SlotMinutes    int       `json:"slot_minutes"`
	ClosedWeekdays []int     `json:"closed_weekdays,omitempty"` // 0=Sunday
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
