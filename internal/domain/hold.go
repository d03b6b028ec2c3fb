package domain

import (
	"fmt"
	"time"
)

// Hold is a short-lived claim on one slot. At most one exists per SlotKey.
type Hold struct {
	ID        string    `json:"id"`
	SpaceID   int64     `json:"space_id"`
	Date      string    `json:"date"`
	SlotIndex int       `json:"slot_index"`
	UserID    int64     `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (h Hold) Key() SlotKey {
	return SlotKey{SpaceID: h.SpaceID, Date: h.Date, SlotIndex: h.SlotIndex}
}

// ActiveAt reports whether the hold still blocks the slot at now.
func (h Hold) ActiveAt(now time.Time) bool {
	return now.Before(h.ExpiresAt)
}

type SlotKey struct {
	SpaceID   int64
	Date      string
	SlotIndex int
}

func (k SlotKey) String() string {
	return fmt.Sprintf("%d:%s:%d", k.SpaceID, k.Date, k.SlotIndex)
}

func (k SlotKey) Channel() ChannelKey {
	return ChannelKey{SpaceID: k.SpaceID, Date: k.Date}
}

// ChannelKey identifies one space-day grid.
type ChannelKey struct {
	SpaceID int64  `json:"space_id"`
	Date    string `json:"date"`
}

func (k ChannelKey) String() string {
	return fmt.Sprintf("%d:%s", k.SpaceID, k.Date)
}

// SlotKeys expands an inclusive index range into keys, ascending.
func SlotKeys(spaceID int64, date string, first, last int) []SlotKey {
	if last < first {
		return nil
	}
	keys := make([]SlotKey, 0, last-first+1)
	for i := first; i <= last; i++ {
		keys = append(keys, SlotKey{SpaceID: spaceID, Date: date, SlotIndex: i})
	}
	return keys
}
