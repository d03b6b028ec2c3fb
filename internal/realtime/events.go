package realtime

import (
	"encoding/json"

	"coworking/internal/domain"
)

const (
	EventSlotUpdate        = "slot_update"
	EventSlotsStatusUpdate = "slots_status_update"

	// replies to client messages
	EventPong  = "pong"
	EventError = "error"
)

// Event is a viewer-independent change to one space-day. Slots keep holder
// ids so each connection can be rendered for its own user.
type Event struct {
	Type    string
	Channel domain.ChannelKey
	Slots   []domain.SlotState
}

func SlotUpdate(key domain.ChannelKey, slots ...domain.SlotState) Event {
	return Event{Type: EventSlotUpdate, Channel: key, Slots: slots}
}

func StatusUpdate(key domain.ChannelKey, slots []domain.SlotState) Event {
	return Event{Type: EventSlotsStatusUpdate, Channel: key, Slots: slots}
}

// Message is what a subscriber receives.
type Message struct {
	Type    string            `json:"type"`
	SpaceID int64             `json:"space_id,omitempty"`
	Date    string            `json:"date,omitempty"`
	Slots   []domain.SlotView `json:"slots,omitempty"`
	Error   string            `json:"error,omitempty"`
}

// Render builds the message viewerID should see for ev.
func Render(ev Event, viewerID int64) Message {
	return Message{
		Type:    ev.Type,
		SpaceID: ev.Channel.SpaceID,
		Date:    ev.Channel.Date,
		Slots:   domain.ForViewer(ev.Slots, viewerID),
	}
}

// holders lists the users that see ev differently from everybody else.
func holders(ev Event) map[int64]struct{} {
	out := make(map[int64]struct{})
	for _, s := range ev.Slots {
		if s.Status == domain.SlotOccupied && s.HolderID != 0 {
			out[s.HolderID] = struct{}{}
		}
	}
	return out
}

func encode(m Message) ([]byte, error) {
	return json.Marshal(m)
}
