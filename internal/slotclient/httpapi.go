package slotclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"coworking/internal/domain"
	"coworking/internal/realtime"
)

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	switch e.Code {
	case "SLOT_UNAVAILABLE":
		return domain.ErrSlotUnavailable
	case "BOOKING_CONFLICT":
		return domain.ErrOverlap
	case "VALIDATION_ERROR":
		return domain.ErrInvalidRange
	case "INVALID_STATUS":
		return domain.ErrInvalidStatusTransition
	case "FORBIDDEN":
		return domain.ErrForbidden
	case "STORE_UNAVAILABLE":
		return domain.ErrStoreUnavailable
	}
	return nil
}

// HTTPAPI talks to the reservation service over its JSON API and the
// /ws/slots stream.
type HTTPAPI struct {
	baseURL string
	token   string
	client  *http.Client
	dialer  *websocket.Dialer
}

func NewHTTPAPI(baseURL, token string, client *http.Client) *HTTPAPI {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPAPI{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  client,
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
}

type rangeRequest struct {
	SpaceID   int64  `json:"space_id"`
	Date      string `json:"date"`
	StartSlot int    `json:"start_slot"`
	EndSlot   int    `json:"end_slot"`
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Details *struct {
			SpaceID   int64  `json:"space_id"`
			Date      string `json:"date"`
			SlotIndex int    `json:"slot_index"`
			Reason    string `json:"reason"`
		} `json:"details"`
	} `json:"error"`
}

func (a *HTTPAPI) Acquire(ctx context.Context, spaceID int64, date string, first, last int) error {
	return a.post(ctx, "/api/v1/slot-ranges/hold", rangeRequest{SpaceID: spaceID, Date: date, StartSlot: first, EndSlot: last}, nil)
}

func (a *HTTPAPI) Release(ctx context.Context, spaceID int64, date string, first, last int) error {
	return a.post(ctx, "/api/v1/slot-ranges/release", rangeRequest{SpaceID: spaceID, Date: date, StartSlot: first, EndSlot: last}, nil)
}

// Book creates a pending reservation and returns its id.
func (a *HTTPAPI) Book(ctx context.Context, spaceID int64, startAt, endAt time.Time) (string, error) {
	var out struct {
		Reservation struct {
			ID string `json:"id"`
		} `json:"reservation"`
	}
	body := map[string]any{"space_id": spaceID, "start_at": startAt, "end_at": endAt}
	if err := a.post(ctx, "/api/v1/reservations", body, &out); err != nil {
		return "", err
	}
	return out.Reservation.ID, nil
}

func (a *HTTPAPI) post(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s: %w", path, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("POST %s: decode response (%d): %w", path, resp.StatusCode, err)
	}
	if resp.StatusCode >= 300 || !env.Success {
		return decodeError(resp.StatusCode, env)
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("POST %s: decode data: %w", path, err)
		}
	}
	return nil
}

func decodeError(status int, env envelope) error {
	if env.Error == nil {
		return &APIError{Status: status, Code: "UNKNOWN", Message: http.StatusText(status)}
	}
	if d := env.Error.Details; env.Error.Code == "SLOT_UNAVAILABLE" && d != nil && d.SlotIndex > 0 {
		return &domain.SlotConflictError{SpaceID: d.SpaceID, Date: d.Date, SlotIndex: d.SlotIndex, Reason: d.Reason}
	}
	return &APIError{Status: status, Code: env.Error.Code, Message: env.Error.Message}
}

// Subscribe opens the websocket, subscribes to the space-day and forwards
// slot messages until the connection or ctx ends.
func (a *HTTPAPI) Subscribe(ctx context.Context, spaceID int64, date string) (<-chan ServerUpdate, error) {
	wsURL, err := a.streamURL()
	if err != nil {
		return nil, err
	}
	conn, _, err := a.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", wsURL, err)
	}
	sub := map[string]any{"type": "subscribe", "space_id": spaceID, "date": date}
	if err := conn.WriteJSON(sub); err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	out := make(chan ServerUpdate, 16)
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()
	go func() {
		defer close(out)
		defer close(done)
		defer conn.Close()
		for {
			var msg realtime.Message
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			switch msg.Type {
			case realtime.EventSlotUpdate, realtime.EventSlotsStatusUpdate:
			case realtime.EventError:
				if msg.SpaceID == spaceID && msg.Date == date {
					return
				}
				continue
			default:
				continue
			}
			u := ServerUpdate{
				SpaceID:  msg.SpaceID,
				Date:     msg.Date,
				Snapshot: msg.Type == realtime.EventSlotsStatusUpdate,
				Slots:    msg.Slots,
			}
			select {
			case out <- u:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (a *HTTPAPI) streamURL() (string, error) {
	u, err := url.Parse(a.baseURL + "/ws/slots")
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	if a.token != "" {
		q := u.Query()
		q.Set("token", a.token)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}
