package domain

import "time"

type ReservationStatus string

const (
	ReservationPending   ReservationStatus = "pending"
	ReservationConfirmed ReservationStatus = "confirmed"
	ReservationCancelled ReservationStatus = "cancelled"
)

type Reservation struct {
	ID                 string            `json:"id"`
	SpaceID            int64             `json:"space_id"`
	UserID             int64             `json:"user_id"`
	StartAt            time.Time         `json:"start_at"`
	EndAt              time.Time         `json:"end_at"`
	Status             ReservationStatus `json:"status"`
	PaymentDueAt       time.Time         `json:"payment_due_at"`
	CancellationReason string            `json:"cancellation_reason,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
	CancelledAt        *time.Time        `json:"cancelled_at,omitempty"`
}

// Overlaps reports whether [StartAt, EndAt) intersects [start, end).
func (r Reservation) Overlaps(start, end time.Time) bool {
	return r.StartAt.Before(end) && r.EndAt.After(start)
}
