package sweeper

import (
	"context"
	"time"

	"coworking/internal/domain"
	"coworking/internal/realtime"
)

type ExpiredHolds interface {
	ListExpired(ctx context.Context, now time.Time, limit int) ([]domain.Hold, error)
	DeleteExpired(ctx context.Context, id string, now time.Time) (bool, error)
}

type StaleReservations interface {
	ListStalePending(ctx context.Context, now time.Time, limit int) ([]domain.Reservation, error)
}

type Canceller interface {
	Cancel(ctx context.Context, id, reason string) (*domain.Reservation, error)
}

type Snapshotter interface {
	SlotKeys(ctx context.Context, spaceID int64, date string) ([]domain.SlotKey, error)
	Snapshot(ctx context.Context, spaceID int64, date string) ([]domain.SlotState, error)
}

type Broadcaster interface {
	Publish(ctx context.Context, ev realtime.Event) error
}
