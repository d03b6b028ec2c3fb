package availability

import (
	"context"
	"time"

	"coworking/internal/domain"
	"coworking/internal/slotgrid"
)

type SpaceGrids interface {
	Grid(ctx context.Context, spaceID int64) (slotgrid.Grid, error)
}

type ReservationReader interface {
	FindOverlapping(ctx context.Context, spaceID int64, start, end time.Time) ([]domain.Reservation, error)
}

type HoldReader interface {
	ListActive(ctx context.Context, spaceID int64, date string, now time.Time) ([]domain.Hold, error)
}
