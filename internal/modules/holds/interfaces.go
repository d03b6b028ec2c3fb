package holds

import (
	"context"
	"time"

	"coworking/internal/domain"
	"coworking/internal/realtime"
	"coworking/internal/slotgrid"
)

type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	// LockSlots serializes the transaction in ctx with every other
	// process touching the same slot keys.
	LockSlots(ctx context.Context, keys ...string) error
}

type HoldStore interface {
	Get(ctx context.Context, key domain.SlotKey) (*domain.Hold, error)
	Insert(ctx context.Context, h domain.Hold) error
	Refresh(ctx context.Context, id string, createdAt, expiresAt time.Time) error
	Delete(ctx context.Context, id string) (bool, error)
	ListRange(ctx context.Context, spaceID int64, date string, first, last int) ([]domain.Hold, error)
}

type OverlapFinder interface {
	FindOverlapping(ctx context.Context, spaceID int64, start, end time.Time) ([]domain.Reservation, error)
}

type SpaceGrids interface {
	Grid(ctx context.Context, spaceID int64) (slotgrid.Grid, error)
}

// StateReader recomputes slot states after a write.
type StateReader interface {
	States(ctx context.Context, spaceID int64, date string, indexes ...int) ([]domain.SlotState, error)
}

type Broadcaster interface {
	Publish(ctx context.Context, ev realtime.Event) error
}
