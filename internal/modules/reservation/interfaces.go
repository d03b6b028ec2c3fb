package reservation

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

type ReservationStore interface {
	Create(ctx context.Context, res *domain.Reservation) error
	Get(ctx context.Context, id string) (*domain.Reservation, error)
	Transition(ctx context.Context, id string, from, to domain.ReservationStatus, reason string, now time.Time) (bool, error)
	FindOverlapping(ctx context.Context, spaceID int64, start, end time.Time) ([]domain.Reservation, error)
	ListByUser(ctx context.Context, userID int64, limit, offset int) ([]domain.Reservation, error)
}

type SpaceGrids interface {
	Grid(ctx context.Context, spaceID int64) (slotgrid.Grid, error)
}

// HoldGuard is the part of the hold table a reservation needs: checking
// for other users' holds and consuming the owner's holds on confirm.
type HoldGuard interface {
	ForeignHold(ctx context.Context, spaceID int64, date string, first, last int, userID int64, now time.Time) error
	Promote(ctx context.Context, key domain.SlotKey, userID int64) (bool, error)
}

type StateReader interface {
	States(ctx context.Context, spaceID int64, date string, indexes ...int) ([]domain.SlotState, error)
}

type Broadcaster interface {
	Publish(ctx context.Context, ev realtime.Event) error
}
