package reservation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"coworking/internal/clock"
	"coworking/internal/domain"
	"coworking/internal/metrics"
	"coworking/internal/pkg/keylock"
	"coworking/internal/realtime"
)

const DefaultPaymentWindow = 15 * time.Minute

type Service struct {
	tx           TxRunner
	reservations ReservationStore
	spaces       SpaceGrids
	holds        HoldGuard
	states       StateReader
	broadcaster  Broadcaster
	locks        *keylock.Locker

	clock         clock.Clock
	paymentWindow time.Duration
	log           zerolog.Logger
}

type Option func(*Service)

func WithPaymentWindow(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.paymentWindow = d
		}
	}
}

func WithClock(c clock.Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.log = l }
}

func NewService(
	tx TxRunner,
	reservations ReservationStore,
	spaces SpaceGrids,
	holds HoldGuard,
	states StateReader,
	broadcaster Broadcaster,
	locks *keylock.Locker,
	opts ...Option,
) *Service {
	s := &Service{
		tx:            tx,
		reservations:  reservations,
		spaces:        spaces,
		holds:         holds,
		states:        states,
		broadcaster:   broadcaster,
		locks:         locks,
		clock:         clock.NewSystem(),
		paymentWindow: DefaultPaymentWindow,
		log:           zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// span is a reservation's range expressed on its space's grid.
type span struct {
	date        string
	first, last int
}

func (sp span) keys(spaceID int64) []domain.SlotKey {
	return domain.SlotKeys(spaceID, sp.date, sp.first, sp.last)
}

func (sp span) indexes() []int {
	out := make([]int, 0, sp.last-sp.first+1)
	for i := sp.first; i <= sp.last; i++ {
		out = append(out, i)
	}
	return out
}

// Create stores a pending reservation for [startAt, endAt). The range must
// be slot-aligned on a single open day, must not overlap a confirmed
// reservation and must not cover another user's active hold.
func (s *Service) Create(ctx context.Context, spaceID, userID int64, startAt, endAt time.Time) (*domain.Reservation, error) {
	if userID <= 0 {
		return nil, domain.ErrForbidden
	}
	sp, err := s.span(ctx, spaceID, startAt, endAt)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	if !endAt.After(now) {
		return nil, fmt.Errorf("%w: range already ended", domain.ErrInvalidRange)
	}

	unlock := s.locks.LockAll(lockKeys(sp.keys(spaceID))...)
	defer unlock()

	res := &domain.Reservation{
		ID:           uuid.NewString(),
		SpaceID:      spaceID,
		UserID:       userID,
		StartAt:      startAt.UTC(),
		EndAt:        endAt.UTC(),
		Status:       domain.ReservationPending,
		PaymentDueAt: now.Add(s.paymentWindow),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.tx.LockSlots(ctx, lockKeys(sp.keys(spaceID))...); err != nil {
			return err
		}
		if err := s.checkFree(ctx, res, sp, now); err != nil {
			return err
		}
		return s.reservations.Create(ctx, res)
	})
	if err != nil {
		return nil, err
	}

	metrics.IncReservation(string(domain.ReservationPending))
	s.log.Info().Str("reservation_id", res.ID).Int64("space_id", spaceID).Int64("user_id", userID).
		Time("start_at", res.StartAt).Time("end_at", res.EndAt).Msg("reservation created")
	return res, nil
}

// Confirm moves a pending reservation to confirmed and consumes the owner's
// holds on its slots. Confirming twice returns the confirmed reservation.
// A failed confirm leaves the reservation pending and its holds in place.
func (s *Service) Confirm(ctx context.Context, id string) (*domain.Reservation, error) {
	res, err := s.reservations.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch res.Status {
	case domain.ReservationConfirmed:
		return res, nil
	case domain.ReservationCancelled:
		return nil, fmt.Errorf("%w: reservation %s is cancelled", domain.ErrInvalidStatusTransition, id)
	}
	sp, err := s.span(ctx, res.SpaceID, res.StartAt, res.EndAt)
	if err != nil {
		return nil, err
	}

	keys := sp.keys(res.SpaceID)
	unlock := s.locks.LockAll(lockKeys(keys)...)
	defer unlock()

	now := s.clock.Now()
	var (
		promoted int
		already  bool
	)
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		promoted, already = 0, false
		if err := s.tx.LockSlots(ctx, lockKeys(keys)...); err != nil {
			return err
		}

		current, err := s.reservations.Get(ctx, id)
		if err != nil {
			return err
		}
		switch current.Status {
		case domain.ReservationConfirmed:
			already = true
			*res = *current
			return nil
		case domain.ReservationCancelled:
			return fmt.Errorf("%w: reservation %s is cancelled", domain.ErrInvalidStatusTransition, id)
		}

		if err := s.checkFree(ctx, current, sp, now); err != nil {
			return err
		}
		for _, key := range keys {
			ok, err := s.holds.Promote(ctx, key, current.UserID)
			if err != nil {
				return err
			}
			if ok {
				promoted++
			}
		}
		ok, err := s.reservations.Transition(ctx, id, domain.ReservationPending, domain.ReservationConfirmed, "", now)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: reservation %s is no longer pending", domain.ErrInvalidStatusTransition, id)
		}
		*res = *current
		res.Status = domain.ReservationConfirmed
		res.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	if already {
		return res, nil
	}

	metrics.IncReservation(string(domain.ReservationConfirmed))
	s.log.Info().Str("reservation_id", id).Int("holds_promoted", promoted).Msg("reservation confirmed")
	s.publish(ctx, res.SpaceID, sp.date, sp.indexes())
	return res, nil
}

// Cancel moves a reservation to cancelled. Cancelling twice is a no-op.
// Slots freed by cancelling a confirmed reservation are broadcast.
func (s *Service) Cancel(ctx context.Context, id, reason string) (*domain.Reservation, error) {
	res, err := s.reservations.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if res.Status == domain.ReservationCancelled {
		return res, nil
	}
	sp, err := s.span(ctx, res.SpaceID, res.StartAt, res.EndAt)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.LockAll(lockKeys(sp.keys(res.SpaceID))...)
	defer unlock()

	now := s.clock.Now()
	var from domain.ReservationStatus
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		current, err := s.reservations.Get(ctx, id)
		if err != nil {
			return err
		}
		*res = *current
		from = current.Status
		if from == domain.ReservationCancelled {
			return nil
		}
		ok, err := s.reservations.Transition(ctx, id, from, domain.ReservationCancelled, reason, now)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: reservation %s changed concurrently", domain.ErrInvalidStatusTransition, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if from == domain.ReservationCancelled {
		return res, nil
	}

	res.Status = domain.ReservationCancelled
	res.CancellationReason = reason
	res.CancelledAt = &now
	res.UpdatedAt = now

	metrics.IncReservation(string(domain.ReservationCancelled))
	s.log.Info().Str("reservation_id", id).Str("from", string(from)).Str("reason", reason).Msg("reservation cancelled")
	if from == domain.ReservationConfirmed {
		s.publish(ctx, res.SpaceID, sp.date, sp.indexes())
	}
	return res, nil
}

// CancelOwn cancels a reservation on behalf of its owner.
func (s *Service) CancelOwn(ctx context.Context, id string, userID int64) (*domain.Reservation, error) {
	if _, err := s.Get(ctx, id, userID); err != nil {
		return nil, err
	}
	return s.Cancel(ctx, id, ReasonUserCancelled)
}

// Get returns the reservation if userID owns it.
func (s *Service) Get(ctx context.Context, id string, userID int64) (*domain.Reservation, error) {
	res, err := s.reservations.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if userID <= 0 || res.UserID != userID {
		return nil, domain.ErrForbidden
	}
	return res, nil
}

func (s *Service) ListMine(ctx context.Context, userID int64, limit, offset int) ([]domain.Reservation, error) {
	if userID <= 0 {
		return nil, domain.ErrForbidden
	}
	return s.reservations.ListByUser(ctx, userID, limit, offset)
}

func (s *Service) span(ctx context.Context, spaceID int64, startAt, endAt time.Time) (span, error) {
	grid, err := s.spaces.Grid(ctx, spaceID)
	if err != nil {
		return span{}, err
	}
	date, first, last, err := grid.Span(startAt, endAt)
	if err != nil {
		return span{}, err
	}
	return span{date: date, first: first, last: last}, nil
}

// checkFree rejects a range that overlaps a confirmed reservation or is
// held by someone other than the reservation's owner.
func (s *Service) checkFree(ctx context.Context, res *domain.Reservation, sp span, now time.Time) error {
	err := s.holds.ForeignHold(ctx, res.SpaceID, sp.date, sp.first, sp.last, res.UserID, now)
	var conflict *domain.SlotConflictError
	if errors.As(err, &conflict) {
		metrics.IncHoldConflict(conflict.Reason)
	}
	if err != nil {
		return err
	}
	booked, err := s.reservations.FindOverlapping(ctx, res.SpaceID, res.StartAt, res.EndAt)
	if err != nil {
		return err
	}
	for _, other := range booked {
		if other.ID != res.ID {
			return fmt.Errorf("%w: reservation %s", domain.ErrOverlap, other.ID)
		}
	}
	return nil
}

func (s *Service) publish(ctx context.Context, spaceID int64, date string, slots []int) {
	states, err := s.states.States(ctx, spaceID, date, slots...)
	if err != nil {
		s.log.Error().Err(err).Int64("space_id", spaceID).Str("date", date).Msg("recompute slot states for broadcast")
		return
	}
	channel := domain.ChannelKey{SpaceID: spaceID, Date: date}
	for _, st := range states {
		if err := s.broadcaster.Publish(ctx, realtime.SlotUpdate(channel, st)); err != nil {
			s.log.Error().Err(err).Str("channel", channel.String()).Int("slot_index", st.SlotIndex).Msg("broadcast slot update")
		}
	}
}

func lockKeys(keys []domain.SlotKey) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k.String())
	}
	return out
}
