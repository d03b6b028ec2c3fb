package holds

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
	"coworking/internal/slotgrid"
)

const DefaultHoldTTL = 15 * time.Minute

type Service struct {
	tx           TxRunner
	holds        HoldStore
	reservations OverlapFinder
	spaces       SpaceGrids
	states       StateReader
	broadcaster  Broadcaster
	locks        *keylock.Locker

	clock clock.Clock
	ttl   time.Duration
	log   zerolog.Logger
}

type Option func(*Service)

func WithHoldTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.ttl = d
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
	holds HoldStore,
	reservations OverlapFinder,
	spaces SpaceGrids,
	states StateReader,
	broadcaster Broadcaster,
	locks *keylock.Locker,
	opts ...Option,
) *Service {
	s := &Service{
		tx:           tx,
		holds:        holds,
		reservations: reservations,
		spaces:       spaces,
		states:       states,
		broadcaster:  broadcaster,
		locks:        locks,
		clock:        clock.NewSystem(),
		ttl:          DefaultHoldTTL,
		log:          zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) TTL() time.Duration { return s.ttl }

// Acquire holds one slot for userID, or refreshes the TTL of the user's
// existing hold on it.
func (s *Service) Acquire(ctx context.Context, spaceID int64, date string, slotIndex int, userID int64) (domain.Hold, error) {
	held, err := s.AcquireRange(ctx, spaceID, date, slotIndex, slotIndex, userID)
	if err != nil {
		return domain.Hold{}, err
	}
	return held[0], nil
}

// AcquireRange holds every slot in [first, last] or none of them. The
// returned error names the first contended slot.
func (s *Service) AcquireRange(ctx context.Context, spaceID int64, date string, first, last int, userID int64) ([]domain.Hold, error) {
	if userID <= 0 {
		return nil, domain.ErrForbidden
	}
	grid, day, err := s.grid(ctx, spaceID, date)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	if err := checkOpenRange(grid, day, first, last, now); err != nil {
		return nil, err
	}
	start, end, err := grid.Bounds(day, first, last)
	if err != nil {
		return nil, err
	}

	keys := domain.SlotKeys(spaceID, date, first, last)
	unlock := s.locks.LockAll(lockKeys(keys)...)
	defer unlock()

	var (
		held    []domain.Hold
		changed []int
		expired int
	)
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		held, changed, expired = nil, nil, 0
		if err := s.tx.LockSlots(ctx, lockKeys(keys)...); err != nil {
			return err
		}

		booked, err := s.reservations.FindOverlapping(ctx, spaceID, start, end)
		if err != nil {
			return err
		}
		if idx, ok := firstBookedSlot(grid, day, first, last, booked); ok {
			return &domain.SlotConflictError{SpaceID: spaceID, Date: date, SlotIndex: idx, Reason: domain.ConflictBooked}
		}

		existing, err := s.holds.ListRange(ctx, spaceID, date, first, last)
		if err != nil {
			return err
		}
		byIndex := make(map[int]domain.Hold, len(existing))
		for _, h := range existing {
			byIndex[h.SlotIndex] = h
		}

		for _, key := range keys {
			h, ok := byIndex[key.SlotIndex]
			switch {
			case ok && h.ActiveAt(now) && h.UserID != userID:
				return &domain.SlotConflictError{SpaceID: spaceID, Date: date, SlotIndex: key.SlotIndex, Reason: domain.ConflictHeld}
			case ok && h.ActiveAt(now):
				h.CreatedAt, h.ExpiresAt = now, now.Add(s.ttl)
				if err := s.holds.Refresh(ctx, h.ID, h.CreatedAt, h.ExpiresAt); err != nil {
					return err
				}
				held = append(held, h)
				continue
			case ok:
				if _, err := s.holds.Delete(ctx, h.ID); err != nil {
					return err
				}
				expired++
			}

			fresh := domain.Hold{
				ID:        uuid.NewString(),
				SpaceID:   spaceID,
				Date:      date,
				SlotIndex: key.SlotIndex,
				UserID:    userID,
				CreatedAt: now,
				ExpiresAt: now.Add(s.ttl),
			}
			if err := s.holds.Insert(ctx, fresh); err != nil {
				return err
			}
			held = append(held, fresh)
			changed = append(changed, key.SlotIndex)
		}
		return nil
	})
	if err != nil {
		var conflict *domain.SlotConflictError
		if errors.As(err, &conflict) {
			metrics.IncHoldConflict(conflict.Reason)
		}
		return nil, err
	}

	for range held {
		metrics.IncHoldAcquired()
	}
	for i := 0; i < expired; i++ {
		metrics.IncHoldReleased("expired")
	}
	// A refresh of the caller's own hold changes no status anyone can see.
	if len(changed) > 0 {
		s.publish(ctx, spaceID, date, changed)
	}
	return held, nil
}

// Release removes userID's hold on the slot. Releasing a slot held by
// someone else is a no-op; an expired hold is cleaned up regardless of
// owner. Releasing twice is not an error and broadcasts only once.
func (s *Service) Release(ctx context.Context, spaceID int64, date string, slotIndex int, userID int64) error {
	_, err := s.ReleaseRange(ctx, spaceID, date, slotIndex, slotIndex, userID)
	return err
}

// ReleaseRange releases every hold userID owns in [first, last] and
// returns the slots that were actually freed.
func (s *Service) ReleaseRange(ctx context.Context, spaceID int64, date string, first, last int, userID int64) ([]int, error) {
	if userID <= 0 {
		return nil, domain.ErrForbidden
	}
	grid, day, err := s.grid(ctx, spaceID, date)
	if err != nil {
		return nil, err
	}
	if _, _, err := grid.Bounds(day, first, last); err != nil {
		return nil, err
	}

	keys := domain.SlotKeys(spaceID, date, first, last)
	unlock := s.locks.LockAll(lockKeys(keys)...)
	defer unlock()

	now := s.clock.Now()
	var freed []int
	var expired int
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		freed, expired = nil, 0
		if err := s.tx.LockSlots(ctx, lockKeys(keys)...); err != nil {
			return err
		}
		existing, err := s.holds.ListRange(ctx, spaceID, date, first, last)
		if err != nil {
			return err
		}
		for _, h := range existing {
			active := h.ActiveAt(now)
			if active && h.UserID != userID {
				continue
			}
			deleted, err := s.holds.Delete(ctx, h.ID)
			if err != nil {
				return err
			}
			switch {
			case deleted && active:
				freed = append(freed, h.SlotIndex)
			case deleted:
				expired++
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for range freed {
		metrics.IncHoldReleased("released")
	}
	for i := 0; i < expired; i++ {
		metrics.IncHoldReleased("expired")
	}
	if len(freed) > 0 {
		s.publish(ctx, spaceID, date, freed)
	}
	return freed, nil
}

// ForeignHold returns a conflict for the first slot in [first, last] that
// somebody other than userID holds at now.
func (s *Service) ForeignHold(ctx context.Context, spaceID int64, date string, first, last int, userID int64, now time.Time) error {
	existing, err := s.holds.ListRange(ctx, spaceID, date, first, last)
	if err != nil {
		return err
	}
	for _, h := range existing {
		if h.ActiveAt(now) && h.UserID != userID {
			return &domain.SlotConflictError{SpaceID: spaceID, Date: date, SlotIndex: h.SlotIndex, Reason: domain.ConflictHeld}
		}
	}
	return nil
}

// Promote consumes userID's hold on key as its reservation is confirmed.
// The caller must hold the slot's key lock; it reports whether a hold was
// removed.
func (s *Service) Promote(ctx context.Context, key domain.SlotKey, userID int64) (bool, error) {
	h, err := s.holds.Get(ctx, key)
	if errors.Is(err, domain.ErrHoldNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if h.UserID != userID {
		return false, nil
	}
	deleted, err := s.holds.Delete(ctx, h.ID)
	if err != nil {
		return false, err
	}
	if deleted {
		metrics.IncHoldReleased("promoted")
	}
	return deleted, nil
}

func (s *Service) grid(ctx context.Context, spaceID int64, date string) (slotgrid.Grid, time.Time, error) {
	grid, err := s.spaces.Grid(ctx, spaceID)
	if err != nil {
		return slotgrid.Grid{}, time.Time{}, err
	}
	day, err := grid.ParseDate(date)
	if err != nil {
		return slotgrid.Grid{}, time.Time{}, err
	}
	return grid, day, nil
}

// publish sends one slot_update per slot. It runs while the slot locks are
// still held, which keeps each slot's events in write order.
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

func checkOpenRange(grid slotgrid.Grid, day time.Time, first, last int, now time.Time) error {
	if last < first {
		return fmt.Errorf("%w: end slot %d before start slot %d", domain.ErrInvalidRange, last, first)
	}
	for idx := first; idx <= last; idx++ {
		_, end, err := grid.Range(day, idx)
		if err != nil {
			return err
		}
		if !end.After(now) {
			return fmt.Errorf("%w: slot %d is in the past", domain.ErrInvalidSlot, idx)
		}
	}
	return nil
}

func firstBookedSlot(grid slotgrid.Grid, day time.Time, first, last int, booked []domain.Reservation) (int, bool) {
	if len(booked) == 0 {
		return 0, false
	}
	for idx := first; idx <= last; idx++ {
		start, end, err := grid.Range(day, idx)
		if err != nil {
			continue
		}
		for _, r := range booked {
			if r.Overlaps(start, end) {
				return idx, true
			}
		}
	}
	return 0, false
}

func lockKeys(keys []domain.SlotKey) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k.String())
	}
	return out
}
