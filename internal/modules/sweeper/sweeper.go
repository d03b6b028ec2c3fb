package sweeper

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"coworking/internal/clock"
	"coworking/internal/domain"
	"coworking/internal/metrics"
	"coworking/internal/modules/reservation"
	"coworking/internal/pkg/keylock"
	"coworking/internal/realtime"
)

const (
	DefaultInterval  = 5 * time.Minute
	DefaultBatchSize = 500
)

type Config struct {
	Interval  time.Duration
	BatchSize int
}

// Result summarizes one sweep.
type Result struct {
	HoldsExpired          int `json:"holds_expired"`
	ReservationsCancelled int `json:"reservations_cancelled"`
	SnapshotsPublished    int `json:"snapshots_published"`
	Failures              int `json:"failures"`
}

// Sweeper reclaims expired holds and abandoned pending reservations.
type Sweeper struct {
	holds       ExpiredHolds
	stale       StaleReservations
	canceller   Canceller
	snapshots   Snapshotter
	broadcaster Broadcaster
	locks       *keylock.Locker
	clock       clock.Clock
	cfg         Config
	log         zerolog.Logger
}

func New(
	holds ExpiredHolds,
	stale StaleReservations,
	canceller Canceller,
	snapshots Snapshotter,
	broadcaster Broadcaster,
	locks *keylock.Locker,
	clk clock.Clock,
	cfg Config,
	log zerolog.Logger,
) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &Sweeper{
		holds:       holds,
		stale:       stale,
		canceller:   canceller,
		snapshots:   snapshots,
		broadcaster: broadcaster,
		locks:       locks,
		clock:       clk,
		cfg:         cfg,
		log:         log.With().Str("component", "sweeper").Logger(),
	}
}

// Start sweeps immediately and then on every interval until ctx is done.
// A failing or panicking sweep is logged and the loop carries on.
func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.log.Info().Dur("interval", s.cfg.Interval).Int("batch_size", s.cfg.BatchSize).Msg("sweeper started")
	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("sweeper stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Sweeper) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			metrics.ObserveSweep("panic", 0)
			s.log.Error().Interface("panic", r).Msg("sweep panicked")
		}
	}()
	if _, err := s.RunOnce(ctx); err != nil {
		s.log.Warn().Err(err).Msg("sweep skipped, retrying next interval")
	}
}

// RunOnce deletes every hold expired at the current time, cancels pending
// reservations whose payment window closed, and publishes one full
// snapshot per space-day that changed. Per-item failures are counted and
// skipped; only a failure to list work is returned.
func (s *Sweeper) RunOnce(ctx context.Context) (Result, error) {
	started := time.Now()
	now := s.clock.Now()

	var res Result
	affected := make(map[domain.ChannelKey]struct{})

	err := s.expireHolds(ctx, now, &res, affected)
	if err == nil {
		err = s.cancelStale(ctx, now, &res)
	}
	s.publishSnapshots(ctx, affected, &res)

	outcome := "ok"
	switch {
	case err != nil:
		outcome = "error"
	case res.Failures > 0:
		outcome = "partial"
	}
	metrics.ObserveSweep(outcome, time.Since(started))

	ev := s.log.Info()
	if err != nil {
		ev = s.log.Warn().Err(err)
	}
	ev.Int("holds_expired", res.HoldsExpired).
		Int("reservations_cancelled", res.ReservationsCancelled).
		Int("snapshots", res.SnapshotsPublished).
		Int("failures", res.Failures).
		Dur("took", time.Since(started)).
		Msg("sweep finished")
	return res, err
}

func (s *Sweeper) expireHolds(ctx context.Context, now time.Time, res *Result, affected map[domain.ChannelKey]struct{}) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch, err := s.holds.ListExpired(ctx, now, s.cfg.BatchSize)
		if err != nil {
			return fmt.Errorf("list expired holds: %w", err)
		}

		progress := 0
		for _, h := range batch {
			deleted, err := s.expire(ctx, h, now)
			if err != nil {
				res.Failures++
				s.log.Error().Err(err).Str("hold_id", h.ID).Str("slot", h.Key().String()).Msg("expire hold")
				continue
			}
			progress++
			if deleted {
				res.HoldsExpired++
				affected[h.Key().Channel()] = struct{}{}
				metrics.IncHoldReleased("expired")
			}
		}
		// A short batch is the last one; a batch with no progress would
		// come back unchanged.
		if len(batch) < s.cfg.BatchSize || progress == 0 {
			return nil
		}
	}
}

// expire deletes the hold under its slot lock, so it cannot interleave
// with an acquire or a confirm of the same slot. A hold refreshed or
// promoted in the meantime is left alone.
func (s *Sweeper) expire(ctx context.Context, h domain.Hold, now time.Time) (bool, error) {
	unlock := s.locks.Lock(h.Key().String())
	defer unlock()
	return s.holds.DeleteExpired(ctx, h.ID, now)
}

func (s *Sweeper) cancelStale(ctx context.Context, now time.Time, res *Result) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch, err := s.stale.ListStalePending(ctx, now, s.cfg.BatchSize)
		if err != nil {
			return fmt.Errorf("list stale reservations: %w", err)
		}

		progress := 0
		for _, r := range batch {
			if _, err := s.canceller.Cancel(ctx, r.ID, reservation.ReasonPaymentTimeout); err != nil {
				res.Failures++
				s.log.Error().Err(err).Str("reservation_id", r.ID).Msg("cancel stale reservation")
				continue
			}
			progress++
			res.ReservationsCancelled++
		}
		if len(batch) < s.cfg.BatchSize || progress == 0 {
			return nil
		}
	}
}

func (s *Sweeper) publishSnapshots(ctx context.Context, affected map[domain.ChannelKey]struct{}, res *Result) {
	keys := make([]domain.ChannelKey, 0, len(affected))
	for k := range affected {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].SpaceID != keys[j].SpaceID {
			return keys[i].SpaceID < keys[j].SpaceID
		}
		return keys[i].Date < keys[j].Date
	})

	for _, key := range keys {
		if err := s.publishSnapshot(ctx, key); err != nil {
			res.Failures++
			s.log.Error().Err(err).Str("channel", key.String()).Msg("snapshot after sweep")
			continue
		}
		res.SnapshotsPublished++
	}
}

// publishSnapshot computes and broadcasts one space-day while holding every
// slot of it, so no acquire or release can publish a delta in between and
// be overwritten by an older snapshot.
func (s *Sweeper) publishSnapshot(ctx context.Context, key domain.ChannelKey) error {
	slotKeys, err := s.snapshots.SlotKeys(ctx, key.SpaceID, key.Date)
	if err != nil {
		return fmt.Errorf("slot keys: %w", err)
	}
	names := make([]string, len(slotKeys))
	for i, k := range slotKeys {
		names[i] = k.String()
	}
	unlock := s.locks.LockAll(names...)
	defer unlock()

	states, err := s.snapshots.Snapshot(ctx, key.SpaceID, key.Date)
	if err != nil {
		return err
	}
	if err := s.broadcaster.Publish(ctx, realtime.StatusUpdate(key, states)); err != nil {
		return fmt.Errorf("broadcast snapshot: %w", err)
	}
	return nil
}
