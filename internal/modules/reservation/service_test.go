package reservation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coworking/internal/clock"
	"coworking/internal/domain"
	"coworking/internal/modules/availability"
	"coworking/internal/modules/holds"
	"coworking/internal/pkg/keylock"
	"coworking/internal/realtime"
	"coworking/internal/repository"
	"coworking/internal/repository/repotest"
)

const day = "2030-01-07"

var now0 = time.Date(2030, 1, 7, 8, 0, 0, 0, time.UTC)

func at(hour int) time.Time {
	return time.Date(2030, 1, 7, hour, 0, 0, 0, time.UTC)
}

type recorder struct {
	mu     sync.Mutex
	events []realtime.Event
}

func (r *recorder) Publish(_ context.Context, ev realtime.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) take() []realtime.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.events
	r.events = nil
	return out
}

type fixture struct {
	svc      *Service
	holds    *holds.Service
	resolver *availability.Service
	clock    *clock.Manual
	events   *recorder
	spaceID  int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := repotest.NewStore(t)
	space := repotest.SeedSpace(t, store)

	clk := clock.NewManual(now0)
	holdRepo := repository.NewHoldRepository(store)
	resRepo := repository.NewReservationRepository(store)
	spaces := repository.NewSpaceRepository(store, time.UTC)
	resolver := availability.NewService(spaces, resRepo, holdRepo, clk)
	events := &recorder{}
	locks := keylock.New()

	holdSvc := holds.NewService(store, holdRepo, resRepo, spaces, resolver, events, locks, holds.WithClock(clk))
	svc := NewService(store, resRepo, spaces, holdSvc, resolver, events, locks,
		WithClock(clk), WithPaymentWindow(15*time.Minute))

	return &fixture{svc: svc, holds: holdSvc, resolver: resolver, clock: clk, events: events, spaceID: space.ID}
}

func (f *fixture) statuses(t *testing.T, viewer int64) []domain.SlotStatus {
	t.Helper()
	views, err := f.resolver.ComputeStatus(context.Background(), f.spaceID, day, viewer)
	require.NoError(t, err)
	out := make([]domain.SlotStatus, 0, len(views))
	for _, v := range views {
		out = append(out, v.Status)
	}
	return out
}

func TestCreate_Pending(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.Create(context.Background(), f.spaceID, 7, at(9), at(11))
	require.NoError(t, err)
	assert.NotEmpty(t, res.ID)
	assert.Equal(t, domain.ReservationPending, res.Status)
	assert.True(t, res.PaymentDueAt.Equal(now0.Add(15*time.Minute)))
	assert.Empty(t, f.events.take(), "pending reservations do not change the grid")
	assert.Equal(t, domain.SlotAvailable, f.statuses(t, 7)[0])
}

func TestCreate_InvalidRanges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		name       string
		start, end time.Time
	}{
		{name: "empty", start: at(10), end: at(10)},
		{name: "reversed", start: at(11), end: at(10)},
		{name: "misaligned", start: at(10).Add(30 * time.Minute), end: at(12)},
		{name: "before opening", start: at(8), end: at(10)},
		{name: "after closing", start: at(16), end: at(18)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, f.spaceID, 7, tc.start, tc.end)
			assert.ErrorIs(t, err, domain.ErrInvalidRange)
		})
	}

	f.clock.Set(at(13))
	_, err := f.svc.Create(ctx, f.spaceID, 7, at(9), at(11))
	assert.ErrorIs(t, err, domain.ErrInvalidRange, "range already ended")
}

func TestCreate_RespectsHoldsAndBookings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.holds.AcquireRange(ctx, f.spaceID, day, 2, 3, 8)
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, f.spaceID, 7, at(9), at(12))
	var conflict *domain.SlotConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, 2, conflict.SlotIndex)

	own, err := f.svc.Create(ctx, f.spaceID, 8, at(10), at(12))
	require.NoError(t, err, "the holder may reserve its own slots")

	_, err = f.svc.Confirm(ctx, own.ID)
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, f.spaceID, 7, at(11), at(13))
	assert.ErrorIs(t, err, domain.ErrOverlap)

	_, err = f.svc.Create(ctx, f.spaceID, 7, at(12), at(13))
	assert.NoError(t, err, "adjacent ranges do not overlap")
}

func TestConfirm_PromotesHoldsAndBroadcasts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.holds.AcquireRange(ctx, f.spaceID, day, 1, 2, 7)
	require.NoError(t, err)
	res, err := f.svc.Create(ctx, f.spaceID, 7, at(9), at(11))
	require.NoError(t, err)
	f.events.take()

	confirmed, err := f.svc.Confirm(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationConfirmed, confirmed.Status)

	events := f.events.take()
	require.Len(t, events, 2)
	for i, ev := range events {
		assert.Equal(t, realtime.EventSlotUpdate, ev.Type)
		assert.Equal(t, i+1, ev.Slots[0].SlotIndex)
		assert.Equal(t, domain.SlotBooked, ev.Slots[0].Status)
	}

	// Past the original hold TTL the slots stay booked.
	f.clock.Advance(time.Hour - time.Minute)
	status := f.statuses(t, 7)
	assert.Equal(t, domain.SlotBooked, status[0])
	assert.Equal(t, domain.SlotBooked, status[1])

	again, err := f.svc.Confirm(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationConfirmed, again.Status)
	assert.Empty(t, f.events.take(), "confirming twice broadcasts nothing")
}

func TestConfirm_FailureKeepsHolds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.Create(ctx, f.spaceID, 8, at(9), at(10))
	require.NoError(t, err)
	_, err = f.holds.Acquire(ctx, f.spaceID, day, 2, 7)
	require.NoError(t, err)
	second, err := f.svc.Create(ctx, f.spaceID, 7, at(9), at(11))
	require.NoError(t, err)

	_, err = f.svc.Confirm(ctx, first.ID)
	require.NoError(t, err)

	_, err = f.svc.Confirm(ctx, second.ID)
	assert.ErrorIs(t, err, domain.ErrOverlap)

	assert.Equal(t, domain.SlotOccupiedOwn, f.statuses(t, 7)[1], "hold survives a failed confirm")

	got, err := f.svc.Get(ctx, second.ID, 7)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationPending, got.Status)
}

func TestConfirm_ForeignHoldBlocks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.Create(ctx, f.spaceID, 7, at(14), at(15))
	require.NoError(t, err)
	_, err = f.holds.Acquire(ctx, f.spaceID, day, 6, 8)
	require.NoError(t, err)

	_, err = f.svc.Confirm(ctx, res.ID)
	assert.ErrorIs(t, err, domain.ErrSlotUnavailable)
}

func TestConfirm_ForeignHoldCheckedBeforeOverlap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.Create(ctx, f.spaceID, 8, at(9), at(10))
	require.NoError(t, err)
	second, err := f.svc.Create(ctx, f.spaceID, 7, at(9), at(11))
	require.NoError(t, err)
	_, err = f.holds.Acquire(ctx, f.spaceID, day, 2, 9)
	require.NoError(t, err)
	_, err = f.svc.Confirm(ctx, first.ID)
	require.NoError(t, err)

	_, err = f.svc.Confirm(ctx, second.ID)
	var conflict *domain.SlotConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, 2, conflict.SlotIndex)
	assert.NotErrorIs(t, err, domain.ErrOverlap)
}

func TestConfirm_ConcurrentOverlapping(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const n = 8
	ids := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		res, err := f.svc.Create(ctx, f.spaceID, int64(i), at(12), at(14))
		require.NoError(t, err)
		ids = append(ids, res.ID)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		confirmed int
		overlaps  int
	)
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := f.svc.Confirm(ctx, id)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				confirmed++
			case errors.Is(err, domain.ErrOverlap):
				overlaps++
			}
		}(id)
	}
	wg.Wait()

	assert.Equal(t, 1, confirmed)
	assert.Equal(t, n-1, overlaps)
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pending, err := f.svc.Create(ctx, f.spaceID, 7, at(9), at(10))
	require.NoError(t, err)
	cancelled, err := f.svc.Cancel(ctx, pending.ID, ReasonPaymentFailed)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationCancelled, cancelled.Status)
	assert.Equal(t, ReasonPaymentFailed, cancelled.CancellationReason)
	assert.Empty(t, f.events.take(), "a pending reservation frees nothing")

	_, err = f.svc.Confirm(ctx, pending.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidStatusTransition)

	booked, err := f.svc.Create(ctx, f.spaceID, 7, at(15), at(17))
	require.NoError(t, err)
	_, err = f.svc.Confirm(ctx, booked.ID)
	require.NoError(t, err)
	f.events.take()

	_, err = f.svc.CancelOwn(ctx, booked.ID, 8)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.svc.CancelOwn(ctx, booked.ID, 7)
	require.NoError(t, err)
	events := f.events.take()
	require.Len(t, events, 2)
	for _, ev := range events {
		assert.Equal(t, domain.SlotAvailable, ev.Slots[0].Status)
	}

	again, err := f.svc.CancelOwn(ctx, booked.ID, 7)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationCancelled, again.Status)
	assert.Empty(t, f.events.take())
}

func TestGet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.Create(ctx, f.spaceID, 7, at(9), at(10))
	require.NoError(t, err)

	got, err := f.svc.Get(ctx, res.ID, 7)
	require.NoError(t, err)
	assert.Equal(t, res.ID, got.ID)

	_, err = f.svc.Get(ctx, res.ID, 8)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.svc.Get(ctx, "missing", 7)
	assert.ErrorIs(t, err, domain.ErrReservationNotFound)

	mine, err := f.svc.ListMine(ctx, 7, 10, 0)
	require.NoError(t, err)
	assert.Len(t, mine, 1)
}
