package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coworking/internal/domain"
	"coworking/internal/repository"
	"coworking/internal/repository/repotest"
)

func createReservation(t *testing.T, repo *repository.ReservationRepository, spaceID int64, startHour, endHour int, status domain.ReservationStatus) *domain.Reservation {
	t.Helper()
	r := &domain.Reservation{
		ID:           uuid.NewString(),
		SpaceID:      spaceID,
		UserID:       7,
		StartAt:      time.Date(2030, 1, 7, startHour, 0, 0, 0, time.UTC),
		EndAt:        time.Date(2030, 1, 7, endHour, 0, 0, 0, time.UTC),
		Status:       status,
		PaymentDueAt: t0.Add(15 * time.Minute),
		CreatedAt:    t0,
		UpdatedAt:    t0,
	}
	require.NoError(t, repo.Create(context.Background(), r))
	return r
}

func TestReservationRepository_FindOverlapping(t *testing.T) {
	store := repotest.NewStore(t)
	repo := repository.NewReservationRepository(store)
	ctx := context.Background()

	confirmed := createReservation(t, repo, 1, 10, 12, domain.ReservationConfirmed)
	createReservation(t, repo, 1, 13, 14, domain.ReservationPending)
	createReservation(t, repo, 1, 14, 15, domain.ReservationCancelled)
	createReservation(t, repo, 2, 10, 12, domain.ReservationConfirmed)

	at := func(h int) time.Time { return time.Date(2030, 1, 7, h, 0, 0, 0, time.UTC) }

	cases := []struct {
		name       string
		start, end int
		want       int
	}{
		{"inside", 10, 11, 1},
		{"covering", 9, 13, 1},
		{"touching before", 9, 10, 0},
		{"touching after", 12, 13, 0},
		{"pending ignored", 13, 14, 0},
		{"cancelled ignored", 14, 15, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := repo.FindOverlapping(ctx, 1, at(tc.start), at(tc.end))
			require.NoError(t, err)
			require.Len(t, got, tc.want)
			if tc.want > 0 {
				assert.Equal(t, confirmed.ID, got[0].ID)
			}
		})
	}
}

func TestReservationRepository_Transition(t *testing.T) {
	store := repotest.NewStore(t)
	repo := repository.NewReservationRepository(store)
	ctx := context.Background()

	r := createReservation(t, repo, 1, 9, 10, domain.ReservationPending)

	ok, err := repo.Transition(ctx, r.ID, domain.ReservationPending, domain.ReservationConfirmed, "", t0)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Transition(ctx, r.ID, domain.ReservationPending, domain.ReservationCancelled, "late", t0)
	require.NoError(t, err)
	assert.False(t, ok, "status no longer pending")

	ok, err = repo.Transition(ctx, r.ID, domain.ReservationConfirmed, domain.ReservationCancelled, "user request", t0.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := repo.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationCancelled, got.Status)
	assert.Equal(t, "user request", got.CancellationReason)
	require.NotNil(t, got.CancelledAt)
	assert.True(t, got.CancelledAt.Equal(t0.Add(time.Hour)))

	_, err = repo.Get(ctx, uuid.NewString())
	assert.ErrorIs(t, err, domain.ErrReservationNotFound)
}

func TestReservationRepository_ListStalePending(t *testing.T) {
	store := repotest.NewStore(t)
	repo := repository.NewReservationRepository(store)
	ctx := context.Background()

	stale := createReservation(t, repo, 1, 9, 10, domain.ReservationPending)
	createReservation(t, repo, 1, 10, 11, domain.ReservationConfirmed)

	got, err := repo.ListStalePending(ctx, t0, 10)
	require.NoError(t, err)
	assert.Empty(t, got, "payment window still open")

	got, err = repo.ListStalePending(ctx, stale.PaymentDueAt, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, stale.ID, got[0].ID)
}

func TestSpaceRepository_Grid(t *testing.T) {
	store := repotest.NewStore(t)
	space := repotest.SeedSpace(t, store, func(s *domain.Space) {
		s.ClosedWeekdays = []int{0}
	})
	repo := repository.NewSpaceRepository(store, time.UTC)

	g, err := repo.Grid(context.Background(), space.ID)
	require.NoError(t, err)
	assert.Equal(t, 8, g.Count(time.Date(2030, 1, 7, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 0, g.Count(time.Date(2030, 1, 6, 0, 0, 0, 0, time.UTC)), "sunday closed")

	inactive := repotest.SeedSpace(t, store, func(s *domain.Space) { s.IsActive = false })
	_, err = repo.Grid(context.Background(), inactive.ID)
	assert.ErrorIs(t, err, domain.ErrSpaceNotFound)
}
