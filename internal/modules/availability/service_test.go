package availability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"coworking/internal/clock"
	"coworking/internal/domain"
	"coworking/internal/slotgrid"
)

type MockSpaceGrids struct {
	mock.Mock
}

func (m *MockSpaceGrids) Grid(ctx context.Context, spaceID int64) (slotgrid.Grid, error) {
	args := m.Called(ctx, spaceID)
	return args.Get(0).(slotgrid.Grid), args.Error(1)
}

type MockReservationReader struct {
	mock.Mock
}

func (m *MockReservationReader) FindOverlapping(ctx context.Context, spaceID int64, start, end time.Time) ([]domain.Reservation, error) {
	args := m.Called(ctx, spaceID, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Reservation), args.Error(1)
}

type MockHoldReader struct {
	mock.Mock
}

func (m *MockHoldReader) ListActive(ctx context.Context, spaceID int64, date string, now time.Time) ([]domain.Hold, error) {
	args := m.Called(ctx, spaceID, date, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Hold), args.Error(1)
}

func at(h int) time.Time { return time.Date(2025, 9, 2, h, 0, 0, 0, time.UTC) }

func testGrid(t *testing.T) slotgrid.Grid {
	t.Helper()
	g, err := slotgrid.New("09:00", "17:00", time.Hour, time.UTC)
	require.NoError(t, err)
	return g
}

func slotsFor(t *testing.T) []slotgrid.Slot {
	g := testGrid(t)
	day, _ := g.ParseDate("2025-09-02")
	return g.Slots(day)
}

func hold(slot int, user int64, expires time.Time) domain.Hold {
	return domain.Hold{SpaceID: 1, Date: "2025-09-02", SlotIndex: slot, UserID: user, ExpiresAt: expires}
}

func TestCompute_Precedence(t *testing.T) {
	now := at(11).Add(30 * time.Minute)
	confirmed := []domain.Reservation{
		{SpaceID: 1, StartAt: at(13), EndAt: at(15), Status: domain.ReservationConfirmed},
		{SpaceID: 1, StartAt: at(9), EndAt: at(10), Status: domain.ReservationConfirmed},
	}
	holds := []domain.Hold{
		hold(5, 7, now.Add(10*time.Minute)), // 13:00, booked wins
		hold(7, 7, now.Add(10*time.Minute)), // 15:00, occupied
		hold(8, 8, now.Add(-time.Minute)),   // expired
		hold(2, 8, now.Add(10*time.Minute)), // 10:00, ended but held
	}

	states := Compute(slotsFor(t), confirmed, holds, now)
	require.Len(t, states, 8)

	want := []domain.SlotStatus{
		domain.SlotBooked,    // 09 booked and past
		domain.SlotOccupied,  // 10 held beats past
		domain.SlotAvailable, // 11 still running
		domain.SlotAvailable, // 12
		domain.SlotBooked,    // 13 booked beats hold
		domain.SlotBooked,    // 14
		domain.SlotOccupied,  // 15
		domain.SlotAvailable, // 16 expired hold hidden
	}
	for i, st := range states {
		assert.Equal(t, want[i], st.Status, "slot %d", st.SlotIndex)
	}
	assert.Zero(t, states[4].HolderID, "booked slot must not expose the stale holder")
	assert.Equal(t, int64(7), states[6].HolderID)
}

func TestCompute_PastWhenEnded(t *testing.T) {
	now := at(12)
	states := Compute(slotsFor(t), nil, nil, now)
	assert.Equal(t, domain.SlotPast, states[0].Status)
	assert.Equal(t, domain.SlotPast, states[2].Status, "11:00-12:00 has ended at 12:00")
	assert.Equal(t, domain.SlotAvailable, states[3].Status)
}

func TestService_ComputeStatus_ViewerOwnership(t *testing.T) {
	now := at(8)
	spaces := new(MockSpaceGrids)
	reservations := new(MockReservationReader)
	holds := new(MockHoldReader)

	spaces.On("Grid", mock.Anything, int64(1)).Return(testGrid(t), nil)
	reservations.On("FindOverlapping", mock.Anything, int64(1), at(9), at(17)).Return([]domain.Reservation{}, nil)
	holds.On("ListActive", mock.Anything, int64(1), "2025-09-02", now).
		Return([]domain.Hold{hold(1, 7, now.Add(15*time.Minute))}, nil)

	svc := NewService(spaces, reservations, holds, clock.NewFixed(now))
	ctx := context.Background()

	own, err := svc.ComputeStatus(ctx, 1, "2025-09-02", 7)
	require.NoError(t, err)
	assert.Equal(t, domain.SlotOccupiedOwn, own[0].Status)
	require.NotNil(t, own[0].Metadata.HoldUntil)

	other, err := svc.ComputeStatus(ctx, 1, "2025-09-02", 8)
	require.NoError(t, err)
	assert.Equal(t, domain.SlotOccupied, other[0].Status)
	assert.Nil(t, other[0].Metadata.HoldUntil)

	anon, err := svc.ComputeStatus(ctx, 1, "2025-09-02", 0)
	require.NoError(t, err)
	assert.Equal(t, domain.SlotOccupied, anon[0].Status)

	states, err := svc.States(ctx, 1, "2025-09-02", 2, 1)
	require.NoError(t, err)
	require.Len(t, states, 2)
	assert.Equal(t, 2, states[0].SlotIndex)
	assert.Equal(t, domain.SlotOccupied, states[1].Status)
}

func TestService_Errors(t *testing.T) {
	spaces := new(MockSpaceGrids)
	spaces.On("Grid", mock.Anything, int64(404)).Return(slotgrid.Grid{}, domain.ErrSpaceNotFound)
	spaces.On("Grid", mock.Anything, int64(1)).Return(testGrid(t), nil)

	svc := NewService(spaces, new(MockReservationReader), new(MockHoldReader), clock.NewFixed(at(8)))

	_, err := svc.ComputeStatus(context.Background(), 404, "2025-09-02", 0)
	assert.ErrorIs(t, err, domain.ErrSpaceNotFound)

	_, err = svc.ComputeStatus(context.Background(), 1, "tomorrow", 0)
	assert.ErrorIs(t, err, domain.ErrInvalidRange)
}
