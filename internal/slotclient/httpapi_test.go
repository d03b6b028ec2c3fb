package slotclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coworking/internal/domain"
	"coworking/internal/pkg/response"
	"coworking/internal/realtime"
)

func newAPIServer(t *testing.T, register func(r *gin.Engine)) *HTTPAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	register(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return NewHTTPAPI(srv.URL+"/", "tok", srv.Client())
}

func TestHTTPAPI_AcquireConflict(t *testing.T) {
	var body rangeRequest
	api := newAPIServer(t, func(r *gin.Engine) {
		r.POST("/api/v1/slot-ranges/hold", func(c *gin.Context) {
			_ = c.ShouldBindJSON(&body)
			response.DomainError(c, &domain.SlotConflictError{SpaceID: 1, Date: day, SlotIndex: 3, Reason: domain.ConflictBooked})
		})
	})

	err := api.Acquire(context.Background(), 1, day, 2, 4)
	var conflict *domain.SlotConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, 3, conflict.SlotIndex)
	assert.Equal(t, domain.ConflictBooked, conflict.Reason)
	assert.Equal(t, rangeRequest{SpaceID: 1, Date: day, StartSlot: 2, EndSlot: 4}, body)
}

func TestHTTPAPI_ErrorCodes(t *testing.T) {
	api := newAPIServer(t, func(r *gin.Engine) {
		r.POST("/api/v1/slot-ranges/release", func(c *gin.Context) {
			response.DomainError(c, domain.ErrStoreUnavailable)
		})
		r.POST("/api/v1/reservations", func(c *gin.Context) {
			response.DomainError(c, domain.ErrOverlap)
		})
	})

	err := api.Release(context.Background(), 1, day, 1, 1)
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.Status)

	_, err = api.Book(context.Background(), 1, time.Now(), time.Now().Add(time.Hour))
	assert.ErrorIs(t, err, domain.ErrOverlap)
}

func TestHTTPAPI_Book(t *testing.T) {
	var auth string
	api := newAPIServer(t, func(r *gin.Engine) {
		r.POST("/api/v1/reservations", func(c *gin.Context) {
			auth = c.GetHeader("Authorization")
			response.Success(c, http.StatusCreated, gin.H{"reservation": domain.Reservation{ID: "r-42"}})
		})
	})

	id, err := api.Book(context.Background(), 1, time.Now(), time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "r-42", id)
	assert.Equal(t, "Bearer tok", auth)
}

type staticSnapshots struct{ states []domain.SlotState }

func (s staticSnapshots) Snapshot(context.Context, int64, string) ([]domain.SlotState, error) {
	return s.states, nil
}

func TestHTTPAPI_Subscribe(t *testing.T) {
	hub := realtime.NewHub(zerolog.Nop())
	t.Cleanup(hub.Close)
	snap := staticSnapshots{states: []domain.SlotState{
		{SlotIndex: 1, Status: domain.SlotAvailable},
		{SlotIndex: 2, Status: domain.SlotBooked},
	}}
	api := newAPIServer(t, func(r *gin.Engine) {
		realtime.NewHandler(hub, snap, nil, nil, zerolog.Nop()).RegisterRoutes(r)
	})

	ctx, cancel := context.WithCancel(context.Background())
	updates, err := api.Subscribe(ctx, 1, day)
	require.NoError(t, err)

	first := receive(t, updates)
	assert.True(t, first.Snapshot)
	require.Len(t, first.Slots, 2)
	assert.Equal(t, domain.SlotBooked, first.Slots[1].Status)

	key := domain.ChannelKey{SpaceID: 1, Date: day}
	require.NoError(t, hub.Publish(ctx, realtime.SlotUpdate(key, domain.SlotState{SlotIndex: 1, Status: domain.SlotOccupied, HolderID: 9})))

	delta := receive(t, updates)
	assert.False(t, delta.Snapshot)
	assert.Equal(t, int64(1), delta.SpaceID)
	assert.Equal(t, domain.SlotOccupied, delta.Slots[0].Status, "anonymous viewers never see ownership")

	cancel()
	select {
	case _, ok := <-updates:
		for ok {
			_, ok = <-updates
		}
	case <-time.After(2 * time.Second):
		t.Fatal("stream not closed after cancel")
	}
}

func receive(t *testing.T, updates <-chan ServerUpdate) ServerUpdate {
	t.Helper()
	select {
	case u, ok := <-updates:
		require.True(t, ok, "stream closed")
		return u
	case <-time.After(2 * time.Second):
		t.Fatal("no update received")
		return ServerUpdate{}
	}
}
