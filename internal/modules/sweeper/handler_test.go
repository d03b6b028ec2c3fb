package sweeper

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"coworking/internal/clock"
	"coworking/internal/domain"
	"coworking/internal/pkg/keylock"
)

func TestSweepEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	f := newFixture(t, 0)

	_, err := f.holds.Acquire(context.Background(), f.spaceID, day, 4, 7)
	require.NoError(t, err)
	f.clock.Advance(16 * time.Minute)

	r := gin.New()
	NewHandler(f.sweeper).RegisterRoutes(r.Group("/internal"))

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/internal/sweep", nil))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var body struct {
		Data Result `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Data.HoldsExpired)
}

func TestSweepEndpoint_StoreDown(t *testing.T) {
	gin.SetMode(gin.TestMode)

	holdsStore := new(mockExpiredHolds)
	holdsStore.On("ListExpired", mock.Anything, t0, 10).Return(nil, domain.ErrStoreUnavailable)
	sw := New(holdsStore, nil, nil, nil, &recorder{}, keylock.New(), clock.NewFixed(t0),
		Config{BatchSize: 10}, zerolog.Nop())

	r := gin.New()
	NewHandler(sw).RegisterRoutes(r.Group("/internal"))

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/internal/sweep", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
