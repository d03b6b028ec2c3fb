package holds

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Success bool `json:"success"`
	Data    struct {
		Released []int `json:"released"`
		Grid     struct {
			Slots []struct {
				SlotIndex int    `json:"slot_index"`
				Status    string `json:"status"`
			} `json:"slots"`
		} `json:"grid"`
	} `json:"data"`
	Error struct {
		Code    string         `json:"code"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func setupTestRouter(t *testing.T) (*gin.Engine, *fixture) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := newFixture(t)
	h := NewHandler(f.svc, f.resolver)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		if userID := c.GetHeader("X-Test-User-ID"); userID != "" {
			id, _ := strconv.ParseInt(userID, 10, 64)
			c.Set("user_id", id)
		}
		c.Next()
	})
	h.RegisterRoutes(r.Group("/api/v1"))
	return r, f
}

func doJSONRequest(r http.Handler, method, path string, body any, userID int64) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body == nil {
		reader = bytes.NewReader(nil)
	} else {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != 0 {
		req.Header.Set("X-Test-User-ID", strconv.FormatInt(userID, 10))
	}

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	return env
}

func TestHoldEndpoint_ReturnsFreshGrid(t *testing.T) {
	r, f := setupTestRouter(t)
	body := map[string]any{"space_id": f.spaceID, "date": day}

	rr := doJSONRequest(r, http.MethodPost, "/api/v1/slots/2/hold", body, 7)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	env := decode(t, rr)
	require.True(t, env.Success)
	require.Len(t, env.Data.Grid.Slots, 8)
	assert.Equal(t, "occupied-own", env.Data.Grid.Slots[1].Status)

	rr = doJSONRequest(r, http.MethodPost, "/api/v1/slots/2/hold", body, 8)
	require.Equal(t, http.StatusConflict, rr.Code)
	env = decode(t, rr)
	assert.Equal(t, "SLOT_UNAVAILABLE", env.Error.Code)
	assert.EqualValues(t, 2, env.Error.Details["slot_index"])
	assert.Equal(t, "held", env.Error.Details["reason"])
}

func TestReleaseEndpoint(t *testing.T) {
	r, f := setupTestRouter(t)
	body := map[string]any{"space_id": f.spaceID, "date": day}

	require.Equal(t, http.StatusOK, doJSONRequest(r, http.MethodPost, "/api/v1/slots/5/hold", body, 7).Code)

	rr := doJSONRequest(r, http.MethodPost, "/api/v1/slots/5/release", body, 7)
	require.Equal(t, http.StatusOK, rr.Code)
	env := decode(t, rr)
	assert.Equal(t, []int{5}, env.Data.Released)
	assert.Equal(t, "available", env.Data.Grid.Slots[4].Status)

	rr = doJSONRequest(r, http.MethodPost, "/api/v1/slots/5/release", body, 7)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, decode(t, rr).Data.Released)
}

func TestRangeEndpoints(t *testing.T) {
	r, f := setupTestRouter(t)

	rr := doJSONRequest(r, http.MethodPost, "/api/v1/slot-ranges/hold",
		map[string]any{"space_id": f.spaceID, "date": day, "start_slot": 1, "end_slot": 3}, 7)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	env := decode(t, rr)
	for _, s := range env.Data.Grid.Slots[:3] {
		assert.Equal(t, "occupied-own", s.Status)
	}

	rr = doJSONRequest(r, http.MethodPost, "/api/v1/slot-ranges/release",
		map[string]any{"space_id": f.spaceID, "date": day, "start_slot": 1, "end_slot": 3}, 7)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []int{1, 2, 3}, decode(t, rr).Data.Released)
}

func TestHoldEndpoints_BadRequests(t *testing.T) {
	r, f := setupTestRouter(t)

	cases := []struct {
		name string
		path string
		body any
		want int
	}{
		{name: "non numeric slot", path: "/api/v1/slots/abc/hold", body: map[string]any{"space_id": f.spaceID, "date": day}, want: http.StatusBadRequest},
		{name: "missing date", path: "/api/v1/slots/1/hold", body: map[string]any{"space_id": f.spaceID}, want: http.StatusBadRequest},
		{name: "malformed date", path: "/api/v1/slots/1/hold", body: map[string]any{"space_id": f.spaceID, "date": "07.01.2030"}, want: http.StatusBadRequest},
		{name: "slot outside grid", path: "/api/v1/slots/12/hold", body: map[string]any{"space_id": f.spaceID, "date": day}, want: http.StatusBadRequest},
		{name: "reversed range", path: "/api/v1/slot-ranges/hold", body: map[string]any{"space_id": f.spaceID, "date": day, "start_slot": 4, "end_slot": 2}, want: http.StatusBadRequest},
		{name: "unknown space", path: "/api/v1/slots/1/hold", body: map[string]any{"space_id": 999, "date": day}, want: http.StatusNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := doJSONRequest(r, http.MethodPost, tc.path, tc.body, 7)
			assert.Equal(t, tc.want, rr.Code, rr.Body.String())
		})
	}
}

func TestHoldEndpoint_Anonymous(t *testing.T) {
	r, f := setupTestRouter(t)
	rr := doJSONRequest(r, http.MethodPost, "/api/v1/slots/1/hold", map[string]any{"space_id": f.spaceID, "date": day}, 0)
	assert.Equal(t, http.StatusForbidden, rr.Code)
}
