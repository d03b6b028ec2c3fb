package catalog

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coworking/internal/domain"
	"coworking/internal/repository"
	"coworking/internal/repository/repotest"
)

const sample = `
spaces:
  - id: 1
    location_id: 10
    name: Hot desk A
    type: desk
    capacity: 1
    open: "09:00"
    close: "17:00"
  - id: 2
    location_id: 10
    name: Board room
    type: meeting_room
    capacity: 12
    open: "08:00"
    close: "20:00"
    slot_minutes: 30
    closed_weekdays: [0, 6]
`

func TestParse(t *testing.T) {
	spaces, err := Parse(strings.NewReader(sample), time.UTC)
	require.NoError(t, err)
	require.Len(t, spaces, 2)

	assert.Equal(t, 60, spaces[0].SlotMinutes)
	assert.True(t, spaces[0].IsActive)
	assert.Equal(t, domain.SpaceMeetingRoom, spaces[1].Type)
	assert.Equal(t, []int{0, 6}, spaces[1].ClosedWeekdays)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{
			name: "bad clock",
			doc:  "spaces:\n  - {id: 1, location_id: 1, name: x, type: desk, capacity: 1, open: 9am, close: '17:00'}\n",
			want: "hhmm",
		},
		{
			name: "unknown type",
			doc:  "spaces:\n  - {id: 1, location_id: 1, name: x, type: sofa, capacity: 1, open: '09:00', close: '17:00'}\n",
			want: "oneof",
		},
		{
			name: "unknown key",
			doc:  "spaces:\n  - {id: 1, location_id: 1, name: x, type: desk, capacity: 1, open: '09:00', close: '17:00', opens: '08:00'}\n",
			want: "opens",
		},
		{
			name: "duplicate id",
			doc: "spaces:\n  - {id: 1, location_id: 1, name: x, type: desk, capacity: 1, open: '09:00', close: '17:00'}\n" +
				"  - {id: 1, location_id: 1, name: y, type: desk, capacity: 1, open: '09:00', close: '17:00'}\n",
			want: "duplicate",
		},
		{
			name: "hours shorter than a slot",
			doc:  "spaces:\n  - {id: 1, location_id: 1, name: x, type: desk, capacity: 1, open: '09:00', close: '09:30'}\n",
			want: "shorter than one slot",
		},
		{
			name: "empty",
			doc:  "spaces: []\n",
			want: "invalid catalog",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.doc), time.UTC)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestSeed_Upserts(t *testing.T) {
	store := repotest.NewStore(t)
	repo := repository.NewSpaceRepository(store, time.UTC)
	ctx := context.Background()

	spaces, err := Parse(strings.NewReader(sample), time.UTC)
	require.NoError(t, err)
	n, err := Seed(ctx, repo, spaces)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// seeding again overwrites in place
	spaces[0].CloseTime = "18:00"
	_, err = Seed(ctx, repo, spaces)
	require.NoError(t, err)

	got, err := repo.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "18:00", got.CloseTime)

	all, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

type failingWriter struct{ after int }

func (w *failingWriter) Upsert(context.Context, *domain.Space) error {
	if w.after == 0 {
		return errors.New("db down")
	}
	w.after--
	return nil
}

func TestSeed_StopsOnError(t *testing.T) {
	spaces, err := Parse(strings.NewReader(sample), time.UTC)
	require.NoError(t, err)

	n, err := Seed(context.Background(), &failingWriter{after: 1}, spaces)
	require.Error(t, err)
	assert.Equal(t, 1, n)
}
