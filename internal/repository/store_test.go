package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"coworking/internal/domain"
)

func TestIsTransient(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"serialization", &pgconn.PgError{Code: "40001"}, true},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, true},
		{"connection exception", &pgconn.PgError{Code: "08006"}, true},
		{"unique", &pgconn.PgError{Code: "23505"}, false},
		{"sqlite busy", errors.New("database is locked (5) (SQLITE_BUSY)"), true},
		{"wrapped", fmt.Errorf("get hold: %w", &pgconn.PgError{Code: "40001"}), true},
		{"domain", domain.ErrOverlap, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, isTransient(tc.err))
		})
	}
}

func TestIsUniqueConstraintError(t *testing.T) {
	assert.True(t, isUniqueConstraintError(&pgconn.PgError{Code: "23505"}))
	assert.True(t, isUniqueConstraintError(errors.New("constraint failed: UNIQUE constraint failed: slot_holds.space_id")))
	assert.False(t, isUniqueConstraintError(&pgconn.PgError{Code: "23503"}))
	assert.False(t, isUniqueConstraintError(nil))
}

func TestStoreRetry(t *testing.T) {
	s := &Store{attempts: 2, initial: time.Millisecond, max: time.Millisecond}

	t.Run("transient then success", func(t *testing.T) {
		calls := 0
		err := s.retry(context.Background(), func() error {
			calls++
			if calls < 2 {
				return &pgconn.PgError{Code: "40001"}
			}
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 2, calls)
	})

	t.Run("permanent error is not retried", func(t *testing.T) {
		calls := 0
		err := s.retry(context.Background(), func() error {
			calls++
			return domain.ErrOverlap
		})
		assert.ErrorIs(t, err, domain.ErrOverlap)
		assert.Equal(t, 1, calls)
	})

	t.Run("exhausted transient becomes store unavailable", func(t *testing.T) {
		calls := 0
		err := s.retry(context.Background(), func() error {
			calls++
			return errors.New("database is locked")
		})
		assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
		assert.Equal(t, 3, calls)
	})
}
