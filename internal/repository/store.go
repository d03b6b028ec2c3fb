package repository

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"coworking/internal/domain"
)

const (
	defaultRetryAttempts = 3
	defaultRetryInitial  = 50 * time.Millisecond
	defaultRetryMax      = time.Second
)

type txKey struct{}

// Store owns the connection pool and runs repository calls either inside
// the transaction carried by ctx or as standalone retried statements.
type Store struct {
	db       *gorm.DB
	attempts uint64
	initial  time.Duration
	max      time.Duration
}

type StoreOption func(*Store)

// WithRetry bounds how often a transient failure is retried.
func WithRetry(attempts uint64, initial, max time.Duration) StoreOption {
	return func(s *Store) {
		s.attempts = attempts
		if initial > 0 {
			s.initial = initial
		}
		if max > 0 {
			s.max = max
		}
	}
}

func NewStore(db *gorm.DB, opts ...StoreOption) *Store {
	s := &Store{
		db:       db,
		attempts: defaultRetryAttempts,
		initial:  defaultRetryInitial,
		max:      defaultRetryMax,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) DB() *gorm.DB { return s.db }

// WithTx runs fn in a transaction. Nested calls join the outer transaction.
// The whole transaction is replayed when it fails with a transient error.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := txFromContext(ctx); ok {
		return fn(ctx)
	}
	return s.retry(ctx, func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return fn(context.WithValue(ctx, txKey{}, tx))
		})
	})
}

// LockSlots takes a transaction-scoped advisory lock per key on
// PostgreSQL, in sorted order, so replicas serialize on the same slots the
// in-process keylock covers. SQLite already admits one writer at a time.
func (s *Store) LockSlots(ctx context.Context, keys ...string) error {
	tx, ok := txFromContext(ctx)
	if !ok {
		return errors.New("lock slots: no transaction in context")
	}
	if tx.Dialector.Name() != "postgres" {
		return nil
	}
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)
	for i, key := range sorted {
		if i > 0 && key == sorted[i-1] {
			continue
		}
		if err := tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", key).Error; err != nil {
			return fmt.Errorf("advisory lock %s: %w", key, err)
		}
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// run executes fn against the transaction in ctx, or retries it on its own
// connection when there is none.
func (s *Store) run(ctx context.Context, fn func(db *gorm.DB) error) error {
	if tx, ok := txFromContext(ctx); ok {
		return fn(tx)
	}
	return s.retry(ctx, func() error { return fn(s.db.WithContext(ctx)) })
}

func (s *Store) retry(ctx context.Context, op func() error) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = s.initial
	eb.MaxInterval = s.max
	eb.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(eb, s.attempts), ctx)
	err := backoff.Retry(func() error {
		err := op()
		if err == nil || isTransient(err) {
			return err
		}
		return backoff.Permanent(err)
	}, policy)
	if err != nil && isTransient(err) && !errors.Is(err, domain.ErrStoreUnavailable) {
		return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}
	return err
}

func txFromContext(ctx context.Context) (*gorm.DB, bool) {
	tx, ok := ctx.Value(txKey{}).(*gorm.DB)
	return tx, ok && tx != nil
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}

// isTransient reports failures worth retrying: lost connections,
// serialization failures, deadlocks and a busy SQLite file.
func isTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, domain.ErrStoreUnavailable) || errors.Is(err, driver.ErrBadConn) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case strings.HasPrefix(pgErr.Code, "08"):
			return true
		case pgErr.Code == "40001", pgErr.Code == "40P01", pgErr.Code == "53300",
			pgErr.Code == "57P01", pgErr.Code == "57P03":
			return true
		}
		return false
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) || pgconn.SafeToRetry(err) {
		return true
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "sqlite_busy") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "broken pipe")
}
