// Package repotest opens throwaway in-memory databases for tests.
package repotest

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"coworking/internal/database"
	"coworking/internal/domain"
	"coworking/internal/repository"
)

// NewDB opens a migrated in-memory SQLite database private to the test.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:coworking_%s_%d?mode=memory&cache=shared", name, time.Now().UnixNano())
	db, err := database.Connect(dsn, zerolog.Nop(), database.Options{Silent: true})
	if err != nil {
		t.Fatalf("failed to open sqlite db: %v", err)
	}
	if err := repository.Migrate(db); err != nil {
		t.Fatalf("failed to migrate db: %v", err)
	}
	t.Cleanup(func() { _ = database.Close(db) })
	return db
}

func NewStore(t testing.TB) *repository.Store {
	t.Helper()
	return repository.NewStore(NewDB(t), repository.WithRetry(1, time.Millisecond, time.Millisecond))
}

// SeedSpace stores an active 09:00-17:00 hourly space and returns it.
func SeedSpace(t testing.TB, store *repository.Store, mutate ...func(*domain.Space)) *domain.Space {
	t.Helper()

	s := &domain.Space{
		LocationID:  1,
		Name:        "Desk A",
		Type:        domain.SpaceDesk,
		Capacity:    1,
		OpenTime:    "09:00",
		CloseTime:   "17:00",
		SlotMinutes: 60,
		IsActive:    true,
	}
	for _, m := range mutate {
		m(s)
	}
	if err := repository.NewSpaceRepository(store, time.UTC).Upsert(t.Context(), s); err != nil {
		t.Fatalf("failed to seed space: %v", err)
	}
	return s
}
