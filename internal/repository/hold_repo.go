package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"coworking/internal/domain"
)

type HoldRepository struct {
	store *Store
}

func NewHoldRepository(store *Store) *HoldRepository {
	return &HoldRepository{store: store}
}

type holdModel struct {
	ID        string    `gorm:"column:id;primaryKey;size:36"`
	SpaceID   int64     `gorm:"column:space_id;not null;uniqueIndex:idx_slot_holds_slot,priority:1"`
	Date      string    `gorm:"column:date;size:10;not null;uniqueIndex:idx_slot_holds_slot,priority:2"`
	SlotIndex int       `gorm:"column:slot_index;not null;uniqueIndex:idx_slot_holds_slot,priority:3"`
	UserID    int64     `gorm:"column:user_id;not null;index"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
	ExpiresAt time.Time `gorm:"column:expires_at;not null;index"`
}

func (holdModel) TableName() string { return "slot_holds" }

func toDomainHold(m holdModel) domain.Hold {
	return domain.Hold{
		ID:        m.ID,
		SpaceID:   m.SpaceID,
		Date:      m.Date,
		SlotIndex: m.SlotIndex,
		UserID:    m.UserID,
		CreatedAt: m.CreatedAt.UTC(),
		ExpiresAt: m.ExpiresAt.UTC(),
	}
}

func toHoldModel(h domain.Hold) holdModel {
	return holdModel{
		ID:        h.ID,
		SpaceID:   h.SpaceID,
		Date:      h.Date,
		SlotIndex: h.SlotIndex,
		UserID:    h.UserID,
		CreatedAt: h.CreatedAt.UTC(),
		ExpiresAt: h.ExpiresAt.UTC(),
	}
}

// Get returns the hold on key, locking the row when running in a transaction.
func (r *HoldRepository) Get(ctx context.Context, key domain.SlotKey) (*domain.Hold, error) {
	var m holdModel
	err := r.store.run(ctx, func(db *gorm.DB) error {
		return db.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("space_id = ? AND date = ? AND slot_index = ?", key.SpaceID, key.Date, key.SlotIndex).
			Take(&m).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrHoldNotFound
		}
		return nil, fmt.Errorf("get hold %s: %w", key, err)
	}
	h := toDomainHold(m)
	return &h, nil
}

// Insert stores a new hold. A concurrent writer that got there first
// surfaces as ErrSlotUnavailable through the unique slot index.
func (r *HoldRepository) Insert(ctx context.Context, h domain.Hold) error {
	m := toHoldModel(h)
	err := r.store.run(ctx, func(db *gorm.DB) error {
		return db.Create(&m).Error
	})
	if err != nil {
		if isUniqueConstraintError(err) {
			return &domain.SlotConflictError{SpaceID: h.SpaceID, Date: h.Date, SlotIndex: h.SlotIndex, Reason: domain.ConflictHeld}
		}
		return fmt.Errorf("insert hold %s: %w", h.Key(), err)
	}
	return nil
}

// Refresh restarts the TTL of a hold the same user already owns.
func (r *HoldRepository) Refresh(ctx context.Context, id string, createdAt, expiresAt time.Time) error {
	return r.store.run(ctx, func(db *gorm.DB) error {
		res := db.Model(&holdModel{}).Where("id = ?", id).Updates(map[string]any{
			"created_at": createdAt.UTC(),
			"expires_at": expiresAt.UTC(),
		})
		if res.Error != nil {
			return fmt.Errorf("refresh hold %s: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return domain.ErrHoldNotFound
		}
		return nil
	})
}

func (r *HoldRepository) Delete(ctx context.Context, id string) (bool, error) {
	var affected int64
	err := r.store.run(ctx, func(db *gorm.DB) error {
		res := db.Where("id = ?", id).Delete(&holdModel{})
		affected = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return false, fmt.Errorf("delete hold %s: %w", id, err)
	}
	return affected > 0, nil
}

// DeleteExpired removes the hold only if it is still expired at now, so a
// hold refreshed after it was listed survives.
func (r *HoldRepository) DeleteExpired(ctx context.Context, id string, now time.Time) (bool, error) {
	var affected int64
	err := r.store.run(ctx, func(db *gorm.DB) error {
		res := db.Where("id = ? AND expires_at <= ?", id, now.UTC()).Delete(&holdModel{})
		affected = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return false, fmt.Errorf("delete expired hold %s: %w", id, err)
	}
	return affected > 0, nil
}

// ListExpired returns up to limit holds whose TTL elapsed, oldest first.
func (r *HoldRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]domain.Hold, error) {
	var rows []holdModel
	err := r.store.run(ctx, func(db *gorm.DB) error {
		q := db.Where("expires_at <= ?", now.UTC()).Order("expires_at ASC")
		if limit > 0 {
			q = q.Limit(limit)
		}
		return q.Find(&rows).Error
	})
	if err != nil {
		return nil, fmt.Errorf("list expired holds: %w", err)
	}
	return toDomainHolds(rows), nil
}

// ListActive returns holds on one space-day that are still active at now.
func (r *HoldRepository) ListActive(ctx context.Context, spaceID int64, date string, now time.Time) ([]domain.Hold, error) {
	var rows []holdModel
	err := r.store.run(ctx, func(db *gorm.DB) error {
		return db.Where("space_id = ? AND date = ? AND expires_at > ?", spaceID, date, now.UTC()).
			Order("slot_index ASC").
			Find(&rows).Error
	})
	if err != nil {
		return nil, fmt.Errorf("list holds for %d:%s: %w", spaceID, date, err)
	}
	return toDomainHolds(rows), nil
}

// ListRange returns every hold, active or not, on an inclusive index range.
func (r *HoldRepository) ListRange(ctx context.Context, spaceID int64, date string, first, last int) ([]domain.Hold, error) {
	var rows []holdModel
	err := r.store.run(ctx, func(db *gorm.DB) error {
		return db.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("space_id = ? AND date = ? AND slot_index BETWEEN ? AND ?", spaceID, date, first, last).
			Order("slot_index ASC").
			Find(&rows).Error
	})
	if err != nil {
		return nil, fmt.Errorf("list holds %d:%s:%d-%d: %w", spaceID, date, first, last, err)
	}
	return toDomainHolds(rows), nil
}

func toDomainHolds(rows []holdModel) []domain.Hold {
	out := make([]domain.Hold, 0, len(rows))
	for _, m := range rows {
		out = append(out, toDomainHold(m))
	}
	return out
}
