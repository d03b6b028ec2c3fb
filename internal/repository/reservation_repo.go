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

type ReservationRepository struct {
	store *Store
}

func NewReservationRepository(store *Store) *ReservationRepository {
	return &ReservationRepository{store: store}
}

type reservationModel struct {
	ID                 string     `gorm:"column:id;primaryKey;size:36"`
	SpaceID            int64      `gorm:"column:space_id;not null;index:idx_reservations_space_status_start,priority:1"`
	UserID             int64      `gorm:"column:user_id;not null;index"`
	StartAt            time.Time  `gorm:"column:start_at;not null;index:idx_reservations_space_status_start,priority:3"`
	EndAt              time.Time  `gorm:"column:end_at;not null"`
	Status             string     `gorm:"column:status;size:16;not null;index:idx_reservations_space_status_start,priority:2;index:idx_reservations_status_due,priority:1"`
	PaymentDueAt       time.Time  `gorm:"column:payment_due_at;not null;index:idx_reservations_status_due,priority:2"`
	CancellationReason *string    `gorm:"column:cancellation_reason"`
	CreatedAt          time.Time  `gorm:"column:created_at"`
	UpdatedAt          time.Time  `gorm:"column:updated_at"`
	CancelledAt        *time.Time `gorm:"column:cancelled_at"`
}

func (reservationModel) TableName() string { return "reservations" }

func toDomainReservation(m reservationModel) *domain.Reservation {
	var reason string
	if m.CancellationReason != nil {
		reason = *m.CancellationReason
	}
	var cancelledAt *time.Time
	if m.CancelledAt != nil {
		t := m.CancelledAt.UTC()
		cancelledAt = &t
	}

	return &domain.Reservation{
		ID:                 m.ID,
		SpaceID:            m.SpaceID,
		UserID:             m.UserID,
		StartAt:            m.StartAt.UTC(),
		EndAt:              m.EndAt.UTC(),
		Status:             domain.ReservationStatus(m.Status),
		PaymentDueAt:       m.PaymentDueAt.UTC(),
		CancellationReason: reason,
		CreatedAt:          m.CreatedAt.UTC(),
		UpdatedAt:          m.UpdatedAt.UTC(),
		CancelledAt:        cancelledAt,
	}
}

func toReservationModel(r *domain.Reservation) reservationModel {
	var reason *string
	if r.CancellationReason != "" {
		v := r.CancellationReason
		reason = &v
	}

	return reservationModel{
		ID:                 r.ID,
		SpaceID:            r.SpaceID,
		UserID:             r.UserID,
		StartAt:            r.StartAt.UTC(),
		EndAt:              r.EndAt.UTC(),
		Status:             string(r.Status),
		PaymentDueAt:       r.PaymentDueAt.UTC(),
		CancellationReason: reason,
		CreatedAt:          r.CreatedAt.UTC(),
		UpdatedAt:          r.UpdatedAt.UTC(),
		CancelledAt:        r.CancelledAt,
	}
}

func (r *ReservationRepository) Create(ctx context.Context, res *domain.Reservation) error {
	m := toReservationModel(res)
	err := r.store.run(ctx, func(db *gorm.DB) error {
		return db.Create(&m).Error
	})
	if err != nil {
		return fmt.Errorf("create reservation: %w", err)
	}
	*res = *toDomainReservation(m)
	return nil
}

// Get loads a reservation, locking its row inside a transaction.
func (r *ReservationRepository) Get(ctx context.Context, id string) (*domain.Reservation, error) {
	var m reservationModel
	err := r.store.run(ctx, func(db *gorm.DB) error {
		return db.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).Take(&m).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrReservationNotFound
		}
		return nil, fmt.Errorf("get reservation %s: %w", id, err)
	}
	return toDomainReservation(m), nil
}

// Transition moves a reservation from one status to another. It reports
// false when the row was no longer in the expected status.
func (r *ReservationRepository) Transition(ctx context.Context, id string, from, to domain.ReservationStatus, reason string, now time.Time) (bool, error) {
	updates := map[string]any{
		"status":     string(to),
		"updated_at": now.UTC(),
	}
	if to == domain.ReservationCancelled {
		updates["cancelled_at"] = now.UTC()
		if reason != "" {
			updates["cancellation_reason"] = reason
		}
	}

	var affected int64
	err := r.store.run(ctx, func(db *gorm.DB) error {
		res := db.Model(&reservationModel{}).
			Where("id = ? AND status = ?", id, string(from)).
			Updates(updates)
		affected = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return false, fmt.Errorf("update reservation %s to %s: %w", id, to, err)
	}
	return affected > 0, nil
}

// FindOverlapping returns confirmed reservations on the space that
// intersect [start, end).
func (r *ReservationRepository) FindOverlapping(ctx context.Context, spaceID int64, start, end time.Time) ([]domain.Reservation, error) {
	var rows []reservationModel
	err := r.store.run(ctx, func(db *gorm.DB) error {
		return db.Where("space_id = ? AND status = ? AND start_at < ? AND end_at > ?",
			spaceID, string(domain.ReservationConfirmed), end.UTC(), start.UTC()).
			Order("start_at ASC").
			Find(&rows).Error
	})
	if err != nil {
		return nil, fmt.Errorf("find overlapping reservations for space %d: %w", spaceID, err)
	}
	return toDomainReservations(rows), nil
}

// ListStalePending returns pending reservations whose payment window closed.
func (r *ReservationRepository) ListStalePending(ctx context.Context, now time.Time, limit int) ([]domain.Reservation, error) {
	var rows []reservationModel
	err := r.store.run(ctx, func(db *gorm.DB) error {
		q := db.Where("status = ? AND payment_due_at <= ?", string(domain.ReservationPending), now.UTC()).
			Order("payment_due_at ASC")
		if limit > 0 {
			q = q.Limit(limit)
		}
		return q.Find(&rows).Error
	})
	if err != nil {
		return nil, fmt.Errorf("list stale pending reservations: %w", err)
	}
	return toDomainReservations(rows), nil
}

func (r *ReservationRepository) ListByUser(ctx context.Context, userID int64, limit, offset int) ([]domain.Reservation, error) {
	var rows []reservationModel
	err := r.store.run(ctx, func(db *gorm.DB) error {
		return db.Where("user_id = ?", userID).
			Order("start_at DESC").
			Limit(limit).
			Offset(offset).
			Find(&rows).Error
	})
	if err != nil {
		return nil, fmt.Errorf("list reservations for user %d: %w", userID, err)
	}
	return toDomainReservations(rows), nil
}

func toDomainReservations(rows []reservationModel) []domain.Reservation {
	out := make([]domain.Reservation, 0, len(rows))
	for _, m := range rows {
		out = append(out, *toDomainReservation(m))
	}
	return out
}
