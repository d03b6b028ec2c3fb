package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"coworking/internal/domain"
	"coworking/internal/slotgrid"
)

// SpaceRepository reads the catalog's spaces and their opening hours.
type SpaceRepository struct {
	store *Store
	loc   *time.Location
}

func NewSpaceRepository(store *Store, loc *time.Location) *SpaceRepository {
	if loc == nil {
		loc = time.UTC
	}
	return &SpaceRepository{store: store, loc: loc}
}

type spaceModel struct {
	ID             int64     `gorm:"column:id;primaryKey;autoIncrement"`
	LocationID     int64     `gorm:"column:location_id;index"`
	Name           string    `gorm:"column:name;not null"`
	SpaceType      string    `gorm:"column:space_type;size:32;not null"`
	Capacity       int       `gorm:"column:capacity"`
	OpenTime       string    `gorm:"column:open_time;size:5;not null"`
	CloseTime      string    `gorm:"column:close_time;size:5;not null"`
	SlotMinutes    int       `gorm:"column:slot_minutes;not null"`
	ClosedWeekdays []int     `gorm:"column:closed_weekdays;serializer:json"`
	IsActive       bool      `gorm:"column:is_active;not null"`
	CreatedAt      time.Time `gorm:"column:created_at"`
	UpdatedAt      time.Time `gorm:"column:updated_at"`
}

func (spaceModel) TableName() string { return "spaces" }

func toDomainSpace(m spaceModel) *domain.Space {
	return &domain.Space{
		ID:             m.ID,
		LocationID:     m.LocationID,
		Name:           m.Name,
		Type:           domain.SpaceType(m.SpaceType),
		Capacity:       m.Capacity,
		OpenTime:       m.OpenTime,
		CloseTime:      m.CloseTime,
		SlotMinutes:    m.SlotMinutes,
		ClosedWeekdays: m.ClosedWeekdays,
		IsActive:       m.IsActive,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

func toSpaceModel(s *domain.Space) spaceModel {
	minutes := s.SlotMinutes
	if minutes <= 0 {
		minutes = 60
	}
	return spaceModel{
		ID:             s.ID,
		LocationID:     s.LocationID,
		Name:           s.Name,
		SpaceType:      string(s.Type),
		Capacity:       s.Capacity,
		OpenTime:       s.OpenTime,
		CloseTime:      s.CloseTime,
		SlotMinutes:    minutes,
		ClosedWeekdays: s.ClosedWeekdays,
		IsActive:       s.IsActive,
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
	}
}

// GetByID returns an active space.
func (r *SpaceRepository) GetByID(ctx context.Context, id int64) (*domain.Space, error) {
	var m spaceModel
	err := r.store.run(ctx, func(db *gorm.DB) error {
		return db.Where("id = ? AND is_active = ?", id, true).Take(&m).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrSpaceNotFound
		}
		return nil, fmt.Errorf("get space %d: %w", id, err)
	}
	return toDomainSpace(m), nil
}

// Grid returns the slot grid of an active space.
func (r *SpaceRepository) Grid(ctx context.Context, id int64) (slotgrid.Grid, error) {
	s, err := r.GetByID(ctx, id)
	if err != nil {
		return slotgrid.Grid{}, err
	}
	g, err := slotgrid.FromSpace(*s, r.loc)
	if err != nil {
		return slotgrid.Grid{}, fmt.Errorf("space %d opening hours: %w", id, err)
	}
	return g, nil
}

func (r *SpaceRepository) List(ctx context.Context) ([]domain.Space, error) {
	var rows []spaceModel
	err := r.store.run(ctx, func(db *gorm.DB) error {
		return db.Order("id ASC").Find(&rows).Error
	})
	if err != nil {
		return nil, fmt.Errorf("list spaces: %w", err)
	}
	out := make([]domain.Space, 0, len(rows))
	for _, m := range rows {
		out = append(out, *toDomainSpace(m))
	}
	return out, nil
}

// Upsert inserts or overwrites a space by id. Used by the catalog seeder.
func (r *SpaceRepository) Upsert(ctx context.Context, s *domain.Space) error {
	m := toSpaceModel(s)
	err := r.store.run(ctx, func(db *gorm.DB) error {
		return db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).Create(&m).Error
	})
	if err != nil {
		return fmt.Errorf("upsert space %q: %w", s.Name, err)
	}
	*s = *toDomainSpace(m)
	return nil
}
