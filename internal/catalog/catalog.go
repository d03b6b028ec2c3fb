// Package catalog loads the space catalog from a YAML file into the spaces
// table. The catalog itself is owned by another service; this is how local
// and staging environments get a copy of it.
package catalog

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"coworking/internal/domain"
	"coworking/internal/pkg/validator"
	"coworking/internal/slotgrid"
)

type File struct {
	Spaces []SpaceEntry `yaml:"spaces" validate:"required,min=1,dive"`
}

type SpaceEntry struct {
	ID             int64  `yaml:"id" validate:"required,gt=0"`
	LocationID     int64  `yaml:"location_id" validate:"required,gt=0"`
	Name           string `yaml:"name" validate:"required,max=255"`
	Type           string `yaml:"type" validate:"required,oneof=desk office meeting_room"`
	Capacity       int    `yaml:"capacity" validate:"gte=1"`
	Open           string `yaml:"open" validate:"required,hhmm"`
	Close          string `yaml:"close" validate:"required,hhmm"`
	SlotMinutes    int    `yaml:"slot_minutes" validate:"omitempty,gte=15,lte=240"`
	ClosedWeekdays []int  `yaml:"closed_weekdays" validate:"dive,gte=0,lte=6"`
	Inactive       bool   `yaml:"inactive"`
}

type SpaceWriter interface {
	Upsert(ctx context.Context, s *domain.Space) error
}

// Parse decodes and validates a catalog. Unknown keys are rejected so typos
// in opening hours don't silently fall back to defaults.
func Parse(r io.Reader, loc *time.Location) ([]domain.Space, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if errs := validator.Validate(f); errs != nil {
		return nil, fmt.Errorf("invalid catalog: %s", describe(errs))
	}

	seen := make(map[int64]bool, len(f.Spaces))
	out := make([]domain.Space, 0, len(f.Spaces))
	for _, e := range f.Spaces {
		if seen[e.ID] {
			return nil, fmt.Errorf("invalid catalog: duplicate space id %d", e.ID)
		}
		seen[e.ID] = true

		s := e.toDomain()
		if _, err := slotgrid.FromSpace(s, loc); err != nil {
			return nil, fmt.Errorf("space %d (%s): %w", e.ID, e.Name, err)
		}
		out = append(out, s)
	}
	return out, nil
}

// Seed upserts every space and returns how many were written.
func Seed(ctx context.Context, w SpaceWriter, spaces []domain.Space) (int, error) {
	for i := range spaces {
		if err := w.Upsert(ctx, &spaces[i]); err != nil {
			return i, err
		}
	}
	return len(spaces), nil
}

func (e SpaceEntry) toDomain() domain.Space {
	slot := e.SlotMinutes
	if slot == 0 {
		slot = 60
	}
	return domain.Space{
		ID:             e.ID,
		LocationID:     e.LocationID,
		Name:           e.Name,
		Type:           domain.SpaceType(e.Type),
		Capacity:       e.Capacity,
		OpenTime:       e.Open,
		CloseTime:      e.Close,
		SlotMinutes:    slot,
		ClosedWeekdays: e.ClosedWeekdays,
		IsActive:       !e.Inactive,
	}
}

func describe(errs map[string]string) string {
	parts := make([]string, 0, len(errs))
	for field, tag := range errs {
		parts = append(parts, field+" ("+tag+")")
	}
	sort.Strings(parts)
	return strings.Join(parts, ", ")
}
