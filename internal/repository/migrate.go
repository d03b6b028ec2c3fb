package repository

import (
	"fmt"

	"gorm.io/gorm"
)

// Migrate creates or updates the tables the reservation core owns, plus
// the catalog's spaces table used in development and tests.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&spaceModel{}, &reservationModel{}, &holdModel{}); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
