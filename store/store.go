// Package store persists orders, payments and their side tables with gorm.
package store

import (
	"errors"
	"strings"

	"github.com/Govind-619/paysync/models"
	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when a looked-up row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a compare-and-swap lost a race.
	ErrConflict = errors.New("concurrent update conflict")
	// ErrDuplicate is returned when a unique constraint rejected an insert.
	ErrDuplicate = errors.New("duplicate record")
	// ErrInvalidState is returned for a write that would break an order invariant.
	ErrInvalidState = errors.New("invalid state")
)

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	case strings.Contains(strings.ToLower(err.Error()), "unique"):
		return ErrDuplicate
	}
	return err
}

// Migrate creates or updates every table the service owns.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Order{},
		&models.Payment{},
		&models.CartItem{},
		&models.WebhookEvent{},
	)
}
