package store

import (
	"context"
	"fmt"

	"github.com/Govind-619/paysync/models"
	"gorm.io/gorm"
)

// OrderStore reads orders. Payment-driven order writes normally happen
// inside PaymentStore.CompareAndSwapStatus so both rows change together.
type OrderStore struct {
	db *gorm.DB
}

func NewOrderStore(db *gorm.DB) *OrderStore {
	return &OrderStore{db: db}
}

func (s *OrderStore) FindByID(ctx context.Context, id uint) (*models.Order, error) {
	var order models.Order
	if err := s.db.WithContext(ctx).First(&order, id).Error; err != nil {
		return nil, translate(err)
	}
	return &order, nil
}

func (s *OrderStore) FindByOrderNumber(ctx context.Context, orderNumber string) (*models.Order, error) {
	var order models.Order
	if err := s.db.WithContext(ctx).Where("order_number = ?", orderNumber).First(&order).Error; err != nil {
		return nil, translate(err)
	}
	return &order, nil
}

// Create inserts an order. Orders are placed upstream; this exists for
// seeding and tests.
func (s *OrderStore) Create(ctx context.Context, order *models.Order) error {
	return translate(s.db.WithContext(ctx).Create(order).Error)
}

// UpdatePaymentState writes the given order fields; nil fields are left
// alone. A status change must follow the order lifecycle, and a paid
// payment status is refused for an order that cannot carry it.
func (s *OrderStore) UpdatePaymentState(ctx context.Context, id uint, status *models.OrderStatus, paymentStatus *models.OrderPaymentStatus) error {
	return translate(updateOrderState(s.db.WithContext(ctx), id, nil, status, paymentStatus))
}

// updateOrderState writes the order only while it is still in status from.
// A nil from reads the current status first. An order that moved in the
// meantime yields ErrConflict.
func updateOrderState(db *gorm.DB, id uint, from, status *models.OrderStatus, paymentStatus *models.OrderPaymentStatus) error {
	updates := map[string]interface{}{}
	if status != nil {
		updates["status"] = *status
	}
	if paymentStatus != nil {
		updates["payment_status"] = *paymentStatus
	}
	if len(updates) == 0 {
		return nil
	}

	if from == nil {
		var order models.Order
		if err := db.Select("status").First(&order, id).Error; err != nil {
			return err
		}
		from = &order.Status
	}

	effective := *from
	if status != nil && *status != *from {
		if !from.CanTransitionTo(*status) {
			return fmt.Errorf("order %d cannot move from %s to %s: %w", id, *from, *status, ErrInvalidState)
		}
		effective = *status
	}
	if paymentStatus != nil && *paymentStatus == models.OrderPaymentPaid && !effective.IsPaidCompatible() {
		return fmt.Errorf("order %d in status %s cannot be paid: %w", id, effective, ErrInvalidState)
	}

	res := db.Model(&models.Order{}).Where("id = ? AND status = ?", id, *from).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("order %d no longer %s: %w", id, *from, ErrConflict)
	}
	return nil
}
