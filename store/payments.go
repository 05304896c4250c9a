package store

import (
	"context"
	"time"

	"github.com/Govind-619/paysync/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// PaymentStore reads and writes payment rows. Status changes go through
// CompareAndSwapStatus only.
type PaymentStore struct {
	db *gorm.DB
}

func NewPaymentStore(db *gorm.DB) *PaymentStore {
	return &PaymentStore{db: db}
}

func (s *PaymentStore) FindByID(ctx context.Context, id uint) (*models.Payment, error) {
	var payment models.Payment
	if err := s.db.WithContext(ctx).First(&payment, id).Error; err != nil {
		return nil, translate(err)
	}
	return &payment, nil
}

func (s *PaymentStore) FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*models.Payment, error) {
	var payment models.Payment
	err := s.db.WithContext(ctx).Where("gateway_order_id = ?", gatewayOrderID).First(&payment).Error
	if err != nil {
		return nil, translate(err)
	}
	return &payment, nil
}

func (s *PaymentStore) FindByTransactionID(ctx context.Context, transactionID string) (*models.Payment, error) {
	var payment models.Payment
	err := s.db.WithContext(ctx).Where("transaction_id = ?", transactionID).First(&payment).Error
	if err != nil {
		return nil, translate(err)
	}
	return &payment, nil
}

// FindByOrderID returns every payment of an order, oldest first.
func (s *PaymentStore) FindByOrderID(ctx context.Context, orderID uint) ([]models.Payment, error) {
	var payments []models.Payment
	err := s.db.WithContext(ctx).Where("order_id = ?", orderID).Order("id ASC").Find(&payments).Error
	return payments, translate(err)
}

func (s *PaymentStore) FindPendingByOrderID(ctx context.Context, orderID uint) (*models.Payment, error) {
	var payment models.Payment
	err := s.db.WithContext(ctx).
		Where("order_id = ? AND status = ?", orderID, models.PaymentStatusPending).
		First(&payment).Error
	if err != nil {
		return nil, translate(err)
	}
	return &payment, nil
}

func (s *PaymentStore) ListPending(ctx context.Context) ([]models.Payment, error) {
	var payments []models.Payment
	err := s.db.WithContext(ctx).
		Where("status = ?", models.PaymentStatusPending).
		Order("id ASC").
		Find(&payments).Error
	return payments, translate(err)
}

// Create inserts a new payment. ErrDuplicate means another pending payment
// for the order, or the same gateway order, already exists.
func (s *PaymentStore) Create(ctx context.Context, payment *models.Payment) error {
	if payment.Version == 0 {
		payment.Version = 1
	}
	return translate(s.db.WithContext(ctx).Create(payment).Error)
}

// AppendGatewayResponse records the last raw gateway payload. It does not
// touch status or version.
func (s *PaymentStore) AppendGatewayResponse(ctx context.Context, paymentID uint, raw []byte) error {
	if len(raw) == 0 {
		return nil
	}
	return translate(s.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ?", paymentID).
		Update("gateway_response", datatypes.JSON(raw)).Error)
}

// AttachTransactionID sets the charge id once; later calls are no-ops.
func (s *PaymentStore) AttachTransactionID(ctx context.Context, paymentID uint, transactionID string) error {
	return translate(s.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ? AND transaction_id IS NULL", paymentID).
		Update("transaction_id", transactionID).Error)
}

func (s *PaymentStore) MarkNeedsReview(ctx context.Context, paymentID uint, reason string) error {
	return translate(s.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ?", paymentID).
		Updates(map[string]interface{}{"needs_review": true, "review_reason": reason}).Error)
}

// Transition is one status change of a payment and the order write that
// goes with it.
type Transition struct {
	// Payment is the row as it was read; its Status and Version are the
	// compare half of the swap.
	Payment *models.Payment
	Next    models.PaymentStatus
	// OrderFrom is the order status the decision was made against. When set,
	// the order write only lands while the order is still in it.
	OrderFrom          models.OrderStatus
	OrderStatus        *models.OrderStatus
	OrderPaymentStatus *models.OrderPaymentStatus
	NeedsReview        bool
	ReviewReason       string
	Raw                []byte
}

// CompareAndSwapStatus moves the payment to t.Next only if it still has the
// status and version it was read with, and applies the order write in the
// same transaction. A lost race on either row returns ErrConflict and
// changes nothing.
func (s *PaymentStore) CompareAndSwapStatus(ctx context.Context, t Transition) (*models.Payment, error) {
	p := t.Payment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"status":  t.Next,
			"version": gorm.Expr("version + 1"),
		}
		if len(t.Raw) > 0 {
			updates["gateway_response"] = datatypes.JSON(t.Raw)
		}
		if t.Next == models.PaymentStatusCompleted {
			updates["completed_at"] = time.Now()
		}
		if t.NeedsReview {
			updates["needs_review"] = true
			updates["review_reason"] = t.ReviewReason
		}

		res := tx.Model(&models.Payment{}).
			Where("id = ? AND status = ? AND version = ?", p.ID, p.Status, p.Version).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrConflict
		}

		var from *models.OrderStatus
		if t.OrderFrom != "" {
			from = &t.OrderFrom
		}
		return updateOrderState(tx, p.OrderID, from, t.OrderStatus, t.OrderPaymentStatus)
	})
	if err != nil {
		return nil, translate(err)
	}
	return s.FindByID(ctx, p.ID)
}

// ListNeedsReview pages through payments flagged for an operator, newest
// first, and reports how many there are in total.
func (s *PaymentStore) ListNeedsReview(ctx context.Context, limit, offset int) ([]models.Payment, int64, error) {
	var (
		payments []models.Payment
		total    int64
	)
	query := s.db.WithContext(ctx).Model(&models.Payment{}).Where("needs_review = ?", true).Session(&gorm.Session{})
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, translate(err)
	}
	err := query.Order("updated_at DESC, id DESC").Limit(limit).Offset(offset).Find(&payments).Error
	return payments, total, translate(err)
}
