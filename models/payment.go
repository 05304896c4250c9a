package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// PaymentStatus is the canonical local state of a gateway order
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
	PaymentStatusExpired   PaymentStatus = "expired"
)

// IsTerminal reports whether s is anything other than pending.
func (s PaymentStatus) IsTerminal() bool {
	return s != PaymentStatusPending
}

// CanTransitionTo encodes the forward-only payment graph:
// pending -> {completed, failed, expired}, completed -> refunded.
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	switch s {
	case PaymentStatusPending:
		return next == PaymentStatusCompleted || next == PaymentStatusFailed || next == PaymentStatusExpired
	case PaymentStatusCompleted:
		return next == PaymentStatusRefunded
	}
	return false
}

type Payment struct {
	ID             uint            `json:"id" gorm:"primaryKey"`
	OrderID        uint            `json:"order_id" gorm:"not null;index;uniqueIndex:idx_payments_order_pending,where:status = 'pending'"`
	Gateway        string          `json:"gateway" gorm:"type:varchar(32);not null"`
	GatewayOrderID string          `json:"gateway_order_id" gorm:"uniqueIndex;not null"`
	TransactionID  *string         `json:"transaction_id,omitempty" gorm:"uniqueIndex"`
	Amount         decimal.Decimal `json:"amount" gorm:"type:decimal(12,2);not null"`
	Currency       string          `json:"currency" gorm:"type:varchar(8)"`
	Status         PaymentStatus   `json:"status" gorm:"type:varchar(20);not null;default:'pending'"`
	CheckoutURL    string          `json:"checkout_url"`
	// GatewayResponse is the last raw payload seen from the gateway. Audit only.
	GatewayResponse datatypes.JSON `json:"gateway_response,omitempty"`
	NeedsReview     bool           `json:"needs_review" gorm:"default:false"`
	ReviewReason    string         `json:"review_reason,omitempty"`
	Version         int            `json:"-" gorm:"not null;default:1"`
	CompletedAt     *time.Time     `json:"completed_at,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}
