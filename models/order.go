package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the fulfilment state of an order
type OrderStatus string

// Order status constants
const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusPreparing OrderStatus = "preparing"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// OrderPaymentStatus is the payment state as seen from the order
type OrderPaymentStatus string

// Order payment status constants
const (
	OrderPaymentPending  OrderPaymentStatus = "pending"
	OrderPaymentPaid     OrderPaymentStatus = "paid"
	OrderPaymentRefunded OrderPaymentStatus = "refunded"
	OrderPaymentFailed   OrderPaymentStatus = "failed"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:   {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed: {OrderStatusPreparing, OrderStatusShipped, OrderStatusCancelled},
	OrderStatusPreparing: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:   {OrderStatusDelivered},
}

// CanTransitionTo reports whether the order may move from s to next.
// Delivered and cancelled have no outgoing edges.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsPaidCompatible reports whether an order in this status may carry
// payment status paid.
func (s OrderStatus) IsPaidCompatible() bool {
	switch s {
	case OrderStatusConfirmed, OrderStatusPreparing, OrderStatusShipped, OrderStatusDelivered:
		return true
	}
	return false
}

type Order struct {
	ID            uint               `gorm:"primaryKey" json:"id"`
	OrderNumber   string             `gorm:"uniqueIndex;not null" json:"order_number"`
	CustomerID    uint               `json:"customer_id"`
	CustomerName  string             `json:"customer_name"`
	CustomerPhone string             `gorm:"index" json:"customer_phone"`
	CustomerEmail string             `json:"customer_email"`
	TotalAmount   decimal.Decimal    `gorm:"type:decimal(12,2);not null" json:"total_amount"`
	Status        OrderStatus        `gorm:"type:varchar(20);not null;default:'pending'" json:"status"`
	PaymentStatus OrderPaymentStatus `gorm:"type:varchar(20);not null;default:'pending'" json:"payment_status"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}
