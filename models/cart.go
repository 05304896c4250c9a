package models

import "time"

// CartItem is a line in a customer's open cart, keyed by the phone number
// the customer orders from.
type CartItem struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	CustomerPhone string    `gorm:"index;not null" json:"customer_phone"`
	ProductID     uint      `json:"product_id"`
	Quantity      int       `json:"quantity"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
