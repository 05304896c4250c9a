package models

import (
	"time"

	"gorm.io/datatypes"
)

type WebhookEventStatus string

const (
	WebhookEventReceived WebhookEventStatus = "received"
	WebhookEventHandled  WebhookEventStatus = "handled"
	WebhookEventIgnored  WebhookEventStatus = "ignored"
	WebhookEventRejected WebhookEventStatus = "rejected"
	WebhookEventFailed   WebhookEventStatus = "failed"
)

// WebhookEvent is the audit trail of every delivery received from the gateway.
type WebhookEvent struct {
	ID             uint               `gorm:"primaryKey" json:"id"`
	EventID        string             `gorm:"type:varchar(128);index" json:"event_id"`
	Type           string             `gorm:"type:varchar(64);not null" json:"type"`
	GatewayOrderID string             `gorm:"type:varchar(128);index" json:"gateway_order_id"`
	Payload        datatypes.JSON     `json:"payload"`
	Status         WebhookEventStatus `gorm:"type:varchar(16);not null" json:"status"`
	Error          string             `json:"error,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}
