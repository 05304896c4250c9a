package store

import (
	"context"

	"github.com/Govind-619/paysync/models"
	"gorm.io/gorm"
)

type WebhookEventStore struct {
	db *gorm.DB
}

func NewWebhookEventStore(db *gorm.DB) *WebhookEventStore {
	return &WebhookEventStore{db: db}
}

func (s *WebhookEventStore) Record(ctx context.Context, event *models.WebhookEvent) error {
	return translate(s.db.WithContext(ctx).Create(event).Error)
}

func (s *WebhookEventStore) MarkStatus(ctx context.Context, id uint, status models.WebhookEventStatus, errMsg string) error {
	return translate(s.db.WithContext(ctx).
		Model(&models.WebhookEvent{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"status": status, "error": errMsg}).Error)
}

func (s *WebhookEventStore) ListByGatewayOrderID(ctx context.Context, gatewayOrderID string) ([]models.WebhookEvent, error) {
	var events []models.WebhookEvent
	err := s.db.WithContext(ctx).Where("gateway_order_id = ?", gatewayOrderID).Order("id ASC").Find(&events).Error
	return events, translate(err)
}

// List pages through the audit trail, newest first. An empty status lists
// every event.
func (s *WebhookEventStore) List(ctx context.Context, status models.WebhookEventStatus, limit, offset int) ([]models.WebhookEvent, int64, error) {
	var (
		events []models.WebhookEvent
		total  int64
	)
	query := s.db.WithContext(ctx).Model(&models.WebhookEvent{})
	if status != "" {
		query = query.Where("status = ?", status)
	}
	query = query.Session(&gorm.Session{})
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, translate(err)
	}
	err := query.Order("id DESC").Limit(limit).Offset(offset).Find(&events).Error
	return events, total, translate(err)
}
