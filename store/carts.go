package store

import (
	"context"

	"github.com/Govind-619/paysync/models"
	"gorm.io/gorm"
)

type CartStore struct {
	db *gorm.DB
}

func NewCartStore(db *gorm.DB) *CartStore {
	return &CartStore{db: db}
}

func (s *CartStore) Add(ctx context.Context, item *models.CartItem) error {
	return translate(s.db.WithContext(ctx).Create(item).Error)
}

// ClearByPhone deletes every cart line of a customer and reports how many went.
func (s *CartStore) ClearByPhone(ctx context.Context, phone string) (int64, error) {
	res := s.db.WithContext(ctx).Where("customer_phone = ?", phone).Delete(&models.CartItem{})
	return res.RowsAffected, translate(res.Error)
}

func (s *CartStore) CountByPhone(ctx context.Context, phone string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.CartItem{}).Where("customer_phone = ?", phone).Count(&count).Error
	return count, translate(err)
}
