package store

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"fanctl-backend/internal/model"
)

// SaveSubscription creates or replaces a push subscription and the set of
// floors it follows. Unknown floor ids are ignored.
func (s *gormStore) SaveSubscription(ctx context.Context, sub *model.PushSubscription, floorIDs []string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "endpoint"}},
			DoUpdates: clause.AssignmentColumns([]string{"p256dh", "auth"}),
		}).Omit("Floors").Create(sub).Error; err != nil {
			return err
		}

		floors := []*model.Floor{}
		if len(floorIDs) > 0 {
			if err := tx.Where("id IN ?", floorIDs).Find(&floors).Error; err != nil {
				return err
			}
		}

		return tx.Model(sub).Association("Floors").Replace(floors)
	})
}

// GetSubscription returns a subscription with the floors it follows.
func (s *gormStore) GetSubscription(ctx context.Context, endpoint string) (*model.PushSubscription, error) {
	var sub model.PushSubscription
	if err := s.db.WithContext(ctx).Preload("Floors").First(&sub, "endpoint = ?", endpoint).Error; err != nil {
		return nil, translate(err)
	}
	return &sub, nil
}

// DeleteSubscription removes a subscription and its floor links.
func (s *gormStore) DeleteSubscription(ctx context.Context, endpoint string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM subscription_floor_mapping WHERE push_subscription_endpoint = ?", endpoint).Error; err != nil {
			return err
		}
		return tx.Delete(&model.PushSubscription{Endpoint: endpoint}).Error
	})
}

// SubscriptionsForFloor returns every subscription following the floor.
func (s *gormStore) SubscriptionsForFloor(ctx context.Context, floorID string) ([]model.PushSubscription, error) {
	var subs []model.PushSubscription
	err := s.db.WithContext(ctx).
		Joins("JOIN subscription_floor_mapping sfm ON sfm.push_subscription_endpoint = push_subscriptions.endpoint").
		Where("sfm.floor_id = ?", floorID).
		Find(&subs).Error
	if err != nil {
		return nil, err
	}
	return subs, nil
}
