package store

import (
	"context"

	"gorm.io/gorm"

	"fanctl-backend/internal/model"
)

func orderedRegisters(db *gorm.DB) *gorm.DB {
	return db.Order("position")
}

// FindFanModelByEndpoint returns the model declared for an (address, port) pair.
func (s *gormStore) FindFanModelByEndpoint(ctx context.Context, ipAddress string, port int) (*model.FanModel, error) {
	var fanModel model.FanModel
	err := s.db.WithContext(ctx).
		Where("ip_address = ? AND port = ?", ipAddress, port).
		First(&fanModel).Error
	if err != nil {
		return nil, translate(err)
	}
	return &fanModel, nil
}

// CreateFanModel inserts a model together with its register list. A second
// model on the same endpoint fails with ErrDuplicate.
func (s *gormStore) CreateFanModel(ctx context.Context, fanModel *model.FanModel) error {
	for i := range fanModel.Registers {
		fanModel.Registers[i].Position = i
	}
	return translate(s.db.WithContext(ctx).Create(fanModel).Error)
}

// ListFanModels returns every model with its ordered register list.
func (s *gormStore) ListFanModels(ctx context.Context) ([]model.FanModel, error) {
	var fanModels []model.FanModel
	err := s.db.WithContext(ctx).
		Preload("Registers", orderedRegisters).
		Order("created_at").
		Find(&fanModels).Error
	if err != nil {
		return nil, err
	}
	return fanModels, nil
}

// GetFanModel returns one model with its ordered register list.
func (s *gormStore) GetFanModel(ctx context.Context, fanModelID string) (*model.FanModel, error) {
	var fanModel model.FanModel
	err := s.db.WithContext(ctx).
		Preload("Registers", orderedRegisters).
		First(&fanModel, "id = ?", fanModelID).Error
	if err != nil {
		return nil, translate(err)
	}
	return &fanModel, nil
}

// GetFanModels loads the models with the given ids, keyed by id. Missing ids
// are simply absent from the map.
func (s *gormStore) GetFanModels(ctx context.Context, fanModelIDs []string) (map[string]model.FanModel, error) {
	result := make(map[string]model.FanModel, len(fanModelIDs))
	if len(fanModelIDs) == 0 {
		return result, nil
	}

	var fanModels []model.FanModel
	if err := s.db.WithContext(ctx).Where("id IN ?", fanModelIDs).Find(&fanModels).Error; err != nil {
		return nil, err
	}
	for _, m := range fanModels {
		result[m.ID] = m
	}
	return result, nil
}
