package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"fanctl-backend/internal/model"
)

const insertBatchSize = 200

// ExistingFans reports which of the keys are already persisted.
func (s *gormStore) ExistingFans(ctx context.Context, keys []FanKey) (map[FanKey]bool, error) {
	existing := make(map[FanKey]bool)
	if len(keys) == 0 {
		return existing, nil
	}

	modelIDs := make([]string, 0, len(keys))
	deviceIDs := make([]int64, 0, len(keys))
	wanted := make(map[FanKey]bool, len(keys))
	for _, k := range keys {
		if !wanted[k] {
			modelIDs = append(modelIDs, k.FanModelID)
			deviceIDs = append(deviceIDs, k.DeviceID)
			wanted[k] = true
		}
	}

	var rows []FanKey
	err := s.db.WithContext(ctx).
		Model(&model.Fan{}).
		Select("fan_model_id, device_id").
		Where("fan_model_id IN ? AND device_id IN ?", modelIDs, deviceIDs).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		if wanted[r] {
			existing[r] = true
		}
	}
	return existing, nil
}

// InsertFans commits a set of fans all-or-nothing. For every model involved
// the persisted count plus the new fans must stay within totalDevices; the
// check and the insert run under a per-model lock so concurrent batches
// cannot jointly overshoot.
func (s *gormStore) InsertFans(ctx context.Context, fans []model.Fan) error {
	if len(fans) == 0 {
		return nil
	}

	perModel := make(map[string]int)
	modelIDs := make([]string, 0)
	for _, f := range fans {
		if _, seen := perModel[f.FanModelID]; !seen {
			modelIDs = append(modelIDs, f.FanModelID)
		}
		perModel[f.FanModelID]++
	}

	unlock := s.modelLocks.lock(modelIDs)
	defer unlock()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, modelID := range modelIDs {
			var fanModel model.FanModel
			if err := tx.First(&fanModel, "id = ?", modelID).Error; err != nil {
				return fmt.Errorf("fan model %s: %w", modelID, translate(err))
			}

			var persisted int64
			if err := tx.Model(&model.Fan{}).Where("fan_model_id = ?", modelID).Count(&persisted).Error; err != nil {
				return err
			}
			received := int(persisted) + perModel[modelID]
			if received > fanModel.TotalDevices {
				return &CapacityError{FanModelID: modelID, Allowed: fanModel.TotalDevices, Received: received}
			}
		}

		if err := tx.Omit("Floor", "FanModel").CreateInBatches(&fans, insertBatchSize).Error; err != nil {
			return translate(err)
		}
		return nil
	})
}

// FanNameTaken reports whether a floor already has a fan with the name.
func (s *gormStore) FanNameTaken(ctx context.Context, floorID, name string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&model.Fan{}).
		Where("floor_id = ? AND name = ?", floorID, name).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListFans returns fans joined with their floor and model.
func (s *gormStore) ListFans(ctx context.Context, filter FanFilter) ([]model.Fan, error) {
	q := s.db.WithContext(ctx).Preload("Floor").Preload("FanModel")
	if filter.FloorID != "" {
		q = q.Where("floor_id = ?", filter.FloorID)
	}
	if filter.FanModelID != "" {
		q = q.Where("fan_model_id = ?", filter.FanModelID)
	}

	var fans []model.Fan
	if err := q.Order("floor_id, fan_model_id, device_id").Find(&fans).Error; err != nil {
		return nil, err
	}
	return fans, nil
}

// GetFan returns one fan of a floor with its floor and model.
func (s *gormStore) GetFan(ctx context.Context, floorID, fanID string) (*model.Fan, error) {
	var fan model.Fan
	err := s.db.WithContext(ctx).
		Preload("Floor").
		Preload("FanModel.Registers", orderedRegisters).
		Where("id = ? AND floor_id = ?", fanID, floorID).
		First(&fan).Error
	if err != nil {
		return nil, translate(err)
	}
	return &fan, nil
}

// SetFanSpeed writes a speed and its derived status, keyed by fan and floor.
// A fan that exists on another floor is reported as ErrNotFound.
func (s *gormStore) SetFanSpeed(ctx context.Context, floorID, fanID string, rpm int) (*SpeedChange, error) {
	var change SpeedChange
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var fan model.Fan
		if err := tx.Where("id = ? AND floor_id = ?", fanID, floorID).First(&fan).Error; err != nil {
			return translate(err)
		}
		change.Previous = fan.Status

		status := model.StatusForRPM(rpm)
		now := time.Now().UTC()
		res := tx.Model(&model.Fan{}).
			Where("id = ? AND floor_id = ?", fanID, floorID).
			Updates(map[string]any{"rpm": rpm, "status": status, "updated_at": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}

		fan.RPM = rpm
		fan.Status = status
		fan.UpdatedAt = now
		change.Fan = fan
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &change, nil
}
