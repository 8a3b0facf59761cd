package store

import (
	"context"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"fanctl-backend/internal/model"
)

// CreateFloor inserts a floor and, when it carries a file, its layout.
func (s *gormStore) CreateFloor(ctx context.Context, floor *model.Floor) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.Floor{}).Where("name = ?", floor.Name).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrDuplicate
		}

		if err := tx.Omit("Layout", "Fans").Create(floor).Error; err != nil {
			return translate(err)
		}

		if floor.File != nil {
			layout := &model.Layout{FloorID: floor.ID, File: floor.File}
			if err := tx.Create(layout).Error; err != nil {
				return fmt.Errorf("failed to create layout for floor %s: %w", floor.ID, err)
			}
			floor.Layout = layout
		}
		return nil
	})
}

// ListFloors returns every floor with its layout, if any.
func (s *gormStore) ListFloors(ctx context.Context) ([]model.Floor, error) {
	var floors []model.Floor
	if err := s.db.WithContext(ctx).Preload("Layout").Order("name").Find(&floors).Error; err != nil {
		return nil, err
	}
	return floors, nil
}

// GetFloor returns one floor with its layout.
func (s *gormStore) GetFloor(ctx context.Context, floorID string) (*model.Floor, error) {
	var floor model.Floor
	if err := s.db.WithContext(ctx).Preload("Layout").First(&floor, "id = ?", floorID).Error; err != nil {
		return nil, translate(err)
	}
	return &floor, nil
}

// FloorExists reports whether a floor with the id is persisted.
func (s *gormStore) FloorExists(ctx context.Context, floorID string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&model.Floor{}).Where("id = ?", floorID).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// UpdateFloor renames a floor and/or points it at a new file. Setting a
// file creates the layout when the floor has none yet.
func (s *gormStore) UpdateFloor(ctx context.Context, floorID string, patch FloorPatch) (*FloorUpdate, error) {
	var result FloorUpdate
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var floor model.Floor
		if err := tx.First(&floor, "id = ?", floorID).Error; err != nil {
			return translate(err)
		}

		if patch.Name != nil {
			var count int64
			if err := tx.Model(&model.Floor{}).
				Where("name = ? AND id <> ?", *patch.Name, floorID).
				Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				return ErrDuplicate
			}
			floor.Name = *patch.Name
		}
		if patch.File != nil {
			floor.File = patch.File
		}
		if err := tx.Omit("Layout", "Fans").Save(&floor).Error; err != nil {
			return translate(err)
		}
		result.Floor = floor

		if patch.File == nil {
			return nil
		}
		layout, created, err := findOrNewLayout(tx, floorID)
		if err != nil {
			return err
		}
		layout.File = patch.File
		if err := tx.Save(layout).Error; err != nil {
			return fmt.Errorf("failed to save layout for floor %s: %w", floorID, err)
		}
		result.Layout = layout
		result.LayoutCreated = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// UpsertLayoutMeta replaces the layout metadata of a floor, creating the
// layout first when the floor has none. The bool reports creation.
func (s *gormStore) UpsertLayoutMeta(ctx context.Context, floorID string, meta datatypes.JSON) (*model.Layout, bool, error) {
	var (
		layout  *model.Layout
		created bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.Floor{}).Where("id = ?", floorID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrNotFound
		}

		var err error
		layout, created, err = findOrNewLayout(tx, floorID)
		if err != nil {
			return err
		}
		layout.Meta = meta
		if created {
			return tx.Create(layout).Error
		}
		return tx.Save(layout).Error
	})
	if err != nil {
		return nil, false, err
	}
	return layout, created, nil
}

// findOrNewLayout reads the floor's layout, or builds an unsaved one.
func findOrNewLayout(tx *gorm.DB, floorID string) (*model.Layout, bool, error) {
	var layouts []model.Layout
	if err := tx.Where("floor_id = ?", floorID).Limit(1).Find(&layouts).Error; err != nil {
		return nil, false, err
	}
	if len(layouts) == 0 {
		return &model.Layout{FloorID: floorID}, true, nil
	}
	return &layouts[0], false, nil
}

// DeleteFloor removes a floor together with its fans, its layout and its
// subscription links in one transaction.
func (s *gormStore) DeleteFloor(ctx context.Context, floorID string) (*FloorDeletion, error) {
	var result FloorDeletion
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&result.Floor, "id = ?", floorID).Error; err != nil {
			return translate(err)
		}

		fans := tx.Where("floor_id = ?", floorID).Delete(&model.Fan{})
		if fans.Error != nil {
			return fmt.Errorf("failed to delete fans of floor %s: %w", floorID, fans.Error)
		}
		result.DeletedFans = fans.RowsAffected

		layouts := tx.Where("floor_id = ?", floorID).Delete(&model.Layout{})
		if layouts.Error != nil {
			return fmt.Errorf("failed to delete layout of floor %s: %w", floorID, layouts.Error)
		}
		result.DeletedLayout = layouts.RowsAffected > 0

		if err := tx.Exec("DELETE FROM subscription_floor_mapping WHERE floor_id = ?", floorID).Error; err != nil {
			return fmt.Errorf("failed to unlink subscriptions of floor %s: %w", floorID, err)
		}

		return tx.Delete(&model.Floor{ID: floorID}).Error
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}
