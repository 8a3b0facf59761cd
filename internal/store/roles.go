package store

import (
	"context"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"fanctl-backend/internal/model"
)

// ListRoles returns every role.
func (s *gormStore) ListRoles(ctx context.Context) ([]model.Role, error) {
	var roles []model.Role
	if err := s.db.WithContext(ctx).Order("name").Find(&roles).Error; err != nil {
		return nil, err
	}
	return roles, nil
}

// GetRole returns one role.
func (s *gormStore) GetRole(ctx context.Context, roleID string) (*model.Role, error) {
	var role model.Role
	if err := s.db.WithContext(ctx).First(&role, "id = ?", roleID).Error; err != nil {
		return nil, translate(err)
	}
	return &role, nil
}

// CreateRole inserts a role. Names are unique regardless of case.
func (s *gormStore) CreateRole(ctx context.Context, role *model.Role) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		taken, err := roleNameTaken(tx, role.Name, "")
		if err != nil {
			return err
		}
		if taken {
			return ErrDuplicate
		}
		return translate(tx.Create(role).Error)
	})
}

// UpdateRole applies a patch to a role.
func (s *gormStore) UpdateRole(ctx context.Context, roleID string, patch RolePatch) (*model.Role, error) {
	var role model.Role
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&role, "id = ?", roleID).Error; err != nil {
			return translate(err)
		}
		if patch.Name != nil {
			taken, err := roleNameTaken(tx, *patch.Name, roleID)
			if err != nil {
				return err
			}
			if taken {
				return ErrDuplicate
			}
			role.Name = *patch.Name
		}
		if patch.Permissions != nil {
			role.Permissions = datatypes.NewJSONType(patch.Permissions)
		}
		return translate(tx.Save(&role).Error)
	})
	if err != nil {
		return nil, err
	}
	return &role, nil
}

// DeleteRole removes a role and returns what was deleted.
func (s *gormStore) DeleteRole(ctx context.Context, roleID string) (*model.Role, error) {
	var role model.Role
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&role, "id = ?", roleID).Error; err != nil {
			return translate(err)
		}
		return tx.Delete(&model.Role{ID: roleID}).Error
	})
	if err != nil {
		return nil, err
	}
	return &role, nil
}

func roleNameTaken(tx *gorm.DB, name, exceptID string) (bool, error) {
	q := tx.Model(&model.Role{}).Where("LOWER(name) = LOWER(?)", name)
	if exceptID != "" {
		q = q.Where("id <> ?", exceptID)
	}
	var count int64
	if err := q.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
