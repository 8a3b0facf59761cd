package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Role is a named permission set referenced by user identities.
type Role struct {
	ID          string                               `gorm:"primaryKey;size:36" json:"id"`
	Name        string                               `gorm:"uniqueIndex;size:128;not null" json:"name"`
	Permissions datatypes.JSONType[map[string]bool] `json:"permissions"`
	CreatedAt   time.Time                            `gorm:"not null" json:"createdAt"`
	UpdatedAt   time.Time                            `gorm:"not null" json:"updatedAt"`
}

// BeforeCreate assigns an id to new roles.
func (r *Role) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}
