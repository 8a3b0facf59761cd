package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Floor represents one storey of the building.
type Floor struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	Name      string    `gorm:"uniqueIndex;size:128;not null" json:"name"`
	File      *string   `gorm:"size:512" json:"file"`
	CreatedAt time.Time `gorm:"not null" json:"createdAt"`
	UpdatedAt time.Time `gorm:"not null" json:"updatedAt"`

	// Associations
	Layout *Layout `gorm:"foreignKey:FloorID;constraint:OnDelete:CASCADE" json:"layout"`
	Fans   []Fan   `gorm:"foreignKey:FloorID;constraint:OnDelete:CASCADE" json:"-"`
}

// BeforeCreate assigns an id to new floors.
func (f *Floor) BeforeCreate(tx *gorm.DB) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	return nil
}
