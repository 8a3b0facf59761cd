package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Layout holds the drawing metadata of a floor. A floor has at most one.
type Layout struct {
	ID        string         `gorm:"primaryKey;size:36" json:"id"`
	FloorID   string         `gorm:"uniqueIndex;size:36;not null" json:"floorId"`
	File      *string        `gorm:"size:512" json:"file"`
	Meta      datatypes.JSON `json:"meta"`
	CreatedAt time.Time      `gorm:"not null" json:"createdAt"`
	UpdatedAt time.Time      `gorm:"not null" json:"updatedAt"`
}

// BeforeCreate assigns an id and an empty metadata document.
func (l *Layout) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if len(l.Meta) == 0 {
		l.Meta = datatypes.JSON("{}")
	}
	return nil
}
