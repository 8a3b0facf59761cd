package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AccessMode is the access declared for a register.
type AccessMode string

const (
	AccessRead      AccessMode = "Read"
	AccessWrite     AccessMode = "Write"
	AccessReadWrite AccessMode = "Read/Write"
)

// Valid reports whether a is one of the known access modes.
func (a AccessMode) Valid() bool {
	switch a {
	case AccessRead, AccessWrite, AccessReadWrite:
		return true
	}
	return false
}

// FanModel is a device template: the controller endpoint, its capacity and
// the register map of the devices behind it.
type FanModel struct {
	ID           string    `gorm:"primaryKey;size:36" json:"id"`
	IPAddress    string    `gorm:"uniqueIndex:idx_fan_model_endpoint;size:64;not null" json:"ipAddress"`
	Port         int       `gorm:"uniqueIndex:idx_fan_model_endpoint;not null" json:"port"`
	TotalDevices int       `gorm:"not null" json:"totalDevices"`
	CreatedAt    time.Time `gorm:"not null" json:"createdAt"`
	UpdatedAt    time.Time `gorm:"not null" json:"updatedAt"`

	Registers []RegisterDefinition `gorm:"foreignKey:FanModelID;constraint:OnDelete:CASCADE" json:"registers"`
}

// BeforeCreate assigns an id to new fan models.
func (m *FanModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

// RegisterDefinition describes one register of a fan model. It is metadata
// only; nothing in this service talks to the device.
type RegisterDefinition struct {
	ID          int64      `gorm:"primaryKey" json:"-"`
	FanModelID  string     `gorm:"index;size:36;not null" json:"-"`
	Position    int        `gorm:"not null" json:"-"`
	Register    int        `gorm:"not null" json:"register"`
	Description string     `gorm:"size:512;not null" json:"description"`
	Access      AccessMode `gorm:"size:16;not null" json:"access"`
	ValueRange  string     `gorm:"size:128;not null" json:"valueRange"`
}
