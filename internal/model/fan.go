package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// FanStatus is the on/off state of a fan, always derived from its speed.
type FanStatus string

const (
	FanOn  FanStatus = "ON"
	FanOff FanStatus = "OFF"
)

// StatusForRPM derives the status for a speed: ON iff rpm > 0.
func StatusForRPM(rpm int) FanStatus {
	if rpm > 0 {
		return FanOn
	}
	return FanOff
}

// Fan is one physical fan installed on a floor.
type Fan struct {
	ID         string    `gorm:"primaryKey;size:36" json:"id"`
	FloorID    string    `gorm:"index;size:36;not null" json:"floorId"`
	FanModelID string    `gorm:"uniqueIndex:idx_fan_model_device;size:36;not null" json:"fanModelId"`
	DeviceID   int64     `gorm:"uniqueIndex:idx_fan_model_device;not null" json:"deviceId"`
	Name       string    `gorm:"size:256;not null" json:"name"`
	RPM        int       `gorm:"not null;default:0" json:"rpm"`
	Status     FanStatus `gorm:"size:3;not null;default:OFF" json:"status"`
	CreatedAt  time.Time `gorm:"not null" json:"createdAt"`
	UpdatedAt  time.Time `gorm:"not null" json:"updatedAt"`

	// Associations
	Floor    *Floor    `json:"floor,omitempty"`
	FanModel *FanModel `json:"fanModel,omitempty"`
}

// BeforeCreate assigns an id to new fans and derives their status.
func (f *Fan) BeforeCreate(tx *gorm.DB) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	f.Status = StatusForRPM(f.RPM)
	return nil
}
