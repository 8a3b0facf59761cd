package store

import (
	"fmt"

	"fanctl-backend/internal/model"
)

// FloorPatch carries the optional fields of a floor update.
type FloorPatch struct {
	Name *string
	File *string
}

// FloorUpdate is the outcome of UpdateFloor. Layout is nil unless a file was set.
type FloorUpdate struct {
	Floor         model.Floor
	Layout        *model.Layout
	LayoutCreated bool
}

// FloorDeletion reports what a cascading floor delete removed.
type FloorDeletion struct {
	Floor         model.Floor
	DeletedFans   int64
	DeletedLayout bool
}

// FanKey identifies a fan by its model and the device id inside that model.
type FanKey struct {
	FanModelID string
	DeviceID   int64
}

// FanFilter narrows ListFans. Empty fields do not filter.
type FanFilter struct {
	FloorID    string
	FanModelID string
}

// SpeedChange is the committed result of a speed write.
type SpeedChange struct {
	Fan      model.Fan
	Previous model.FanStatus
}

// StatusChanged reports whether the write flipped the fan between ON and OFF.
func (c SpeedChange) StatusChanged() bool {
	return c.Previous != c.Fan.Status
}

// RolePatch carries the optional fields of a role update.
type RolePatch struct {
	Name        *string
	Permissions map[string]bool
}

// CapacityError reports a fan model whose totalDevices would be exceeded.
type CapacityError struct {
	FanModelID string `json:"modelId"`
	Allowed    int    `json:"allowed"`
	Received   int    `json:"received"`
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("%s: model %s allows %d devices, got %d", ErrCapacityExceeded, e.FanModelID, e.Allowed, e.Received)
}

// Is lets errors.Is(err, ErrCapacityExceeded) match.
func (e *CapacityError) Is(target error) bool {
	return target == ErrCapacityExceeded
}
