// Package fanctl applies speed changes to fans.
package fanctl

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"fanctl-backend/internal/model"
	"fanctl-backend/internal/store"
)

var (
	// ErrNotFound is returned when the fan does not exist on the floor.
	ErrNotFound = errors.New("fan not found")
	// ErrValidation is returned for a missing or negative rpm.
	ErrValidation = errors.New("invalid fan state")
	// ErrFloorNotFound short-circuits a bulk change for a missing floor.
	ErrFloorNotFound = errors.New("floor not found")
)

// StatusNotifier is told about every committed change that flipped a fan
// between ON and OFF.
type StatusNotifier interface {
	NotifyStatusChange(fan model.Fan)
}

// Recorder receives every committed speed change.
type Recorder interface {
	RecordSpeed(fan model.Fan)
}

// RecorderFunc adapts a plain function to Recorder.
type RecorderFunc func(fan model.Fan)

// RecordSpeed calls f.
func (f RecorderFunc) RecordSpeed(fan model.Fan) { f(fan) }

// Change is one item of a bulk request. RPM is a pointer so that a missing
// value can be told apart from zero.
type Change struct {
	FanID string `json:"fanId"`
	RPM   *int   `json:"rpm"`
}

// ItemResult is the outcome of one item of a bulk request.
type ItemResult struct {
	FanID   string     `json:"fanId"`
	Success bool       `json:"success"`
	Fan     *model.Fan `json:"fan,omitempty"`
	Error   string     `json:"error,omitempty"`
}

// Summary aggregates a bulk request in input order.
type Summary struct {
	FloorID      string       `json:"floorId"`
	Total        int          `json:"total"`
	SuccessCount int          `json:"successCount"`
	ErrorCount   int          `json:"errorCount"`
	Results      []ItemResult `json:"results"`
}

// Controller is the single write path for fan speed.
type Controller struct {
	store     store.Store
	notifier  StatusNotifier
	recorders []Recorder
}

// Option configures a Controller.
type Option func(*Controller)

// WithNotifier sets the receiver of status transitions.
func WithNotifier(n StatusNotifier) Option {
	return func(c *Controller) { c.notifier = n }
}

// WithRecorder adds a receiver of committed speed changes.
func WithRecorder(r Recorder) Option {
	return func(c *Controller) { c.recorders = append(c.recorders, r) }
}

// NewController creates a controller over the store.
func NewController(s store.Store, opts ...Option) *Controller {
	c := &Controller{store: s}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetSpeed writes rpm to one fan of a floor and derives its status. A fan
// that belongs to another floor is reported as ErrNotFound.
func (c *Controller) SetSpeed(ctx context.Context, floorID, fanID string, rpm *int) (*model.Fan, error) {
	if floorID == "" || fanID == "" {
		return nil, fmt.Errorf("%w: floorId and fanId are required", ErrValidation)
	}
	if rpm == nil {
		return nil, fmt.Errorf("%w: rpm is required", ErrValidation)
	}
	if *rpm < 0 {
		return nil, fmt.Errorf("%w: rpm must not be negative", ErrValidation)
	}

	change, err := c.store.SetFanSpeed(ctx, floorID, fanID, *rpm)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s on floor %s", ErrNotFound, fanID, floorID)
		}
		return nil, err
	}

	for _, r := range c.recorders {
		r.RecordSpeed(change.Fan)
	}
	if change.StatusChanged() && c.notifier != nil {
		c.notifier.NotifyStatusChange(change.Fan)
	}

	log.WithFields(log.Fields{
		"floor_id": floorID,
		"fan_id":   fanID,
		"rpm":      change.Fan.RPM,
		"status":   change.Fan.Status,
	}).Debug("Fan speed updated")
	return &change.Fan, nil
}

// SetStatus turns a fan off. Turning a fan on needs a speed, so ON is
// rejected here; callers use SetSpeed with an rpm instead.
func (c *Controller) SetStatus(ctx context.Context, floorID, fanID string, status model.FanStatus) (*model.Fan, error) {
	switch status {
	case model.FanOff:
		zero := 0
		return c.SetSpeed(ctx, floorID, fanID, &zero)
	case model.FanOn:
		return nil, fmt.Errorf("%w: status ON requires an rpm", ErrValidation)
	}
	return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, status)
}

// SetMultiple applies each change independently. A failing item never
// affects the others. A missing floor fails the call before any item is
// attempted.
func (c *Controller) SetMultiple(ctx context.Context, floorID string, changes []Change) (*Summary, error) {
	if floorID == "" {
		return nil, fmt.Errorf("%w: floorId is required", ErrValidation)
	}
	exists, err := c.store.FloorExists(ctx, floorID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return &Summary{FloorID: floorID, Results: []ItemResult{}}, fmt.Errorf("%w: %s", ErrFloorNotFound, floorID)
	}

	summary := &Summary{FloorID: floorID, Total: len(changes), Results: make([]ItemResult, 0, len(changes))}
	for _, ch := range changes {
		fan, err := c.SetSpeed(ctx, floorID, ch.FanID, ch.RPM)
		if err != nil {
			summary.ErrorCount++
			summary.Results = append(summary.Results, ItemResult{FanID: ch.FanID, Error: err.Error()})
			continue
		}
		summary.SuccessCount++
		summary.Results = append(summary.Results, ItemResult{FanID: ch.FanID, Success: true, Fan: fan})
	}

	log.WithFields(log.Fields{
		"floor_id": floorID,
		"total":    summary.Total,
		"failed":   summary.ErrorCount,
	}).Info("Bulk fan update processed")
	return summary, nil
}
