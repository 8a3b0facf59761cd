// Package ingest provisions fan models and fans from tabular imports.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"

	"fanctl-backend/config"
	"fanctl-backend/internal/model"
	"fanctl-backend/internal/parse"
	"fanctl-backend/internal/store"
)

var (
	// ErrMalformedInput aborts an import before any row is committed.
	ErrMalformedInput = parse.ErrMalformed
	// ErrInvalidInput is returned for bad request parameters outside the file.
	ErrInvalidInput = errors.New("invalid input")
	// ErrReferenceNotFound is returned when a target floor or fan model is missing.
	ErrReferenceNotFound = errors.New("reference not found")
	// ErrDuplicateModel is returned when the endpoint already has a fan model.
	ErrDuplicateModel = errors.New("fan model already exists for this endpoint")
	// ErrDuplicateFan is returned when a single fan create collides with an existing fan.
	ErrDuplicateFan = errors.New("fan already exists")
	// ErrCapacityExceeded is matched by the *store.CapacityError an import returns.
	ErrCapacityExceeded = store.ErrCapacityExceeded
)

// ModelSpec is the endpoint and capacity of a fan model being registered.
type ModelSpec struct {
	IPAddress    string
	Port         int
	TotalDevices int
}

func (m ModelSpec) validate() error {
	switch {
	case m.IPAddress == "":
		return fmt.Errorf("%w: ipAddress is required", ErrInvalidInput)
	case m.Port < 1 || m.Port > 65535:
		return fmt.Errorf("%w: port must be between 1 and 65535", ErrInvalidInput)
	case m.TotalDevices < 1:
		return fmt.Errorf("%w: totalDevices must be positive", ErrInvalidInput)
	}
	return nil
}

// RegisterResult is the outcome of a register import.
type RegisterResult struct {
	InsertedCount int                `json:"insertedCount"`
	ErrorCount    int                `json:"errorCount"`
	Errors        []*parse.Rejection `json:"errors"`
	FanModel      *model.FanModel    `json:"fanModel"`
}

// FanResult is the outcome of a fan import.
type FanResult struct {
	InsertedCount int                `json:"insertedCount"`
	ErrorCount    int                `json:"errorCount"`
	Errors        []*parse.Rejection `json:"errors"`
	Fans          []model.Fan        `json:"fans"`
}

// Coordinator runs import batches against the record store.
type Coordinator struct {
	store   store.Store
	maxRows int
	timeout time.Duration
}

// NewCoordinator creates a coordinator bounded by the import limits.
func NewCoordinator(s store.Store, cfg config.ImportConfig) *Coordinator {
	return &Coordinator{store: s, maxRows: cfg.MaxRows, timeout: cfg.Timeout()}
}

func (c *Coordinator) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

// ImportRegisters creates a fan model from a register map file. An endpoint
// that already has a model is rejected before the file is read. A file with
// no acceptable rows creates nothing.
func (c *Coordinator) ImportRegisters(ctx context.Context, src io.Reader, spec ModelSpec) (*RegisterResult, error) {
	if err := spec.validate(); err != nil {
		return nil, err
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	if _, err := c.store.FindFanModelByEndpoint(ctx, spec.IPAddress, spec.Port); err == nil {
		return nil, fmt.Errorf("%w: %s:%d", ErrDuplicateModel, spec.IPAddress, spec.Port)
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	reader, err := parse.NewReader(src, parse.RegisterColumns, c.maxRows)
	if err != nil {
		return nil, err
	}

	result := &RegisterResult{Errors: []*parse.Rejection{}}
	var registers []model.RegisterDefinition
	seen := make(map[int]bool)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		draft, rejection := parse.ValidateRegisterRow(row)
		if rejection == nil && seen[draft.Register] {
			rejection = parse.Reject(row, parse.ReasonDuplicateRegister)
		}
		if rejection != nil {
			result.Errors = append(result.Errors, rejection)
			continue
		}
		seen[draft.Register] = true
		registers = append(registers, draft.Definition())
	}

	if len(registers) > 0 {
		fanModel := &model.FanModel{
			IPAddress:    spec.IPAddress,
			Port:         spec.Port,
			TotalDevices: spec.TotalDevices,
			Registers:    registers,
		}
		if err := c.store.CreateFanModel(ctx, fanModel); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return nil, fmt.Errorf("%w: %s:%d", ErrDuplicateModel, spec.IPAddress, spec.Port)
			}
			return nil, fmt.Errorf("failed to save fan model: %w", err)
		}
		result.FanModel = fanModel
	}

	result.InsertedCount = len(registers)
	result.ErrorCount = len(result.Errors)
	log.WithFields(log.Fields{
		"endpoint": fmt.Sprintf("%s:%d", spec.IPAddress, spec.Port),
		"inserted": result.InsertedCount,
		"rejected": result.ErrorCount,
	}).Info("Register import processed")
	return result, nil
}

type pendingFan struct {
	row   parse.Row
	draft parse.FanDraft
}

// ImportFans provisions the fans of one floor. Row failures are collected;
// a missing floor or model, malformed input or a capacity violation fails
// the whole batch and commits nothing.
func (c *Coordinator) ImportFans(ctx context.Context, src io.Reader, floorID string) (*FanResult, error) {
	if floorID == "" {
		return nil, fmt.Errorf("%w: floorId is required", ErrInvalidInput)
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	exists, err := c.store.FloorExists(ctx, floorID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: floor %s", ErrReferenceNotFound, floorID)
	}

	reader, err := parse.NewReader(src, parse.FanColumns, c.maxRows)
	if err != nil {
		return nil, err
	}

	result := &FanResult{Errors: []*parse.Rejection{}, Fans: []model.Fan{}}
	var pending []pendingFan
	seen := make(map[store.FanKey]bool)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		draft, rejection := parse.ValidateFanRow(row)
		key := store.FanKey{FanModelID: draft.FanModelID, DeviceID: draft.DeviceID}
		if rejection == nil && seen[key] {
			rejection = parse.Reject(row, parse.ReasonDuplicateFan)
		}
		if rejection != nil {
			result.Errors = append(result.Errors, rejection)
			continue
		}
		seen[key] = true
		pending = append(pending, pendingFan{row: row, draft: draft})
	}

	if err := c.checkCapacity(ctx, pending); err != nil {
		return nil, err
	}

	keys := make([]store.FanKey, 0, len(pending))
	for _, p := range pending {
		keys = append(keys, store.FanKey{FanModelID: p.draft.FanModelID, DeviceID: p.draft.DeviceID})
	}
	existing, err := c.store.ExistingFans(ctx, keys)
	if err != nil {
		return nil, err
	}

	fans := make([]model.Fan, 0, len(pending))
	for _, p := range pending {
		if existing[store.FanKey{FanModelID: p.draft.FanModelID, DeviceID: p.draft.DeviceID}] {
			result.Errors = append(result.Errors, parse.Reject(p.row, parse.ReasonAlreadyExists))
			continue
		}
		fans = append(fans, p.draft.Fan(floorID))
	}

	if err := c.store.InsertFans(ctx, fans); err != nil {
		return nil, commitError(err)
	}

	sort.SliceStable(result.Errors, func(i, j int) bool { return result.Errors[i].Row < result.Errors[j].Row })
	result.Fans = fans
	result.InsertedCount = len(fans)
	result.ErrorCount = len(result.Errors)
	log.WithFields(log.Fields{
		"floor_id": floorID,
		"inserted": result.InsertedCount,
		"rejected": result.ErrorCount,
	}).Info("Fan import processed")
	return result, nil
}

// checkCapacity groups the accepted rows by model. Every model must exist
// and no group may be larger than the model's totalDevices.
func (c *Coordinator) checkCapacity(ctx context.Context, pending []pendingFan) error {
	groups := make(map[string]int)
	var order []string
	for _, p := range pending {
		if _, ok := groups[p.draft.FanModelID]; !ok {
			order = append(order, p.draft.FanModelID)
		}
		groups[p.draft.FanModelID]++
	}

	fanModels, err := c.store.GetFanModels(ctx, order)
	if err != nil {
		return err
	}
	for _, modelID := range order {
		fanModel, ok := fanModels[modelID]
		if !ok {
			return fmt.Errorf("%w: fan model %s", ErrReferenceNotFound, modelID)
		}
		if groups[modelID] > fanModel.TotalDevices {
			return &store.CapacityError{FanModelID: modelID, Allowed: fanModel.TotalDevices, Received: groups[modelID]}
		}
	}
	return nil
}

// CreateFan provisions a single fan through the same capacity-checked
// commit as an import.
func (c *Coordinator) CreateFan(ctx context.Context, floorID string, draft parse.FanDraft) (*model.Fan, error) {
	switch {
	case floorID == "" || draft.FanModelID == "" || draft.Name == "":
		return nil, fmt.Errorf("%w: floorId, fanModelId and name are required", ErrInvalidInput)
	case draft.DeviceID < 0:
		return nil, fmt.Errorf("%w: deviceId must not be negative", ErrInvalidInput)
	case draft.RPM < 0:
		return nil, fmt.Errorf("%w: rpm must not be negative", ErrInvalidInput)
	}

	exists, err := c.store.FloorExists(ctx, floorID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: floor %s", ErrReferenceNotFound, floorID)
	}

	taken, err := c.store.FanNameTaken(ctx, floorID, draft.Name)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, fmt.Errorf("%w: fan name %q is used on this floor", ErrDuplicateFan, draft.Name)
	}

	key := store.FanKey{FanModelID: draft.FanModelID, DeviceID: draft.DeviceID}
	existing, err := c.store.ExistingFans(ctx, []store.FanKey{key})
	if err != nil {
		return nil, err
	}
	if existing[key] {
		return nil, fmt.Errorf("%w: device %d for this model", ErrDuplicateFan, draft.DeviceID)
	}

	fans := []model.Fan{draft.Fan(floorID)}
	if err := c.store.InsertFans(ctx, fans); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, fmt.Errorf("%w: device %d for this model", ErrDuplicateFan, draft.DeviceID)
		}
		return nil, commitError(err)
	}
	return &fans[0], nil
}

// commitError maps store failures of the final insert onto import errors.
func commitError(err error) error {
	switch {
	case errors.Is(err, store.ErrCapacityExceeded):
		return err
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("%w: %v", ErrReferenceNotFound, err)
	}
	return fmt.Errorf("failed to save fans: %w", err)
}
