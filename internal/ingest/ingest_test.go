package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"fanctl-backend/config"
	"fanctl-backend/internal/model"
	"fanctl-backend/internal/parse"
	"fanctl-backend/internal/store"
	"fanctl-backend/internal/testdb"
)

const registerHeader = "Holding register,Description,Read/Write,Value\n"

func newCoordinator(t *testing.T) (*Coordinator, store.Store, *gorm.DB) {
	gormDB := testdb.Open(t)
	s := store.NewGormStore(gormDB)
	return NewCoordinator(s, config.ImportConfig{MaxRows: 100, TimeoutSeconds: 5}), s, gormDB
}

func seedFloor(t *testing.T, s store.Store, name string) string {
	floor := &model.Floor{Name: name}
	require.NoError(t, s.CreateFloor(context.Background(), floor))
	return floor.ID
}

func seedModel(t *testing.T, c *Coordinator, port, totalDevices int) string {
	res, err := c.ImportRegisters(context.Background(),
		strings.NewReader(registerHeader+"40001,Speed,Read/Write,0-3000\n"),
		ModelSpec{IPAddress: "10.1.1.1", Port: port, TotalDevices: totalDevices})
	require.NoError(t, err)
	require.NotNil(t, res.FanModel)
	return res.FanModel.ID
}

func countFans(t *testing.T, gormDB *gorm.DB) int64 {
	var n int64
	require.NoError(t, gormDB.Model(&model.Fan{}).Count(&n).Error)
	return n
}

func TestImportRegisters_PartialSuccess(t *testing.T) {
	c, s, _ := newCoordinator(t)
	csv := registerHeader +
		"40001,Speed,Read/Write,0-3000\n" +
		"40002,,Read,0-1\n" +
		"40001,Speed again,Read,0-1\n" +
		"40003,Mode,Execute,0-4\n" +
		"40004,Fault,Read,0-1\n"

	res, err := c.ImportRegisters(context.Background(), strings.NewReader(csv),
		ModelSpec{IPAddress: "10.0.0.9", Port: 502, TotalDevices: 8})
	require.NoError(t, err)

	assert.Equal(t, 2, res.InsertedCount)
	assert.Equal(t, 3, res.ErrorCount)
	require.Len(t, res.Errors, 3)
	assert.Equal(t, 3, res.Errors[0].Row)
	assert.Equal(t, parse.ReasonMissingFields, res.Errors[0].Reason)
	assert.Equal(t, 4, res.Errors[1].Row)
	assert.Equal(t, parse.ReasonDuplicateRegister, res.Errors[1].Reason)
	assert.Equal(t, "Speed again", res.Errors[1].RowData["Description"])
	assert.Equal(t, parse.ReasonInvalidAccess, res.Errors[2].Reason)

	require.NotNil(t, res.FanModel)
	stored, err := s.GetFanModel(context.Background(), res.FanModel.ID)
	require.NoError(t, err)
	require.Len(t, stored.Registers, 2)
	assert.Equal(t, 40001, stored.Registers[0].Register)
	assert.Equal(t, 40004, stored.Registers[1].Register)
}

func TestImportRegisters_DuplicateEndpointRejectedBeforeReading(t *testing.T) {
	c, s, _ := newCoordinator(t)
	seedModel(t, c, 502, 4)

	// The body is not even valid input; the guard must fire first.
	_, err := c.ImportRegisters(context.Background(), strings.NewReader("garbage"),
		ModelSpec{IPAddress: "10.1.1.1", Port: 502, TotalDevices: 4})
	assert.ErrorIs(t, err, ErrDuplicateModel)

	models, err := s.ListFanModels(context.Background())
	require.NoError(t, err)
	assert.Len(t, models, 1)
}

func TestImportRegisters_NoAcceptedRowsCreatesNothing(t *testing.T) {
	c, s, _ := newCoordinator(t)

	res, err := c.ImportRegisters(context.Background(),
		strings.NewReader(registerHeader+",,,\n"),
		ModelSpec{IPAddress: "10.0.0.2", Port: 502, TotalDevices: 1})
	require.NoError(t, err)
	assert.Nil(t, res.FanModel)
	assert.Equal(t, 0, res.InsertedCount)
	assert.Equal(t, 1, res.ErrorCount)

	_, err = s.FindFanModelByEndpoint(context.Background(), "10.0.0.2", 502)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestImportRegisters_InvalidInput(t *testing.T) {
	c, _, _ := newCoordinator(t)
	testCases := []struct {
		name     string
		body     string
		spec     ModelSpec
		expected error
	}{
		{"missing address", registerHeader, ModelSpec{Port: 502, TotalDevices: 1}, ErrInvalidInput},
		{"bad port", registerHeader, ModelSpec{IPAddress: "h", Port: 0, TotalDevices: 1}, ErrInvalidInput},
		{"no capacity", registerHeader, ModelSpec{IPAddress: "h", Port: 1, TotalDevices: 0}, ErrInvalidInput},
		{"missing column", "Holding register,Description\n1,a\n", ModelSpec{IPAddress: "h", Port: 1, TotalDevices: 1}, ErrMalformedInput},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := c.ImportRegisters(context.Background(), strings.NewReader(tc.body), tc.spec)
			assert.ErrorIs(t, err, tc.expected)
		})
	}
}

func TestImportFans_PartialSuccess(t *testing.T) {
	c, s, gormDB := newCoordinator(t)
	floorID := seedFloor(t, s, "F1")
	modelID := seedModel(t, c, 502, 10)

	csv := "FanId,Fan Name,FanModelId,RPM\n" +
		fmt.Sprintf("1,North,%s,0\n", modelID) +
		fmt.Sprintf("2,South,%s,900\n", modelID) +
		fmt.Sprintf("3,,%s,0\n", modelID) +
		fmt.Sprintf("4,East,%s,-1\n", modelID) +
		fmt.Sprintf("2,South copy,%s,0\n", modelID)

	res, err := c.ImportFans(context.Background(), strings.NewReader(csv), floorID)
	require.NoError(t, err)

	assert.Equal(t, 2, res.InsertedCount)
	assert.Equal(t, 3, res.ErrorCount)
	assert.Equal(t, []string{parse.ReasonMissingFields, parse.ReasonInvalidRPM, parse.ReasonDuplicateFan},
		[]string{res.Errors[0].Reason, res.Errors[1].Reason, res.Errors[2].Reason})
	assert.Equal(t, int64(2), countFans(t, gormDB))

	for _, fan := range res.Fans {
		assert.NotEmpty(t, fan.ID)
		assert.Equal(t, fan.RPM > 0, fan.Status == model.FanOn)
	}
}

func TestImportFans_AlreadyExistingFansAreRejected(t *testing.T) {
	c, s, gormDB := newCoordinator(t)
	floorID := seedFloor(t, s, "F1")
	modelID := seedModel(t, c, 502, 10)

	first := fmt.Sprintf("FanId,Fan Name,FanModelId\n1,North,%s\n", modelID)
	_, err := c.ImportFans(context.Background(), strings.NewReader(first), floorID)
	require.NoError(t, err)

	second := fmt.Sprintf("FanId,Fan Name,FanModelId\n1,North,%s\n2,South,%s\n", modelID, modelID)
	res, err := c.ImportFans(context.Background(), strings.NewReader(second), floorID)
	require.NoError(t, err)

	assert.Equal(t, 1, res.InsertedCount)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, 2, res.Errors[0].Row)
	assert.Equal(t, parse.ReasonAlreadyExists, res.Errors[0].Reason)
	assert.Equal(t, int64(2), countFans(t, gormDB))
}

func TestImportFans_CapacityAbortsWholeBatch(t *testing.T) {
	c, s, gormDB := newCoordinator(t)
	floorID := seedFloor(t, s, "F1")
	modelID := seedModel(t, c, 502, 3)

	var b strings.Builder
	b.WriteString("FanId,Fan Name,FanModelId\n")
	for i := 1; i <= 4; i++ {
		fmt.Fprintf(&b, "%d,Fan %d,%s\n", i, i, modelID)
	}

	res, err := c.ImportFans(context.Background(), strings.NewReader(b.String()), floorID)
	assert.Nil(t, res)
	require.ErrorIs(t, err, ErrCapacityExceeded)

	var capErr *store.CapacityError
	require.True(t, errors.As(err, &capErr))
	assert.Equal(t, modelID, capErr.FanModelID)
	assert.Equal(t, 3, capErr.Allowed)
	assert.Equal(t, 4, capErr.Received)
	assert.Equal(t, int64(0), countFans(t, gormDB))
}

func TestImportFans_CapacityCountsPersistedFans(t *testing.T) {
	c, s, gormDB := newCoordinator(t)
	floorID := seedFloor(t, s, "F1")
	modelID := seedModel(t, c, 502, 3)

	first := fmt.Sprintf("FanId,Fan Name,FanModelId\n1,a,%s\n2,b,%s\n", modelID, modelID)
	_, err := c.ImportFans(context.Background(), strings.NewReader(first), floorID)
	require.NoError(t, err)

	second := fmt.Sprintf("FanId,Fan Name,FanModelId\n3,c,%s\n4,d,%s\n", modelID, modelID)
	_, err = c.ImportFans(context.Background(), strings.NewReader(second), floorID)
	assert.ErrorIs(t, err, ErrCapacityExceeded)
	assert.Equal(t, int64(2), countFans(t, gormDB))
}

func TestImportFans_MissingReferences(t *testing.T) {
	c, s, gormDB := newCoordinator(t)
	floorID := seedFloor(t, s, "F1")
	modelID := seedModel(t, c, 502, 5)

	_, err := c.ImportFans(context.Background(), strings.NewReader("garbage"), "no-such-floor")
	assert.ErrorIs(t, err, ErrReferenceNotFound)

	csv := fmt.Sprintf("FanId,Fan Name,FanModelId\n1,a,%s\n2,b,no-such-model\n", modelID)
	_, err = c.ImportFans(context.Background(), strings.NewReader(csv), floorID)
	assert.ErrorIs(t, err, ErrReferenceNotFound)
	assert.Equal(t, int64(0), countFans(t, gormDB))
}

func TestImportFans_MalformedInputCommitsNothing(t *testing.T) {
	c, s, gormDB := newCoordinator(t)
	floorID := seedFloor(t, s, "F1")
	modelID := seedModel(t, c, 502, 5)

	csv := fmt.Sprintf("FanId,Fan Name,FanModelId\n1,a,%s\n2,\"b,%s\n", modelID, modelID)
	_, err := c.ImportFans(context.Background(), strings.NewReader(csv), floorID)
	assert.ErrorIs(t, err, ErrMalformedInput)
	assert.Equal(t, int64(0), countFans(t, gormDB))

	_, err = c.ImportFans(context.Background(), strings.NewReader("Name\nx\n"), floorID)
	assert.ErrorIs(t, err, ErrMalformedInput)
}

func TestImportFans_RowLimit(t *testing.T) {
	gormDB := testdb.Open(t)
	s := store.NewGormStore(gormDB)
	c := NewCoordinator(s, config.ImportConfig{MaxRows: 1})
	floorID := seedFloor(t, s, "F1")

	_, err := c.ImportFans(context.Background(), strings.NewReader("FanId,Fan Name,FanModelId\n1,a,m\n2,b,m\n"), floorID)
	assert.ErrorIs(t, err, ErrMalformedInput)
}

func TestCreateFan(t *testing.T) {
	c, s, _ := newCoordinator(t)
	ctx := context.Background()
	floorID := seedFloor(t, s, "F1")
	modelID := seedModel(t, c, 502, 2)

	fan, err := c.CreateFan(ctx, floorID, parse.FanDraft{DeviceID: 1, Name: "North", FanModelID: modelID, RPM: 40})
	require.NoError(t, err)
	assert.NotEmpty(t, fan.ID)
	assert.Equal(t, model.FanOn, fan.Status)

	_, err = c.CreateFan(ctx, floorID, parse.FanDraft{DeviceID: 2, Name: "North", FanModelID: modelID})
	assert.ErrorIs(t, err, ErrDuplicateFan)

	_, err = c.CreateFan(ctx, floorID, parse.FanDraft{DeviceID: 1, Name: "South", FanModelID: modelID})
	assert.ErrorIs(t, err, ErrDuplicateFan)

	_, err = c.CreateFan(ctx, floorID, parse.FanDraft{DeviceID: 2, Name: "South", FanModelID: modelID, RPM: -1})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = c.CreateFan(ctx, floorID, parse.FanDraft{DeviceID: 2, Name: "South", FanModelID: "missing"})
	assert.ErrorIs(t, err, ErrReferenceNotFound)

	_, err = c.CreateFan(ctx, floorID, parse.FanDraft{DeviceID: 2, Name: "South", FanModelID: modelID})
	require.NoError(t, err)

	_, err = c.CreateFan(ctx, floorID, parse.FanDraft{DeviceID: 3, Name: "West", FanModelID: modelID})
	assert.ErrorIs(t, err, ErrCapacityExceeded)
}
