package parse

import (
	"fmt"
	"strconv"
	"strings"

	"fanctl-backend/internal/model"
)

// Column headers of the two import formats.
const (
	ColRegister    = "Holding register"
	ColDescription = "Description"
	ColAccess      = "Read/Write"
	ColValueRange  = "Value"

	ColDeviceID   = "FanId"
	ColFanName    = "Fan Name"
	ColFanModelID = "FanModelId"
	ColRPM        = "RPM"
)

// Required headers per import kind. RPM is optional for fans.
var (
	RegisterColumns = []string{ColRegister, ColDescription, ColAccess, ColValueRange}
	FanColumns      = []string{ColDeviceID, ColFanName, ColFanModelID}
)

// Rejection reasons.
const (
	ReasonMissingFields     = "missing required fields"
	ReasonInvalidAccess     = "invalid access mode"
	ReasonInvalidRPM        = "invalid rpm"
	ReasonDuplicateRegister = "duplicate register number in batch"
	ReasonDuplicateFan      = "duplicate fan in batch"
	ReasonAlreadyExists     = "fan already exists for this model"
)

// Row is one data row of an import, keyed by header. Index is the line
// number in the source file; the header is line 1.
type Row struct {
	Index int
	Data  map[string]string
}

func (r Row) get(col string) string {
	return strings.TrimSpace(r.Data[col])
}

// Rejection is a row excluded from a batch, with the reason why.
type Rejection struct {
	Row     int               `json:"row"`
	RowData map[string]string `json:"rowData"`
	Reason  string            `json:"error"`
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("row %d: %s", r.Row, r.Reason)
}

// Reject builds a rejection for the row.
func Reject(row Row, reason string) *Rejection {
	return &Rejection{Row: row.Index, RowData: row.Data, Reason: reason}
}

// RegisterDraft is a validated register definition row.
type RegisterDraft struct {
	Register    int
	Description string
	Access      model.AccessMode
	ValueRange  string
}

// Definition converts the draft into its persisted form.
func (d RegisterDraft) Definition() model.RegisterDefinition {
	return model.RegisterDefinition{
		Register:    d.Register,
		Description: d.Description,
		Access:      d.Access,
		ValueRange:  d.ValueRange,
	}
}

// FanDraft is a validated fan instance row. It carries no status; status
// is derived from RPM when the fan is built.
type FanDraft struct {
	DeviceID   int64
	Name       string
	FanModelID string
	RPM        int
}

// Key identifies the draft within its model.
func (d FanDraft) Key() (string, int64) {
	return d.FanModelID, d.DeviceID
}

// Fan builds the fan to persist on the given floor.
func (d FanDraft) Fan(floorID string) model.Fan {
	return model.Fan{
		FloorID:    floorID,
		FanModelID: d.FanModelID,
		DeviceID:   d.DeviceID,
		Name:       d.Name,
		RPM:        d.RPM,
		Status:     model.StatusForRPM(d.RPM),
	}
}

// ValidateRegisterRow checks a register row. An unparseable register
// number counts as a missing field.
func ValidateRegisterRow(row Row) (RegisterDraft, *Rejection) {
	register, description, access, valueRange := row.get(ColRegister), row.get(ColDescription), row.get(ColAccess), row.get(ColValueRange)
	if register == "" || description == "" || access == "" || valueRange == "" {
		return RegisterDraft{}, Reject(row, ReasonMissingFields)
	}

	number, err := strconv.Atoi(register)
	if err != nil {
		return RegisterDraft{}, Reject(row, ReasonMissingFields)
	}

	mode, ok := ParseAccessMode(access)
	if !ok {
		return RegisterDraft{}, Reject(row, ReasonInvalidAccess)
	}

	return RegisterDraft{
		Register:    number,
		Description: description,
		Access:      mode,
		ValueRange:  valueRange,
	}, nil
}

// ValidateFanRow checks a fan instance row. RPM defaults to 0 and must not
// be negative.
func ValidateFanRow(row Row) (FanDraft, *Rejection) {
	deviceID, name, fanModelID := row.get(ColDeviceID), row.get(ColFanName), row.get(ColFanModelID)
	if deviceID == "" || name == "" || fanModelID == "" {
		return FanDraft{}, Reject(row, ReasonMissingFields)
	}

	device, err := strconv.ParseInt(deviceID, 10, 64)
	if err != nil || device < 0 {
		return FanDraft{}, Reject(row, ReasonMissingFields)
	}

	rpm := 0
	if raw := row.get(ColRPM); raw != "" {
		rpm, err = strconv.Atoi(raw)
		if err != nil || rpm < 0 {
			return FanDraft{}, Reject(row, ReasonInvalidRPM)
		}
	}

	return FanDraft{
		DeviceID:   device,
		Name:       name,
		FanModelID: fanModelID,
		RPM:        rpm,
	}, nil
}

// ParseAccessMode matches an access mode case-insensitively, accepting
// "RW" and "R/W" as Read/Write.
func ParseAccessMode(s string) (model.AccessMode, bool) {
	switch strings.ToLower(strings.Join(strings.Fields(s), "")) {
	case "read", "r":
		return model.AccessRead, true
	case "write", "w":
		return model.AccessWrite, true
	case "read/write", "r/w", "rw", "readwrite":
		return model.AccessReadWrite, true
	}
	return "", false
}
