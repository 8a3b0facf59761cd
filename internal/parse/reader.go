package parse

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
)

var (
	// ErrMalformed is returned when the input cannot be read as a table.
	ErrMalformed = errors.New("malformed tabular input")
	// ErrTooManyRows is returned once a file exceeds the row limit.
	ErrTooManyRows = fmt.Errorf("%w: too many rows", ErrMalformed)
)

// Reader streams the data rows of a CSV file as header-keyed rows.
type Reader struct {
	csv     *csv.Reader
	header  []string
	rows    int
	maxRows int
}

// NewReader reads the header line and checks that every required column
// is present. maxRows <= 0 disables the row limit.
func NewReader(src io.Reader, required []string, maxRows int) (*Reader, error) {
	r := csv.NewReader(src)
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: empty file", ErrMalformed)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		header[i] = strings.TrimSpace(h)
	}

	var missing []string
	for _, col := range required {
		if !slices.Contains(header, col) {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing columns %s", ErrMalformed, strings.Join(missing, ", "))
	}

	return &Reader{csv: r, header: header, maxRows: maxRows}, nil
}

// Next returns the next row, or io.EOF after the last one.
func (r *Reader) Next() (Row, error) {
	record, err := r.csv.Read()
	if err == io.EOF {
		return Row{}, io.EOF
	}
	if err != nil {
		return Row{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	r.rows++
	if r.maxRows > 0 && r.rows > r.maxRows {
		return Row{}, fmt.Errorf("%w (limit %d)", ErrTooManyRows, r.maxRows)
	}

	line, _ := r.csv.FieldPos(0)
	data := make(map[string]string, len(r.header))
	for i, col := range r.header {
		if i < len(record) {
			data[col] = record[i]
		}
	}
	return Row{Index: line, Data: data}, nil
}
