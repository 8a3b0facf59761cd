package parse

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readAll(t *testing.T, r *Reader) ([]Row, error) {
	t.Helper()
	var rows []Row
	for {
		row, err := r.Next()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return rows, err
		}
		rows = append(rows, row)
	}
}

func TestReader_RowsKeyedByHeader(t *testing.T) {
	input := "\ufeffFanId, Fan Name,FanModelId,RPM\n1,North,m-1,0\n2,South,m-1\n"

	r, err := NewReader(strings.NewReader(input), FanColumns, 0)
	require.NoError(t, err)

	rows, err := readAll(t, r)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, 2, rows[0].Index)
	assert.Equal(t, "North", rows[0].Data[ColFanName])
	assert.Equal(t, 3, rows[1].Index)
	assert.Equal(t, "", rows[1].Data[ColRPM])
}

func TestReader_MissingColumn(t *testing.T) {
	_, err := NewReader(strings.NewReader("Holding register,Description,Value\n1,a,0-1\n"), RegisterColumns, 0)
	assert.ErrorIs(t, err, ErrMalformed)
	assert.Contains(t, err.Error(), ColAccess)
}

func TestReader_EmptyInput(t *testing.T) {
	_, err := NewReader(strings.NewReader(""), RegisterColumns, 0)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestReader_BrokenQuoting(t *testing.T) {
	r, err := NewReader(strings.NewReader("FanId,Fan Name,FanModelId\n1,\"North,m-1\n"), FanColumns, 0)
	require.NoError(t, err)

	_, err = readAll(t, r)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestReader_RowLimit(t *testing.T) {
	input := "FanId,Fan Name,FanModelId\n1,a,m\n2,b,m\n3,c,m\n"
	r, err := NewReader(strings.NewReader(input), FanColumns, 2)
	require.NoError(t, err)

	rows, err := readAll(t, r)
	assert.ErrorIs(t, err, ErrTooManyRows)
	assert.ErrorIs(t, err, ErrMalformed)
	assert.Len(t, rows, 2)
}
