package attendance

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"guardattend/internal/tablestore"
)

func TestExport(t *testing.T) {
	recs := []Record{
		{RecordID: "1", UserID: "Alice@X.com", Timestamp: "2024-03-01 08:00:00", Pincode: "007", Action: ActionQRStart, QRPayload: "QR_START"},
		{RecordID: "2", UserID: "bob", Timestamp: "2024-03-01 09:00:00", Latitude: "12.97", Action: ActionLoginPhoto},
	}

	var buf bytes.Buffer
	require.NoError(t, Export(&buf, recs))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(exportSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, tablestore.AttendanceColumns, rows[0])
	assert.Equal(t, "Alice@X.com", rows[1][1])
	// Leading zeros survive because cells are text.
	assert.Equal(t, "007", rows[1][6])
	assert.Equal(t, "12.97", rows[2][3])
}

func TestExportFile_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.xlsx")
	require.NoError(t, ExportFile(path, nil))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(exportSheet)
	require.NoError(t, err)
	assert.Equal(t, [][]string{tablestore.AttendanceColumns}, rows)
}

func TestExport_RejectsUnwritableCell(t *testing.T) {
	recs := []Record{{RecordID: "1", UserID: "bob", Address: "Main St\x0b"}}
	var buf bytes.Buffer
	err := Export(&buf, recs)
	assert.ErrorIs(t, err, tablestore.ErrInvalidValue)
	assert.Zero(t, buf.Len())
}
