// Package tablestore persists fixed-schema tables as whole documents.
//
// Every table is a header row of column names followed by data rows. All
// cells are text; nothing is coerced to numbers or dates on the way in or
// out. Writes are full-table rewrites: callers load, mutate in memory and
// save the complete row set. There is no locking between writers, so two
// concurrent writers of the same table resolve as last-writer-wins.
package tablestore

import (
	"context"
	"errors"
	"fmt"
	"slices"
)

var (
	// ErrStoreUnavailable reports a missing, corrupt, unreadable or
	// unwritable table document.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrSchemaMismatch reports a document whose header row differs from
	// the table's columns. It wraps ErrStoreUnavailable.
	ErrSchemaMismatch = fmt.Errorf("%w: schema mismatch", ErrStoreUnavailable)

	// ErrInvalidValue reports a cell the document format cannot hold
	// unchanged. Nothing is written when it is returned.
	ErrInvalidValue = errors.New("invalid cell value")
)

// UserColumns is the column order of the users table.
var UserColumns = []string{"user_id", "name", "phone", "email", "password_hash", "photo_path"}

// AttendanceColumns is the column order of the attendance table.
var AttendanceColumns = []string{
	"record_id", "user_id", "timestamp",
	"latitude", "longitude", "address", "pincode", "plus_code",
	"photo_path", "action", "location_source", "qr_payload",
}

// Table names a persisted table and fixes its column order.
type Table struct {
	Name    string
	Columns []string
}

var (
	Users      = Table{Name: "users", Columns: UserColumns}
	Attendance = Table{Name: "attendance", Columns: AttendanceColumns}
)

// Row is one record, cells in column order.
type Row []string

// Backend loads and saves whole tables.
type Backend interface {
	// Initialize creates an empty table (header only) if none exists.
	// It is a no-op for an existing table.
	Initialize(ctx context.Context, t Table) error
	// Load returns every row in stored order.
	Load(ctx context.Context, t Table) ([]Row, error)
	// Save replaces the table's rows with rows, in order.
	Save(ctx context.Context, t Table, rows []Row) error
}

func unavailable(op string, t Table, err error) error {
	return fmt.Errorf("%s %s: %w: %w", op, t.Name, ErrStoreUnavailable, err)
}

// conform checks a decoded header against the table and shapes data rows to
// the column count. Spreadsheets drop trailing empty cells, so short rows are
// padded; rows with no cells at all are skipped.
func conform(t Table, header []string, data [][]string) ([]Row, error) {
	if !slices.Equal(header, t.Columns) {
		return nil, fmt.Errorf("load %s: %w: header %v", t.Name, ErrSchemaMismatch, header)
	}
	rows := make([]Row, 0, len(data))
	for i, cells := range data {
		if len(cells) == 0 {
			continue
		}
		if len(cells) > len(t.Columns) {
			return nil, fmt.Errorf("load %s: %w: row %d has %d cells", t.Name, ErrSchemaMismatch, i+2, len(cells))
		}
		row := make(Row, len(t.Columns))
		copy(row, cells)
		rows = append(rows, row)
	}
	return rows, nil
}

func checkWidth(t Table, rows []Row) error {
	for i, r := range rows {
		if len(r) != len(t.Columns) {
			return fmt.Errorf("save %s: row %d has %d cells, want %d", t.Name, i, len(r), len(t.Columns))
		}
	}
	return nil
}

func cloneRows(rows []Row) []Row {
	out := make([]Row, len(rows))
	for i, r := range rows {
		out[i] = slices.Clone(r)
	}
	return out
}
