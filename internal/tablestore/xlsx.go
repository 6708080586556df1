package tablestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

// XLSX keeps each table in <dir>/<name>.xlsx, one sheet per document.
type XLSX struct {
	dir string
}

// NewXLSX returns a backend rooted at dir. The directory is created on
// Initialize.
func NewXLSX(dir string) *XLSX {
	return &XLSX{dir: dir}
}

// Path returns the document path for t.
func (x *XLSX) Path(t Table) string {
	return filepath.Join(x.dir, t.Name+".xlsx")
}

// Initialize writes a header-only document if t has none yet.
func (x *XLSX) Initialize(_ context.Context, t Table) error {
	if err := os.MkdirAll(x.dir, 0o755); err != nil {
		return unavailable("initialize", t, err)
	}
	_, err := os.Stat(x.Path(t))
	switch {
	case err == nil:
		return nil
	case !errors.Is(err, fs.ErrNotExist):
		return unavailable("initialize", t, err)
	}
	if err := x.write(t, nil); err != nil {
		return unavailable("initialize", t, err)
	}
	return nil
}

// Load reads the first sheet of t's document.
func (x *XLSX) Load(_ context.Context, t Table) ([]Row, error) {
	f, err := excelize.OpenFile(x.Path(t))
	if err != nil {
		return nil, unavailable("load", t, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, unavailable("load", t, errors.New("workbook has no sheets"))
	}
	cells, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, unavailable("load", t, err)
	}
	if len(cells) == 0 {
		return nil, fmt.Errorf("load %s: %w: missing header row", t.Name, ErrSchemaMismatch)
	}
	return conform(t, cells[0], cells[1:])
}

// Save rewrites t's document with the header and rows. The new document is
// written beside the old one and renamed over it.
func (x *XLSX) Save(_ context.Context, t Table, rows []Row) error {
	if err := checkWidth(t, rows); err != nil {
		return err
	}
	for i, r := range rows {
		for j, c := range r {
			if err := CheckCell(c); err != nil {
				return fmt.Errorf("save %s: row %d column %s: %w", t.Name, i, t.Columns[j], err)
			}
		}
	}
	if err := x.write(t, rows); err != nil {
		return unavailable("save", t, err)
	}
	return nil
}

func (x *XLSX) write(t Table, rows []Row) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	if err := setRow(f, sheet, 1, t.Columns); err != nil {
		return err
	}
	for i, r := range rows {
		if err := setRow(f, sheet, i+2, r); err != nil {
			return err
		}
	}

	tmp, err := os.CreateTemp(x.dir, "."+t.Name+"-*.xlsx.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := f.Write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), x.Path(t))
}

// CheckCell rejects text a spreadsheet cell would not store verbatim:
// invalid UTF-8, characters XML 1.0 forbids, and values longer than
// excelize.TotalCellChars characters.
func CheckCell(s string) error {
	if !utf8.ValidString(s) {
		return fmt.Errorf("%w: not valid UTF-8", ErrInvalidValue)
	}
	if n := utf8.RuneCountInString(s); n > excelize.TotalCellChars {
		return fmt.Errorf("%w: %d characters, limit %d", ErrInvalidValue, n, excelize.TotalCellChars)
	}
	for _, r := range s {
		if !xmlChar(r) {
			return fmt.Errorf("%w: character %U", ErrInvalidValue, r)
		}
	}
	return nil
}

func xmlChar(r rune) bool {
	switch {
	case r == '\t', r == '\n', r == '\r':
		return true
	case r >= 0x20 && r <= 0xD7FF:
		return true
	case r >= 0xE000 && r <= 0xFFFD:
		return true
	case r >= 0x10000 && r <= 0x10FFFF:
		return true
	}
	return false
}

// setRow writes cells as string values starting at column A of row n.
func setRow(f *excelize.File, sheet string, n int, cells []string) error {
	cell, err := excelize.CoordinatesToCellName(1, n)
	if err != nil {
		return err
	}
	vals := make([]interface{}, len(cells))
	for i, c := range cells {
		vals[i] = c
	}
	return f.SetSheetRow(sheet, cell, &vals)
}
