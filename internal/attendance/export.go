package attendance

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"guardattend/internal/tablestore"
)

const exportSheet = "attendance"

// Export writes records as a single-sheet workbook with the attendance
// header row. Every cell is written as text.
func Export(w io.Writer, records []Record) error {
	f, err := workbook(records)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("export: write workbook: %w", err)
	}
	return nil
}

// ExportFile writes records to a workbook at path.
func ExportFile(path string, records []Record) error {
	f, err := workbook(records)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("export %s: %w", path, err)
	}
	return nil
}

func workbook(records []Record) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName(f.GetSheetName(0), exportSheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("export: %w", err)
	}
	if err := writeExportRow(f, 1, tablestore.AttendanceColumns); err != nil {
		f.Close()
		return nil, err
	}
	for i, rec := range records {
		if err := writeExportRow(f, i+2, toRow(rec)); err != nil {
			f.Close()
			return nil, err
		}
	}
	return f, nil
}

func writeExportRow(f *excelize.File, n int, cells []string) error {
	cell, err := excelize.CoordinatesToCellName(1, n)
	if err != nil {
		return err
	}
	vals := make([]interface{}, len(cells))
	for i, c := range cells {
		if err := tablestore.CheckCell(c); err != nil {
			return fmt.Errorf("export: row %d: %w", n, err)
		}
		vals[i] = c
	}
	if err := f.SetSheetRow(exportSheet, cell, &vals); err != nil {
		return fmt.Errorf("export: row %d: %w", n, err)
	}
	return nil
}
