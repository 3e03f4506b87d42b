package export

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

const defaultSheet = "Sheet1"

// XLSXExporter renders datasets into a single-sheet workbook.
type XLSXExporter struct {
	sheet string
}

// NewXLSXExporter builds an exporter writing into the named sheet.
func NewXLSXExporter(sheet string) *XLSXExporter {
	if sheet == "" {
		sheet = "Summary"
	}
	return &XLSXExporter{sheet: sheet}
}

func (e *XLSXExporter) Extension() string { return "xlsx" }
func (e *XLSXExporter) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

// Render writes title, meta fields and the table into the workbook.
func (e *XLSXExporter) Render(data Dataset) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("xlsx requires at least one header")
	}
	f := excelize.NewFile()
	defer f.Close() //nolint:errcheck

	index, err := f.NewSheet(e.sheet)
	if err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if e.sheet != defaultSheet {
		if err := f.DeleteSheet(defaultSheet); err != nil {
			return nil, fmt.Errorf("drop default sheet: %w", err)
		}
	}

	row := 1
	if data.Title != "" {
		if err := e.set(f, 1, row, data.Title); err != nil {
			return nil, err
		}
		row += 2
	}
	for _, field := range data.Meta {
		if err := e.set(f, 1, row, field.Label); err != nil {
			return nil, err
		}
		if err := e.set(f, 2, row, field.Value); err != nil {
			return nil, err
		}
		row++
	}
	if len(data.Meta) > 0 {
		row++
	}
	for col, header := range data.Headers {
		if err := e.set(f, col+1, row, header); err != nil {
			return nil, err
		}
	}
	for _, record := range data.Rows {
		row++
		for col, header := range data.Headers {
			if err := e.set(f, col+1, row, record[header]); err != nil {
				return nil, err
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write xlsx: %w", err)
	}
	return buf.Bytes(), nil
}

func (e *XLSXExporter) set(f *excelize.File, col, row int, value string) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return fmt.Errorf("cell name: %w", err)
	}
	if err := f.SetCellValue(e.sheet, cell, value); err != nil {
		return fmt.Errorf("set cell %s: %w", cell, err)
	}
	return nil
}
