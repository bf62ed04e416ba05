// Package table reads uploaded workbooks into a plain header+rows form and
// locates semantically named columns whose header naming varies by upload
// source.
package table

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

// Table is the first sheet of an input workbook: one header row and the data
// rows below it. Cells are kept as strings; numeric interpretation happens at
// the call sites that need it.
type Table struct {
	Headers []string
	Rows    [][]string
}

// ReadWorkbook loads the first sheet of an .xlsx file.
func ReadWorkbook(path string) (*Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return &Table{}, nil
	}
	return &Table{Headers: rows[0], Rows: rows[1:]}, nil
}

// Cell returns the cell at (row, col) or "" when the row is ragged short.
// excelize trims trailing empty cells per row, so short rows are normal.
func (t *Table) Cell(row, col int) string {
	if row < 0 || row >= len(t.Rows) || col < 0 {
		return ""
	}
	r := t.Rows[row]
	if col >= len(r) {
		return ""
	}
	return r[col]
}

// Len returns the number of data rows.
func (t *Table) Len() int {
	return len(t.Rows)
}
