// Package sheet reads and writes the header-keyed spreadsheets that carry
// candidates between pipeline stages.
package sheet

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Table is the first sheet of a workbook, addressed by header name.
type Table struct {
	cols map[string]int
	rows [][]string
}

// Read loads the first sheet of path. The first row is the header.
func Read(path string) (*Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	rows, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	t := &Table{cols: make(map[string]int)}
	if len(rows) == 0 {
		return t, nil
	}
	for i, h := range rows[0] {
		t.cols[strings.TrimSpace(h)] = i
	}
	t.rows = rows[1:]
	return t, nil
}

// Has reports whether the header names col.
func (t *Table) Has(col string) bool {
	_, ok := t.cols[col]
	return ok
}

// Len is the number of data rows.
func (t *Table) Len() int {
	return len(t.rows)
}

// Get returns the trimmed cell of data row i under col, or "" when absent.
func (t *Table) Get(i int, col string) string {
	c, ok := t.cols[col]
	if !ok || i < 0 || i >= len(t.rows) || c >= len(t.rows[i]) {
		return ""
	}
	return strings.TrimSpace(t.rows[i][c])
}

// Write replaces path with a workbook holding header and rows.
func Write(path string, header []string, rows [][]any) error {
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)

	if err := setRow(f, sheet, 1, toAny(header)); err != nil {
		return err
	}
	for i, row := range rows {
		if err := setRow(f, sheet, i+2, row); err != nil {
			return err
		}
	}
	return save(f, path)
}

// Append adds row to the workbook at path, creating it with header first
// when it does not exist. Callers serialize appends to the same file.
func Append(path string, header []string, row []any) error {
	f, err := excelize.OpenFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return Write(path, header, [][]any{row})
	case err != nil:
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	rows, err := f.GetRows(sheet)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if len(rows) == 0 {
		if err := setRow(f, sheet, 1, toAny(header)); err != nil {
			return err
		}
		rows = append(rows, header)
	}
	if err := setRow(f, sheet, len(rows)+1, row); err != nil {
		return err
	}
	return save(f, path)
}

func setRow(f *excelize.File, sheet string, n int, row []any) error {
	addr, err := excelize.CoordinatesToCellName(1, n)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, addr, &row); err != nil {
		return fmt.Errorf("failed to write row %d: %w", n, err)
	}
	return nil
}

// save writes through a temporary workbook so readers never see a partial file.
func save(f *excelize.File, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	tmp := filepath.Join(filepath.Dir(path), ".tmp-"+filepath.Base(path))
	if err := f.SaveAs(tmp); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
