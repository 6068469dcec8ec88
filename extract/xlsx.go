package extract

import (
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/celluledoc/docflow/reconcile"
)

// =============================================================================
// WORKBOOK READER
// =============================================================================

// Reader reads one sheet of a workbook into a raw batch.
type Reader struct {
	// Sheet to read. Empty means the first sheet.
	Sheet string
}

func NewReader() *Reader {
	return &Reader{}
}

// ReadFile opens and reads the workbook at path.
func (r *Reader) ReadFile(path string) (reconcile.RawBatch, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return reconcile.RawBatch{}, fmt.Errorf("failed to open workbook %s: %w", path, err)
	}
	defer f.Close()
	return r.Read(f, filepath.Base(path))
}

// ReadFrom reads a workbook from a stream.
func (r *Reader) ReadFrom(src io.Reader, name string) (reconcile.RawBatch, error) {
	f, err := excelize.OpenReader(src)
	if err != nil {
		return reconcile.RawBatch{}, fmt.Errorf("failed to open workbook %s: %w", name, err)
	}
	defer f.Close()
	return r.Read(f, name)
}

// Read converts the sheet of an open workbook.
//
// Cells stored as strings become Text. Other cells become Number when
// their raw value parses as a decimal; date cells therefore arrive as
// spreadsheet serial numbers and are converted by Value.AsDate.
func (r *Reader) Read(f *excelize.File, source string) (reconcile.RawBatch, error) {
	sheet := r.Sheet
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return reconcile.RawBatch{}, fmt.Errorf("read sheet %q of %s: %w", sheet, source, err)
	}

	batch := reconcile.RawBatch{Source: source}
	if len(rows) == 0 {
		return batch, nil
	}

	header := headerNames(rows[0])
	for _, h := range header {
		if h != "" {
			batch.Columns = append(batch.Columns, h)
		}
	}

	for i, cells := range rows[1:] {
		if blank(cells) {
			continue
		}
		raw := make(reconcile.RawRow, len(batch.Columns))
		for col, name := range header {
			if name == "" {
				continue
			}
			if col >= len(cells) {
				raw[name] = reconcile.Null()
				continue
			}
			v, err := cellValue(f, sheet, col+1, i+2, cells[col])
			if err != nil {
				return reconcile.RawBatch{}, fmt.Errorf("read %s: %w", source, err)
			}
			raw[name] = v
		}
		batch.Rows = append(batch.Rows, raw)
	}
	return batch, nil
}

// headerNames trims header cells and suffixes repeated names with .1, .2
// so every column stays addressable.
func headerNames(cells []string) []string {
	out := make([]string, len(cells))
	seen := make(map[string]int, len(cells))
	for i, c := range cells {
		name := strings.TrimSpace(c)
		if name == "" {
			continue
		}
		if n := seen[name]; n > 0 {
			seen[name] = n + 1
			name = name + "." + strconv.Itoa(n)
		} else {
			seen[name] = 1
		}
		out[i] = name
	}
	return out
}

func blank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func cellValue(f *excelize.File, sheet string, col, row int, raw string) (reconcile.Value, error) {
	if strings.TrimSpace(raw) == "" {
		return reconcile.Null(), nil
	}
	axis, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return reconcile.Value{}, err
	}
	typ, err := f.GetCellType(sheet, axis)
	if err != nil {
		return reconcile.Value{}, err
	}
	switch typ {
	case excelize.CellTypeSharedString, excelize.CellTypeInlineString, excelize.CellTypeFormula:
		return reconcile.Text(raw), nil
	case excelize.CellTypeBool:
		return reconcile.Text(strings.ToUpper(strconv.FormatBool(raw == "1"))), nil
	}
	if d, err := decimal.NewFromString(strings.TrimSpace(raw)); err == nil {
		return reconcile.Number(d), nil
	}
	return reconcile.Text(raw), nil
}
