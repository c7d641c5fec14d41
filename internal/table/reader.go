package table

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ReadCSV decodes CSV bytes into a raw grid, still including any title and
// metadata rows above the eventual header. The reader is quote-aware: quoted
// fields may contain delimiters and newlines verbatim, and "" is an escaped
// quote. Blank lines are dropped.
func ReadCSV(data []byte) (Grid, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.LazyQuotes = true
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1

	var grid Grid
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV content: %w", err)
		}
		if rowIsBlank(record) {
			continue
		}
		grid = append(grid, record)
	}
	if len(grid) == 0 {
		return nil, ErrEmptyInput
	}
	return grid, nil
}

// MergeRange is a merged cell region in grid coordinates (0-based, inclusive
// bounds) carrying the top-left cell's value.
type MergeRange struct {
	StartRow, StartCol int
	EndRow, EndCol     int
	Value              string
}

// XLSXDoc is the raw decode of one worksheet: the cell grid as excelize
// renders it (merged ranges populate only their top-left cell) plus the
// declared merge ranges, which MergedCellResolver consumes afterwards.
type XLSXDoc struct {
	Sheet  string
	Grid   Grid
	Merges []MergeRange
}

// ReadXLSX decodes the named worksheet (or the first one when sheet is
// empty) into an XLSXDoc. Rows are array-of-arrays so positional alignment
// with header detection is preserved.
func ReadXLSX(data []byte, sheet string) (*XLSXDoc, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("workbook has no sheets: %w", ErrEmptyInput)
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}

	grid := make(Grid, 0, len(rows))
	nonBlank := 0
	for _, row := range rows {
		cells := make([]string, len(row))
		for i, c := range row {
			cells[i] = strings.TrimRight(c, " ")
		}
		if !rowIsBlank(cells) {
			nonBlank++
		}
		grid = append(grid, cells)
	}
	if nonBlank == 0 {
		return nil, ErrEmptyInput
	}

	merged, err := f.GetMergeCells(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read merge metadata for %q: %w", sheet, err)
	}
	merges := make([]MergeRange, 0, len(merged))
	for _, mc := range merged {
		startCol, startRow, err := excelize.CellNameToCoordinates(mc.GetStartAxis())
		if err != nil {
			continue
		}
		endCol, endRow, err := excelize.CellNameToCoordinates(mc.GetEndAxis())
		if err != nil {
			continue
		}
		merges = append(merges, MergeRange{
			StartRow: startRow - 1,
			StartCol: startCol - 1,
			EndRow:   endRow - 1,
			EndCol:   endCol - 1,
			Value:    mc.GetCellValue(),
		})
	}

	return &XLSXDoc{Sheet: sheet, Grid: grid, Merges: merges}, nil
}
