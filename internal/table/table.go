// Package table turns CSV and XLSX byte streams into rectangular raw tables
// and resolves the spreadsheet artifacts (merged cells, sparse columns,
// duplicate rows) that bank exports are full of.
package table

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyInput is returned when a source contains zero non-blank rows.
var ErrEmptyInput = errors.New("input contains no data rows")

// Kind identifies the declared input format.
type Kind string

const (
	KindCSV  Kind = "csv"
	KindXLSX Kind = "xlsx"
)

// Grid is a rectangular array of raw cell values. Cells are carried as
// strings end to end; the amount and date layers own all typing. An empty
// string is a null cell.
type Grid [][]string

// RowMap maps header name to raw cell value for one data row.
type RowMap map[string]string

// ParsedTable is the typed view of a source after header detection: unique
// header names, one RowMap per data row, and the raw index the headers were
// found at.
type ParsedTable struct {
	Headers        []string
	Rows           []RowMap
	HeaderRowIndex int
}

// Build assembles a ParsedTable from a grid and a detected header row index.
// Header names are trimmed and disambiguated with a " (n)" suffix when the
// same name appears more than once. Every row gets a value (possibly empty)
// for every header.
func Build(grid Grid, headerRow int) (*ParsedTable, error) {
	if headerRow < 0 || headerRow >= len(grid) {
		return nil, fmt.Errorf("header row %d out of range for %d rows", headerRow, len(grid))
	}

	raw := grid[headerRow]
	width := len(raw)
	for _, row := range grid[headerRow+1:] {
		if len(row) > width {
			width = len(row)
		}
	}

	headers := make([]string, width)
	seen := make(map[string]int)
	for i := 0; i < width; i++ {
		name := ""
		if i < len(raw) {
			name = strings.TrimSpace(raw[i])
		}
		if name == "" {
			name = fmt.Sprintf("Column %d", i+1)
		}
		if n := seen[name]; n > 0 {
			seen[name] = n + 1
			name = fmt.Sprintf("%s (%d)", name, n+1)
		} else {
			seen[name] = 1
		}
		headers[i] = name
	}

	rows := make([]RowMap, 0, len(grid)-headerRow-1)
	for _, cells := range grid[headerRow+1:] {
		if rowIsBlank(cells) {
			continue
		}
		m := make(RowMap, width)
		for i, h := range headers {
			if i < len(cells) {
				m[h] = cells[i]
			} else {
				m[h] = ""
			}
		}
		rows = append(rows, m)
	}

	return &ParsedTable{
		Headers:        headers,
		Rows:           rows,
		HeaderRowIndex: headerRow,
	}, nil
}

// Column returns the values of the named header across all rows, in order.
func (t *ParsedTable) Column(header string) []string {
	out := make([]string, len(t.Rows))
	for i, row := range t.Rows {
		out[i] = row[header]
	}
	return out
}

func rowIsBlank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
