package table

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/rumor-ml/commons.systems/bankrecon/internal/textnorm"
)

// forwardFillThreshold is the fraction of empty data-row cells above which a
// column is treated as vertically merged and forward-filled.
const forwardFillThreshold = 0.2

// Resolve applies merged-cell resolution to a decoded worksheet:
//
//  1. Unmerge: copy each merged range's value into every cell of the range.
//     Ranges that lie entirely above the header row are left alone so title
//     and metadata text does not bleed into data columns.
//  2. Forward-fill: a column whose data rows are more than 20% empty has each
//     empty cell filled with the nearest previous non-empty value.
//  3. Drop fully empty rows.
//  4. Drop the redundant twin of a horizontally merged header column when its
//     values are byte-identical across every non-footer data row.
//  5. Drop exact-duplicate data rows (first occurrence wins).
//
// headerRow is the 0-based index located on the raw grid; footers are folded
// phrases that mark trailing summary rows. Resolve returns the cleaned grid
// and the header row's index within it.
func Resolve(doc *XLSXDoc, headerRow int, footers []string) (Grid, int) {
	grid := cloneGrid(doc.Grid)

	// Step 1: unmerge at or below the header row.
	for _, m := range doc.Merges {
		if m.EndRow < headerRow {
			continue
		}
		for r := max(m.StartRow, 0); r <= m.EndRow && r < len(grid); r++ {
			grid[r] = padRow(grid[r], m.EndCol+1)
			for c := m.StartCol; c <= m.EndCol; c++ {
				grid[r][c] = m.Value
			}
		}
	}

	// Step 2: forward-fill sparse columns below the header.
	width := 0
	for _, row := range grid {
		if len(row) > width {
			width = len(row)
		}
	}
	dataRows := len(grid) - headerRow - 1
	if dataRows > 0 {
		for c := 0; c < width; c++ {
			empty := 0
			for r := headerRow + 1; r < len(grid); r++ {
				if cellAt(grid, r, c) == "" {
					empty++
				}
			}
			if float64(empty)/float64(dataRows) <= forwardFillThreshold {
				continue
			}
			last := ""
			for r := headerRow + 1; r < len(grid); r++ {
				v := cellAt(grid, r, c)
				if v == "" {
					if last != "" {
						grid[r] = padRow(grid[r], c+1)
						grid[r][c] = last
					}
					continue
				}
				last = v
			}
		}
	}

	// Step 3: drop fully empty rows, tracking where the header lands.
	kept := make(Grid, 0, len(grid))
	newHeader := headerRow
	for i, row := range grid {
		if rowIsBlank(row) {
			if i < headerRow {
				newHeader--
			}
			continue
		}
		kept = append(kept, row)
	}
	grid = kept
	if newHeader < 0 || newHeader >= len(grid) {
		return grid, 0
	}

	// Step 4: collapse duplicate header columns produced by horizontal
	// merges, but only when proven byte-identical outside footer rows.
	grid = dedupColumns(grid, newHeader, footers)

	// Step 5: drop exact-duplicate data rows.
	seen := make(map[string]struct{})
	out := grid[:newHeader+1]
	for _, row := range grid[newHeader+1:] {
		h := rowHash(row)
		if _, dup := seen[h]; dup {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, row)
	}

	return out, newHeader
}

// dedupColumns removes the later of two identically-named columns when every
// non-footer data row holds byte-identical values in both.
func dedupColumns(grid Grid, headerRow int, footers []string) Grid {
	header := grid[headerRow]
	drop := make(map[int]bool)
	byName := make(map[string]int)
	for c, name := range header {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		first, dup := byName[name]
		if !dup {
			byName[name] = c
			continue
		}
		identical := true
		for r := headerRow + 1; r < len(grid); r++ {
			if isFooterRow(grid[r], footers) {
				continue
			}
			if cellAt(grid, r, first) != cellAt(grid, r, c) {
				identical = false
				break
			}
		}
		if identical {
			drop[c] = true
		}
	}
	if len(drop) == 0 {
		return grid
	}

	out := make(Grid, len(grid))
	for r, row := range grid {
		cells := make([]string, 0, len(row))
		for c := range row {
			if drop[c] {
				continue
			}
			cells = append(cells, row[c])
		}
		out[r] = cells
	}
	return out
}

// isFooterRow reports whether any cell matches a known trailing summary
// phrase, e.g. "total" or "tổng phát sinh".
func isFooterRow(row []string, footers []string) bool {
	for _, cell := range row {
		folded := textnorm.Fold(cell)
		if folded == "" {
			continue
		}
		for _, f := range footers {
			if strings.Contains(folded, f) {
				return true
			}
		}
	}
	return false
}

// rowHash fingerprints a row for duplicate detection.
func rowHash(row []string) string {
	h := sha256.New()
	for _, cell := range row {
		h.Write([]byte(strings.TrimSpace(cell)))
		h.Write([]byte{0x1f})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func cloneGrid(g Grid) Grid {
	out := make(Grid, len(g))
	for i, row := range g {
		out[i] = append([]string(nil), row...)
	}
	return out
}

func padRow(row []string, width int) []string {
	for len(row) < width {
		row = append(row, "")
	}
	return row
}

func cellAt(g Grid, r, c int) string {
	if c >= len(g[r]) {
		return ""
	}
	return strings.TrimSpace(g[r][c])
}
