// Package header locates the column-header row inside a raw statement table.
//
// Bank exports rarely put headers at row 0: title banners, account metadata
// and summary lines come first. Candidate rows are scored by a declarative
// rule table; the highest score wins and ties keep the earliest row, so
// adding support for a new bank format means extending a table, not adding
// branches.
package header

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/rumor-ml/commons.systems/bankrecon/internal/table"
	"github.com/rumor-ml/commons.systems/bankrecon/internal/textnorm"
)

// Scan depth per source kind. XLSX exports front-load less metadata than the
// CSV dumps some banks produce.
const (
	MaxScanRowsCSV  = 30
	MaxScanRowsXLSX = 20
)

// closeSupersetSlack is how many extra characters a cell may carry beyond a
// keyword and still count as a header label ("Ngày giao dịch" vs "ngày").
const closeSupersetSlack = 10

// keywords are folded header labels, bilingual EN/VN.
var keywords = []string{
	"date", "ngay", "ngay giao dich", "ngay hieu luc", "ngay hach toan",
	"description", "dien giai", "chi tiet", "noi dung", "noi dung giao dich",
	"debit", "ghi no", "no", "phat sinh no", "withdrawal",
	"credit", "ghi co", "co", "phat sinh co", "deposit",
	"balance", "so du", "so du cuoi", "running balance",
	"reference", "so but toan", "ma giao dich", "so giao dich",
	"account", "tai khoan", "so tai khoan",
	"bank", "ngan hang",
	"fee", "phi",
	"interest", "lai suat", "lai",
	"branch", "chi nhanh", "noi thuc hien",
	"amount", "so tien",
	"currency", "loai tien",
	"doi tac", "nguoi gui", "nguoi nhan",
	"transaction", "giao dich",
}

// strongIndicators almost never appear in data rows.
var strongIndicators = []string{"stt", "no.", "#", "ma thanh toan"}

var (
	datePattern   = regexp.MustCompile(`\d{1,2}[\/\-.]\d{1,2}[\/\-.]\d{2,4}`)
	bareIDPattern = regexp.MustCompile(`^#?\d{5,}$`)
)

// candidate is the precomputed view of one row that rules score against.
type candidate struct {
	index         int
	cells         []string // raw trimmed cells
	folded        []string // folded non-empty cells, positions kept
	nonEmpty      int
	keywordHits   int
	strongHit     bool
	dateHit       bool
	bareIDHit     bool
	longCellHit   bool
	numericCells  int
	altKeyValueKV bool
}

// rule scores one aspect of a candidate row. score returns the signed
// contribution, already weighted.
type rule struct {
	name  string
	score func(c candidate) int
}

// rules is the scoring table. Weights match the detection behavior the
// supported bank formats were tuned against; extend the keyword tables, not
// this list, for new formats.
var rules = []rule{
	{name: "keyword-cells", score: func(c candidate) int { return 3 * c.keywordHits }},
	{name: "strong-indicator", score: ifRule(func(c candidate) bool { return c.strongHit }, 15)},
	{name: "too-few-keywords", score: ifRule(func(c candidate) bool { return c.keywordHits < 2 }, -20)},
	{name: "date-cell", score: ifRule(func(c candidate) bool { return c.dateHit }, -30)},
	{name: "bare-id-cell", score: ifRule(func(c candidate) bool { return c.bareIDHit }, -25)},
	{name: "long-text-cell", score: ifRule(func(c candidate) bool { return c.longCellHit }, -15)},
	{name: "wide-row", score: ifRule(func(c candidate) bool { return c.nonEmpty >= 5 }, 3)},
	{name: "very-wide-row", score: ifRule(func(c candidate) bool { return c.nonEmpty >= 8 }, 3)},
	{name: "first-row-bias", score: ifRule(func(c candidate) bool { return c.index == 0 && c.keywordHits >= 2 }, 5)},
	{name: "metadata-key-value", score: ifRule(func(c candidate) bool { return c.altKeyValueKV }, -10)},
	{name: "mostly-numeric", score: ifRule(func(c candidate) bool { return 2*c.numericCells > c.nonEmpty }, -10)},
}

func ifRule(pred func(candidate) bool, weight int) func(candidate) int {
	return func(c candidate) int {
		if pred(c) {
			return weight
		}
		return 0
	}
}

// Result reports the located header row and the per-row scores that led to
// it, for diagnostics.
type Result struct {
	Index  int
	Score  int
	Scores map[int]int
}

// Locate scores the first maxRows rows of the grid and returns the most
// header-like one. Rows with fewer than three non-empty cells are never
// candidates. When nothing scores above the floor, row 0 is assumed.
func Locate(grid table.Grid, maxRows int) Result {
	if maxRows > len(grid) {
		maxRows = len(grid)
	}

	best := Result{Index: 0, Score: minScore, Scores: make(map[int]int)}
	for i := 0; i < maxRows; i++ {
		c := newCandidate(i, grid[i])
		if c.nonEmpty < 3 {
			continue
		}
		score := 0
		for _, r := range rules {
			score += r.score(c)
		}
		best.Scores[i] = score
		if score > best.Score {
			best.Index = i
			best.Score = score
		}
	}
	return best
}

// minScore is the floor below which no row is considered located; Locate
// then defaults to row 0.
const minScore = -1 << 30

func newCandidate(index int, cells []string) candidate {
	c := candidate{index: index}
	c.cells = make([]string, len(cells))
	c.folded = make([]string, len(cells))
	for i, cell := range cells {
		trimmed := strings.TrimSpace(cell)
		c.cells[i] = trimmed
		if trimmed == "" {
			continue
		}
		c.nonEmpty++
		folded := textnorm.Fold(trimmed)
		c.folded[i] = folded

		if matchesKeyword(folded) {
			c.keywordHits++
		}
		if isStrongIndicator(folded) {
			c.strongHit = true
		}
		if datePattern.MatchString(trimmed) {
			c.dateHit = true
		}
		if bareIDPattern.MatchString(trimmed) {
			c.bareIDHit = true
		}
		if len([]rune(trimmed)) > 40 {
			c.longCellHit = true
		}
		if isPureNumber(trimmed) {
			c.numericCells++
		}
	}
	c.altKeyValueKV = looksLikeKeyValueList(c.cells)
	return c
}

// matchesKeyword reports whether a folded cell equals a keyword or is a
// close superset of one (at most ten extra characters).
func matchesKeyword(folded string) bool {
	for _, kw := range keywords {
		if folded == kw {
			return true
		}
		if textnorm.ContainsWord(folded, kw) && len(folded)-len(kw) <= closeSupersetSlack {
			return true
		}
	}
	return false
}

func isStrongIndicator(folded string) bool {
	for _, s := range strongIndicators {
		if folded == s {
			return true
		}
	}
	return false
}

func isPureNumber(s string) bool {
	cleaned := strings.NewReplacer(",", "", ".", "", " ", "").Replace(s)
	if cleaned == "" {
		return false
	}
	_, err := strconv.ParseFloat(cleaned, 64)
	return err == nil
}

// looksLikeKeyValueList detects alternating metadata rows like
// ("Account:", "0123", "Currency:", "VND"): an even number of at least four
// columns where every odd-indexed cell is short and unstructured.
func looksLikeKeyValueList(cells []string) bool {
	trimmed := make([]string, 0, len(cells))
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			trimmed = append(trimmed, strings.TrimSpace(c))
		}
	}
	if len(trimmed) < 4 || len(trimmed)%2 != 0 {
		return false
	}
	for i := 1; i < len(trimmed); i += 2 {
		v := trimmed[i]
		if len([]rune(v)) > 30 || strings.ContainsAny(v, "\n\t") {
			return false
		}
	}
	return true
}
