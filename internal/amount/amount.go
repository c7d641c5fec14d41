// Package amount normalizes locale-ambiguous numeric strings from bank
// statements into decimal values.
//
// Bank exports disagree on separators: "1.000" is one thousand in a
// Vietnamese export and one point zero in a US one. The rules here resolve
// that from the string itself, so a caller never has to declare a locale.
package amount

import (
	"strings"

	"github.com/shopspring/decimal"
)

// currencyGlyphs are stripped before numeric parsing.
const currencyGlyphs = "₫$€£¥"

// dashFamily are the characters that, alone, mean "no value" in a statement
// cell: hyphen-minus, en dash, em dash, minus sign.
var dashFamily = map[string]struct{}{
	"-": {}, "–": {}, "—": {}, "−": {},
}

// Parse converts a raw statement cell into a signed decimal.
// The second return value is false when the cell carries no numeric value
// (blank, dash placeholder, or unparseable text). Parse never fails hard;
// garbage in means (0, false) out.
func Parse(raw string) (decimal.Decimal, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.Decimal{}, false
	}
	if _, ok := dashFamily[s]; ok {
		return decimal.Decimal{}, false
	}

	// Parenthesized values are accountant-negative: (1500) == -1500.
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	// Unicode minus variants in front of a number.
	for _, dash := range []string{"−", "–", "—"} {
		if strings.HasPrefix(s, dash) {
			negative = !negative
			s = strings.TrimPrefix(s, dash)
			break
		}
	}

	for _, g := range currencyGlyphs {
		s = strings.ReplaceAll(s, string(g), "")
	}
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, " ", "")
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Decimal{}, false
	}

	s = resolveSeparators(s)

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, false
	}
	if negative {
		d = d.Neg()
	}
	return d, true
}

// ParseOptional is Parse for nullable cells, returning nil when the cell
// carries no value.
func ParseOptional(raw string) *decimal.Decimal {
	d, ok := Parse(raw)
	if !ok {
		return nil
	}
	return &d
}

// resolveSeparators rewrites a numeric string so that "." is the only decimal
// separator and no thousands separators remain.
//
// Rules, in order:
//  1. A separator that occurs more than once is a thousands separator.
//  2. If both "." and "," remain exactly once, the later one is the decimal
//     separator and the earlier one is thousands.
//  3. A single remaining separator is thousands iff exactly three digits
//     follow it; otherwise it is the decimal separator.
func resolveSeparators(s string) string {
	dots := strings.Count(s, ".")
	commas := strings.Count(s, ",")

	if dots > 1 {
		s = strings.ReplaceAll(s, ".", "")
		dots = 0
	}
	if commas > 1 {
		s = strings.ReplaceAll(s, ",", "")
		commas = 0
	}

	switch {
	case dots == 1 && commas == 1:
		if strings.LastIndex(s, ".") > strings.LastIndex(s, ",") {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.ReplaceAll(s, ",", ".")
		}
	case dots == 1:
		if isThousandsPosition(s, ".") {
			s = strings.ReplaceAll(s, ".", "")
		}
	case commas == 1:
		if isThousandsPosition(s, ",") {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.ReplaceAll(s, ",", ".")
		}
	}
	return s
}

// isThousandsPosition reports whether exactly three digits follow the single
// occurrence of sep, which marks it as a thousands separator.
func isThousandsPosition(s, sep string) bool {
	idx := strings.Index(s, sep)
	tail := s[idx+len(sep):]
	if len(tail) != 3 {
		return false
	}
	for _, r := range tail {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
