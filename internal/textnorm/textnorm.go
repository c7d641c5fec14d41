// Package textnorm folds header and keyword text into a comparable form.
//
// Vietnamese bank exports mix diacritics ("Ngày", "Ghi nợ") with plain ASCII
// ("Ngay") depending on which tool produced the file, so keyword matching
// happens on a folded form: lowercase, diacritics stripped, đ mapped to d,
// runs of whitespace collapsed.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Fold returns the canonical comparable form of s.
func Fold(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	folded, _, err := transform.String(stripMarks, s)
	if err != nil {
		// Fall back to the lowercased input; a partial fold still matches
		// the ASCII keywords.
		folded = s
	}
	folded = strings.ReplaceAll(folded, "đ", "d")
	return strings.Join(strings.Fields(folded), " ")
}

// ContainsWord reports whether phrase occurs in s on word boundaries, so the
// credit keyword "co" matches "ghi co" but not "cot 7". Both arguments are
// expected to already be folded.
func ContainsWord(s, phrase string) bool {
	if phrase == "" {
		return false
	}
	for idx := 0; ; {
		i := strings.Index(s[idx:], phrase)
		if i < 0 {
			return false
		}
		i += idx
		startOK := i == 0 || s[i-1] == ' '
		end := i + len(phrase)
		endOK := end == len(s) || s[end] == ' '
		if startOK && endOK {
			return true
		}
		idx = i + 1
	}
}
