// Package dateparse detects and parses the date formats found in bank
// statement exports.
//
// The format catalogue keeps day-first and month-first orderings as distinct
// tags, because "01/02/2024" is a different date under each and silently
// merging them hides the ambiguity from the caller. Detection scores every
// tag against a sample of values; parsing under a chosen tag never throws,
// it reports failure through its ok result.
package dateparse

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Tag identifies a date format in the catalogue.
type Tag string

const (
	TagDMY      Tag = "dd/mm/yyyy"
	TagMDY      Tag = "mm/dd/yyyy"
	TagYMD      Tag = "yyyy-mm-dd"
	TagDMYShort Tag = "dd/mm/yy"
	TagMDYShort Tag = "mm/dd/yy"
	TagDMonY    Tag = "dd mmm yyyy"
)

// entry is one catalogue row: a regex over the raw string plus the capture
// group positions of each date component. Datetime variants precede their
// date-only counterparts so "31/01/2024 14:05" resolves before the bare-date
// regex gets a chance to reject it.
type entry struct {
	tag      Tag
	datetime bool
	re       *regexp.Regexp
	day      int // capture group index
	month    int
	year     int
	monName  bool // month group is a name, not a number
	shortYr  bool
}

var catalogue = []entry{
	{tag: TagDMY, datetime: true, re: regexp.MustCompile(`^(\d{1,2})[\/\-.](\d{1,2})[\/\-.](\d{4})[ T](\d{1,2}):(\d{2})(?::(\d{2}))?$`), day: 1, month: 2, year: 3},
	{tag: TagMDY, datetime: true, re: regexp.MustCompile(`^(\d{1,2})[\/\-.](\d{1,2})[\/\-.](\d{4})[ T](\d{1,2}):(\d{2})(?::(\d{2}))?$`), month: 1, day: 2, year: 3},
	{tag: TagYMD, datetime: true, re: regexp.MustCompile(`^(\d{4})[\/\-.](\d{1,2})[\/\-.](\d{1,2})[ T](\d{1,2}):(\d{2})(?::(\d{2}))?$`), year: 1, month: 2, day: 3},
	{tag: TagDMY, re: regexp.MustCompile(`^(\d{1,2})[\/\-.](\d{1,2})[\/\-.](\d{4})$`), day: 1, month: 2, year: 3},
	{tag: TagMDY, re: regexp.MustCompile(`^(\d{1,2})[\/\-.](\d{1,2})[\/\-.](\d{4})$`), month: 1, day: 2, year: 3},
	{tag: TagYMD, re: regexp.MustCompile(`^(\d{4})[\/\-.](\d{1,2})[\/\-.](\d{1,2})$`), year: 1, month: 2, day: 3},
	{tag: TagDMonY, re: regexp.MustCompile(`(?i)^(\d{1,2})[ \-]([a-z]{3,9})[ \-](\d{4})$`), day: 1, month: 2, year: 3, monName: true},
	{tag: TagDMYShort, re: regexp.MustCompile(`^(\d{1,2})[\/\-.](\d{1,2})[\/\-.](\d{2})$`), day: 1, month: 2, year: 3, shortYr: true},
	{tag: TagMDYShort, re: regexp.MustCompile(`^(\d{1,2})[\/\-.](\d{1,2})[\/\-.](\d{2})$`), month: 1, day: 2, year: 3, shortYr: true},
}

var monthNames = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March,
	"apr": time.April, "may": time.May, "jun": time.June,
	"jul": time.July, "aug": time.August, "sep": time.September,
	"oct": time.October, "nov": time.November, "dec": time.December,
}

// maxSamples caps how many values detection inspects.
const maxSamples = 10

// Detection is the result of format detection over a sample of values.
type Detection struct {
	Format     Tag
	Confidence float64
	Warnings   []string
}

// DetectFormat infers the most likely date format from up to ten non-blank
// samples. Each catalogue tag is scored by parse successes over regex
// matches; ties prefer the tag whose regex matched more samples, then
// catalogue order (day-first before month-first, matching the statement
// sources this engine sees).
//
// When the winner is a day/month-ambiguous tag and at least one sample could
// be read either way, a warning names the chosen interpretation so a human
// can override it.
func DetectFormat(samples []string) Detection {
	trimmed := make([]string, 0, maxSamples)
	for _, s := range samples {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		trimmed = append(trimmed, s)
		if len(trimmed) == maxSamples {
			break
		}
	}
	if len(trimmed) == 0 {
		return Detection{}
	}

	type score struct {
		tried   int
		success int
	}
	scores := make(map[Tag]*score)
	var order []Tag
	for _, e := range catalogue {
		if _, ok := scores[e.tag]; !ok {
			scores[e.tag] = &score{}
			order = append(order, e.tag)
		}
	}

	for _, s := range trimmed {
		for _, e := range catalogue {
			m := e.re.FindStringSubmatch(s)
			if m == nil {
				continue
			}
			sc := scores[e.tag]
			sc.tried++
			if _, ok := e.build(m); ok {
				sc.success++
			}
		}
	}

	var best Tag
	bestScore := -1.0
	bestTried := 0
	for _, tag := range order {
		sc := scores[tag]
		if sc.tried == 0 {
			continue
		}
		ratio := float64(sc.success) / float64(sc.tried)
		if ratio > bestScore || (ratio == bestScore && sc.tried > bestTried) {
			best = tag
			bestScore = ratio
			bestTried = sc.tried
		}
	}
	if bestScore < 0 {
		return Detection{}
	}

	det := Detection{Format: best, Confidence: bestScore}
	if isDayMonthAmbiguous(best) && anySampleAmbiguous(trimmed) {
		det.Warnings = append(det.Warnings,
			"day and month are both 12 or less in at least one value; interpreting as "+string(best))
	}
	return det
}

// Parse parses a single value under an explicitly chosen format tag, trying
// the tag's datetime variant before its date-only variant, then falling back
// to the whole catalogue. The ok result is false when nothing matched;
// callers must treat that as "unparseable", never as an error.
func Parse(value string, format Tag) (time.Time, bool) {
	s := strings.TrimSpace(value)
	if s == "" {
		return time.Time{}, false
	}
	for _, e := range catalogue {
		if e.tag != format {
			continue
		}
		if m := e.re.FindStringSubmatch(s); m != nil {
			if t, ok := e.build(m); ok {
				return t, true
			}
		}
	}
	// Fallback: any catalogue entry that can make sense of the value.
	for _, e := range catalogue {
		if e.tag == format {
			continue
		}
		if m := e.re.FindStringSubmatch(s); m != nil {
			if t, ok := e.build(m); ok {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

// build constructs a calendar date from regex captures, validating that the
// components form a real date.
func (e entry) build(m []string) (time.Time, bool) {
	day, err := strconv.Atoi(m[e.day])
	if err != nil {
		return time.Time{}, false
	}

	var month time.Month
	if e.monName {
		mon, ok := monthNames[strings.ToLower(m[e.month])[:3]]
		if !ok {
			return time.Time{}, false
		}
		month = mon
	} else {
		n, err := strconv.Atoi(m[e.month])
		if err != nil || n < 1 || n > 12 {
			return time.Time{}, false
		}
		month = time.Month(n)
	}

	year, err := strconv.Atoi(m[e.year])
	if err != nil {
		return time.Time{}, false
	}
	if e.shortYr {
		year = expandYear(year)
	}

	if day < 1 || day > 31 {
		return time.Time{}, false
	}
	t := time.Date(year, month, day, 0, 0, 0, 0, time.Local)
	// time.Date normalizes Feb 30 into March; reject anything that moved.
	if t.Day() != day || t.Month() != month || t.Year() != year {
		return time.Time{}, false
	}
	return t, true
}

// expandYear maps 2-digit years: 00-29 into the 2000s, 30-99 into the 1900s.
func expandYear(y int) int {
	if y <= 29 {
		return 2000 + y
	}
	return 1900 + y
}

func isDayMonthAmbiguous(tag Tag) bool {
	switch tag {
	case TagDMY, TagMDY, TagDMYShort, TagMDYShort:
		return true
	}
	return false
}

var firstTwoGroups = regexp.MustCompile(`^(\d{1,2})[\/\-.](\d{1,2})[\/\-.]`)

// anySampleAmbiguous reports whether any sample's first two numeric groups
// are both valid months, i.e. readable under either ordering.
func anySampleAmbiguous(samples []string) bool {
	for _, s := range samples {
		m := firstTwoGroups.FindStringSubmatch(s)
		if m == nil {
			continue
		}
		a, _ := strconv.Atoi(m[1])
		b, _ := strconv.Atoi(m[2])
		if a >= 1 && a <= 12 && b >= 1 && b <= 12 {
			return true
		}
	}
	return false
}
