// Package classify assigns semantic roles to statement columns.
//
// Classification is advisory: every result carries a confidence score and a
// human-readable justification for display, and a manual override always
// wins over whatever is suggested here.
package classify

import (
	"fmt"
	"strings"

	"github.com/rumor-ml/commons.systems/bankrecon/internal/amount"
	"github.com/rumor-ml/commons.systems/bankrecon/internal/dateparse"
	"github.com/rumor-ml/commons.systems/bankrecon/internal/table"
	"github.com/rumor-ml/commons.systems/bankrecon/internal/textnorm"
)

// sampleLimit caps how many values per column feed the content heuristics.
const sampleLimit = 10

// Classification is the advisory role suggestion for one column.
type Classification struct {
	Header        string
	Role          Role
	Confidence    float64
	Justification string
	Samples       []string
	// NeedsReview marks a mostly-numeric column that matched no keyword and
	// was defaulted to ignore pending manual mapping.
	NeedsReview bool
	// DateFormat is set for date-classified columns.
	DateFormat *dateparse.Detection
}

// Columns classifies every header independently against the keyword sets in
// priority order, then applies content heuristics: a date column runs format
// detection over its samples, a money column must have at least one sample
// the amount normalizer accepts, and a keyword-less numeric column becomes
// either a signed amount column (both signs observed) or an ignored column
// flagged for manual mapping.
func (c *Classifier) Columns(headers []string, sampleRows []table.RowMap) []Classification {
	out := make([]Classification, 0, len(headers))
	for _, h := range headers {
		out = append(out, c.classifyColumn(h, columnSamples(h, sampleRows)))
	}
	return out
}

func (c *Classifier) classifyColumn(header string, samples []string) Classification {
	cls := Classification{Header: header, Samples: samples}
	folded := textnorm.Fold(header)

	for _, set := range c.sets {
		kw, kind, ok := matchKeyword(folded, set.Keywords)
		if !ok {
			continue
		}
		cls.Role = set.Role
		if kind == "exact" {
			cls.Confidence = 0.95
			cls.Justification = fmt.Sprintf("header %q matches %s keyword %q", header, set.Role, kw)
		} else {
			cls.Confidence = 0.75
			cls.Justification = fmt.Sprintf("header %q contains %s keyword %q", header, set.Role, kw)
		}
		c.applyContentChecks(&cls)
		return cls
	}

	// No keyword matched: look at the content.
	numeric, negatives, positives := countNumeric(samples)
	switch {
	case len(samples) > 0 && numeric*2 > len(samples) && negatives > 0 && positives > 0:
		cls.Role = RoleAmount
		cls.Confidence = 0.7
		cls.Justification = fmt.Sprintf("no keyword match, but %d of %d samples are numeric with both signs present", numeric, len(samples))
	case len(samples) > 0 && numeric*2 > len(samples):
		cls.Role = RoleIgnore
		cls.Confidence = 0.3
		cls.NeedsReview = true
		cls.Justification = fmt.Sprintf("mostly numeric column (%d of %d samples) without a recognized header; map manually", numeric, len(samples))
	default:
		cls.Role = RoleIgnore
		cls.Confidence = 0.5
		cls.Justification = fmt.Sprintf("header %q matches no known column keyword", header)
	}
	return cls
}

// applyContentChecks adjusts a keyword-matched classification against the
// column's actual values.
func (c *Classifier) applyContentChecks(cls *Classification) {
	switch cls.Role {
	case RoleDate:
		if len(cls.Samples) == 0 {
			return
		}
		det := dateparse.DetectFormat(cls.Samples)
		cls.DateFormat = &det
		if det.Format == "" || det.Confidence == 0 {
			cls.Confidence = 0.4
			cls.Justification += "; no sample parsed as a date"
			return
		}
		cls.Justification += fmt.Sprintf("; samples parse as %s", det.Format)
	case RoleDebit, RoleCredit, RoleAmount, RoleBalance:
		if len(cls.Samples) == 0 {
			return
		}
		for _, s := range cls.Samples {
			if _, ok := amount.Parse(s); ok {
				return
			}
		}
		cls.Confidence -= 0.3
		if cls.Confidence < 0 {
			cls.Confidence = 0
		}
		cls.Justification += "; no sample parsed as an amount"
	}
}

// columnSamples collects up to sampleLimit non-blank values for one header.
func columnSamples(header string, rows []table.RowMap) []string {
	var out []string
	for _, row := range rows {
		v := strings.TrimSpace(row[header])
		if v == "" {
			continue
		}
		out = append(out, v)
		if len(out) == sampleLimit {
			break
		}
	}
	return out
}

// countNumeric reports how many samples the amount normalizer accepts and
// how the accepted values split by sign.
func countNumeric(samples []string) (numeric, negatives, positives int) {
	for _, s := range samples {
		d, ok := amount.Parse(s)
		if !ok {
			continue
		}
		numeric++
		if d.IsNegative() {
			negatives++
		} else if d.IsPositive() {
			positives++
		}
	}
	return numeric, negatives, positives
}
