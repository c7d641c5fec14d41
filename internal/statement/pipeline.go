// Package statement orchestrates the parsing pipeline: raw bytes in,
// candidate transactions plus a suggested balance checkpoint out.
//
// Everything this package produces is advisory until an import is committed:
// column roles can be overridden, the date format can be corrected, and rows
// with problems are returned flagged rather than dropped, so a human sees
// exactly what the heuristics decided before anything touches the ledger.
package statement

import (
	"context"
	"fmt"

	"github.com/rumor-ml/commons.systems/bankrecon/internal/amount"
	"github.com/rumor-ml/commons.systems/bankrecon/internal/classify"
	"github.com/rumor-ml/commons.systems/bankrecon/internal/dateparse"
	"github.com/rumor-ml/commons.systems/bankrecon/internal/diag"
	"github.com/rumor-ml/commons.systems/bankrecon/internal/domain"
	"github.com/rumor-ml/commons.systems/bankrecon/internal/header"
	"github.com/rumor-ml/commons.systems/bankrecon/internal/table"
	"github.com/rumor-ml/commons.systems/bankrecon/internal/textnorm"
	"github.com/shopspring/decimal"
)

// Options control a single parse. The zero value is a full-heuristic run on
// the first sheet with the embedded keyword sets.
type Options struct {
	// Sheet names the worksheet to read; empty means the first one. Ignored
	// for CSV.
	Sheet string
	// Overrides maps header name to role and always wins over
	// classification.
	Overrides map[string]classify.Role
	// DateFormat forces the date format instead of detecting it.
	DateFormat dateparse.Tag
	// Classifier supplies custom keyword sets; nil loads the embedded ones.
	Classifier *classify.Classifier
}

// Result is everything one statement parse produced.
type Result struct {
	Table       *table.ParsedTable
	Columns     []classify.Classification
	DateFormat  dateparse.Detection
	Candidates  []domain.CandidateTransaction
	Metadata    Metadata
	Diagnostics []diag.Entry
}

// Parse runs the full ingestion pipeline over one file.
//
// For XLSX sources header detection runs twice: once on the raw still-merged
// grid to get an approximate index, which then gates merged-cell resolution,
// after which the table is rebuilt around the header's final position.
func Parse(ctx context.Context, data []byte, kind table.Kind, opts Options) (*Result, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	classifier := opts.Classifier
	if classifier == nil {
		var err error
		classifier, err = classify.LoadEmbedded()
		if err != nil {
			return nil, err
		}
	}

	sink := &diag.Sink{}

	var (
		grid      table.Grid
		headerRow int
	)
	switch kind {
	case table.KindCSV:
		var err error
		grid, err = table.ReadCSV(data)
		if err != nil {
			return nil, err
		}
		res := header.Locate(grid, header.MaxScanRowsCSV)
		headerRow = res.Index
		sink.Infof("header", "header row located at index %d (score %d)", res.Index, res.Score)
	case table.KindXLSX:
		doc, err := table.ReadXLSX(data, opts.Sheet)
		if err != nil {
			return nil, err
		}
		// First pass on the raw grid to gate merge resolution.
		approx := header.Locate(doc.Grid, header.MaxScanRowsXLSX)
		sink.Infof("header", "approximate header row %d on raw grid (score %d)", approx.Index, approx.Score)
		grid, headerRow = table.Resolve(doc, approx.Index, classifier.Footers())
		sink.Infof("merge", "resolved %d merge ranges, %d rows after cleanup", len(doc.Merges), len(grid))
	default:
		return nil, fmt.Errorf("unsupported input kind %q", kind)
	}

	tbl, err := table.Build(grid, headerRow)
	if err != nil {
		return nil, err
	}
	if len(tbl.Rows) == 0 {
		return nil, fmt.Errorf("no data rows below header row %d: %w", headerRow, table.ErrEmptyInput)
	}

	cols := classifier.Columns(tbl.Headers, tbl.Rows)
	applyOverrides(cols, opts.Overrides, sink)
	for _, c := range cols {
		if c.NeedsReview {
			sink.Warnf("classify", "column %q: %s", c.Header, c.Justification)
		}
	}

	roles := newRoleMap(cols)
	detection := resolveDateFormat(roles, opts.DateFormat, sink)

	candidates := buildCandidates(tbl, roles, detection.Format, classifier.Footers(), sink)
	meta := extractMetadata(tbl, roles, detection.Format)

	return &Result{
		Table:       tbl,
		Columns:     cols,
		DateFormat:  detection,
		Candidates:  candidates,
		Metadata:    meta,
		Diagnostics: sink.Entries(),
	}, nil
}

// applyOverrides replaces suggested roles with caller-supplied ones. A
// manual override always wins.
func applyOverrides(cols []classify.Classification, overrides map[string]classify.Role, sink *diag.Sink) {
	if len(overrides) == 0 {
		return
	}
	for i := range cols {
		role, ok := overrides[cols[i].Header]
		if !ok {
			continue
		}
		cols[i].Role = role
		cols[i].Confidence = 1.0
		cols[i].NeedsReview = false
		cols[i].Justification = "manually mapped"
		sink.Infof("classify", "column %q manually mapped to %s", cols[i].Header, role)
	}
}

// roleMap indexes classifications by role for column lookup.
type roleMap struct {
	date, description, debit, credit   *classify.Classification
	balance, reference, branch, signed *classify.Classification
}

// newRoleMap picks one column per role. Date columns prefer an
// effective-date header over a generic one; otherwise the first classified
// column of each role wins.
func newRoleMap(cols []classify.Classification) *roleMap {
	rm := &roleMap{}
	for i := range cols {
		c := &cols[i]
		switch c.Role {
		case classify.RoleDate:
			if rm.date == nil || preferDateHeader(c.Header, rm.date.Header) {
				rm.date = c
			}
		case classify.RoleDescription:
			pick(&rm.description, c)
		case classify.RoleDebit:
			pick(&rm.debit, c)
		case classify.RoleCredit:
			pick(&rm.credit, c)
		case classify.RoleBalance:
			pick(&rm.balance, c)
		case classify.RoleReference:
			pick(&rm.reference, c)
		case classify.RoleBranch:
			pick(&rm.branch, c)
		case classify.RoleAmount:
			pick(&rm.signed, c)
		}
	}
	return rm
}

func pick(slot **classify.Classification, c *classify.Classification) {
	if *slot == nil {
		*slot = c
	}
}

// effectiveDateMarkers mark a date column as the statement's effective date,
// preferred over posting or generic date columns.
var effectiveDateMarkers = []string{"hieu luc", "effective", "value date"}

func preferDateHeader(candidate, current string) bool {
	return isEffectiveDate(candidate) && !isEffectiveDate(current)
}

func isEffectiveDate(h string) bool {
	folded := textnorm.Fold(h)
	for _, m := range effectiveDateMarkers {
		if textnorm.ContainsWord(folded, m) {
			return true
		}
	}
	return false
}

// resolveDateFormat picks the date format for row parsing: a caller-forced
// tag, the date column's detection, or a zero detection when there is no
// date column at all.
func resolveDateFormat(roles *roleMap, forced dateparse.Tag, sink *diag.Sink) dateparse.Detection {
	if forced != "" {
		sink.Infof("dates", "date format forced to %s", forced)
		return dateparse.Detection{Format: forced, Confidence: 1.0}
	}
	if roles.date == nil {
		sink.Warnf("dates", "no date column classified; rows will be flagged")
		return dateparse.Detection{}
	}
	var det dateparse.Detection
	if roles.date.DateFormat != nil {
		det = *roles.date.DateFormat
	} else {
		det = dateparse.DetectFormat(roles.date.Samples)
	}
	for _, w := range det.Warnings {
		sink.Warnf("dates", "%s", w)
	}
	if det.Format != "" {
		sink.Infof("dates", "detected date format %s (confidence %.2f)", det.Format, det.Confidence)
	}
	return det
}

// buildCandidates converts each data row into a CandidateTransaction,
// flagging critical nulls instead of dropping rows.
func buildCandidates(tbl *table.ParsedTable, roles *roleMap, format dateparse.Tag, footers []string, sink *diag.Sink) []domain.CandidateTransaction {
	candidates := make([]domain.CandidateTransaction, 0, len(tbl.Rows))
	flagged := 0
	for i, row := range tbl.Rows {
		c := domain.CandidateTransaction{RowIndex: i}

		if isFooter(row, footers) {
			c.Problems = append(c.Problems, "summary/footer row")
		}

		if roles.date != nil && format != "" {
			if d, ok := dateparse.Parse(row[roles.date.Header], format); ok {
				c.Date = d
			}
		}
		if c.Date.IsZero() {
			c.Problems = append(c.Problems, "no parseable date")
		}

		if roles.description != nil {
			c.Description = row[roles.description.Header]
		}
		if roles.reference != nil {
			c.Reference = row[roles.reference.Header]
		}
		if roles.branch != nil {
			c.Branch = row[roles.branch.Header]
		}
		if roles.balance != nil {
			c.RunningBalance = amount.ParseOptional(row[roles.balance.Header])
		}

		assignAmounts(&c, row, roles)

		candidates = append(candidates, c)
		if !c.Committable() {
			flagged++
		}
	}
	if flagged > 0 {
		sink.Warnf("candidates", "%d of %d rows flagged for review", flagged, len(candidates))
	}
	return candidates
}

// assignAmounts fills the candidate's debit/credit fields, keeping them
// mutually exclusive. Separate debit/credit columns are read as magnitudes;
// a single signed amount column splits on sign. Zero values count as empty
// cells, which matches how banks print "0" in the unused column.
func assignAmounts(c *domain.CandidateTransaction, row table.RowMap, roles *roleMap) {
	var debit, credit *decimal.Decimal
	if roles.debit != nil {
		debit = nonZero(amount.ParseOptional(row[roles.debit.Header]))
	}
	if roles.credit != nil {
		credit = nonZero(amount.ParseOptional(row[roles.credit.Header]))
	}

	switch {
	case debit != nil && credit != nil:
		c.Problems = append(c.Problems, "both debit and credit present")
		return
	case debit != nil:
		abs := debit.Abs()
		c.DebitAmount = &abs
		return
	case credit != nil:
		abs := credit.Abs()
		c.CreditAmount = &abs
		return
	}

	if roles.signed != nil {
		if v := nonZero(amount.ParseOptional(row[roles.signed.Header])); v != nil {
			abs := v.Abs()
			if v.IsNegative() {
				c.DebitAmount = &abs
			} else {
				c.CreditAmount = &abs
			}
			return
		}
	}

	c.Problems = append(c.Problems, "no debit or credit amount")
}

func nonZero(d *decimal.Decimal) *decimal.Decimal {
	if d == nil || d.IsZero() {
		return nil
	}
	return d
}

func isFooter(row table.RowMap, footers []string) bool {
	for _, v := range row {
		folded := textnorm.Fold(v)
		if folded == "" {
			continue
		}
		for _, f := range footers {
			if textnorm.ContainsWord(folded, f) {
				return true
			}
		}
	}
	return false
}
