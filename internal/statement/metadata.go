package statement

import (
	"sort"
	"time"

	"github.com/rumor-ml/commons.systems/bankrecon/internal/amount"
	"github.com/rumor-ml/commons.systems/bankrecon/internal/dateparse"
	"github.com/rumor-ml/commons.systems/bankrecon/internal/table"
	"github.com/shopspring/decimal"
)

// Metadata is the statement-level pre-fill derived from parsed rows. All
// fields are advisory suggestions for checkpoint creation, never silently
// persisted.
type Metadata struct {
	StartDate     *time.Time
	EndDate       *time.Time
	EndingBalance *decimal.Decimal
}

// SuggestedCheckpoint turns the metadata into a checkpoint draft: the
// statement's last date with its printed ending balance. ok is false when
// either piece is missing.
func (m Metadata) SuggestedCheckpoint() (date time.Time, declared decimal.Decimal, ok bool) {
	if m.EndDate == nil || m.EndingBalance == nil {
		return time.Time{}, decimal.Decimal{}, false
	}
	return *m.EndDate, *m.EndingBalance, true
}

// extractMetadata derives the statement date range and ending balance.
// Dates come from the chosen date column under the detected format; the
// ending balance is the balance cell of the row with the latest date. Dates
// are local calendar dates throughout, never UTC-shifted.
func extractMetadata(tbl *table.ParsedTable, roles *roleMap, format dateparse.Tag) Metadata {
	var meta Metadata
	if roles.date == nil || format == "" {
		return meta
	}

	type datedRow struct {
		date time.Time
		row  int
	}
	var dated []datedRow
	for i, row := range tbl.Rows {
		if d, ok := dateparse.Parse(row[roles.date.Header], format); ok {
			dated = append(dated, datedRow{date: d, row: i})
		}
	}
	if len(dated) == 0 {
		return meta
	}

	sort.SliceStable(dated, func(i, j int) bool {
		return dated[i].date.Before(dated[j].date)
	})

	first := dated[0].date
	last := dated[len(dated)-1]
	meta.StartDate = &first
	meta.EndDate = &last.date

	if roles.balance != nil {
		if v, ok := amount.Parse(tbl.Rows[last.row][roles.balance.Header]); ok {
			meta.EndingBalance = &v
		}
	}
	return meta
}
