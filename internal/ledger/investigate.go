package ledger

import (
	"time"

	"github.com/rumor-ml/commons.systems/bankrecon/internal/domain"
	"github.com/shopspring/decimal"
)

// DayBreakdown is one calendar date's activity inside an investigated
// period.
type DayBreakdown struct {
	Date         time.Time
	Credits      decimal.Decimal
	Debits       decimal.Decimal
	NetChange    decimal.Decimal // credits - debits
	RunningTotal decimal.Decimal // period start balance rolled forward
	Transactions []domain.Transaction
}

// Investigation explains a checkpoint's adjustment by attributing activity
// to the dates between the previous checkpoint (exclusive) and the target
// (inclusive). Difference equals the checkpoint's adjustment amount.
type Investigation struct {
	Checkpoint         domain.Checkpoint
	PeriodStart        *time.Time // previous checkpoint's date, nil when none
	PeriodStartBalance decimal.Decimal
	TotalCredits       decimal.Decimal
	TotalDebits        decimal.Decimal
	ExpectedChange     decimal.Decimal // credits - debits
	ActualChange       decimal.Decimal // declared - period start balance
	Difference         decimal.Decimal // actual - expected
	Days               []DayBreakdown
}

// investigate builds the per-date attribution for one checkpoint. Read-only.
func investigate(tx Tx, checkpointID string) (*Investigation, error) {
	cps, err := tx.Checkpoints()
	if err != nil {
		return nil, err
	}

	var target *domain.Checkpoint
	var prev *domain.Checkpoint
	for i := range cps {
		if cps[i].ID == checkpointID {
			target = &cps[i]
			if i > 0 {
				prev = &cps[i-1]
			}
			break
		}
	}
	if target == nil {
		return nil, ErrCheckpointNotFound
	}

	inv := &Investigation{Checkpoint: *target}
	var after *time.Time
	if prev != nil {
		d := prev.Date
		after = &d
		inv.PeriodStart = &d
		inv.PeriodStartBalance = prev.DeclaredBalance
	}

	txns, err := tx.Transactions()
	if err != nil {
		return nil, err
	}

	running := inv.PeriodStartBalance
	var day *DayBreakdown
	for i := range txns {
		t := txns[i]
		if after != nil && !t.Date.After(*after) {
			continue
		}
		if t.Date.After(target.Date) {
			continue
		}

		if day == nil || !domain.SameDay(day.Date, t.Date) {
			inv.Days = append(inv.Days, DayBreakdown{Date: t.Date, RunningTotal: running})
			day = &inv.Days[len(inv.Days)-1]
		}
		day.Transactions = append(day.Transactions, t)
		if t.Direction == domain.DirectionCredit {
			day.Credits = day.Credits.Add(t.Amount)
			inv.TotalCredits = inv.TotalCredits.Add(t.Amount)
		} else {
			day.Debits = day.Debits.Add(t.Amount)
			inv.TotalDebits = inv.TotalDebits.Add(t.Amount)
		}
		day.NetChange = day.Credits.Sub(day.Debits)
		running = running.Add(t.Signed())
		day.RunningTotal = running
	}

	inv.ExpectedChange = inv.TotalCredits.Sub(inv.TotalDebits)
	inv.ActualChange = target.DeclaredBalance.Sub(inv.PeriodStartBalance)
	inv.Difference = inv.ActualChange.Sub(inv.ExpectedChange)
	return inv, nil
}
