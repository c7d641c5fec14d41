package ledger

import (
	"fmt"
	"time"

	"github.com/rumor-ml/commons.systems/bankrecon/internal/domain"
	"github.com/shopspring/decimal"
)

// recalculate recomputes every checkpoint's derived fields for one account.
//
// Checkpoints are walked in (date, id) order. Each one's calculated balance
// is the previous checkpoint's declared balance (zero before the first)
// plus the signed sum of transactions dated after the previous checkpoint
// and at or before this one. Balance-adjustment transactions are summed like
// any other entry; they exist to carry unexplained history forward, which is
// what makes the invariant declared == calculated + adjustment hold
// recursively across the chain.
//
// The walk is a pure function of the stored history, so re-running it with
// no intervening mutation writes nothing and returns identical results.
func recalculate(tx Tx) ([]domain.Checkpoint, error) {
	cps, err := tx.Checkpoints()
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoints: %w", err)
	}
	if len(cps) == 0 {
		return cps, nil
	}
	txns, err := tx.Transactions()
	if err != nil {
		return nil, fmt.Errorf("failed to load transactions: %w", err)
	}

	prevDeclared := decimal.Zero
	var prevDate *time.Time
	for i := range cps {
		cp := &cps[i]
		calc := prevDeclared.Add(sumWindow(txns, prevDate, cp.Date))
		adj := cp.DeclaredBalance.Sub(calc)
		reconciled := adj.IsZero()

		if !cp.CalculatedBalance.Equal(calc) || !cp.AdjustmentAmount.Equal(adj) || cp.IsReconciled != reconciled {
			cp.CalculatedBalance = calc
			cp.AdjustmentAmount = adj
			cp.IsReconciled = reconciled
			if err := tx.UpdateCheckpoint(cp); err != nil {
				return nil, fmt.Errorf("failed to store derived fields for checkpoint %s: %w", cp.ID, err)
			}
		} else {
			cp.CalculatedBalance = calc
			cp.AdjustmentAmount = adj
			cp.IsReconciled = reconciled
		}

		prevDeclared = cp.DeclaredBalance
		d := cp.Date
		prevDate = &d
	}
	return cps, nil
}

// sumWindow sums signed transaction amounts with date in (after, until]:
// strictly after the previous checkpoint's date, at or before this one's.
func sumWindow(txns []domain.Transaction, after *time.Time, until time.Time) decimal.Decimal {
	sum := decimal.Zero
	for i := range txns {
		d := txns[i].Date
		if after != nil && !d.After(*after) {
			continue
		}
		if d.After(until) {
			continue
		}
		sum = sum.Add(txns[i].Signed())
	}
	return sum
}
