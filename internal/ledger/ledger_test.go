package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rumor-ml/commons.systems/bankrecon/internal/domain"
	"github.com/rumor-ml/commons.systems/bankrecon/internal/ledger"
	"github.com/rumor-ml/commons.systems/bankrecon/internal/ledger/sqlite"
)

func newService(t *testing.T) *ledger.Service {
	t.Helper()
	store, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return ledger.NewService(store)
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func day(y int, m time.Month, dd int) time.Time {
	return time.Date(y, m, dd, 0, 0, 0, 0, time.Local)
}

func credit(rowIdx int, date time.Time, amt, desc string) domain.CandidateTransaction {
	v := d(amt)
	return domain.CandidateTransaction{RowIndex: rowIdx, Date: date, Description: desc, CreditAmount: &v}
}

func debit(rowIdx int, date time.Time, amt, desc string) domain.CandidateTransaction {
	v := d(amt)
	return domain.CandidateTransaction{RowIndex: rowIdx, Date: date, Description: desc, DebitAmount: &v}
}

// requireInvariant checks declared == calculated + adjustment on every
// checkpoint in the chain.
func requireInvariant(t *testing.T, cps []domain.Checkpoint) {
	t.Helper()
	for _, cp := range cps {
		require.Truef(t, cp.DeclaredBalance.Equal(cp.CalculatedBalance.Add(cp.AdjustmentAmount)),
			"checkpoint %s on %s: declared %s != calculated %s + adjustment %s",
			cp.ID, cp.Date.Format("2006-01-02"),
			cp.DeclaredBalance, cp.CalculatedBalance, cp.AdjustmentAmount)
	}
}

func TestRecalculateChain(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	const acct = "acct-1"

	_, err := svc.RecordTransaction(ctx, acct, day(2024, time.January, 5), d("1000"), domain.DirectionCredit, "opening deposit")
	require.NoError(t, err)
	_, err = svc.RecordTransaction(ctx, acct, day(2024, time.January, 10), d("300"), domain.DirectionDebit, "rent")
	require.NoError(t, err)
	_, err = svc.RecordTransaction(ctx, acct, day(2024, time.January, 20), d("500"), domain.DirectionCredit, "invoice 42")
	require.NoError(t, err)

	mid, err := svc.CreateCheckpoint(ctx, acct, day(2024, time.January, 15), d("700"), "")
	require.NoError(t, err)
	end, err := svc.CreateCheckpoint(ctx, acct, day(2024, time.January, 31), d("1300"), "statement says 1300")
	require.NoError(t, err)

	cps, err := svc.Recalculate(ctx, acct)
	require.NoError(t, err)
	require.Len(t, cps, 2)
	requireInvariant(t, cps)

	require.Equal(t, mid.ID, cps[0].ID)
	assert.True(t, cps[0].CalculatedBalance.Equal(d("700")), "calculated %s", cps[0].CalculatedBalance)
	assert.True(t, cps[0].AdjustmentAmount.IsZero())
	assert.True(t, cps[0].IsReconciled)

	require.Equal(t, end.ID, cps[1].ID)
	assert.True(t, cps[1].CalculatedBalance.Equal(d("1200")), "calculated %s", cps[1].CalculatedBalance)
	assert.True(t, cps[1].AdjustmentAmount.Equal(d("100")), "adjustment %s", cps[1].AdjustmentAmount)
	assert.False(t, cps[1].IsReconciled)
}

func TestRecalculateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	const acct = "acct-1"

	_, err := svc.RecordTransaction(ctx, acct, day(2024, time.March, 1), d("250.50"), domain.DirectionCredit, "transfer in")
	require.NoError(t, err)
	_, err = svc.CreateCheckpoint(ctx, acct, day(2024, time.March, 31), d("300"), "")
	require.NoError(t, err)

	first, err := svc.Recalculate(ctx, acct)
	require.NoError(t, err)
	second, err := svc.Recalculate(ctx, acct)
	require.NoError(t, err)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
		assert.True(t, first[i].CalculatedBalance.Equal(second[i].CalculatedBalance))
		assert.True(t, first[i].AdjustmentAmount.Equal(second[i].AdjustmentAmount))
		assert.Equal(t, first[i].IsReconciled, second[i].IsReconciled)
	}
}

// An unexplained discrepancy must settle into its own checkpoint's
// adjustment and not leak into later periods: each window starts from the
// previous declared balance.
func TestAdjustmentDoesNotCascadeForward(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	const acct = "acct-1"

	// No transactions at all, yet a declared 1000: pure adjustment.
	_, err := svc.CreateCheckpoint(ctx, acct, day(2024, time.January, 10), d("1000"), "opening")
	require.NoError(t, err)
	// Nothing happened since, same declared balance: fully explained.
	_, err = svc.CreateCheckpoint(ctx, acct, day(2024, time.February, 10), d("1000"), "")
	require.NoError(t, err)

	cps, err := svc.Checkpoints(ctx, acct)
	require.NoError(t, err)
	require.Len(t, cps, 2)
	requireInvariant(t, cps)

	assert.True(t, cps[0].AdjustmentAmount.Equal(d("1000")))
	assert.False(t, cps[0].IsReconciled)
	assert.True(t, cps[1].CalculatedBalance.Equal(d("1000")))
	assert.True(t, cps[1].AdjustmentAmount.IsZero())
	assert.True(t, cps[1].IsReconciled)
}

func TestCommitImport(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	const acct = "acct-2"
	now := time.Date(2024, time.February, 3, 9, 30, 0, 0, time.UTC)

	candidates := []domain.CandidateTransaction{
		credit(1, day(2024, time.February, 1), "2000", "salary"),
		debit(2, day(2024, time.February, 2), "500", "groceries"),
	}
	res, err := svc.CommitImport(ctx, acct, "feb.csv", candidates, &ledger.CheckpointDraft{
		Date:            day(2024, time.February, 2),
		DeclaredBalance: d("1500"),
		Note:            "statement ending balance",
	}, now)
	require.NoError(t, err)

	assert.Equal(t, domain.BatchCompleted, res.Batch.Status)
	assert.Equal(t, 2, res.Batch.TransactionCount)
	assert.Equal(t, "feb.csv", res.Batch.FileName)

	require.NotNil(t, res.Checkpoint)
	assert.Equal(t, res.Batch.ID, res.Checkpoint.ImportBatchID)
	assert.True(t, res.Checkpoint.CalculatedBalance.Equal(d("1500")))
	assert.True(t, res.Checkpoint.IsReconciled)
	requireInvariant(t, res.Checkpoints)

	// The batch-owned checkpoint is immutable outside rollback.
	err = svc.UpdateCheckpoint(ctx, acct, res.Checkpoint.ID, d("9999"), "")
	assert.ErrorIs(t, err, ledger.ErrImportOwned)
	err = svc.DeleteCheckpoint(ctx, acct, res.Checkpoint.ID)
	assert.ErrorIs(t, err, ledger.ErrImportOwned)
}

func TestCommitImportRejectsFlaggedCandidates(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	const acct = "acct-2"

	candidates := []domain.CandidateTransaction{
		credit(1, day(2024, time.February, 1), "2000", "salary"),
		{RowIndex: 2, Description: "???", Problems: []string{"unparseable date"}},
	}
	_, err := svc.CommitImport(ctx, acct, "broken.csv", candidates, nil, time.Now())
	require.ErrorIs(t, err, ledger.ErrUncommittableCandidate)

	// Nothing from the rejected import may be visible.
	cps, err := svc.Checkpoints(ctx, acct)
	require.NoError(t, err)
	assert.Empty(t, cps)
	inv, err := svc.Recalculate(ctx, acct)
	require.NoError(t, err)
	assert.Empty(t, inv)
}

func TestRollbackImportRestoresPriorState(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	const acct = "acct-2"

	// Pre-import history: one manual transaction and checkpoint.
	_, err := svc.RecordTransaction(ctx, acct, day(2024, time.January, 15), d("100"), domain.DirectionCredit, "seed")
	require.NoError(t, err)
	manual, err := svc.CreateCheckpoint(ctx, acct, day(2024, time.January, 31), d("100"), "")
	require.NoError(t, err)
	before, err := svc.Checkpoints(ctx, acct)
	require.NoError(t, err)

	res, err := svc.CommitImport(ctx, acct, "feb.csv", []domain.CandidateTransaction{
		credit(1, day(2024, time.February, 1), "2000", "salary"),
		debit(2, day(2024, time.February, 2), "500", "groceries"),
	}, &ledger.CheckpointDraft{Date: day(2024, time.February, 2), DeclaredBalance: d("1600")}, time.Now())
	require.NoError(t, err)

	rb, err := svc.RollbackImport(ctx, res.Batch.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, rb.DeletedTransactions)
	assert.True(t, rb.CheckpointRemoved)
	requireInvariant(t, rb.Checkpoints)

	after, err := svc.Checkpoints(ctx, acct)
	require.NoError(t, err)
	require.Len(t, after, len(before))
	assert.Equal(t, manual.ID, after[0].ID)
	assert.True(t, after[0].DeclaredBalance.Equal(before[0].DeclaredBalance))
	assert.True(t, after[0].CalculatedBalance.Equal(before[0].CalculatedBalance))
	assert.True(t, after[0].AdjustmentAmount.Equal(before[0].AdjustmentAmount))

	// Rolling back twice is rejected, as is an unknown batch.
	_, err = svc.RollbackImport(ctx, res.Batch.ID)
	assert.ErrorIs(t, err, ledger.ErrBatchRolledBack)
	_, err = svc.RollbackImport(ctx, "no-such-batch")
	assert.ErrorIs(t, err, ledger.ErrBatchNotFound)
}

func TestManualCheckpointUpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	const acct = "acct-4"

	_, err := svc.RecordTransaction(ctx, acct, day(2024, time.May, 2), d("400"), domain.DirectionCredit, "deposit")
	require.NoError(t, err)
	cp, err := svc.CreateCheckpoint(ctx, acct, day(2024, time.May, 31), d("500"), "")
	require.NoError(t, err)
	assert.True(t, cp.AdjustmentAmount.Equal(d("100")))

	require.NoError(t, svc.UpdateCheckpoint(ctx, acct, cp.ID, d("400"), "corrected"))
	cps, err := svc.Checkpoints(ctx, acct)
	require.NoError(t, err)
	require.Len(t, cps, 1)
	assert.True(t, cps[0].IsReconciled)
	assert.Equal(t, "corrected", cps[0].Note)

	require.NoError(t, svc.DeleteCheckpoint(ctx, acct, cp.ID))
	cps, err = svc.Checkpoints(ctx, acct)
	require.NoError(t, err)
	assert.Empty(t, cps)

	err = svc.DeleteCheckpoint(ctx, acct, cp.ID)
	assert.ErrorIs(t, err, ledger.ErrCheckpointNotFound)
}

func TestInvestigateExplainsAdjustment(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	const acct = "acct-3"

	opening, err := svc.CreateCheckpoint(ctx, acct, day(2024, time.January, 10), d("1000"), "opening")
	require.NoError(t, err)
	_, err = svc.RecordTransaction(ctx, acct, day(2024, time.January, 12), d("500"), domain.DirectionCredit, "invoice")
	require.NoError(t, err)
	_, err = svc.RecordTransaction(ctx, acct, day(2024, time.January, 12), d("100"), domain.DirectionDebit, "fee")
	require.NoError(t, err)
	_, err = svc.RecordTransaction(ctx, acct, day(2024, time.January, 15), d("200"), domain.DirectionDebit, "utilities")
	require.NoError(t, err)
	target, err := svc.CreateCheckpoint(ctx, acct, day(2024, time.January, 20), d("1300"), "")
	require.NoError(t, err)

	inv, err := svc.Investigate(ctx, acct, target.ID)
	require.NoError(t, err)

	require.NotNil(t, inv.PeriodStart)
	assert.True(t, domain.SameDay(*inv.PeriodStart, opening.Date))
	assert.True(t, inv.PeriodStartBalance.Equal(d("1000")))
	assert.True(t, inv.TotalCredits.Equal(d("500")))
	assert.True(t, inv.TotalDebits.Equal(d("300")))
	assert.True(t, inv.ExpectedChange.Equal(d("200")))
	assert.True(t, inv.ActualChange.Equal(d("300")))
	assert.True(t, inv.Difference.Equal(d("100")), "difference %s", inv.Difference)
	assert.True(t, inv.Difference.Equal(target.AdjustmentAmount))

	require.Len(t, inv.Days, 2)
	assert.True(t, domain.SameDay(inv.Days[0].Date, day(2024, time.January, 12)))
	assert.True(t, inv.Days[0].Credits.Equal(d("500")))
	assert.True(t, inv.Days[0].Debits.Equal(d("100")))
	assert.True(t, inv.Days[0].NetChange.Equal(d("400")))
	assert.True(t, inv.Days[0].RunningTotal.Equal(d("1400")))
	require.Len(t, inv.Days[0].Transactions, 2)

	assert.True(t, domain.SameDay(inv.Days[1].Date, day(2024, time.January, 15)))
	assert.True(t, inv.Days[1].NetChange.Equal(d("-200")))
	assert.True(t, inv.Days[1].RunningTotal.Equal(d("1200")))

	_, err = svc.Investigate(ctx, acct, "missing")
	assert.ErrorIs(t, err, ledger.ErrCheckpointNotFound)
}

// The first checkpoint's investigation has no prior anchor: period start is
// open and every earlier transaction counts.
func TestInvestigateFirstCheckpoint(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	const acct = "acct-3"

	_, err := svc.RecordTransaction(ctx, acct, day(2024, time.January, 3), d("250"), domain.DirectionCredit, "deposit")
	require.NoError(t, err)
	cp, err := svc.CreateCheckpoint(ctx, acct, day(2024, time.January, 10), d("400"), "")
	require.NoError(t, err)

	inv, err := svc.Investigate(ctx, acct, cp.ID)
	require.NoError(t, err)
	assert.Nil(t, inv.PeriodStart)
	assert.True(t, inv.PeriodStartBalance.IsZero())
	assert.True(t, inv.ExpectedChange.Equal(d("250")))
	assert.True(t, inv.ActualChange.Equal(d("400")))
	assert.True(t, inv.Difference.Equal(d("150")))
}
