// Package domain defines the ledger entities the reconciliation engine
// operates on.
package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Direction is the side of the ledger a transaction sits on.
type Direction string

const (
	DirectionDebit  Direction = "debit"
	DirectionCredit Direction = "credit"
)

// ValidateDirection reports whether d is a known direction.
func ValidateDirection(d Direction) bool {
	return d == DirectionDebit || d == DirectionCredit
}

// BatchStatus is the lifecycle state of an import batch.
type BatchStatus string

const (
	BatchCompleted  BatchStatus = "completed"
	BatchRolledBack BatchStatus = "rolled_back"
)

// Transaction is one ledger entry. Amount is a positive magnitude; Direction
// carries the sign (credit adds, debit subtracts). Seq is the insertion
// sequence assigned by the store, which keeps balance recalculation
// deterministic within a single date.
type Transaction struct {
	ID                  string
	AccountID           string
	Date                time.Time
	Amount              decimal.Decimal
	Direction           Direction
	Description         string
	IsBalanceAdjustment bool
	ImportBatchID       string // empty when not introduced by an import
	Seq                 int64
}

// NewTransaction creates a validated ledger transaction with a generated ID.
func NewTransaction(accountID string, date time.Time, amt decimal.Decimal, dir Direction, description string) (*Transaction, error) {
	if accountID == "" {
		return nil, fmt.Errorf("account ID cannot be empty")
	}
	if date.IsZero() {
		return nil, fmt.Errorf("transaction date cannot be zero")
	}
	if !ValidateDirection(dir) {
		return nil, fmt.Errorf("invalid direction %q", dir)
	}
	if amt.IsNegative() {
		return nil, fmt.Errorf("amount must be a magnitude, got %s (use direction for sign)", amt)
	}
	return &Transaction{
		ID:          uuid.NewString(),
		AccountID:   accountID,
		Date:        dateOnly(date),
		Amount:      amt,
		Direction:   dir,
		Description: strings.TrimSpace(description),
	}, nil
}

// Signed returns the transaction's contribution to a balance: +Amount for
// credits, -Amount for debits.
func (t *Transaction) Signed() decimal.Decimal {
	if t.Direction == DirectionDebit {
		return t.Amount.Neg()
	}
	return t.Amount
}

// Checkpoint anchors reconciliation: a balance declared as ground truth at a
// date, with the derived fields the reconciler maintains.
//
// The invariant DeclaredBalance == CalculatedBalance + AdjustmentAmount holds
// for every checkpoint after recalculation; AdjustmentAmount is defined as
// the residual, never asserted independently.
type Checkpoint struct {
	ID              string
	AccountID       string
	Date            time.Time
	DeclaredBalance decimal.Decimal
	// Derived by the reconciler.
	CalculatedBalance decimal.Decimal
	AdjustmentAmount  decimal.Decimal
	IsReconciled      bool
	// ImportBatchID is empty for manually created checkpoints. An
	// import-owned checkpoint is only removable by rolling back its batch.
	ImportBatchID string
	Note          string
}

// NewCheckpoint creates a validated checkpoint with a generated ID. The
// derived fields start zeroed; the reconciler fills them in.
func NewCheckpoint(accountID string, date time.Time, declared decimal.Decimal) (*Checkpoint, error) {
	if accountID == "" {
		return nil, fmt.Errorf("account ID cannot be empty")
	}
	if date.IsZero() {
		return nil, fmt.Errorf("checkpoint date cannot be zero")
	}
	return &Checkpoint{
		ID:              uuid.NewString(),
		AccountID:       accountID,
		Date:            dateOnly(date),
		DeclaredBalance: declared,
	}, nil
}

// ImportOwned reports whether the checkpoint was created by an import and is
// therefore immutable outside of rollback.
func (c *Checkpoint) ImportOwned() bool {
	return c.ImportBatchID != ""
}

// ImportBatch is the unit of transactions plus optional checkpoint
// introduced by one file import, rollback-able as a whole.
type ImportBatch struct {
	ID               string
	AccountID        string
	FileName         string
	TransactionCount int
	Status           BatchStatus
	CreatedAt        time.Time
}

// NewImportBatch creates a validated batch record in completed state.
func NewImportBatch(accountID, fileName string, txnCount int, now time.Time) (*ImportBatch, error) {
	if accountID == "" {
		return nil, fmt.Errorf("account ID cannot be empty")
	}
	if txnCount < 0 {
		return nil, fmt.Errorf("transaction count cannot be negative")
	}
	return &ImportBatch{
		ID:               uuid.NewString(),
		AccountID:        accountID,
		FileName:         fileName,
		TransactionCount: txnCount,
		Status:           BatchCompleted,
		CreatedAt:        now,
	}, nil
}

// CandidateTransaction is one statement row after parsing and column
// mapping, before commit. It is never persisted in this form; the import
// commit maps it into ledger transactions.
type CandidateTransaction struct {
	RowIndex    int
	Date        time.Time // zero when the date cell was unparseable
	Description string
	// DebitAmount and CreditAmount are mutually exclusive: exactly one is
	// set, or both are nil meaning the row could not be classified.
	DebitAmount    *decimal.Decimal
	CreditAmount   *decimal.Decimal
	RunningBalance *decimal.Decimal // as printed on the statement
	Reference      string
	Branch         string
	// Problems flags critical nulls (no date, no amount) so the commit step
	// can reject or quarantine the row. An empty list means committable.
	Problems []string
}

// Committable reports whether the candidate can be turned into a ledger
// transaction as-is.
func (c *CandidateTransaction) Committable() bool {
	return len(c.Problems) == 0
}

// Amount returns the candidate's magnitude and direction. ok is false for
// unclassified rows.
func (c *CandidateTransaction) Amount() (decimal.Decimal, Direction, bool) {
	switch {
	case c.DebitAmount != nil:
		return c.DebitAmount.Abs(), DirectionDebit, true
	case c.CreditAmount != nil:
		return c.CreditAmount.Abs(), DirectionCredit, true
	}
	return decimal.Decimal{}, "", false
}

// dateOnly truncates a timestamp to its local calendar date.
func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// SameDay reports whether two timestamps fall on the same calendar date.
func SameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}
