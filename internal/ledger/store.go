// Package ledger owns the balance-checkpoint reconciliation engine: the
// checkpoint/adjustment invariant, discrepancy investigation, and atomic
// import commit/rollback over an abstract transactional store.
package ledger

import (
	"context"
	"errors"

	"github.com/rumor-ml/commons.systems/bankrecon/internal/domain"
)

var (
	// ErrBatchNotFound is returned when an import batch ID is unknown.
	ErrBatchNotFound = errors.New("import batch not found")
	// ErrBatchRolledBack is returned when rolling back a batch twice.
	ErrBatchRolledBack = errors.New("import batch already rolled back")
	// ErrCheckpointNotFound is returned when a checkpoint ID is unknown.
	ErrCheckpointNotFound = errors.New("checkpoint not found")
	// ErrImportOwned is returned on attempts to edit or delete a checkpoint
	// that an import batch owns; it is only removable by rolling the batch
	// back.
	ErrImportOwned = errors.New("checkpoint is owned by an import batch")
	// ErrUncommittableCandidate is returned when an import contains a
	// flagged candidate row; callers quarantine those before committing.
	ErrUncommittableCandidate = errors.New("candidate row is not committable")
)

// Store is the transactional persistence boundary the engine is specified
// against. Implementations must make Update all-or-nothing: when fn returns
// an error nothing it did is visible afterwards.
type Store interface {
	// Update runs fn in a read-write transaction scoped to one account.
	Update(ctx context.Context, accountID string, fn func(Tx) error) error
	// View runs fn in a read-only transaction scoped to one account.
	View(ctx context.Context, accountID string, fn func(Tx) error) error
	// FindBatch looks an import batch up by ID across accounts.
	FindBatch(ctx context.Context, batchID string) (*domain.ImportBatch, error)
	Close() error
}

// Tx is one account's ledger inside a store transaction.
type Tx interface {
	// Checkpoints returns the account's checkpoints ordered by (date, id).
	Checkpoints() ([]domain.Checkpoint, error)
	Checkpoint(id string) (*domain.Checkpoint, error)
	InsertCheckpoint(cp *domain.Checkpoint) error
	UpdateCheckpoint(cp *domain.Checkpoint) error
	DeleteCheckpoint(id string) error

	// Transactions returns the account's transactions ordered by
	// (date, insertion sequence), which keeps recalculation deterministic.
	Transactions() ([]domain.Transaction, error)
	// InsertTransaction persists t and assigns its insertion sequence.
	InsertTransaction(t *domain.Transaction) error
	// DeleteBatchTransactions removes every transaction the batch
	// introduced, reporting how many were deleted.
	DeleteBatchTransactions(batchID string) (int, error)

	InsertBatch(b *domain.ImportBatch) error
	Batch(id string) (*domain.ImportBatch, error)
	SetBatchStatus(id string, status domain.BatchStatus) error
	// BatchCheckpoint returns the checkpoint owned by the batch, or nil.
	BatchCheckpoint(batchID string) (*domain.Checkpoint, error)
}
