package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rumor-ml/commons.systems/bankrecon/internal/domain"
	"github.com/shopspring/decimal"
)

// Service exposes the reconciliation operations over a Store. Every mutation
// runs inside one store transaction and ends with a full recalculation of
// the account's checkpoint chain, so callers always observe the invariant
// declared == calculated + adjustment.
//
// Mutations on the same account are additionally serialized with an
// in-process lock; the store's transaction still carries correctness on its
// own, the lock just keeps concurrent imports from retry-looping.
type Service struct {
	store Store

	mu       sync.Mutex
	accounts map[string]*sync.Mutex
}

// NewService creates a reconciliation service over the given store.
func NewService(store Store) *Service {
	return &Service{store: store, accounts: make(map[string]*sync.Mutex)}
}

func (s *Service) accountLock(accountID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.accounts[accountID]
	if !ok {
		l = &sync.Mutex{}
		s.accounts[accountID] = l
	}
	return l
}

// Recalculate recomputes every checkpoint's derived fields for the account
// and returns the resulting chain. It is idempotent: with no intervening
// mutation a second call writes nothing and returns identical results.
func (s *Service) Recalculate(ctx context.Context, accountID string) ([]domain.Checkpoint, error) {
	l := s.accountLock(accountID)
	l.Lock()
	defer l.Unlock()

	var cps []domain.Checkpoint
	err := s.store.Update(ctx, accountID, func(tx Tx) error {
		var err error
		cps, err = recalculate(tx)
		return err
	})
	return cps, err
}

// Checkpoints returns the account's checkpoint chain in (date, id) order.
func (s *Service) Checkpoints(ctx context.Context, accountID string) ([]domain.Checkpoint, error) {
	var cps []domain.Checkpoint
	err := s.store.View(ctx, accountID, func(tx Tx) error {
		var err error
		cps, err = tx.Checkpoints()
		return err
	})
	return cps, err
}

// CreateCheckpoint records a manually declared balance and recalculates the
// chain around it.
func (s *Service) CreateCheckpoint(ctx context.Context, accountID string, date time.Time, declared decimal.Decimal, note string) (*domain.Checkpoint, error) {
	cp, err := domain.NewCheckpoint(accountID, date, declared)
	if err != nil {
		return nil, err
	}
	cp.Note = note

	l := s.accountLock(accountID)
	l.Lock()
	defer l.Unlock()

	err = s.store.Update(ctx, accountID, func(tx Tx) error {
		if err := tx.InsertCheckpoint(cp); err != nil {
			return err
		}
		cps, err := recalculate(tx)
		if err != nil {
			return err
		}
		for i := range cps {
			if cps[i].ID == cp.ID {
				*cp = cps[i]
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cp, nil
}

// UpdateCheckpoint changes a manual checkpoint's declared balance and note.
// Import-owned checkpoints are immutable and return ErrImportOwned.
func (s *Service) UpdateCheckpoint(ctx context.Context, accountID, id string, declared decimal.Decimal, note string) error {
	l := s.accountLock(accountID)
	l.Lock()
	defer l.Unlock()

	return s.store.Update(ctx, accountID, func(tx Tx) error {
		cp, err := tx.Checkpoint(id)
		if err != nil {
			return err
		}
		if cp == nil {
			return ErrCheckpointNotFound
		}
		if cp.ImportOwned() {
			return ErrImportOwned
		}
		cp.DeclaredBalance = declared
		cp.Note = note
		if err := tx.UpdateCheckpoint(cp); err != nil {
			return err
		}
		_, err = recalculate(tx)
		return err
	})
}

// DeleteCheckpoint removes a manual checkpoint and recalculates the chain.
// Import-owned checkpoints are only removable via RollbackImport.
func (s *Service) DeleteCheckpoint(ctx context.Context, accountID, id string) error {
	l := s.accountLock(accountID)
	l.Lock()
	defer l.Unlock()

	return s.store.Update(ctx, accountID, func(tx Tx) error {
		cp, err := tx.Checkpoint(id)
		if err != nil {
			return err
		}
		if cp == nil {
			return ErrCheckpointNotFound
		}
		if cp.ImportOwned() {
			return ErrImportOwned
		}
		if err := tx.DeleteCheckpoint(id); err != nil {
			return err
		}
		_, err = recalculate(tx)
		return err
	})
}

// RecordTransaction appends a single manual ledger entry and recalculates.
func (s *Service) RecordTransaction(ctx context.Context, accountID string, date time.Time, amt decimal.Decimal, dir domain.Direction, description string) (*domain.Transaction, error) {
	t, err := domain.NewTransaction(accountID, date, amt, dir, description)
	if err != nil {
		return nil, err
	}

	l := s.accountLock(accountID)
	l.Lock()
	defer l.Unlock()

	err = s.store.Update(ctx, accountID, func(tx Tx) error {
		if err := tx.InsertTransaction(t); err != nil {
			return err
		}
		_, err := recalculate(tx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// CheckpointDraft is the optional ending-balance checkpoint an import
// declares, typically sourced from the statement's own metadata.
type CheckpointDraft struct {
	Date            time.Time
	DeclaredBalance decimal.Decimal
	Note            string
}

// ImportResult describes a committed import: the batch record and the
// account's recalculated checkpoint chain.
type ImportResult struct {
	Batch       domain.ImportBatch
	Checkpoint  *domain.Checkpoint // the batch-owned checkpoint, nil when none
	Checkpoints []domain.Checkpoint
}

// CommitImport turns parsed candidate rows into ledger transactions inside a
// single batch, optionally declaring a checkpoint owned by that batch, and
// recalculates the chain. The whole commit is one store transaction:
// either every row, the batch record, and the checkpoint land together or
// nothing does.
//
// Every candidate must be committable; a flagged row aborts the commit with
// ErrUncommittableCandidate. Callers quarantine flagged rows before calling.
func (s *Service) CommitImport(ctx context.Context, accountID, fileName string, candidates []domain.CandidateTransaction, draft *CheckpointDraft, now time.Time) (*ImportResult, error) {
	for i := range candidates {
		if !candidates[i].Committable() {
			return nil, fmt.Errorf("row %d (%v): %w", candidates[i].RowIndex, candidates[i].Problems, ErrUncommittableCandidate)
		}
	}

	batch, err := domain.NewImportBatch(accountID, fileName, len(candidates), now)
	if err != nil {
		return nil, err
	}

	l := s.accountLock(accountID)
	l.Lock()
	defer l.Unlock()

	res := &ImportResult{Batch: *batch}
	err = s.store.Update(ctx, accountID, func(tx Tx) error {
		if err := tx.InsertBatch(batch); err != nil {
			return err
		}
		for i := range candidates {
			c := &candidates[i]
			amt, dir, ok := c.Amount()
			if !ok {
				return fmt.Errorf("row %d has no amount: %w", c.RowIndex, ErrUncommittableCandidate)
			}
			t, err := domain.NewTransaction(accountID, c.Date, amt, dir, c.Description)
			if err != nil {
				return fmt.Errorf("row %d: %w", c.RowIndex, err)
			}
			t.ImportBatchID = batch.ID
			if err := tx.InsertTransaction(t); err != nil {
				return err
			}
		}
		if draft != nil {
			cp, err := domain.NewCheckpoint(accountID, draft.Date, draft.DeclaredBalance)
			if err != nil {
				return err
			}
			cp.ImportBatchID = batch.ID
			cp.Note = draft.Note
			if err := tx.InsertCheckpoint(cp); err != nil {
				return err
			}
		}
		cps, err := recalculate(tx)
		if err != nil {
			return err
		}
		res.Checkpoints = cps
		for i := range cps {
			if cps[i].ImportBatchID == batch.ID {
				res.Checkpoint = &cps[i]
			}
		}
		res.Batch = *batch
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// RollbackResult summarizes an import rollback.
type RollbackResult struct {
	BatchID             string
	DeletedTransactions int
	CheckpointRemoved   bool
	Checkpoints         []domain.Checkpoint
}

// RollbackImport removes everything a batch introduced: its transactions,
// its owned checkpoint if any, and flips the batch to rolled back, then
// recalculates. Rolling back an unknown batch returns ErrBatchNotFound and
// rolling back twice returns ErrBatchRolledBack; both leave the ledger
// untouched.
func (s *Service) RollbackImport(ctx context.Context, batchID string) (*RollbackResult, error) {
	batch, err := s.store.FindBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if batch == nil {
		return nil, ErrBatchNotFound
	}

	l := s.accountLock(batch.AccountID)
	l.Lock()
	defer l.Unlock()

	res := &RollbackResult{BatchID: batchID}
	err = s.store.Update(ctx, batch.AccountID, func(tx Tx) error {
		b, err := tx.Batch(batchID)
		if err != nil {
			return err
		}
		if b == nil {
			return ErrBatchNotFound
		}
		if b.Status == domain.BatchRolledBack {
			return ErrBatchRolledBack
		}

		n, err := tx.DeleteBatchTransactions(batchID)
		if err != nil {
			return err
		}
		res.DeletedTransactions = n

		cp, err := tx.BatchCheckpoint(batchID)
		if err != nil {
			return err
		}
		if cp != nil {
			if err := tx.DeleteCheckpoint(cp.ID); err != nil {
				return err
			}
			res.CheckpointRemoved = true
		}

		if err := tx.SetBatchStatus(batchID, domain.BatchRolledBack); err != nil {
			return err
		}
		cps, err := recalculate(tx)
		if err != nil {
			return err
		}
		res.Checkpoints = cps
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Investigate explains one checkpoint's adjustment with a per-date breakdown
// of the period leading up to it. Read-only.
func (s *Service) Investigate(ctx context.Context, accountID, checkpointID string) (*Investigation, error) {
	var inv *Investigation
	err := s.store.View(ctx, accountID, func(tx Tx) error {
		var err error
		inv, err = investigate(tx, checkpointID)
		return err
	})
	return inv, err
}
