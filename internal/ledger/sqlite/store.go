// Package sqlite persists ledger state in a SQLite database and implements
// the transactional store the reconciliation engine is written against.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rumor-ml/commons.systems/bankrecon/internal/domain"
	"github.com/rumor-ml/commons.systems/bankrecon/internal/ledger"
	"github.com/shopspring/decimal"
)

// dateLayout stores calendar dates without a time component; lexical order
// matches chronological order, which the ordered reads rely on.
const dateLayout = "2006-01-02"

const schema = `
CREATE TABLE IF NOT EXISTS transactions (
	seq                   INTEGER PRIMARY KEY AUTOINCREMENT,
	id                    TEXT    NOT NULL UNIQUE,
	account_id            TEXT    NOT NULL,
	date                  TEXT    NOT NULL,
	amount                TEXT    NOT NULL,
	direction             TEXT    NOT NULL,
	description           TEXT    NOT NULL DEFAULT '',
	is_balance_adjustment INTEGER NOT NULL DEFAULT 0,
	import_batch_id       TEXT    NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_transactions_account_date
	ON transactions (account_id, date, seq);
CREATE INDEX IF NOT EXISTS idx_transactions_batch
	ON transactions (import_batch_id);

CREATE TABLE IF NOT EXISTS checkpoints (
	id                 TEXT PRIMARY KEY,
	account_id         TEXT NOT NULL,
	date               TEXT NOT NULL,
	declared_balance   TEXT NOT NULL,
	calculated_balance TEXT NOT NULL DEFAULT '0',
	adjustment_amount  TEXT NOT NULL DEFAULT '0',
	is_reconciled      INTEGER NOT NULL DEFAULT 0,
	import_batch_id    TEXT NOT NULL DEFAULT '',
	note               TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_checkpoints_account_date
	ON checkpoints (account_id, date, id);

CREATE TABLE IF NOT EXISTS import_batches (
	id                TEXT PRIMARY KEY,
	account_id        TEXT NOT NULL,
	file_name         TEXT NOT NULL DEFAULT '',
	transaction_count INTEGER NOT NULL,
	status            TEXT NOT NULL,
	created_at        TEXT NOT NULL
);
`

// Store implements ledger.Store over a SQLite database file. An empty or
// missing file is initialized with the schema on open.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path. Use ":memory:" for
// an ephemeral store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	// SQLite allows one writer; a single connection avoids busy errors and
	// keeps an in-memory database from evaporating between calls.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Update runs fn in a read-write transaction scoped to one account. Any
// error from fn rolls everything back.
func (s *Store) Update(ctx context.Context, accountID string, fn func(ledger.Tx) error) error {
	return s.run(ctx, accountID, fn)
}

// View runs fn in a transaction scoped to one account and discards writes.
func (s *Store) View(ctx context.Context, accountID string, fn func(ledger.Tx) error) error {
	stx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer stx.Rollback()
	return fn(&accountTx{stx: stx, accountID: accountID})
}

func (s *Store) run(ctx context.Context, accountID string, fn func(ledger.Tx) error) error {
	stx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(&accountTx{stx: stx, accountID: accountID}); err != nil {
		stx.Rollback()
		return err
	}
	if err := stx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// FindBatch looks an import batch up by ID across accounts.
func (s *Store) FindBatch(ctx context.Context, batchID string) (*domain.ImportBatch, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, account_id, file_name, transaction_count, status, created_at
		   FROM import_batches WHERE id = ?`, batchID)
	return scanBatch(row)
}

// accountTx implements ledger.Tx over one sql transaction.
type accountTx struct {
	stx       *sql.Tx
	accountID string
}

func (t *accountTx) Checkpoints() ([]domain.Checkpoint, error) {
	rows, err := t.stx.Query(
		`SELECT id, account_id, date, declared_balance, calculated_balance,
		        adjustment_amount, is_reconciled, import_batch_id, note
		   FROM checkpoints WHERE account_id = ? ORDER BY date, id`, t.accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cps []domain.Checkpoint
	for rows.Next() {
		cp, err := scanCheckpointRow(rows)
		if err != nil {
			return nil, err
		}
		cps = append(cps, *cp)
	}
	return cps, rows.Err()
}

func (t *accountTx) Checkpoint(id string) (*domain.Checkpoint, error) {
	row := t.stx.QueryRow(
		`SELECT id, account_id, date, declared_balance, calculated_balance,
		        adjustment_amount, is_reconciled, import_batch_id, note
		   FROM checkpoints WHERE account_id = ? AND id = ?`, t.accountID, id)
	cp, err := scanCheckpointRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return cp, err
}

func (t *accountTx) InsertCheckpoint(cp *domain.Checkpoint) error {
	_, err := t.stx.Exec(
		`INSERT INTO checkpoints
		        (id, account_id, date, declared_balance, calculated_balance,
		         adjustment_amount, is_reconciled, import_batch_id, note)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cp.ID, cp.AccountID, cp.Date.Format(dateLayout),
		cp.DeclaredBalance.String(), cp.CalculatedBalance.String(),
		cp.AdjustmentAmount.String(), boolInt(cp.IsReconciled),
		cp.ImportBatchID, cp.Note)
	return err
}

func (t *accountTx) UpdateCheckpoint(cp *domain.Checkpoint) error {
	res, err := t.stx.Exec(
		`UPDATE checkpoints
		    SET date = ?, declared_balance = ?, calculated_balance = ?,
		        adjustment_amount = ?, is_reconciled = ?, note = ?
		  WHERE account_id = ? AND id = ?`,
		cp.Date.Format(dateLayout), cp.DeclaredBalance.String(),
		cp.CalculatedBalance.String(), cp.AdjustmentAmount.String(),
		boolInt(cp.IsReconciled), cp.Note, t.accountID, cp.ID)
	if err != nil {
		return err
	}
	return requireRow(res, ledger.ErrCheckpointNotFound)
}

func (t *accountTx) DeleteCheckpoint(id string) error {
	res, err := t.stx.Exec(
		`DELETE FROM checkpoints WHERE account_id = ? AND id = ?`, t.accountID, id)
	if err != nil {
		return err
	}
	return requireRow(res, ledger.ErrCheckpointNotFound)
}

func (t *accountTx) Transactions() ([]domain.Transaction, error) {
	rows, err := t.stx.Query(
		`SELECT seq, id, account_id, date, amount, direction, description,
		        is_balance_adjustment, import_batch_id
		   FROM transactions WHERE account_id = ? ORDER BY date, seq`, t.accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txns []domain.Transaction
	for rows.Next() {
		var txn domain.Transaction
		var date, amt string
		var adj int
		if err := rows.Scan(&txn.Seq, &txn.ID, &txn.AccountID, &date, &amt,
			&txn.Direction, &txn.Description, &adj, &txn.ImportBatchID); err != nil {
			return nil, err
		}
		if txn.Date, err = time.ParseInLocation(dateLayout, date, time.Local); err != nil {
			return nil, fmt.Errorf("corrupt transaction date %q: %w", date, err)
		}
		if txn.Amount, err = decimal.NewFromString(amt); err != nil {
			return nil, fmt.Errorf("corrupt transaction amount %q: %w", amt, err)
		}
		txn.IsBalanceAdjustment = adj != 0
		txns = append(txns, txn)
	}
	return txns, rows.Err()
}

func (t *accountTx) InsertTransaction(txn *domain.Transaction) error {
	res, err := t.stx.Exec(
		`INSERT INTO transactions
		        (id, account_id, date, amount, direction, description,
		         is_balance_adjustment, import_batch_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		txn.ID, txn.AccountID, txn.Date.Format(dateLayout),
		txn.Amount.String(), string(txn.Direction), txn.Description,
		boolInt(txn.IsBalanceAdjustment), txn.ImportBatchID)
	if err != nil {
		return err
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return err
	}
	txn.Seq = seq
	return nil
}

func (t *accountTx) DeleteBatchTransactions(batchID string) (int, error) {
	res, err := t.stx.Exec(
		`DELETE FROM transactions WHERE account_id = ? AND import_batch_id = ?`,
		t.accountID, batchID)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (t *accountTx) InsertBatch(b *domain.ImportBatch) error {
	_, err := t.stx.Exec(
		`INSERT INTO import_batches
		        (id, account_id, file_name, transaction_count, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		b.ID, b.AccountID, b.FileName, b.TransactionCount,
		string(b.Status), b.CreatedAt.UTC().Format(time.RFC3339))
	return err
}

func (t *accountTx) Batch(id string) (*domain.ImportBatch, error) {
	row := t.stx.QueryRow(
		`SELECT id, account_id, file_name, transaction_count, status, created_at
		   FROM import_batches WHERE account_id = ? AND id = ?`, t.accountID, id)
	return scanBatch(row)
}

func (t *accountTx) SetBatchStatus(id string, status domain.BatchStatus) error {
	res, err := t.stx.Exec(
		`UPDATE import_batches SET status = ? WHERE account_id = ? AND id = ?`,
		string(status), t.accountID, id)
	if err != nil {
		return err
	}
	return requireRow(res, ledger.ErrBatchNotFound)
}

func (t *accountTx) BatchCheckpoint(batchID string) (*domain.Checkpoint, error) {
	row := t.stx.QueryRow(
		`SELECT id, account_id, date, declared_balance, calculated_balance,
		        adjustment_amount, is_reconciled, import_batch_id, note
		   FROM checkpoints WHERE account_id = ? AND import_batch_id = ?`,
		t.accountID, batchID)
	cp, err := scanCheckpointRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return cp, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCheckpointRow(r rowScanner) (*domain.Checkpoint, error) {
	var cp domain.Checkpoint
	var date, declared, calc, adj string
	var reconciled int
	err := r.Scan(&cp.ID, &cp.AccountID, &date, &declared, &calc, &adj,
		&reconciled, &cp.ImportBatchID, &cp.Note)
	if err != nil {
		return nil, err
	}
	if cp.Date, err = time.ParseInLocation(dateLayout, date, time.Local); err != nil {
		return nil, fmt.Errorf("corrupt checkpoint date %q: %w", date, err)
	}
	if cp.DeclaredBalance, err = decimal.NewFromString(declared); err != nil {
		return nil, fmt.Errorf("corrupt declared balance %q: %w", declared, err)
	}
	if cp.CalculatedBalance, err = decimal.NewFromString(calc); err != nil {
		return nil, fmt.Errorf("corrupt calculated balance %q: %w", calc, err)
	}
	if cp.AdjustmentAmount, err = decimal.NewFromString(adj); err != nil {
		return nil, fmt.Errorf("corrupt adjustment amount %q: %w", adj, err)
	}
	cp.IsReconciled = reconciled != 0
	return &cp, nil
}

func scanBatch(r rowScanner) (*domain.ImportBatch, error) {
	var b domain.ImportBatch
	var created string
	err := r.Scan(&b.ID, &b.AccountID, &b.FileName, &b.TransactionCount,
		&b.Status, &created)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if b.CreatedAt, err = time.Parse(time.RFC3339, created); err != nil {
		return nil, fmt.Errorf("corrupt batch timestamp %q: %w", created, err)
	}
	return &b, nil
}

func requireRow(res sql.Result, missing error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return missing
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
