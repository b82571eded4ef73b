/*
Package sqlite provides a SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements ledger.Store and ledger.TxStore using SQLite. In production,
  the same patterns apply to PostgreSQL - only minor SQL dialect differences.

KEY TABLES:
  accounts:       Per-payer running balances
  bills:          Work-bill obligations
  incidents:      Incident obligations
  fund_requests:  Fund-request obligations
  payables:       Queue projection over outstanding obligations
  transactions:   Immutable ledger of all balance changes

APPEND-ONLY ENFORCEMENT:
  No UPDATE or DELETE statements exist for the transactions table.
  Corrections go through ADJUSTMENT transactions.

KEY INDEXES:
  idx_payables_live_obligation: Partial unique index enforcing exactly one
    live payable per (kind, obligation) - the enqueue idempotence invariant
  idx_payables_payer_live: Waterfall queue scan (hot path)
  idx_transactions_payer_created: History pagination

AMOUNTS:
  Stored as decimal strings and summed in Go with shopspring/decimal, never
  with SQL float arithmetic.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety; the settlement critical section runs
  inside WithTx (BEGIN ... COMMIT). SQLite is opened with WAL for better
  read concurrency.

USAGE:
  store, err := sqlite.New("./data/ledger.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - ledger/store.go: Interface definitions
  - ledger/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/aliyura/braverock-ledger/ledger"
)

// Store implements ledger.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: writes serialize on the store mutex anyway, and a pool
	// would give each connection its own database when dbPath is ":memory:".
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Accounts (one per payer)
	CREATE TABLE IF NOT EXISTS accounts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		payer_id INTEGER NOT NULL UNIQUE,
		balance TEXT NOT NULL,
		currency TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Obligations (one table per kind, identical shape)
	CREATE TABLE IF NOT EXISTS bills (
		id INTEGER PRIMARY KEY,
		payer_id INTEGER NOT NULL,
		requested TEXT NOT NULL,
		approved TEXT NOT NULL,
		paid TEXT NOT NULL,
		status TEXT NOT NULL,
		approved_by TEXT,
		approved_at TEXT,
		settled_by TEXT,
		settled_at TEXT,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS incidents (
		id INTEGER PRIMARY KEY,
		payer_id INTEGER NOT NULL,
		requested TEXT NOT NULL,
		approved TEXT NOT NULL,
		paid TEXT NOT NULL,
		status TEXT NOT NULL,
		approved_by TEXT,
		approved_at TEXT,
		settled_by TEXT,
		settled_at TEXT,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS fund_requests (
		id INTEGER PRIMARY KEY,
		payer_id INTEGER NOT NULL,
		requested TEXT NOT NULL,
		approved TEXT NOT NULL,
		paid TEXT NOT NULL,
		status TEXT NOT NULL,
		approved_by TEXT,
		approved_at TEXT,
		settled_by TEXT,
		settled_at TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_bills_payer ON bills(payer_id);
	CREATE INDEX IF NOT EXISTS idx_incidents_payer ON incidents(payer_id);
	CREATE INDEX IF NOT EXISTS idx_fund_requests_payer ON fund_requests(payer_id);

	-- Payables (settlement queue projection)
	CREATE TABLE IF NOT EXISTS payables (
		id TEXT PRIMARY KEY,
		payer_id INTEGER NOT NULL,
		kind TEXT NOT NULL,
		obligation_id INTEGER NOT NULL,
		amount TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- CRITICAL: exactly one live payable per outstanding obligation.
	-- Enforces enqueue idempotence at the storage layer.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_payables_live_obligation
		ON payables(kind, obligation_id)
		WHERE status IN ('PENDING', 'PARTIALLY_SETTLED');

	-- Waterfall queue scan (hot path): oldest live payables per payer
	CREATE INDEX IF NOT EXISTS idx_payables_payer_live
		ON payables(payer_id, status, created_at);

	-- Transactions (append-only ledger)
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		account_id INTEGER NOT NULL,
		payer_id INTEGER NOT NULL,
		kind TEXT,
		obligation_id INTEGER,
		amount TEXT NOT NULL,
		direction TEXT NOT NULL,
		reason TEXT,
		status_snapshot TEXT,
		created_by TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_payer_created
		ON transactions(payer_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_transactions_account
		ON transactions(account_id);
	CREATE INDEX IF NOT EXISTS idx_transactions_direction
		ON transactions(payer_id, direction);
	`

	_, err := s.db.Exec(schema)
	return err
}

// dbtx abstracts *sql.DB and *sql.Tx so the same queries serve both paths.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func tableFor(kind ledger.Kind) (string, error) {
	switch kind {
	case ledger.KindBill:
		return "bills", nil
	case ledger.KindIncident:
		return "incidents", nil
	case ledger.KindFundRequest:
		return "fund_requests", nil
	}
	return "", fmt.Errorf("kind %q: %w", kind, ledger.ErrUnknownKind)
}

// =============================================================================
// ACCOUNTS
// =============================================================================

func (s *Store) GetAccount(ctx context.Context, id int64) (*ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getAccount(ctx, s.db, "id", id)
}

func (s *Store) GetAccountByPayer(ctx context.Context, payerID int64) (*ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getAccount(ctx, s.db, "payer_id", payerID)
}

func getAccount(ctx context.Context, db dbtx, column string, id int64) (*ledger.Account, error) {
	query := fmt.Sprintf(`
		SELECT id, payer_id, balance, currency, created_at, updated_at
		FROM accounts WHERE %s = ?
	`, column)

	var a ledger.Account
	var balance, createdAt, updatedAt string
	err := db.QueryRowContext(ctx, query, id).Scan(
		&a.ID, &a.PayerID, &balance, &a.Currency, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query account: %w", err)
	}
	a.Balance = ledger.MustParseAmount(balance)
	a.CreatedAt = parseTime(createdAt)
	a.UpdatedAt = parseTime(updatedAt)
	return &a, nil
}

func (s *Store) SaveAccount(ctx context.Context, a *ledger.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveAccount(ctx, s.db, a)
}

func saveAccount(ctx context.Context, db dbtx, a *ledger.Account) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	a.UpdatedAt = a.CreatedAt
	res, err := db.ExecContext(ctx, `
		INSERT INTO accounts (payer_id, balance, currency, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, a.PayerID, a.Balance.String(), a.Currency,
		formatTime(a.CreatedAt), formatTime(a.UpdatedAt))
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("payer %d: %w", a.PayerID, ledger.ErrAccountExists)
		}
		return fmt.Errorf("failed to insert account: %w", err)
	}
	a.ID, err = res.LastInsertId()
	return err
}

func (s *Store) UpdateAccountBalance(ctx context.Context, id int64, balance ledger.Amount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateAccountBalance(ctx, s.db, id, balance)
}

func updateAccountBalance(ctx context.Context, db dbtx, id int64, balance ledger.Amount) error {
	res, err := db.ExecContext(ctx, `
		UPDATE accounts SET balance = ?, updated_at = ? WHERE id = ?
	`, balance.String(), formatTime(time.Now().UTC()), id)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ledger.ErrAccountNotFound
	}
	return nil
}

// =============================================================================
// OBLIGATIONS
// =============================================================================

func (s *Store) GetObligation(ctx context.Context, kind ledger.Kind, id int64) (*ledger.ObligationRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getObligation(ctx, s.db, kind, id)
}

func getObligation(ctx context.Context, db dbtx, kind ledger.Kind, id int64) (*ledger.ObligationRow, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
		SELECT id, payer_id, requested, approved, paid, status,
		       approved_by, approved_at, settled_by, settled_at, created_at
		FROM %s WHERE id = ?
	`, table)

	var row ledger.ObligationRow
	var requested, approved, paid, createdAt string
	var approvedBy, approvedAt, settledBy, settledAt sql.NullString
	err = db.QueryRowContext(ctx, query, id).Scan(
		&row.ID, &row.PayerID, &requested, &approved, &paid, &row.Status,
		&approvedBy, &approvedAt, &settledBy, &settledAt, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}

	row.Requested = ledger.MustParseAmount(requested)
	row.Approved = ledger.MustParseAmount(approved)
	row.Paid = ledger.MustParseAmount(paid)
	row.ApprovedBy = approvedBy.String
	row.ApprovedAt = parseNullTime(approvedAt)
	row.SettledBy = settledBy.String
	row.SettledAt = parseNullTime(settledAt)
	row.CreatedAt = parseTime(createdAt)
	return &row, nil
}

func (s *Store) SaveObligation(ctx context.Context, kind ledger.Kind, row *ledger.ObligationRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveObligation(ctx, s.db, kind, row)
}

func saveObligation(ctx context.Context, db dbtx, kind ledger.Kind, row *ledger.ObligationRow) error {
	table, err := tableFor(kind)
	if err != nil {
		return err
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	query := fmt.Sprintf(`
		INSERT INTO %s
		(id, payer_id, requested, approved, paid, status,
		 approved_by, approved_at, settled_by, settled_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			payer_id = excluded.payer_id,
			requested = excluded.requested,
			approved = excluded.approved,
			paid = excluded.paid,
			status = excluded.status,
			approved_by = excluded.approved_by,
			approved_at = excluded.approved_at,
			settled_by = excluded.settled_by,
			settled_at = excluded.settled_at
	`, table)

	_, err = db.ExecContext(ctx, query,
		row.ID, row.PayerID,
		row.Requested.String(), row.Approved.String(), row.Paid.String(),
		row.Status,
		nullString(row.ApprovedBy), nullTime(row.ApprovedAt),
		nullString(row.SettledBy), nullTime(row.SettledAt),
		formatTime(row.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to save %s: %w", table, err)
	}
	return nil
}

func (s *Store) UpdateObligationPayment(ctx context.Context, kind ledger.Kind, id int64, paid ledger.Amount, status ledger.ObligationStatus, settledBy string, settledAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateObligationPayment(ctx, s.db, kind, id, paid, status, settledBy, settledAt)
}

func updateObligationPayment(ctx context.Context, db dbtx, kind ledger.Kind, id int64, paid ledger.Amount, status ledger.ObligationStatus, settledBy string, settledAt time.Time) error {
	table, err := tableFor(kind)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`
		UPDATE %s SET paid = ?, status = ?, settled_by = ?, settled_at = ?
		WHERE id = ?
	`, table)
	res, err := db.ExecContext(ctx, query,
		paid.String(), status, nullString(settledBy), nullTime(settledAt), id)
	if err != nil {
		return fmt.Errorf("failed to update %s payment: %w", table, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ledger.ErrObligationNotFound
	}
	return nil
}

// =============================================================================
// PAYABLES
// =============================================================================

func (s *Store) InsertPayable(ctx context.Context, p *ledger.Payable) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertPayable(ctx, s.db, p)
}

func insertPayable(ctx context.Context, db dbtx, p *ledger.Payable) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO payables (id, payer_id, kind, obligation_id, amount, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.PayerID, p.Kind, p.ObligationID,
		p.Amount.String(), p.Status, formatTime(p.CreatedAt))
	if err != nil {
		if isUniqueConstraintError(err) {
			existing, lookupErr := livePayable(ctx, db, p.Kind, p.ObligationID)
			dup := &ledger.DuplicateObligationError{Kind: p.Kind, ObligationID: p.ObligationID}
			if lookupErr == nil && existing != nil {
				dup.PayableID = existing.ID
			}
			return dup
		}
		return fmt.Errorf("failed to insert payable: %w", err)
	}
	return nil
}

func (s *Store) LivePayable(ctx context.Context, kind ledger.Kind, obligationID int64) (*ledger.Payable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return livePayable(ctx, s.db, kind, obligationID)
}

func livePayable(ctx context.Context, db dbtx, kind ledger.Kind, obligationID int64) (*ledger.Payable, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, payer_id, kind, obligation_id, amount, status, created_at
		FROM payables
		WHERE kind = ? AND obligation_id = ?
		  AND status IN ('PENDING', 'PARTIALLY_SETTLED')
	`, kind, obligationID)
	p, err := scanPayable(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query live payable: %w", err)
	}
	return p, nil
}

func (s *Store) ListOutstandingPayables(ctx context.Context, payerID int64, limit, offset int) ([]ledger.Payable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listOutstandingPayables(ctx, s.db, payerID, limit, offset)
}

func listOutstandingPayables(ctx context.Context, db dbtx, payerID int64, limit, offset int) ([]ledger.Payable, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, payer_id, kind, obligation_id, amount, status, created_at
		FROM payables
		WHERE payer_id = ? AND status IN ('PENDING', 'PARTIALLY_SETTLED')
		ORDER BY created_at ASC, id ASC
		LIMIT ? OFFSET ?
	`, payerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list payables: %w", err)
	}
	defer rows.Close()

	var result []ledger.Payable
	for rows.Next() {
		p, err := scanPayable(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *p)
	}
	return result, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPayable(row scanner) (*ledger.Payable, error) {
	var p ledger.Payable
	var amount, createdAt string
	if err := row.Scan(&p.ID, &p.PayerID, &p.Kind, &p.ObligationID,
		&amount, &p.Status, &createdAt); err != nil {
		return nil, err
	}
	p.Amount = ledger.MustParseAmount(amount)
	p.CreatedAt = parseTime(createdAt)
	return &p, nil
}

func (s *Store) UpdatePayableProgress(ctx context.Context, payableID string, amount ledger.Amount, status ledger.PayableStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updatePayableProgress(ctx, s.db, payableID, amount, status)
}

func updatePayableProgress(ctx context.Context, db dbtx, payableID string, amount ledger.Amount, status ledger.PayableStatus) error {
	res, err := db.ExecContext(ctx, `
		UPDATE payables SET amount = ?, status = ? WHERE id = ?
	`, amount.String(), status, payableID)
	if err != nil {
		return fmt.Errorf("failed to update payable: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ledger.ErrPayableNotFound
	}
	return nil
}

// =============================================================================
// TRANSACTIONS (append-only)
// =============================================================================

func (s *Store) AppendTransaction(ctx context.Context, tx ledger.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendTransaction(ctx, s.db, tx)
}

func appendTransaction(ctx context.Context, db dbtx, tx ledger.Transaction) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO transactions
		(id, account_id, payer_id, kind, obligation_id, amount, direction,
		 reason, status_snapshot, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, tx.ID, tx.AccountID, tx.PayerID,
		nullString(string(tx.Kind)), tx.ObligationID,
		tx.Amount.String(), tx.Direction,
		nullString(tx.Reason), nullString(string(tx.StatusSnapshot)),
		nullString(tx.CreatedBy), formatTime(tx.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to append transaction: %w", err)
	}
	return nil
}

func transactionWhere(payerID int64, f ledger.TransactionFilter) (string, []any) {
	clauses := []string{"payer_id = ?"}
	args := []any{payerID}
	if f.Direction != nil {
		clauses = append(clauses, "direction = ?")
		args = append(args, *f.Direction)
	}
	if f.Kind != nil {
		clauses = append(clauses, "kind = ?")
		args = append(args, *f.Kind)
	}
	if f.From != nil {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, formatTime(*f.From))
	}
	if f.To != nil {
		clauses = append(clauses, "created_at <= ?")
		args = append(args, formatTime(*f.To))
	}
	return strings.Join(clauses, " AND "), args
}

func (s *Store) ListTransactions(ctx context.Context, payerID int64, f ledger.TransactionFilter, limit, offset int) ([]ledger.Transaction, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listTransactions(ctx, s.db, payerID, f, limit, offset)
}

func listTransactions(ctx context.Context, db dbtx, payerID int64, f ledger.TransactionFilter, limit, offset int) ([]ledger.Transaction, int, error) {
	where, args := transactionWhere(payerID, f)

	var total int
	if err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM transactions WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count transactions: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT id, account_id, payer_id, kind, obligation_id, amount, direction,
		       reason, status_snapshot, created_by, created_at
		FROM transactions
		WHERE %s
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, where)
	rows, err := db.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var result []ledger.Transaction
	for rows.Next() {
		var tx ledger.Transaction
		var amount, createdAt string
		var kind, reason, snapshot, createdBy sql.NullString
		if err := rows.Scan(&tx.ID, &tx.AccountID, &tx.PayerID, &kind,
			&tx.ObligationID, &amount, &tx.Direction,
			&reason, &snapshot, &createdBy, &createdAt); err != nil {
			return nil, 0, err
		}
		tx.Kind = ledger.Kind(kind.String)
		tx.Amount = ledger.MustParseAmount(amount)
		tx.Reason = reason.String
		tx.StatusSnapshot = ledger.ObligationStatus(snapshot.String)
		tx.CreatedBy = createdBy.String
		tx.CreatedAt = parseTime(createdAt)
		result = append(result, tx)
	}
	return result, total, rows.Err()
}

func (s *Store) SumTransactions(ctx context.Context, payerID int64, f ledger.TransactionFilter) (ledger.DirectionSums, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sumTransactions(ctx, s.db, payerID, f)
}

// sumTransactions totals amounts in Go with decimal arithmetic; SQL SUM on
// the TEXT column would silently go through floats.
func sumTransactions(ctx context.Context, db dbtx, payerID int64, f ledger.TransactionFilter) (ledger.DirectionSums, error) {
	sums := ledger.DirectionSums{
		TotalCredit:     ledger.ZeroAmount(),
		TotalDebit:      ledger.ZeroAmount(),
		TotalAdjustment: ledger.ZeroAmount(),
	}
	where, args := transactionWhere(payerID, f)
	rows, err := db.QueryContext(ctx,
		"SELECT direction, amount FROM transactions WHERE "+where, args...)
	if err != nil {
		return sums, fmt.Errorf("failed to sum transactions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var direction, amount string
		if err := rows.Scan(&direction, &amount); err != nil {
			return sums, err
		}
		a := ledger.MustParseAmount(amount)
		sums.Count++
		switch ledger.Direction(direction) {
		case ledger.DirectionCredit:
			sums.TotalCredit = sums.TotalCredit.Add(a)
		case ledger.DirectionDebit:
			sums.TotalDebit = sums.TotalDebit.Add(a)
		case ledger.DirectionAdjustment:
			sums.TotalAdjustment = sums.TotalAdjustment.Add(a)
		}
	}
	return sums, rows.Err()
}

// =============================================================================
// TRANSACTIONAL STORE (ledger.TxStore interface)
// =============================================================================

// WithTx executes fn inside a single database transaction. Any error rolls
// back every write fn made.
func (s *Store) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txView{tx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// txView routes Store calls through an open *sql.Tx. The outer Store's
// mutex is already held; no additional locking here.
type txView struct {
	tx *sql.Tx
}

func (v *txView) GetAccount(ctx context.Context, id int64) (*ledger.Account, error) {
	return getAccount(ctx, v.tx, "id", id)
}

func (v *txView) GetAccountByPayer(ctx context.Context, payerID int64) (*ledger.Account, error) {
	return getAccount(ctx, v.tx, "payer_id", payerID)
}

func (v *txView) SaveAccount(ctx context.Context, a *ledger.Account) error {
	return saveAccount(ctx, v.tx, a)
}

func (v *txView) UpdateAccountBalance(ctx context.Context, id int64, balance ledger.Amount) error {
	return updateAccountBalance(ctx, v.tx, id, balance)
}

func (v *txView) GetObligation(ctx context.Context, kind ledger.Kind, id int64) (*ledger.ObligationRow, error) {
	return getObligation(ctx, v.tx, kind, id)
}

func (v *txView) SaveObligation(ctx context.Context, kind ledger.Kind, row *ledger.ObligationRow) error {
	return saveObligation(ctx, v.tx, kind, row)
}

func (v *txView) UpdateObligationPayment(ctx context.Context, kind ledger.Kind, id int64, paid ledger.Amount, status ledger.ObligationStatus, settledBy string, settledAt time.Time) error {
	return updateObligationPayment(ctx, v.tx, kind, id, paid, status, settledBy, settledAt)
}

func (v *txView) InsertPayable(ctx context.Context, p *ledger.Payable) error {
	return insertPayable(ctx, v.tx, p)
}

func (v *txView) LivePayable(ctx context.Context, kind ledger.Kind, obligationID int64) (*ledger.Payable, error) {
	return livePayable(ctx, v.tx, kind, obligationID)
}

func (v *txView) ListOutstandingPayables(ctx context.Context, payerID int64, limit, offset int) ([]ledger.Payable, error) {
	return listOutstandingPayables(ctx, v.tx, payerID, limit, offset)
}

func (v *txView) UpdatePayableProgress(ctx context.Context, payableID string, amount ledger.Amount, status ledger.PayableStatus) error {
	return updatePayableProgress(ctx, v.tx, payableID, amount, status)
}

func (v *txView) AppendTransaction(ctx context.Context, tx ledger.Transaction) error {
	return appendTransaction(ctx, v.tx, tx)
}

func (v *txView) ListTransactions(ctx context.Context, payerID int64, f ledger.TransactionFilter, limit, offset int) ([]ledger.Transaction, int, error) {
	return listTransactions(ctx, v.tx, payerID, f, limit, offset)
}

func (v *txView) SumTransactions(ctx context.Context, payerID int64, f ledger.TransactionFilter) (ledger.DirectionSums, error) {
	return sumTransactions(ctx, v.tx, payerID, f)
}

// =============================================================================
// HELPERS
// =============================================================================

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func parseNullTime(s sql.NullString) time.Time {
	if !s.Valid {
		return time.Time{}
	}
	return parseTime(s.String)
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(t), Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
