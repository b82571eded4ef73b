/*
store.go - Persistence interfaces for the settlement ledger

PURPOSE:
  Defines the interface between the settlement engine and the database.
  Different implementations can use SQLite or in-memory storage.

KEY INTERFACES:
  Store:   Account, obligation, payable and transaction persistence
  TxStore: Transactional operations (atomic multi-table writes)

APPEND-ONLY CONTRACT:
  Transactions are append-only:
  - AppendTransaction(): the ONLY transaction write
  - NO update or delete methods exist for transactions

ATOMIC SECTIONS:
  WithTx() ensures all-or-nothing semantics. A settlement writes four rows
  (account debit, obligation payment, payable progress, transaction append);
  either all four land or none do. An account must never be debited without
  its matching transaction row.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: Production SQLite
  - ledger/store/memory.go: In-memory for testing

SEE ALSO:
  - engine.go: Settlement algorithm using these interfaces
  - adapter.go: Per-kind obligation views over ObligationRow
*/
package ledger

import (
	"context"
	"time"
)

// ObligationRow is the persisted shape shared by the three obligation tables
// (bills, incidents, fund requests). Adapters map rows to ObligationViews.
type ObligationRow struct {
	ID         int64
	PayerID    int64
	Requested  Amount
	Approved   Amount
	Paid       Amount
	Status     ObligationStatus
	ApprovedBy string
	ApprovedAt time.Time
	SettledBy  string
	SettledAt  time.Time
	CreatedAt  time.Time
}

// TransactionFilter narrows history queries. Nil fields match everything.
type TransactionFilter struct {
	Direction *Direction
	Kind      *Kind
	From      *time.Time
	To        *time.Time
}

// DirectionSums holds per-direction totals computed at query time.
type DirectionSums struct {
	TotalCredit     Amount `json:"total_credit"`
	TotalDebit      Amount `json:"total_debit"`
	TotalAdjustment Amount `json:"total_adjustment"`
	Count           int    `json:"count"`
}

// =============================================================================
// STORE - Persistence interface
// =============================================================================

// Store handles persistence for accounts, obligations, payables and the
// transaction log. Get methods return (nil, nil) when the record is absent;
// sentinel not-found errors are the engine's concern, not the store's.
type Store interface {
	// Accounts. SaveAccount inserts and assigns the ID; balance is written
	// only via UpdateAccountBalance, and only by the settlement engine.
	GetAccount(ctx context.Context, id int64) (*Account, error)
	GetAccountByPayer(ctx context.Context, payerID int64) (*Account, error)
	SaveAccount(ctx context.Context, a *Account) error
	UpdateAccountBalance(ctx context.Context, id int64, balance Amount) error

	// Obligation rows, keyed by kind. SaveObligation upserts (the producing
	// workflows live outside this service); UpdateObligationPayment is the
	// settlement write path.
	GetObligation(ctx context.Context, kind Kind, id int64) (*ObligationRow, error)
	SaveObligation(ctx context.Context, kind Kind, row *ObligationRow) error
	UpdateObligationPayment(ctx context.Context, kind Kind, id int64, paid Amount, status ObligationStatus, settledBy string, settledAt time.Time) error

	// Payables. At most one live (PENDING or PARTIALLY_SETTLED) payable may
	// exist per (kind, obligation id); InsertPayable must reject a second.
	InsertPayable(ctx context.Context, p *Payable) error
	LivePayable(ctx context.Context, kind Kind, obligationID int64) (*Payable, error)
	ListOutstandingPayables(ctx context.Context, payerID int64, limit, offset int) ([]Payable, error)
	UpdatePayableProgress(ctx context.Context, payableID string, amount Amount, status PayableStatus) error

	// Transactions. Append-only: no update, no delete. Ever.
	AppendTransaction(ctx context.Context, tx Transaction) error
	ListTransactions(ctx context.Context, payerID int64, f TransactionFilter, limit, offset int) ([]Transaction, int, error)
	SumTransactions(ctx context.Context, payerID int64, f TransactionFilter) (DirectionSums, error)
}

// =============================================================================
// TRANSACTIONAL STORE - For atomic operations across multiple writes
// =============================================================================

// TxStore wraps Store with transaction support.
// The settlement critical section runs entirely inside one WithTx call.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, every write made through its Store is rolled back.
	WithTx(ctx context.Context, fn func(Store) error) error
}
