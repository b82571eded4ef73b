/*
adapter.go - Uniform view over the three obligation kinds

PURPOSE:
  A work bill, an incident payout and a fund request are produced by three
  different workflows and live in three different tables, but the settlement
  engine treats them identically: an approved amount, a paid amount, an
  outstanding balance. The adapter is that uniform contract.

SCOPE:
  ApplyPayment writes exactly one obligation row and nothing else. Account
  debits, payable progress and the transaction append belong to the engine,
  so settlement logic is not duplicated three times.

CALLER CONTRACT:
  ApplyPayment does not clamp: the amount must already be <= the outstanding
  balance. The engine enforces this via min(amount, balance) before calling.

SEE ALSO:
  - obligation/: The three concrete adapters
  - engine.go: The only caller of ApplyPayment
*/
package ledger

import (
	"context"
	"time"
)

// ObligationAdapter exposes one obligation kind to the settlement engine.
//
// Adapters are stateless; they receive the Store explicitly so ApplyPayment
// participates in the engine's transactional section when handed a tx-scoped
// store.
type ObligationAdapter interface {
	// Kind returns the obligation kind this adapter serves.
	Kind() Kind

	// Load returns the uniform view, or ErrObligationNotFound.
	Load(ctx context.Context, s Store, id int64) (*ObligationView, error)

	// ApplyPayment adds amount to the obligation's paid total, recomputes the
	// status and persists the single row. No clamping: amount must already be
	// bounded by the outstanding balance.
	ApplyPayment(ctx context.Context, s Store, id int64, amount Amount, actor string, at time.Time) (*ObligationView, error)
}

// AdapterSet indexes adapters by kind for the engine.
type AdapterSet map[Kind]ObligationAdapter

// For returns the adapter for kind, or ErrUnknownKind.
func (as AdapterSet) For(kind Kind) (ObligationAdapter, error) {
	a, ok := as[kind]
	if !ok {
		return nil, ErrUnknownKind
	}
	return a, nil
}
