/*
queue.go - Per-payer queue of outstanding obligations

PURPOSE:
  Maintains the ordered set of obligations awaiting settlement for each
  payer. Ordering is createdAt ascending: the oldest obligation is settled
  first ("first-owed, first-paid"), chosen for fairness and auditability.

PAYABLE AS PROJECTION:
  A Payable mirrors one obligation. It is a read projection used for
  ordering, never an independently authoritative amount: the obligation row
  is the source of truth and the payable's amount is resynced from the
  obligation's outstanding balance on every settlement.

INVARIANT:
  Exactly one live (PENDING or PARTIALLY_SETTLED) payable exists per
  outstanding obligation. Enqueue rejects a second with
  ErrDuplicateObligation.

STORE PARAMETER:
  Like the obligation adapters, queue methods receive the Store explicitly
  so MarkProgress participates in the engine's transactional section when
  handed a tx-scoped store.

SEE ALSO:
  - engine.go: Drains the queue in SettleWaterfall
  - store.go: ListOutstandingPayables ordering contract
*/
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Queue orders outstanding payables for settlement.
type Queue struct {
	now func() time.Time
}

func NewQueue() *Queue {
	return &Queue{now: time.Now}
}

// Enqueue inserts a PENDING payable for the obligation.
// Fails with DuplicateObligationError if a live payable already references
// the same (kind, id).
func (q *Queue) Enqueue(ctx context.Context, s Store, payerID int64, kind Kind, obligationID int64, amount Amount) (*Payable, error) {
	existing, err := s.LivePayable(ctx, kind, obligationID)
	if err != nil {
		return nil, fmt.Errorf("check live payable: %w", err)
	}
	if existing != nil {
		return nil, &DuplicateObligationError{
			Kind:         kind,
			ObligationID: obligationID,
			PayableID:    existing.ID,
		}
	}

	p := &Payable{
		ID:           uuid.New().String(),
		PayerID:      payerID,
		Kind:         kind,
		ObligationID: obligationID,
		Amount:       amount,
		Status:       PayablePending,
		CreatedAt:    q.now().UTC(),
	}
	if err := s.InsertPayable(ctx, p); err != nil {
		return nil, fmt.Errorf("insert payable: %w", err)
	}
	return p, nil
}

// NextBatch returns the next page of live payables for the payer, oldest
// first.
func (q *Queue) NextBatch(ctx context.Context, s Store, payerID int64, pageSize, offset int) ([]Payable, error) {
	return s.ListOutstandingPayables(ctx, payerID, pageSize, offset)
}

// MarkProgress updates a payable after a settlement touched its obligation.
// remaining is the obligation's new outstanding balance; the payable's amount
// is resynced to it, keeping the projection consistent with the obligation.
func (q *Queue) MarkProgress(ctx context.Context, s Store, payableID string, remaining Amount) error {
	return s.UpdatePayableProgress(ctx, payableID, remaining, ProgressStatus(remaining))
}

// MarkFailed retires a payable whose obligation was declined after enqueue.
func (q *Queue) MarkFailed(ctx context.Context, s Store, payableID string, remaining Amount) error {
	return s.UpdatePayableProgress(ctx, payableID, remaining, PayableFailed)
}

// ProgressStatus maps an outstanding balance to the payable status:
// PARTIALLY_SETTLED while anything remains, SETTLED once nothing does.
func ProgressStatus(remaining Amount) PayableStatus {
	if remaining.IsPositive() {
		return PayablePartiallySettled
	}
	return PayableSettled
}
