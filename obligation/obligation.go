/*
Package obligation provides the per-kind adapters over the three obligation
tables: work bills, incidents and fund requests.

PURPOSE:
  Each producing workflow (work-bill approval, incident approval, fund-request
  approval) persists its own row type. The settlement engine must not know
  about three tables, so each kind gets a thin adapter exposing the uniform
  ledger.ObligationView contract.

WHY THREE ADAPTERS?
  The engine's algorithm (debit, apply, progress, log) is written once.
  Adapters keep the kinds substitutable without duplicating settlement logic
  per table.

INVARIANT (enforced here):
  paid never exceeds approved. ApplyPayment trusts the engine to bound the
  amount, but still rejects an overshoot as a defect rather than persisting
  a corrupt row.

SEE ALSO:
  - ledger/adapter.go: The interface these types implement
  - ledger/engine.go: The only caller of ApplyPayment
*/
package obligation

import (
	"context"
	"fmt"
	"time"

	"github.com/aliyura/braverock-ledger/ledger"
)

// Registry returns the adapter set for all three kinds.
func Registry() ledger.AdapterSet {
	return ledger.AdapterSet{
		ledger.KindBill:        Bill{},
		ledger.KindIncident:    Incident{},
		ledger.KindFundRequest: FundRequest{},
	}
}

// load maps a row of the given kind to the uniform view.
func load(ctx context.Context, s ledger.Store, kind ledger.Kind, id int64) (*ledger.ObligationView, error) {
	row, err := s.GetObligation(ctx, kind, id)
	if err != nil {
		return nil, fmt.Errorf("load %s %d: %w", kind.Label(), id, err)
	}
	if row == nil {
		return nil, fmt.Errorf("%s %d: %w", kind.Label(), id, ledger.ErrObligationNotFound)
	}
	return toView(kind, row), nil
}

// applyPayment computes the new paid total and status, persists the single
// obligation row and returns the updated view. It touches neither Account
// nor Transaction; those writes are the engine's.
func applyPayment(ctx context.Context, s ledger.Store, kind ledger.Kind, id int64, amount ledger.Amount, actor string, at time.Time) (*ledger.ObligationView, error) {
	view, err := load(ctx, s, kind, id)
	if err != nil {
		return nil, err
	}

	if amount.GreaterThan(view.Balance()) {
		return nil, fmt.Errorf("%s %d: payment %s exceeds outstanding %s: %w",
			kind.Label(), id, amount, view.Balance(), ledger.ErrInvalidAmount)
	}

	newPaid := view.Paid.Add(amount)
	status := ledger.StatusFor(view.Approved, newPaid)

	settledBy := view.SettledBy
	settledAt := view.SettledAt
	if status == ledger.ObligationSettled {
		settledBy = actor
		settledAt = at
	}

	if err := s.UpdateObligationPayment(ctx, kind, id, newPaid, status, settledBy, settledAt); err != nil {
		return nil, fmt.Errorf("update %s %d payment: %w", kind.Label(), id, err)
	}

	view.Paid = newPaid
	view.Status = status
	view.SettledBy = settledBy
	view.SettledAt = settledAt
	return view, nil
}

func toView(kind ledger.Kind, row *ledger.ObligationRow) *ledger.ObligationView {
	return &ledger.ObligationView{
		Kind:       kind,
		ID:         row.ID,
		PayerID:    row.PayerID,
		Requested:  row.Requested,
		Approved:   row.Approved,
		Paid:       row.Paid,
		Status:     row.Status,
		ApprovedBy: row.ApprovedBy,
		ApprovedAt: row.ApprovedAt,
		SettledBy:  row.SettledBy,
		SettledAt:  row.SettledAt,
	}
}
