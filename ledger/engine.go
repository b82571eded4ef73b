/*
engine.go - Settlement engine

PURPOSE:
  Applies payments against outstanding obligations while keeping four pieces
  of state mutually consistent: the account balance, the obligation row, the
  payable projection and the append-only transaction log.

TWO OPERATIONS:
  SettleOne:       apply a payment to a single targeted obligation
  SettleWaterfall: drain a payer's queue oldest-first until the amount or
                   the queue is exhausted

ATOMICITY:
  The four writes of SettleOne (debit, payment, progress, append) commit as
  one unit via TxStore.WithTx. A storage failure anywhere inside rolls the
  whole section back; the account is never left debited without its matching
  transaction row.

  The waterfall is deliberately NOT atomic across items. Each constituent
  SettleOne is its own unit, so a long queue never holds a long-lived lock
  and one item's failure does not abort the batch. Callers get a structured
  per-item result, not a single pass/fail flag.

CONCURRENCY:
  Settlements against the same account serialize on a per-account mutex.
  Settlements against different accounts proceed fully in parallel.
  Context cancellation is checked once per waterfall item so a caller can
  abandon a large waterfall without losing already-applied progress.

OVERPAYMENT:
  applied = min(amount, outstanding). The excess is neither refunded nor
  carried forward; the waterfall reports it as Remaining.

SEE ALSO:
  - adapter.go: ApplyPayment contract
  - queue.go: Ordering and payable progress
  - service.go: Validation and authorization wrapper
*/
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ACCOUNT LOCKS - Per-account mutual exclusion
// =============================================================================

// accountLocks serializes settlements per account ID.
type accountLocks struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func newAccountLocks() *accountLocks {
	return &accountLocks{locks: make(map[int64]*sync.Mutex)}
}

func (al *accountLocks) lock(accountID int64) func() {
	al.mu.Lock()
	m, ok := al.locks[accountID]
	if !ok {
		m = &sync.Mutex{}
		al.locks[accountID] = m
	}
	al.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// =============================================================================
// ENGINE
// =============================================================================

// Engine is the settlement core. All Account.Balance mutations go through it.
type Engine struct {
	store    TxStore
	adapters AdapterSet
	queue    *Queue
	notifier Notifier
	log      *slog.Logger

	// WaterfallPageSize bounds each NextBatch page. Defaults to 50.
	WaterfallPageSize int

	locks *accountLocks
	now   func() time.Time
}

func NewEngine(store TxStore, adapters AdapterSet, queue *Queue, notifier Notifier, log *slog.Logger) *Engine {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		store:             store,
		adapters:          adapters,
		queue:             queue,
		notifier:          notifier,
		log:               log,
		WaterfallPageSize: 50,
		locks:             newAccountLocks(),
		now:               time.Now,
	}
}

// =============================================================================
// SETTLE ONE - Single-target settlement
// =============================================================================

// SettleOne applies a payment to one obligation and returns the transaction
// receipt.
//
// applied = min(amount, obligation outstanding). The account is debited by
// applied, floored at zero; the obligation's paid total grows by applied;
// the payable projection is resynced; one CREDIT transaction is appended
// with the post-update obligation status as a snapshot. All four writes
// commit as one unit.
func (e *Engine) SettleOne(ctx context.Context, accountID int64, kind Kind, obligationID int64, amount Amount, actor UserRef) (*Transaction, error) {
	if !amount.IsPositive() {
		return nil, &InvalidAmountError{Amount: amount, Reason: "payment must be positive"}
	}
	adapter, err := e.adapters.For(kind)
	if err != nil {
		return nil, err
	}

	unlock := e.locks.lock(accountID)
	defer unlock()

	account, err := e.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("load account %d: %w", accountID, err)
	}
	if account == nil {
		return nil, fmt.Errorf("account %d: %w", accountID, ErrAccountNotFound)
	}

	view, err := adapter.Load(ctx, e.store, obligationID)
	if err != nil {
		return nil, err
	}

	outstanding := view.Balance()
	if !outstanding.IsPositive() {
		return nil, fmt.Errorf("%s %d has no outstanding balance: %w",
			kind.Label(), obligationID, ErrObligationSettled)
	}
	applied := amount.Min(outstanding)
	now := e.now().UTC()

	var receipt *Transaction
	err = e.store.WithTx(ctx, func(s Store) error {
		newBalance := account.Balance.Sub(applied)
		if newBalance.IsNegative() {
			newBalance = ZeroAmount()
		}
		if err := s.UpdateAccountBalance(ctx, account.ID, newBalance); err != nil {
			return fmt.Errorf("debit account %d: %w", account.ID, err)
		}

		updated, err := adapter.ApplyPayment(ctx, s, obligationID, applied, actor.String(), now)
		if err != nil {
			return err
		}

		// Resync the payable projection from the obligation's new outstanding.
		p, err := s.LivePayable(ctx, kind, obligationID)
		if err != nil {
			return fmt.Errorf("load payable for %s %d: %w", kind.Label(), obligationID, err)
		}
		if p != nil {
			if err := e.queue.MarkProgress(ctx, s, p.ID, updated.Balance()); err != nil {
				return fmt.Errorf("mark payable %s: %w", p.ID, err)
			}
		}

		tx := Transaction{
			ID:             uuid.New().String(),
			AccountID:      account.ID,
			PayerID:        account.PayerID,
			Kind:           kind,
			ObligationID:   obligationID,
			Amount:         applied,
			Direction:      DirectionCredit,
			Reason:         fmt.Sprintf("settlement of %s %d", kind.Label(), obligationID),
			StatusSnapshot: updated.Status,
			CreatedBy:      actor.String(),
			CreatedAt:      now,
		}
		if err := s.AppendTransaction(ctx, tx); err != nil {
			return fmt.Errorf("append transaction: %w", err)
		}
		receipt = &tx
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.log.Info("settlement applied",
		"account", account.ID,
		"payer", account.PayerID,
		"kind", kind,
		"obligation", obligationID,
		"applied", applied.String(),
		"status", receipt.StatusSnapshot,
	)

	// Fire-and-forget: a delivery failure must not roll back the settlement.
	e.notifier.Notify(Event{
		PayerID: account.PayerID,
		Subject: "Payment settled",
		Body: fmt.Sprintf("A payment of %s was applied to %s %d (now %s).",
			applied, kind.Label(), obligationID, receipt.StatusSnapshot),
	})

	return receipt, nil
}

// =============================================================================
// DEPOSIT / ADJUST - Non-settlement balance mutations
// =============================================================================

// Deposit funds the account and appends a DEBIT transaction.
// The CREDIT/DEBIT labels come from the organization's books: DEBIT raises
// the account balance, CREDIT (settlement) lowers it.
func (e *Engine) Deposit(ctx context.Context, accountID int64, amount Amount, reason string, actor UserRef) (*Transaction, error) {
	if !amount.IsPositive() {
		return nil, &InvalidAmountError{Amount: amount, Reason: "deposit must be positive"}
	}

	unlock := e.locks.lock(accountID)
	defer unlock()

	account, err := e.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("load account %d: %w", accountID, err)
	}
	if account == nil {
		return nil, fmt.Errorf("account %d: %w", accountID, ErrAccountNotFound)
	}

	now := e.now().UTC()
	if reason == "" {
		reason = "account deposit"
	}
	var receipt *Transaction
	err = e.store.WithTx(ctx, func(s Store) error {
		if err := s.UpdateAccountBalance(ctx, account.ID, account.Balance.Add(amount)); err != nil {
			return fmt.Errorf("credit account %d: %w", account.ID, err)
		}
		tx := Transaction{
			ID:        uuid.New().String(),
			AccountID: account.ID,
			PayerID:   account.PayerID,
			Amount:    amount,
			Direction: DirectionDebit,
			Reason:    reason,
			CreatedBy: actor.String(),
			CreatedAt: now,
		}
		if err := s.AppendTransaction(ctx, tx); err != nil {
			return fmt.Errorf("append transaction: %w", err)
		}
		receipt = &tx
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.log.Info("deposit applied", "account", account.ID, "payer", account.PayerID, "amount", amount.String())
	return receipt, nil
}

// Adjust applies a signed manual correction and appends an ADJUSTMENT
// transaction. The resulting balance is floored at zero.
func (e *Engine) Adjust(ctx context.Context, accountID int64, delta Amount, reason string, actor UserRef) (*Transaction, error) {
	if delta.IsZero() {
		return nil, &InvalidAmountError{Amount: delta, Reason: "adjustment must be non-zero"}
	}
	if reason == "" {
		return nil, fmt.Errorf("adjustment requires a reason: %w", ErrInvalidAmount)
	}

	unlock := e.locks.lock(accountID)
	defer unlock()

	account, err := e.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("load account %d: %w", accountID, err)
	}
	if account == nil {
		return nil, fmt.Errorf("account %d: %w", accountID, ErrAccountNotFound)
	}

	now := e.now().UTC()
	var receipt *Transaction
	err = e.store.WithTx(ctx, func(s Store) error {
		newBalance := account.Balance.Add(delta)
		if newBalance.IsNegative() {
			newBalance = ZeroAmount()
		}
		if err := s.UpdateAccountBalance(ctx, account.ID, newBalance); err != nil {
			return fmt.Errorf("adjust account %d: %w", account.ID, err)
		}
		tx := Transaction{
			ID:        uuid.New().String(),
			AccountID: account.ID,
			PayerID:   account.PayerID,
			Amount:    delta,
			Direction: DirectionAdjustment,
			Reason:    reason,
			CreatedBy: actor.String(),
			CreatedAt: now,
		}
		if err := s.AppendTransaction(ctx, tx); err != nil {
			return fmt.Errorf("append transaction: %w", err)
		}
		receipt = &tx
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.log.Info("adjustment applied", "account", account.ID, "delta", delta.String(), "reason", reason)
	return receipt, nil
}

// =============================================================================
// SETTLE WATERFALL - Oldest-first allocation across a payer's queue
// =============================================================================

// WaterfallItem records the outcome of one queue entry during a waterfall.
type WaterfallItem struct {
	Payable     Payable      `json:"payable"`
	Applied     Amount       `json:"applied"`
	Transaction *Transaction `json:"transaction,omitempty"`
	Err         error        `json:"-"`
}

// WaterfallResult is the structured outcome of a waterfall payment.
// Callers are expected to inspect Items ("paid 3 of 5"), not reduce this
// to a boolean.
type WaterfallResult struct {
	PayerID   int64           `json:"payer_id"`
	Total     Amount          `json:"total"`
	Remaining Amount          `json:"remaining"`
	Items     []WaterfallItem `json:"items"`
	Succeeded int             `json:"succeeded"`
	Failed    int             `json:"failed"`
}

// Applied returns the portion of Total that reached obligations.
func (r *WaterfallResult) Applied() Amount {
	return r.Total.Sub(r.Remaining)
}

// Success reports overall failure only when nothing at all was applied.
func (r *WaterfallResult) Success() bool {
	return !(r.Succeeded == 0 && r.Remaining.Equal(r.Total))
}

// SettleWaterfall allocates totalAmount across the payer's outstanding
// obligations, oldest first, until the amount or the queue is exhausted.
//
// Each item settles through SettleOne as its own atomic unit; one item's
// failure is recorded and the loop continues with the same remaining.
// Cancellation is checked between items: on ctx error the partial result is
// returned alongside it, with already-applied progress intact.
func (e *Engine) SettleWaterfall(ctx context.Context, payerID int64, totalAmount Amount, actor UserRef) (*WaterfallResult, error) {
	if !totalAmount.IsPositive() {
		return nil, &InvalidAmountError{Amount: totalAmount, Reason: "payment must be positive"}
	}

	account, err := e.store.GetAccountByPayer(ctx, payerID)
	if err != nil {
		return nil, fmt.Errorf("load account for payer %d: %w", payerID, err)
	}
	if account == nil {
		return nil, fmt.Errorf("payer %d: %w", payerID, ErrAccountNotFound)
	}

	result := &WaterfallResult{
		PayerID:   payerID,
		Total:     totalAmount,
		Remaining: totalAmount,
	}

	offset := 0
	for result.Remaining.IsPositive() {
		batch, err := e.queue.NextBatch(ctx, e.store, payerID, e.WaterfallPageSize, offset)
		if err != nil {
			return result, fmt.Errorf("next batch (offset %d): %w", offset, err)
		}
		if len(batch) == 0 {
			break
		}

		for _, p := range batch {
			if !result.Remaining.IsPositive() {
				return result, nil
			}
			if err := ctx.Err(); err != nil {
				return result, err
			}

			applied := p.Amount.Min(result.Remaining)
			tx, err := e.SettleOne(ctx, account.ID, p.Kind, p.ObligationID, applied, actor)
			if err != nil {
				// Recorded, not fatal: the amount was not applied, so the
				// waterfall continues with the same remaining. The failed
				// payable stays live, so the next page must skip past it.
				result.Items = append(result.Items, WaterfallItem{Payable: p, Err: err})
				result.Failed++
				offset++
				e.log.Warn("waterfall item failed",
					"payer", payerID,
					"payable", p.ID,
					"kind", p.Kind,
					"obligation", p.ObligationID,
					"err", err,
				)
				continue
			}

			result.Items = append(result.Items, WaterfallItem{
				Payable:     p,
				Applied:     tx.Amount,
				Transaction: tx,
			})
			result.Succeeded++
			result.Remaining = result.Remaining.Sub(tx.Amount)
		}
	}

	e.log.Info("waterfall complete",
		"payer", payerID,
		"total", totalAmount.String(),
		"applied", result.Applied().String(),
		"succeeded", result.Succeeded,
		"failed", result.Failed,
	)
	return result, nil
}
