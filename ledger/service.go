/*
service.go - Ledger API

PURPOSE:
  The operations the rest of the system calls: record an approved obligation,
  settle a targeted payment, settle an arbitrary amount against a payer's
  queue, and query balance/history. Everything else in this package is
  internal machinery behind these calls.

VALIDATION FIRST:
  Validation and authorization errors (InvalidAmount, PermissionDenied,
  DuplicateObligation) are detected before any mutation and returned
  immediately. No partial state.

AUTHORIZATION:
  A capability-checking Authorizer is consulted once at this boundary,
  not re-implemented per operation. Role lookup itself is an external
  collaborator; AllowAll is the default.

RESULTS:
  Payment operations return a structured Result (success, message, payload).
  The waterfall's per-item outcomes are surfaced, not swallowed: callers
  show "settled 3 of 5 obligations", not a single pass/fail flag.

SEE ALSO:
  - engine.go: The settlement algorithm behind PayTargeted/PayAcrossQueue
  - api/handlers.go: HTTP projection of these operations
*/
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// =============================================================================
// AUTHORIZATION
// =============================================================================

// Authorizer is the capability policy consulted at the API boundary.
type Authorizer interface {
	// CanRecord reports whether actor may enqueue approved obligations.
	CanRecord(actor UserRef) bool
	// CanSettle reports whether actor may apply payments.
	CanSettle(actor UserRef) bool
	// CanAdjust reports whether actor may make manual corrections.
	CanAdjust(actor UserRef) bool
}

// AllowAll grants every capability. Role lookup lives outside this service.
type AllowAll struct{}

func (AllowAll) CanRecord(UserRef) bool { return true }
func (AllowAll) CanSettle(UserRef) bool { return true }
func (AllowAll) CanAdjust(UserRef) bool { return true }

// =============================================================================
// METRICS
// =============================================================================

// MetricsRecorder receives settlement observations. Implemented by
// pkg/metrics; nil-safe via nopMetrics.
type MetricsRecorder interface {
	RecordSettlement(d time.Duration, success bool)
	SetAccountBalance(accountID int64, currency string, balance float64)
}

type nopMetrics struct{}

func (nopMetrics) RecordSettlement(time.Duration, bool) {}
func (nopMetrics) SetAccountBalance(int64, string, float64) {}

// =============================================================================
// RESULTS
// =============================================================================

// Result is the structured outcome of a payment operation.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Payload any    `json:"payload,omitempty"`
}

// HistoryPage is a paginated transaction view with query-time analytics.
type HistoryPage struct {
	Items      []Transaction `json:"items"`
	Page       int           `json:"page"`
	Size       int           `json:"size"`
	TotalItems int           `json:"total_items"`
	TotalPages int           `json:"total_pages"`
	Analytic   DirectionSums `json:"analytic"`
}

// =============================================================================
// SERVICE
// =============================================================================

// Service is the ledger's entry point for the rest of the system.
type Service struct {
	store   TxStore
	engine  *Engine
	queue   *Queue
	auth    Authorizer
	metrics MetricsRecorder
	log     *slog.Logger
	now     func() time.Time
}

func NewService(store TxStore, engine *Engine, queue *Queue, auth Authorizer, metrics MetricsRecorder, log *slog.Logger) *Service {
	if auth == nil {
		auth = AllowAll{}
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store:   store,
		engine:  engine,
		queue:   queue,
		auth:    auth,
		metrics: metrics,
		log:     log,
		now:     time.Now,
	}
}

// =============================================================================
// OBLIGATION INTAKE
// =============================================================================

// RecordObligationApproved is the single call an approval workflow makes when
// an obligation becomes payable: it upserts the obligation row as APPROVED
// and enqueues a payable for the outstanding amount.
//
// Idempotent per (kind, id): a repeated call fails with DuplicateObligation
// rather than silently double-queuing.
func (svc *Service) RecordObligationApproved(ctx context.Context, kind Kind, obligationID, payerID int64, approvedAmount Amount, actor UserRef) (*Payable, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("kind %q: %w", kind, ErrUnknownKind)
	}
	if !approvedAmount.IsPositive() {
		return nil, &InvalidAmountError{Amount: approvedAmount, Reason: "approved amount must be positive"}
	}
	if !svc.auth.CanRecord(actor) {
		return nil, fmt.Errorf("actor %s cannot record obligations: %w", actor, ErrPermissionDenied)
	}

	now := svc.now().UTC()
	var payable *Payable
	err := svc.store.WithTx(ctx, func(s Store) error {
		row, err := s.GetObligation(ctx, kind, obligationID)
		if err != nil {
			return fmt.Errorf("load %s %d: %w", kind.Label(), obligationID, err)
		}
		if row == nil {
			// The producing workflow lives outside this service; a first
			// approval call materializes the row here.
			row = &ObligationRow{
				ID:        obligationID,
				PayerID:   payerID,
				Requested: approvedAmount,
				Paid:      ZeroAmount(),
				CreatedAt: now,
			}
		}
		row.Approved = approvedAmount
		row.Status = StatusFor(approvedAmount, row.Paid)
		row.ApprovedBy = actor.String()
		row.ApprovedAt = now
		if err := s.SaveObligation(ctx, kind, row); err != nil {
			return fmt.Errorf("save %s %d: %w", kind.Label(), obligationID, err)
		}

		outstanding := row.Approved.Sub(row.Paid)
		payable, err = svc.queue.Enqueue(ctx, s, payerID, kind, obligationID, outstanding)
		return err
	})
	if err != nil {
		return nil, err
	}

	svc.log.Info("obligation enqueued",
		"kind", kind, "obligation", obligationID, "payer", payerID,
		"amount", approvedAmount.String(), "payable", payable.ID)
	return payable, nil
}

// RecordObligationDeclined marks the obligation DECLINED and retires any
// live payable as FAILED. The amounts are untouched.
func (svc *Service) RecordObligationDeclined(ctx context.Context, kind Kind, obligationID int64, actor UserRef) error {
	if !kind.Valid() {
		return fmt.Errorf("kind %q: %w", kind, ErrUnknownKind)
	}
	if !svc.auth.CanRecord(actor) {
		return fmt.Errorf("actor %s cannot record obligations: %w", actor, ErrPermissionDenied)
	}

	return svc.store.WithTx(ctx, func(s Store) error {
		row, err := s.GetObligation(ctx, kind, obligationID)
		if err != nil {
			return fmt.Errorf("load %s %d: %w", kind.Label(), obligationID, err)
		}
		if row == nil {
			return fmt.Errorf("%s %d: %w", kind.Label(), obligationID, ErrObligationNotFound)
		}
		row.Status = ObligationDeclined
		if err := s.SaveObligation(ctx, kind, row); err != nil {
			return fmt.Errorf("decline %s %d: %w", kind.Label(), obligationID, err)
		}

		p, err := s.LivePayable(ctx, kind, obligationID)
		if err != nil {
			return err
		}
		if p != nil {
			if err := svc.queue.MarkFailed(ctx, s, p.ID, p.Amount); err != nil {
				return fmt.Errorf("fail payable %s: %w", p.ID, err)
			}
		}
		return nil
	})
}

// =============================================================================
// PAYMENTS
// =============================================================================

// PayTargeted settles a payment against one specific obligation.
func (svc *Service) PayTargeted(ctx context.Context, accountID int64, kind Kind, obligationID int64, amount Amount, actor UserRef) (*Result, error) {
	if !amount.IsPositive() {
		return nil, &InvalidAmountError{Amount: amount, Reason: "payment must be positive"}
	}
	if !svc.auth.CanSettle(actor) {
		return nil, fmt.Errorf("actor %s cannot settle: %w", actor, ErrPermissionDenied)
	}

	start := svc.now()
	receipt, err := svc.engine.SettleOne(ctx, accountID, kind, obligationID, amount, actor)
	svc.metrics.RecordSettlement(svc.now().Sub(start), err == nil)
	if err != nil {
		return nil, err
	}
	svc.observeBalance(ctx, accountID)

	return &Result{
		Success: true,
		Message: fmt.Sprintf("settled %s against %s %d", receipt.Amount, kind.Label(), obligationID),
		Payload: receipt,
	}, nil
}

// PayAcrossQueue settles an arbitrary amount against the payer's outstanding
// obligations, oldest first.
func (svc *Service) PayAcrossQueue(ctx context.Context, payerID int64, amount Amount, actor UserRef) (*Result, error) {
	if !amount.IsPositive() {
		return nil, &InvalidAmountError{Amount: amount, Reason: "payment must be positive"}
	}
	if !svc.auth.CanSettle(actor) {
		return nil, fmt.Errorf("actor %s cannot settle: %w", actor, ErrPermissionDenied)
	}

	start := svc.now()
	result, err := svc.engine.SettleWaterfall(ctx, payerID, amount, actor)
	svc.metrics.RecordSettlement(svc.now().Sub(start), err == nil && result != nil && result.Success())
	if err != nil {
		return nil, err
	}

	msg := fmt.Sprintf("settled %d of %d obligations", result.Succeeded, len(result.Items))
	if result.Remaining.IsPositive() {
		msg += fmt.Sprintf(", %s unapplied", result.Remaining)
	}
	return &Result{
		Success: result.Success(),
		Message: msg,
		Payload: result,
	}, nil
}

// =============================================================================
// ACCOUNTS
// =============================================================================

// OpenAccount creates the payer's account. One account per payer; the
// onboarding flow calls this exactly once.
func (svc *Service) OpenAccount(ctx context.Context, payerID int64, currency string, actor UserRef) (*Account, error) {
	existing, err := svc.store.GetAccountByPayer(ctx, payerID)
	if err != nil {
		return nil, fmt.Errorf("check account for payer %d: %w", payerID, err)
	}
	if existing != nil {
		return nil, fmt.Errorf("payer %d: %w", payerID, ErrAccountExists)
	}

	now := svc.now().UTC()
	account := &Account{
		PayerID:   payerID,
		Balance:   ZeroAmount(),
		Currency:  currency,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := svc.store.SaveAccount(ctx, account); err != nil {
		return nil, fmt.Errorf("save account for payer %d: %w", payerID, err)
	}
	svc.log.Info("account opened", "account", account.ID, "payer", payerID, "currency", currency)
	return account, nil
}

// Deposit funds an account.
func (svc *Service) Deposit(ctx context.Context, accountID int64, amount Amount, reason string, actor UserRef) (*Transaction, error) {
	receipt, err := svc.engine.Deposit(ctx, accountID, amount, reason, actor)
	if err != nil {
		return nil, err
	}
	svc.observeBalance(ctx, accountID)
	return receipt, nil
}

// Adjust applies a signed manual correction to an account.
func (svc *Service) Adjust(ctx context.Context, accountID int64, delta Amount, reason string, actor UserRef) (*Transaction, error) {
	if !svc.auth.CanAdjust(actor) {
		return nil, fmt.Errorf("actor %s cannot adjust balances: %w", actor, ErrPermissionDenied)
	}
	receipt, err := svc.engine.Adjust(ctx, accountID, delta, reason, actor)
	if err != nil {
		return nil, err
	}
	svc.observeBalance(ctx, accountID)
	return receipt, nil
}

// =============================================================================
// READ PROJECTIONS
// =============================================================================

// GetBalance returns the payer's account.
func (svc *Service) GetBalance(ctx context.Context, payerID int64) (*Account, error) {
	account, err := svc.store.GetAccountByPayer(ctx, payerID)
	if err != nil {
		return nil, fmt.Errorf("load account for payer %d: %w", payerID, err)
	}
	if account == nil {
		return nil, fmt.Errorf("payer %d: %w", payerID, ErrAccountNotFound)
	}
	return account, nil
}

// ListTransactions returns a page of the payer's transaction history with
// per-direction totals computed at query time, not maintained incrementally.
func (svc *Service) ListTransactions(ctx context.Context, payerID int64, f TransactionFilter, page, size int) (*HistoryPage, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 20
	}
	if size > 100 {
		size = 100
	}

	items, total, err := svc.store.ListTransactions(ctx, payerID, f, size, (page-1)*size)
	if err != nil {
		return nil, fmt.Errorf("list transactions for payer %d: %w", payerID, err)
	}
	sums, err := svc.store.SumTransactions(ctx, payerID, f)
	if err != nil {
		return nil, fmt.Errorf("sum transactions for payer %d: %w", payerID, err)
	}

	totalPages := total / size
	if total%size != 0 {
		totalPages++
	}
	return &HistoryPage{
		Items:      items,
		Page:       page,
		Size:       size,
		TotalItems: total,
		TotalPages: totalPages,
		Analytic:   sums,
	}, nil
}

func (svc *Service) observeBalance(ctx context.Context, accountID int64) {
	account, err := svc.store.GetAccount(ctx, accountID)
	if err != nil || account == nil {
		return
	}
	balance, _ := account.Balance.Value.Float64()
	svc.metrics.SetAccountBalance(account.ID, account.Currency, balance)
}
