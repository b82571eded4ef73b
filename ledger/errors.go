/*
errors.go - Centralized error types for the settlement engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers and the HTTP layer branch on these with errors.Is/errors.As.

ERROR CATEGORIES:
  1. Not-found errors - missing account/obligation/payable
  2. Validation errors - rejected before any mutation
  3. Storage errors - persistence failures inside the critical section

USAGE:
  if errors.Is(err, ledger.ErrDuplicateObligation) {
      // obligation already enqueued, safe to ignore on retry
  }

SEE ALSO:
  - engine.go: Returns these from settlement attempts
  - api/handlers.go: Maps these to HTTP status codes
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrAccountNotFound is returned when the referenced account doesn't exist.
	ErrAccountNotFound = errors.New("account not found")

	// ErrObligationNotFound is returned when the referenced obligation doesn't exist.
	ErrObligationNotFound = errors.New("obligation not found")

	// ErrPayableNotFound is returned when no live payable matches an obligation.
	ErrPayableNotFound = errors.New("payable not found")

	// ErrDuplicateObligation is returned when a live payable already references
	// the same (kind, id). This is expected behavior for approval retries.
	ErrDuplicateObligation = errors.New("obligation already enqueued")

	// ErrInvalidAmount is returned when a payment or approval amount is zero,
	// negative, or unparseable. Detected before any mutation.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrPermissionDenied is returned when the actor lacks the capability
	// for the requested operation.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrObligationSettled is returned when a settlement targets an obligation
	// with no outstanding balance.
	ErrObligationSettled = errors.New("obligation already settled")

	// ErrUnknownKind is returned when no adapter is registered for a kind.
	ErrUnknownKind = errors.New("unknown obligation kind")

	// ErrAccountExists is returned when opening a second account for a payer.
	ErrAccountExists = errors.New("account already exists for payer")

	// ErrStorage wraps unexpected persistence failures. Storage failures inside
	// the settlement critical section roll the whole section back.
	ErrStorage = errors.New("storage failure")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// DuplicateObligationError reports which live payable blocked an enqueue.
type DuplicateObligationError struct {
	Kind         Kind
	ObligationID int64
	PayableID    string
}

func (e *DuplicateObligationError) Error() string {
	return fmt.Sprintf("obligation already enqueued: %s/%d (payable: %s)",
		e.Kind, e.ObligationID, e.PayableID)
}

func (e *DuplicateObligationError) Unwrap() error {
	return ErrDuplicateObligation
}

// InvalidAmountError reports the rejected value.
type InvalidAmountError struct {
	Amount Amount
	Reason string
}

func (e *InvalidAmountError) Error() string {
	return fmt.Sprintf("invalid amount %s: %s", e.Amount, e.Reason)
}

func (e *InvalidAmountError) Unwrap() error {
	return ErrInvalidAmount
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrObligationNotFound) ||
		errors.Is(err, ErrPayableNotFound)
}

// IsClientError returns true if the error is due to invalid caller input
// and was detected before any mutation.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrDuplicateObligation) ||
		errors.Is(err, ErrObligationSettled) ||
		errors.Is(err, ErrUnknownKind) ||
		errors.Is(err, ErrAccountExists) ||
		errors.Is(err, ErrPermissionDenied)
}
