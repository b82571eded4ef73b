/*
dto.go - Request/response data structures for the ledger API

PURPOSE:
  JSON shapes the HTTP layer speaks. Handlers decode these, convert to
  domain types (ledger.Amount, ledger.Kind), and serialize domain results
  back out. Domain types never leak raw into request parsing.

CONVENTIONS:
  - Amounts travel as decimal strings ("120.50"), never floats.
  - Kinds use their wire names: BILL, INCIDENT, FUND_REQUEST.
  - Actor fields identify who performed the operation for the audit trail.

SEE ALSO:
  - handlers.go: Where these are decoded and validated
*/
package api

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// ActorDTO identifies the user performing an operation.
type ActorDTO struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// RecordObligationRequest enqueues an approved obligation for settlement.
type RecordObligationRequest struct {
	Kind         string   `json:"kind"`
	ObligationID int64    `json:"obligation_id"`
	PayerID      int64    `json:"payer_id"`
	Amount       string   `json:"amount"`
	Actor        ActorDTO `json:"actor"`
}

// DeclineObligationRequest retires an obligation from the queue.
type DeclineObligationRequest struct {
	Kind         string   `json:"kind"`
	ObligationID int64    `json:"obligation_id"`
	Actor        ActorDTO `json:"actor"`
}

// TargetedPaymentRequest settles against one specific obligation.
type TargetedPaymentRequest struct {
	AccountID    int64    `json:"account_id"`
	Kind         string   `json:"kind"`
	ObligationID int64    `json:"obligation_id"`
	Amount       string   `json:"amount"`
	Actor        ActorDTO `json:"actor"`
}

// WaterfallPaymentRequest settles an amount across the payer's queue,
// oldest obligation first.
type WaterfallPaymentRequest struct {
	PayerID int64    `json:"payer_id"`
	Amount  string   `json:"amount"`
	Actor   ActorDTO `json:"actor"`
}

// OpenAccountRequest creates a payer's settlement account.
type OpenAccountRequest struct {
	PayerID  int64    `json:"payer_id"`
	Currency string   `json:"currency"`
	Actor    ActorDTO `json:"actor"`
}

// DepositRequest funds an account.
type DepositRequest struct {
	Amount string   `json:"amount"`
	Reason string   `json:"reason"`
	Actor  ActorDTO `json:"actor"`
}

// AdjustmentRequest applies a signed manual correction.
type AdjustmentRequest struct {
	AccountID int64    `json:"account_id"`
	Delta     string   `json:"delta"`
	Reason    string   `json:"reason"`
	Actor     ActorDTO `json:"actor"`
}

// BalanceDTO is the account view returned by the balance endpoint.
type BalanceDTO struct {
	AccountID int64  `json:"account_id"`
	PayerID   int64  `json:"payer_id"`
	Balance   string `json:"balance"`
	Currency  string `json:"currency"`
	UpdatedAt string `json:"updated_at"`
}
