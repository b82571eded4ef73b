/*
Package ledger provides the obligation settlement engine.

PURPOSE:
  This package contains the domain types and algorithms for tracking money a
  payer owes, applying incoming payments against outstanding obligations in a
  defined order, and keeping account balances, per-obligation status, and the
  immutable transaction log mutually consistent.

KEY CONCEPTS IN THIS FILE (types.go):
  - Amount: A monetary quantity backed by decimal.Decimal
  - Account: Per-payer running balance, mutated only by the engine
  - ObligationView: Uniform view over a Bill/Incident/FundRequest row
  - Payable: Queue entry ordering outstanding obligations for settlement
  - Transaction: An immutable ledger entry recording every balance change

DESIGN PRINCIPLES:
  1. Immutability: Transactions are never modified after creation
  2. Precision: Uses decimal.Decimal to avoid floating-point errors
  3. Single writer: Account.Balance is mutated only by the Settlement Engine
  4. Derived status: Obligation status is a pure function of amounts

USAGE:
  amount := ledger.NewAmount(500)
  status := ledger.StatusFor(approved, paid)

SEE ALSO:
  - engine.go: Settlement algorithm (SettleOne, SettleWaterfall)
  - queue.go: Payable queue ordering
  - store.go: Persistence interfaces
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNT - Monetary quantity
// =============================================================================

type Amount struct {
	Value decimal.Decimal
}

func NewAmount(value float64) Amount {
	return Amount{Value: decimal.NewFromFloat(value)}
}

func NewAmountFromInt(value int64) Amount {
	return Amount{Value: decimal.NewFromInt(value)}
}

func ParseAmount(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, err
	}
	return Amount{Value: d}, nil
}

func MustParseAmount(s string) Amount {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}
	}
	return Amount{Value: d}
}

func ZeroAmount() Amount { return Amount{Value: decimal.Zero} }

func (a Amount) Add(b Amount) Amount          { return Amount{Value: a.Value.Add(b.Value)} }
func (a Amount) Sub(b Amount) Amount          { return Amount{Value: a.Value.Sub(b.Value)} }
func (a Amount) Neg() Amount                  { return Amount{Value: a.Value.Neg()} }
func (a Amount) Abs() Amount                  { return Amount{Value: a.Value.Abs()} }
func (a Amount) IsZero() bool                 { return a.Value.IsZero() }
func (a Amount) IsNegative() bool             { return a.Value.IsNegative() }
func (a Amount) IsPositive() bool             { return a.Value.IsPositive() }
func (a Amount) Equal(b Amount) bool          { return a.Value.Equal(b.Value) }
func (a Amount) GreaterThan(b Amount) bool    { return a.Value.GreaterThan(b.Value) }
func (a Amount) LessThan(b Amount) bool       { return a.Value.LessThan(b.Value) }
func (a Amount) GreaterOrEqual(b Amount) bool { return a.Value.GreaterThanOrEqual(b.Value) }
func (a Amount) String() string               { return a.Value.String() }

func (a Amount) Min(b Amount) Amount {
	if a.LessThan(b) {
		return a
	}
	return b
}

func (a Amount) Max(b Amount) Amount {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

// MarshalJSON renders the amount as a decimal string to preserve precision.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.Value.String() + `"`), nil
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return err
	}
	a.Value = d
	return nil
}

// =============================================================================
// OBLIGATION KINDS
// =============================================================================

// Kind identifies which domain workflow produced an obligation.
// Each kind is backed by its own table; the adapters in the obligation
// package present them uniformly to the engine.
type Kind string

const (
	KindBill        Kind = "BILL"
	KindIncident    Kind = "INCIDENT"
	KindFundRequest Kind = "FUND_REQUEST"
)

func (k Kind) Valid() bool {
	switch k {
	case KindBill, KindIncident, KindFundRequest:
		return true
	}
	return false
}

// Label returns the human-readable name used in reasons and error messages.
func (k Kind) Label() string {
	switch k {
	case KindBill:
		return "work bill"
	case KindIncident:
		return "incident"
	case KindFundRequest:
		return "fund request"
	}
	return string(k)
}

// =============================================================================
// STATUSES
// =============================================================================

type ObligationStatus string

const (
	ObligationPending          ObligationStatus = "PENDING"
	ObligationApproved         ObligationStatus = "APPROVED"
	ObligationPartiallySettled ObligationStatus = "PARTIALLY_SETTLED"
	ObligationSettled          ObligationStatus = "SETTLED"
	ObligationDeclined         ObligationStatus = "DECLINED"
)

// StatusFor derives the settlement status from the two amounts.
//
// INVARIANT: status is a pure function of (approved, paid):
//   - SETTLED iff paid >= approved > 0
//   - PARTIALLY_SETTLED iff 0 < paid < approved
//   - APPROVED otherwise (approved, nothing paid yet)
func StatusFor(approved, paid Amount) ObligationStatus {
	if approved.IsPositive() && paid.GreaterOrEqual(approved) {
		return ObligationSettled
	}
	if paid.IsPositive() && paid.LessThan(approved) {
		return ObligationPartiallySettled
	}
	return ObligationApproved
}

type PayableStatus string

const (
	PayablePending          PayableStatus = "PENDING"
	PayablePartiallySettled PayableStatus = "PARTIALLY_SETTLED"
	PayableSettled          PayableStatus = "SETTLED"
	PayableFailed           PayableStatus = "FAILED"
)

// Live reports whether the payable still represents an outstanding obligation.
func (s PayableStatus) Live() bool {
	return s == PayablePending || s == PayablePartiallySettled
}

// Direction labels a transaction from the organization's books:
// CREDIT reduces what the payer owes (and their account balance),
// DEBIT funds the account, ADJUSTMENT is a signed manual correction.
type Direction string

const (
	DirectionCredit     Direction = "CREDIT"
	DirectionDebit      Direction = "DEBIT"
	DirectionAdjustment Direction = "ADJUSTMENT"
)

// =============================================================================
// ENTITIES
// =============================================================================

// Account holds a payer's running balance.
//
// INVARIANTS:
//   - Balance >= 0 at all times; an under-funded debit floors it at zero
//   - Mutated only by the Settlement Engine, never directly by callers
//   - One account per payer; never deleted while obligations reference it
type Account struct {
	ID        int64     `json:"id"`
	PayerID   int64     `json:"payer_id"`
	Balance   Amount    `json:"balance"`
	Currency  string    `json:"currency"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ObligationView is the uniform view an adapter exposes over one
// Bill/Incident/FundRequest row.
//
// INVARIANT: 0 <= Paid <= Approved always holds; Balance == Approved - Paid.
type ObligationView struct {
	Kind       Kind             `json:"kind"`
	ID         int64            `json:"id"`
	PayerID    int64            `json:"payer_id"`
	Requested  Amount           `json:"requested"`
	Approved   Amount           `json:"approved"`
	Paid       Amount           `json:"paid"`
	Status     ObligationStatus `json:"status"`
	ApprovedBy string           `json:"approved_by,omitempty"`
	ApprovedAt time.Time        `json:"approved_at"`
	SettledBy  string           `json:"settled_by,omitempty"`
	SettledAt  time.Time        `json:"settled_at"`
}

// Balance returns the outstanding amount still owed.
func (v ObligationView) Balance() Amount {
	return v.Approved.Sub(v.Paid)
}

// Payable is a queue entry mirroring one outstanding obligation.
//
// Payable is a read projection used for settlement ordering, not a second
// source of truth for money: its Amount is resynced from the obligation's
// outstanding balance inside every settlement transaction.
type Payable struct {
	ID           string        `json:"id"`
	PayerID      int64         `json:"payer_id"`
	Kind         Kind          `json:"kind"`
	ObligationID int64         `json:"obligation_id"`
	Amount       Amount        `json:"amount"`
	Status       PayableStatus `json:"status"`
	CreatedAt    time.Time     `json:"created_at"`
}

// Transaction is one append-only ledger row.
//
// INVARIANT: never updated or deleted after creation. Corrections are made
// via ADJUSTMENT transactions, not edits.
type Transaction struct {
	ID             string           `json:"id"`
	AccountID      int64            `json:"account_id"`
	PayerID        int64            `json:"payer_id"`
	Kind           Kind             `json:"kind,omitempty"`
	ObligationID   int64            `json:"obligation_id,omitempty"`
	Amount         Amount           `json:"amount"`
	Direction      Direction        `json:"direction"`
	Reason         string           `json:"reason"`
	StatusSnapshot ObligationStatus `json:"status_snapshot,omitempty"`
	CreatedBy      string           `json:"created_by"`
	CreatedAt      time.Time        `json:"created_at"`
}

// UserRef identifies the actor behind an API call.
type UserRef struct {
	ID   int64
	Name string
	Role string
}

func (u UserRef) String() string {
	if u.Name != "" {
		return u.Name
	}
	return "system"
}
