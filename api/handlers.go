/*
handlers.go - HTTP handlers for the obligation settlement ledger

PURPOSE:
  Exposes the ledger service via REST. Handles HTTP request/response,
  JSON serialization, and delegates all business rules to ledger.Service.
  No money logic lives here.

ENDPOINTS:
  Obligations:
    POST   /api/obligations               Record an approved obligation
    POST   /api/obligations/decline       Decline one, retiring its payable

  Payments:
    POST   /api/payments/targeted         Settle against one obligation
    POST   /api/payments/waterfall        Settle across the queue, oldest first

  Accounts:
    POST   /api/accounts                  Open a payer account
    POST   /api/accounts/{id}/deposits    Fund an account
    GET    /api/payers/{payerID}/balance  Account balance
    GET    /api/payers/{payerID}/transactions  Paginated history + analytics

  Admin:
    POST   /api/admin/adjustments         Signed manual correction

ERROR HANDLING:
  Domain errors map to HTTP status via writeDomainError:
  - 400: validation (invalid amount, unknown kind)
  - 403: permission denied
  - 404: account/obligation/payable not found
  - 409: duplicate enqueue, already settled, account exists
  - 500: everything else

SEE ALSO:
  - dto.go: Request/response shapes
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aliyura/braverock-ledger/ledger"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds the handlers' single dependency, the ledger service.
type Handler struct {
	Service *ledger.Service
}

func NewHandler(svc *ledger.Service) *Handler {
	return &Handler{Service: svc}
}

// =============================================================================
// OBLIGATION HANDLERS
// =============================================================================

// RecordObligation enqueues an approved obligation for settlement.
// POST /api/obligations
func (h *Handler) RecordObligation(w http.ResponseWriter, r *http.Request) {
	var req RecordObligationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	amount, err := ledger.ParseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}

	payable, err := h.Service.RecordObligationApproved(r.Context(),
		ledger.Kind(req.Kind), req.ObligationID, req.PayerID, amount, actorRef(req.Actor))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, payable)
}

// DeclineObligation marks an obligation declined and retires its payable.
// POST /api/obligations/decline
func (h *Handler) DeclineObligation(w http.ResponseWriter, r *http.Request) {
	var req DeclineObligationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	err := h.Service.RecordObligationDeclined(r.Context(),
		ledger.Kind(req.Kind), req.ObligationID, actorRef(req.Actor))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// PAYMENT HANDLERS
// =============================================================================

// PayTargeted settles a payment against one specific obligation.
// POST /api/payments/targeted
func (h *Handler) PayTargeted(w http.ResponseWriter, r *http.Request) {
	var req TargetedPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	amount, err := ledger.ParseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}

	result, err := h.Service.PayTargeted(r.Context(),
		req.AccountID, ledger.Kind(req.Kind), req.ObligationID, amount, actorRef(req.Actor))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// PayWaterfall settles an amount across the payer's outstanding obligations.
// POST /api/payments/waterfall
func (h *Handler) PayWaterfall(w http.ResponseWriter, r *http.Request) {
	var req WaterfallPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	amount, err := ledger.ParseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}

	result, err := h.Service.PayAcrossQueue(r.Context(), req.PayerID, amount, actorRef(req.Actor))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	// Partial progress is still 200: the result body carries per-item
	// outcomes and the unapplied remainder.
	writeJSON(w, http.StatusOK, result)
}

// =============================================================================
// ACCOUNT HANDLERS
// =============================================================================

// OpenAccount creates a payer's settlement account.
// POST /api/accounts
func (h *Handler) OpenAccount(w http.ResponseWriter, r *http.Request) {
	var req OpenAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	account, err := h.Service.OpenAccount(r.Context(), req.PayerID, req.Currency, actorRef(req.Actor))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toBalanceDTO(account))
}

// Deposit funds an account.
// POST /api/accounts/{id}/deposits
func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	accountID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid account id", err)
		return
	}

	var req DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	amount, err := ledger.ParseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}

	tx, err := h.Service.Deposit(r.Context(), accountID, amount, req.Reason, actorRef(req.Actor))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, tx)
}

// GetBalance returns the payer's account balance.
// GET /api/payers/{payerID}/balance
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	payerID, err := strconv.ParseInt(chi.URLParam(r, "payerID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid payer id", err)
		return
	}

	account, err := h.Service.GetBalance(r.Context(), payerID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toBalanceDTO(account))
}

// ListTransactions returns a page of the payer's history with per-direction
// totals.
// GET /api/payers/{payerID}/transactions?direction=&kind=&from=&to=&page=&size=
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	payerID, err := strconv.ParseInt(chi.URLParam(r, "payerID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid payer id", err)
		return
	}

	filter, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid filter", err)
		return
	}
	page := queryInt(r, "page", 1)
	size := queryInt(r, "size", 20)

	history, err := h.Service.ListTransactions(r.Context(), payerID, filter, page, size)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, history)
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// Adjust applies a signed manual correction to an account.
// POST /api/admin/adjustments
func (h *Handler) Adjust(w http.ResponseWriter, r *http.Request) {
	var req AdjustmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	delta, err := ledger.ParseAmount(req.Delta)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid delta", err)
		return
	}

	tx, err := h.Service.Adjust(r.Context(), req.AccountID, delta, req.Reason, actorRef(req.Actor))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, tx)
}

// =============================================================================
// HELPERS
// =============================================================================

func actorRef(a ActorDTO) ledger.UserRef {
	return ledger.UserRef{ID: a.ID, Name: a.Name}
}

func toBalanceDTO(a *ledger.Account) BalanceDTO {
	return BalanceDTO{
		AccountID: a.ID,
		PayerID:   a.PayerID,
		Balance:   a.Balance.String(),
		Currency:  a.Currency,
		UpdatedAt: a.UpdatedAt.Format(time.RFC3339),
	}
}

func parseFilter(r *http.Request) (ledger.TransactionFilter, error) {
	var f ledger.TransactionFilter
	q := r.URL.Query()

	if v := q.Get("direction"); v != "" {
		d := ledger.Direction(v)
		f.Direction = &d
	}
	if v := q.Get("kind"); v != "" {
		k := ledger.Kind(v)
		f.Kind = &k
	}
	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, err
		}
		f.From = &t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, err
		}
		f.To = &t
	}
	return f, nil
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps ledger errors onto HTTP status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case ledger.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	case errors.Is(err, ledger.ErrDuplicateObligation),
		errors.Is(err, ledger.ErrObligationSettled),
		errors.Is(err, ledger.ErrAccountExists):
		writeError(w, http.StatusConflict, "Conflict", err)
	case errors.Is(err, ledger.ErrPermissionDenied):
		writeError(w, http.StatusForbidden, "Permission denied", err)
	case ledger.IsClientError(err):
		writeError(w, http.StatusBadRequest, "Invalid request", err)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}
