package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aliyura/braverock-ledger/ledger"
	"github.com/aliyura/braverock-ledger/ledger/store"
	"github.com/aliyura/braverock-ledger/obligation"
)

func newTestServer(t *testing.T) (*httptest.Server, *ledger.Service) {
	t.Helper()
	st := store.NewTxMemory()
	queue := ledger.NewQueue()
	engine := ledger.NewEngine(st, obligation.Registry(), queue, nil, nil)
	svc := ledger.NewService(st, engine, queue, nil, nil, nil)

	srv := httptest.NewServer(NewRouter(NewHandler(svc), nil))
	t.Cleanup(srv.Close)
	return srv, svc
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

var actor = ActorDTO{ID: 7, Name: "adaeze"}

func TestRecordObligation_Created(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/obligations", RecordObligationRequest{
		Kind: "BILL", ObligationID: 1, PayerID: 10, Amount: "500", Actor: actor,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	p := decode[ledger.Payable](t, resp)
	assert.Equal(t, ledger.KindBill, p.Kind)
	assert.Equal(t, int64(1), p.ObligationID)
	assert.Equal(t, ledger.PayablePending, p.Status)
}

func TestRecordObligation_DuplicateConflict(t *testing.T) {
	srv, _ := newTestServer(t)
	req := RecordObligationRequest{Kind: "BILL", ObligationID: 1, PayerID: 10, Amount: "500", Actor: actor}

	resp := postJSON(t, srv.URL+"/api/obligations", req)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, srv.URL+"/api/obligations", req)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()
}

func TestRecordObligation_BadInput(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/obligations", RecordObligationRequest{
		Kind: "BILL", ObligationID: 1, PayerID: 10, Amount: "not-a-number", Actor: actor,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, srv.URL+"/api/obligations", RecordObligationRequest{
		Kind: "LOAN", ObligationID: 1, PayerID: 10, Amount: "500", Actor: actor,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestPayTargeted_SettlesAndReportsReceipt(t *testing.T) {
	srv, svc := newTestServer(t)
	ctx := context.Background()

	account, err := svc.OpenAccount(ctx, 10, "NGN", ledger.UserRef{Name: "adaeze"})
	require.NoError(t, err)
	_, err = svc.Deposit(ctx, account.ID, ledger.NewAmountFromInt(500), "", ledger.UserRef{Name: "adaeze"})
	require.NoError(t, err)
	_, err = svc.RecordObligationApproved(ctx, ledger.KindBill, 1, 10, ledger.NewAmountFromInt(500), ledger.UserRef{Name: "adaeze"})
	require.NoError(t, err)

	resp := postJSON(t, srv.URL+"/api/payments/targeted", TargetedPaymentRequest{
		AccountID: account.ID, Kind: "BILL", ObligationID: 1, Amount: "500", Actor: actor,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	result := decode[ledger.Result](t, resp)
	assert.True(t, result.Success)
	assert.Contains(t, result.Message, "work bill 1")

	// Settling the same obligation again conflicts.
	resp = postJSON(t, srv.URL+"/api/payments/targeted", TargetedPaymentRequest{
		AccountID: account.ID, Kind: "BILL", ObligationID: 1, Amount: "100", Actor: actor,
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()
}

func TestPayWaterfall_PartialCoverage(t *testing.T) {
	srv, svc := newTestServer(t)
	ctx := context.Background()
	user := ledger.UserRef{Name: "adaeze"}

	account, err := svc.OpenAccount(ctx, 11, "NGN", user)
	require.NoError(t, err)
	_, err = svc.Deposit(ctx, account.ID, ledger.NewAmountFromInt(1000), "", user)
	require.NoError(t, err)
	for i, a := range []string{"100", "50", "200"} {
		amount, _ := ledger.ParseAmount(a)
		_, err = svc.RecordObligationApproved(ctx, ledger.KindBill, int64(i+1), 11, amount, user)
		require.NoError(t, err)
	}

	resp := postJSON(t, srv.URL+"/api/payments/waterfall", WaterfallPaymentRequest{
		PayerID: 11, Amount: "120", Actor: actor,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	result := decode[ledger.Result](t, resp)
	assert.True(t, result.Success)
	assert.Contains(t, result.Message, "settled 2 of 2 obligations")
}

func TestAccountLifecycle(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/accounts", OpenAccountRequest{PayerID: 12, Currency: "NGN", Actor: actor})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	account := decode[BalanceDTO](t, resp)
	assert.Equal(t, "0", account.Balance)

	// Second open for the same payer conflicts.
	resp = postJSON(t, srv.URL+"/api/accounts", OpenAccountRequest{PayerID: 12, Currency: "NGN", Actor: actor})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, fmt.Sprintf("%s/api/accounts/%d/deposits", srv.URL, account.AccountID),
		DepositRequest{Amount: "250.50", Reason: "march remittance", Actor: actor})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp, err := http.Get(srv.URL + "/api/payers/12/balance")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	balance := decode[BalanceDTO](t, resp)
	assert.Equal(t, "250.5", balance.Balance)
}

func TestGetBalance_UnknownPayer(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/payers/999/balance")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListTransactions_FilterAndPagination(t *testing.T) {
	srv, svc := newTestServer(t)
	ctx := context.Background()
	user := ledger.UserRef{Name: "adaeze"}

	account, err := svc.OpenAccount(ctx, 13, "NGN", user)
	require.NoError(t, err)
	_, err = svc.Deposit(ctx, account.ID, ledger.NewAmountFromInt(500), "", user)
	require.NoError(t, err)
	_, err = svc.RecordObligationApproved(ctx, ledger.KindBill, 1, 13, ledger.NewAmountFromInt(120), user)
	require.NoError(t, err)
	_, err = svc.PayTargeted(ctx, account.ID, ledger.KindBill, 1, ledger.NewAmountFromInt(120), user)
	require.NoError(t, err)

	resp, err := http.Get(srv.URL + "/api/payers/13/transactions?direction=CREDIT")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	page := decode[ledger.HistoryPage](t, resp)
	require.Len(t, page.Items, 1)
	assert.Equal(t, ledger.DirectionCredit, page.Items[0].Direction)
	assert.Equal(t, 1, page.Analytic.Count)
	assert.True(t, page.Analytic.TotalCredit.Equal(ledger.NewAmountFromInt(120)))
}

func TestAdjustment(t *testing.T) {
	srv, svc := newTestServer(t)
	ctx := context.Background()
	user := ledger.UserRef{Name: "adaeze"}

	account, err := svc.OpenAccount(ctx, 14, "NGN", user)
	require.NoError(t, err)
	_, err = svc.Deposit(ctx, account.ID, ledger.NewAmountFromInt(100), "", user)
	require.NoError(t, err)

	resp := postJSON(t, srv.URL+"/api/admin/adjustments", AdjustmentRequest{
		AccountID: account.ID, Delta: "-40", Reason: "duplicate remittance", Actor: actor,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	tx := decode[ledger.Transaction](t, resp)
	assert.Equal(t, ledger.DirectionAdjustment, tx.Direction)

	balance, err := svc.GetBalance(ctx, 14)
	require.NoError(t, err)
	assert.True(t, balance.Balance.Equal(ledger.NewAmountFromInt(60)))

	// Adjustment without a reason is rejected.
	resp = postJSON(t, srv.URL+"/api/admin/adjustments", AdjustmentRequest{
		AccountID: account.ID, Delta: "-10", Actor: actor,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
