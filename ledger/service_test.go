package ledger_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aliyura/braverock-ledger/ledger"
	"github.com/aliyura/braverock-ledger/ledger/store"
	"github.com/aliyura/braverock-ledger/obligation"
)

type serviceEnv struct {
	store   *store.TxMemory
	service *ledger.Service
}

func newServiceEnv(auth ledger.Authorizer) *serviceEnv {
	st := store.NewTxMemory()
	queue := ledger.NewQueue()
	engine := ledger.NewEngine(st, obligation.Registry(), queue, nil, nil)
	return &serviceEnv{
		store:   st,
		service: ledger.NewService(st, engine, queue, auth, nil, nil),
	}
}

// denyAll refuses every capability.
type denyAll struct{}

func (denyAll) CanRecord(ledger.UserRef) bool { return false }
func (denyAll) CanSettle(ledger.UserRef) bool { return false }
func (denyAll) CanAdjust(ledger.UserRef) bool { return false }

func TestService_RecordObligationApproved_CreatesRowAndPayable(t *testing.T) {
	env := newServiceEnv(nil)
	ctx := context.Background()

	p, err := env.service.RecordObligationApproved(ctx, ledger.KindBill, 1, 10, amt(500), tester)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, ledger.PayablePending, p.Status)
	assert.True(t, p.Amount.Equal(amt(500)))

	row, err := env.store.GetObligation(ctx, ledger.KindBill, 1)
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, ledger.ObligationApproved, row.Status)
	assert.True(t, row.Approved.Equal(amt(500)))
	assert.Equal(t, "adaeze", row.ApprovedBy)
}

func TestService_RecordObligationApproved_SecondCallRejected(t *testing.T) {
	// Approval retries must not double-queue: only the first call creates a
	// payable, the retry fails and leaves the store untouched.

	env := newServiceEnv(nil)
	ctx := context.Background()

	_, err := env.service.RecordObligationApproved(ctx, ledger.KindIncident, 2, 10, amt(300), tester)
	require.NoError(t, err)

	_, err = env.service.RecordObligationApproved(ctx, ledger.KindIncident, 2, 10, amt(300), tester)
	require.ErrorIs(t, err, ledger.ErrDuplicateObligation)

	batch, err := env.store.ListOutstandingPayables(ctx, 10, 10, 0)
	require.NoError(t, err)
	assert.Len(t, batch, 1)
}

func TestService_RecordObligationApproved_Validation(t *testing.T) {
	env := newServiceEnv(nil)
	ctx := context.Background()

	_, err := env.service.RecordObligationApproved(ctx, ledger.Kind("LOAN"), 1, 10, amt(100), tester)
	assert.ErrorIs(t, err, ledger.ErrUnknownKind)

	_, err = env.service.RecordObligationApproved(ctx, ledger.KindBill, 1, 10, amt(0), tester)
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)

	denied := newServiceEnv(denyAll{})
	_, err = denied.service.RecordObligationApproved(ctx, ledger.KindBill, 1, 10, amt(100), tester)
	assert.ErrorIs(t, err, ledger.ErrPermissionDenied)
}

func TestService_RecordObligationDeclined_RetiresPayable(t *testing.T) {
	env := newServiceEnv(nil)
	ctx := context.Background()

	_, err := env.service.RecordObligationApproved(ctx, ledger.KindFundRequest, 3, 11, amt(200), tester)
	require.NoError(t, err)

	require.NoError(t, env.service.RecordObligationDeclined(ctx, ledger.KindFundRequest, 3, tester))

	row, err := env.store.GetObligation(ctx, ledger.KindFundRequest, 3)
	require.NoError(t, err)
	assert.Equal(t, ledger.ObligationDeclined, row.Status)

	live, err := env.store.LivePayable(ctx, ledger.KindFundRequest, 3)
	require.NoError(t, err)
	assert.Nil(t, live, "declined obligation must leave no live payable")
}

func TestService_PayTargeted_ReturnsReceipt(t *testing.T) {
	env := newServiceEnv(nil)
	ctx := context.Background()

	account, err := env.service.OpenAccount(ctx, 12, "NGN", tester)
	require.NoError(t, err)
	_, err = env.service.Deposit(ctx, account.ID, amt(500), "", tester)
	require.NoError(t, err)
	_, err = env.service.RecordObligationApproved(ctx, ledger.KindBill, 4, 12, amt(500), tester)
	require.NoError(t, err)

	result, err := env.service.PayTargeted(ctx, account.ID, ledger.KindBill, 4, amt(500), tester)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Contains(t, result.Message, "work bill 4")

	balance, err := env.service.GetBalance(ctx, 12)
	require.NoError(t, err)
	assert.True(t, balance.Balance.IsZero())
}

func TestService_PayAcrossQueue_ReportsPerItemOutcome(t *testing.T) {
	env := newServiceEnv(nil)
	ctx := context.Background()

	account, err := env.service.OpenAccount(ctx, 13, "NGN", tester)
	require.NoError(t, err)
	_, err = env.service.Deposit(ctx, account.ID, amt(1000), "", tester)
	require.NoError(t, err)
	_, err = env.service.RecordObligationApproved(ctx, ledger.KindBill, 5, 13, amt(100), tester)
	require.NoError(t, err)
	_, err = env.service.RecordObligationApproved(ctx, ledger.KindIncident, 6, 13, amt(50), tester)
	require.NoError(t, err)

	result, err := env.service.PayAcrossQueue(ctx, 13, amt(500), tester)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Contains(t, result.Message, "settled 2 of 2 obligations")
	assert.Contains(t, result.Message, "350 unapplied")
}

func TestService_OpenAccount_OnePerPayer(t *testing.T) {
	env := newServiceEnv(nil)
	ctx := context.Background()

	_, err := env.service.OpenAccount(ctx, 14, "NGN", tester)
	require.NoError(t, err)

	_, err = env.service.OpenAccount(ctx, 14, "NGN", tester)
	assert.ErrorIs(t, err, ledger.ErrAccountExists)
}

func TestService_Adjust_RequiresCapability(t *testing.T) {
	env := newServiceEnv(denyAll{})
	_, err := env.service.Adjust(context.Background(), 1, amt(10), "correction", tester)
	assert.ErrorIs(t, err, ledger.ErrPermissionDenied)
}

func TestService_GetBalance_UnknownPayer(t *testing.T) {
	env := newServiceEnv(nil)
	_, err := env.service.GetBalance(context.Background(), 999)
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)
}

func TestService_ListTransactions_PaginationAndAnalytics(t *testing.T) {
	env := newServiceEnv(nil)
	ctx := context.Background()

	account, err := env.service.OpenAccount(ctx, 15, "NGN", tester)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err = env.service.Deposit(ctx, account.ID, amt(100), "", tester)
		require.NoError(t, err)
	}
	_, err = env.service.RecordObligationApproved(ctx, ledger.KindBill, 7, 15, amt(120), tester)
	require.NoError(t, err)
	_, err = env.service.PayTargeted(ctx, account.ID, ledger.KindBill, 7, amt(120), tester)
	require.NoError(t, err)

	page, err := env.service.ListTransactions(ctx, 15, ledger.TransactionFilter{}, 1, 4)
	require.NoError(t, err)
	assert.Len(t, page.Items, 4)
	assert.Equal(t, 6, page.TotalItems)
	assert.Equal(t, 2, page.TotalPages)
	assert.True(t, page.Analytic.TotalDebit.Equal(amt(500)))
	assert.True(t, page.Analytic.TotalCredit.Equal(amt(120)))

	// Direction filter narrows both the page and the analytics.
	credit := ledger.DirectionCredit
	page, err = env.service.ListTransactions(ctx, 15, ledger.TransactionFilter{Direction: &credit}, 1, 10)
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)
	assert.Equal(t, 1, page.Analytic.Count)
}
