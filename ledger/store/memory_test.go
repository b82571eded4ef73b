package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aliyura/braverock-ledger/ledger"
	"github.com/aliyura/braverock-ledger/ledger/store"
)

func TestMemory_SaveAccount_AssignsSequentialIDs(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()

	a := &ledger.Account{PayerID: 1, Balance: ledger.ZeroAmount()}
	b := &ledger.Account{PayerID: 2, Balance: ledger.ZeroAmount()}
	if err := m.SaveAccount(ctx, a); err != nil {
		t.Fatalf("save a: %v", err)
	}
	if err := m.SaveAccount(ctx, b); err != nil {
		t.Fatalf("save b: %v", err)
	}
	if a.ID == 0 || b.ID != a.ID+1 {
		t.Errorf("expected sequential IDs, got %d and %d", a.ID, b.ID)
	}

	got, err := m.GetAccountByPayer(ctx, 2)
	if err != nil || got == nil || got.ID != b.ID {
		t.Fatalf("lookup by payer failed: %v %v", got, err)
	}
}

func TestMemory_UpdateAccountBalance_MissingAccount(t *testing.T) {
	m := store.NewMemory()
	err := m.UpdateAccountBalance(context.Background(), 99, ledger.NewAmountFromInt(10))
	if !errors.Is(err, ledger.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestMemory_ListOutstandingPayables_TiebreakByInsertionOrder(t *testing.T) {
	// Two payables sharing a createdAt must come back in insertion order,
	// otherwise the waterfall's allocation is nondeterministic.

	ctx := context.Background()
	m := store.NewMemory()
	at := time.Date(2026, time.February, 1, 9, 0, 0, 0, time.UTC)

	for i, id := range []string{"p-a", "p-b", "p-c"} {
		p := &ledger.Payable{
			ID:           id,
			PayerID:      1,
			Kind:         ledger.KindBill,
			ObligationID: int64(i + 1),
			Amount:       ledger.NewAmountFromInt(100),
			Status:       ledger.PayablePending,
			CreatedAt:    at,
		}
		if err := m.InsertPayable(ctx, p); err != nil {
			t.Fatalf("insert %s: %v", id, err)
		}
	}

	live, err := m.ListOutstandingPayables(ctx, 1, 10, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []string{"p-a", "p-b", "p-c"}
	for i := range want {
		if live[i].ID != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], live[i].ID)
		}
	}
}

func TestTxMemory_WithTx_RollbackOnError(t *testing.T) {
	// GIVEN: An account and an obligation
	// WHEN: A transactional section debits the account then fails
	// THEN: Every write inside the section is rolled back

	ctx := context.Background()
	tm := store.NewTxMemory()

	account := &ledger.Account{PayerID: 1, Balance: ledger.NewAmountFromInt(500)}
	if err := tm.SaveAccount(ctx, account); err != nil {
		t.Fatalf("save account: %v", err)
	}

	boom := errors.New("boom")
	err := tm.WithTx(ctx, func(s ledger.Store) error {
		if err := s.UpdateAccountBalance(ctx, account.ID, ledger.ZeroAmount()); err != nil {
			return err
		}
		if err := s.AppendTransaction(ctx, ledger.Transaction{ID: "t1", PayerID: 1}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	got, _ := tm.GetAccount(ctx, account.ID)
	if !got.Balance.Equal(ledger.NewAmountFromInt(500)) {
		t.Errorf("balance not rolled back: %s", got.Balance)
	}
	_, total, _ := tm.ListTransactions(ctx, 1, ledger.TransactionFilter{}, 10, 0)
	if total != 0 {
		t.Errorf("transaction not rolled back: %d rows", total)
	}
}

func TestTxMemory_WithTx_CommitOnSuccess(t *testing.T) {
	ctx := context.Background()
	tm := store.NewTxMemory()

	account := &ledger.Account{PayerID: 1, Balance: ledger.NewAmountFromInt(100)}
	if err := tm.SaveAccount(ctx, account); err != nil {
		t.Fatalf("save account: %v", err)
	}

	err := tm.WithTx(ctx, func(s ledger.Store) error {
		return s.UpdateAccountBalance(ctx, account.ID, ledger.NewAmountFromInt(40))
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, _ := tm.GetAccount(ctx, account.ID)
	if !got.Balance.Equal(ledger.NewAmountFromInt(40)) {
		t.Errorf("expected committed balance 40, got %s", got.Balance)
	}
}
