// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/aliyura/braverock-ledger/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type obKey struct {
	Kind ledger.Kind
	ID   int64
}

type Memory struct {
	mu sync.RWMutex

	accounts      map[int64]ledger.Account
	nextAccountID int64

	obligations map[obKey]ledger.ObligationRow

	payables    map[string]ledger.Payable
	payableSeq  map[string]int64
	nextPayable int64

	transactions []ledger.Transaction
}

func NewMemory() *Memory {
	return &Memory{
		accounts:    make(map[int64]ledger.Account),
		obligations: make(map[obKey]ledger.ObligationRow),
		payables:    make(map[string]ledger.Payable),
		payableSeq:  make(map[string]int64),
	}
}

// -----------------------------------------------------------------------------
// Accounts
// -----------------------------------------------------------------------------

func (m *Memory) GetAccount(_ context.Context, id int64) (*ledger.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getAccountLocked(id), nil
}

func (m *Memory) getAccountLocked(id int64) *ledger.Account {
	a, ok := m.accounts[id]
	if !ok {
		return nil
	}
	return &a
}

func (m *Memory) GetAccountByPayer(_ context.Context, payerID int64) (*ledger.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getAccountByPayerLocked(payerID), nil
}

func (m *Memory) getAccountByPayerLocked(payerID int64) *ledger.Account {
	for _, a := range m.accounts {
		if a.PayerID == payerID {
			out := a
			return &out
		}
	}
	return nil
}

func (m *Memory) SaveAccount(_ context.Context, a *ledger.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveAccountLocked(a)
}

func (m *Memory) saveAccountLocked(a *ledger.Account) error {
	if a.ID == 0 {
		m.nextAccountID++
		a.ID = m.nextAccountID
	}
	m.accounts[a.ID] = *a
	return nil
}

func (m *Memory) UpdateAccountBalance(_ context.Context, id int64, balance ledger.Amount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateAccountBalanceLocked(id, balance)
}

func (m *Memory) updateAccountBalanceLocked(id int64, balance ledger.Amount) error {
	a, ok := m.accounts[id]
	if !ok {
		return ledger.ErrAccountNotFound
	}
	a.Balance = balance
	m.accounts[id] = a
	return nil
}

// -----------------------------------------------------------------------------
// Obligations
// -----------------------------------------------------------------------------

func (m *Memory) GetObligation(_ context.Context, kind ledger.Kind, id int64) (*ledger.ObligationRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getObligationLocked(kind, id), nil
}

func (m *Memory) getObligationLocked(kind ledger.Kind, id int64) *ledger.ObligationRow {
	row, ok := m.obligations[obKey{Kind: kind, ID: id}]
	if !ok {
		return nil
	}
	return &row
}

func (m *Memory) SaveObligation(_ context.Context, kind ledger.Kind, row *ledger.ObligationRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveObligationLocked(kind, row)
	return nil
}

func (m *Memory) saveObligationLocked(kind ledger.Kind, row *ledger.ObligationRow) {
	m.obligations[obKey{Kind: kind, ID: row.ID}] = *row
}

func (m *Memory) UpdateObligationPayment(_ context.Context, kind ledger.Kind, id int64, paid ledger.Amount, status ledger.ObligationStatus, settledBy string, settledAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateObligationPaymentLocked(kind, id, paid, status, settledBy, settledAt)
}

func (m *Memory) updateObligationPaymentLocked(kind ledger.Kind, id int64, paid ledger.Amount, status ledger.ObligationStatus, settledBy string, settledAt time.Time) error {
	k := obKey{Kind: kind, ID: id}
	row, ok := m.obligations[k]
	if !ok {
		return ledger.ErrObligationNotFound
	}
	row.Paid = paid
	row.Status = status
	row.SettledBy = settledBy
	row.SettledAt = settledAt
	m.obligations[k] = row
	return nil
}

// -----------------------------------------------------------------------------
// Payables
// -----------------------------------------------------------------------------

func (m *Memory) InsertPayable(_ context.Context, p *ledger.Payable) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertPayableLocked(p)
}

func (m *Memory) insertPayableLocked(p *ledger.Payable) error {
	for _, existing := range m.payables {
		if existing.Kind == p.Kind && existing.ObligationID == p.ObligationID && existing.Status.Live() {
			return &ledger.DuplicateObligationError{
				Kind:         p.Kind,
				ObligationID: p.ObligationID,
				PayableID:    existing.ID,
			}
		}
	}
	m.nextPayable++
	m.payables[p.ID] = *p
	m.payableSeq[p.ID] = m.nextPayable
	return nil
}

func (m *Memory) LivePayable(_ context.Context, kind ledger.Kind, obligationID int64) (*ledger.Payable, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.livePayableLocked(kind, obligationID), nil
}

func (m *Memory) livePayableLocked(kind ledger.Kind, obligationID int64) *ledger.Payable {
	for _, p := range m.payables {
		if p.Kind == kind && p.ObligationID == obligationID && p.Status.Live() {
			out := p
			return &out
		}
	}
	return nil
}

func (m *Memory) ListOutstandingPayables(_ context.Context, payerID int64, limit, offset int) ([]ledger.Payable, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listOutstandingLocked(payerID, limit, offset), nil
}

func (m *Memory) listOutstandingLocked(payerID int64, limit, offset int) []ledger.Payable {
	var live []ledger.Payable
	for _, p := range m.payables {
		if p.PayerID == payerID && p.Status.Live() {
			live = append(live, p)
		}
	}
	// Oldest first; insertion sequence breaks created-at ties.
	sort.Slice(live, func(i, j int) bool {
		if !live[i].CreatedAt.Equal(live[j].CreatedAt) {
			return live[i].CreatedAt.Before(live[j].CreatedAt)
		}
		return m.payableSeq[live[i].ID] < m.payableSeq[live[j].ID]
	})

	if offset >= len(live) {
		return nil
	}
	live = live[offset:]
	if limit > 0 && len(live) > limit {
		live = live[:limit]
	}
	return live
}

func (m *Memory) UpdatePayableProgress(_ context.Context, payableID string, amount ledger.Amount, status ledger.PayableStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updatePayableProgressLocked(payableID, amount, status)
}

func (m *Memory) updatePayableProgressLocked(payableID string, amount ledger.Amount, status ledger.PayableStatus) error {
	p, ok := m.payables[payableID]
	if !ok {
		return ledger.ErrPayableNotFound
	}
	p.Amount = amount
	p.Status = status
	m.payables[payableID] = p
	return nil
}

// -----------------------------------------------------------------------------
// Transactions (append-only)
// -----------------------------------------------------------------------------

func (m *Memory) AppendTransaction(_ context.Context, tx ledger.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appendTransactionLocked(tx)
	return nil
}

func (m *Memory) appendTransactionLocked(tx ledger.Transaction) {
	m.transactions = append(m.transactions, tx)
}

func matches(tx ledger.Transaction, payerID int64, f ledger.TransactionFilter) bool {
	if tx.PayerID != payerID {
		return false
	}
	if f.Direction != nil && tx.Direction != *f.Direction {
		return false
	}
	if f.Kind != nil && tx.Kind != *f.Kind {
		return false
	}
	if f.From != nil && tx.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && tx.CreatedAt.After(*f.To) {
		return false
	}
	return true
}

func (m *Memory) ListTransactions(_ context.Context, payerID int64, f ledger.TransactionFilter, limit, offset int) ([]ledger.Transaction, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var all []ledger.Transaction
	for i := len(m.transactions) - 1; i >= 0; i-- { // newest first
		if matches(m.transactions[i], payerID, f) {
			all = append(all, m.transactions[i])
		}
	}
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	all = all[offset:]
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, total, nil
}

func (m *Memory) SumTransactions(_ context.Context, payerID int64, f ledger.TransactionFilter) (ledger.DirectionSums, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sums := ledger.DirectionSums{
		TotalCredit:     ledger.ZeroAmount(),
		TotalDebit:      ledger.ZeroAmount(),
		TotalAdjustment: ledger.ZeroAmount(),
	}
	for _, tx := range m.transactions {
		if !matches(tx, payerID, f) {
			continue
		}
		sums.Count++
		switch tx.Direction {
		case ledger.DirectionCredit:
			sums.TotalCredit = sums.TotalCredit.Add(tx.Amount)
		case ledger.DirectionDebit:
			sums.TotalDebit = sums.TotalDebit.Add(tx.Amount)
		case ledger.DirectionAdjustment:
			sums.TotalAdjustment = sums.TotalAdjustment.Add(tx.Amount)
		}
	}
	return sums, nil
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction.
// For the memory store this is simulated with a snapshot + rollback on error.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snap := tm.snapshot()
	view := &txMemoryView{parent: tm.Memory}

	if err := fn(view); err != nil {
		tm.restore(snap)
		return err
	}
	return nil
}

type memorySnapshot struct {
	accounts      map[int64]ledger.Account
	nextAccountID int64
	obligations   map[obKey]ledger.ObligationRow
	payables      map[string]ledger.Payable
	payableSeq    map[string]int64
	nextPayable   int64
	transactions  []ledger.Transaction
}

func (tm *TxMemory) snapshot() memorySnapshot {
	s := memorySnapshot{
		accounts:      make(map[int64]ledger.Account, len(tm.accounts)),
		nextAccountID: tm.nextAccountID,
		obligations:   make(map[obKey]ledger.ObligationRow, len(tm.obligations)),
		payables:      make(map[string]ledger.Payable, len(tm.payables)),
		payableSeq:    make(map[string]int64, len(tm.payableSeq)),
		nextPayable:   tm.nextPayable,
		transactions:  append([]ledger.Transaction{}, tm.transactions...),
	}
	for k, v := range tm.accounts {
		s.accounts[k] = v
	}
	for k, v := range tm.obligations {
		s.obligations[k] = v
	}
	for k, v := range tm.payables {
		s.payables[k] = v
	}
	for k, v := range tm.payableSeq {
		s.payableSeq[k] = v
	}
	return s
}

func (tm *TxMemory) restore(s memorySnapshot) {
	tm.accounts = s.accounts
	tm.nextAccountID = s.nextAccountID
	tm.obligations = s.obligations
	tm.payables = s.payables
	tm.payableSeq = s.payableSeq
	tm.nextPayable = s.nextPayable
	tm.transactions = s.transactions
}

// txMemoryView routes writes to the parent while its lock is already held.
type txMemoryView struct {
	parent *Memory
}

func (tv *txMemoryView) GetAccount(_ context.Context, id int64) (*ledger.Account, error) {
	return tv.parent.getAccountLocked(id), nil
}

func (tv *txMemoryView) GetAccountByPayer(_ context.Context, payerID int64) (*ledger.Account, error) {
	return tv.parent.getAccountByPayerLocked(payerID), nil
}

func (tv *txMemoryView) SaveAccount(_ context.Context, a *ledger.Account) error {
	return tv.parent.saveAccountLocked(a)
}

func (tv *txMemoryView) UpdateAccountBalance(_ context.Context, id int64, balance ledger.Amount) error {
	return tv.parent.updateAccountBalanceLocked(id, balance)
}

func (tv *txMemoryView) GetObligation(_ context.Context, kind ledger.Kind, id int64) (*ledger.ObligationRow, error) {
	return tv.parent.getObligationLocked(kind, id), nil
}

func (tv *txMemoryView) SaveObligation(_ context.Context, kind ledger.Kind, row *ledger.ObligationRow) error {
	tv.parent.saveObligationLocked(kind, row)
	return nil
}

func (tv *txMemoryView) UpdateObligationPayment(_ context.Context, kind ledger.Kind, id int64, paid ledger.Amount, status ledger.ObligationStatus, settledBy string, settledAt time.Time) error {
	return tv.parent.updateObligationPaymentLocked(kind, id, paid, status, settledBy, settledAt)
}

func (tv *txMemoryView) InsertPayable(_ context.Context, p *ledger.Payable) error {
	return tv.parent.insertPayableLocked(p)
}

func (tv *txMemoryView) LivePayable(_ context.Context, kind ledger.Kind, obligationID int64) (*ledger.Payable, error) {
	return tv.parent.livePayableLocked(kind, obligationID), nil
}

func (tv *txMemoryView) ListOutstandingPayables(_ context.Context, payerID int64, limit, offset int) ([]ledger.Payable, error) {
	return tv.parent.listOutstandingLocked(payerID, limit, offset), nil
}

func (tv *txMemoryView) UpdatePayableProgress(_ context.Context, payableID string, amount ledger.Amount, status ledger.PayableStatus) error {
	return tv.parent.updatePayableProgressLocked(payableID, amount, status)
}

func (tv *txMemoryView) AppendTransaction(_ context.Context, tx ledger.Transaction) error {
	tv.parent.appendTransactionLocked(tx)
	return nil
}

func (tv *txMemoryView) ListTransactions(ctx context.Context, payerID int64, f ledger.TransactionFilter, limit, offset int) ([]ledger.Transaction, int, error) {
	var all []ledger.Transaction
	for i := len(tv.parent.transactions) - 1; i >= 0; i-- {
		if matches(tv.parent.transactions[i], payerID, f) {
			all = append(all, tv.parent.transactions[i])
		}
	}
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	all = all[offset:]
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, total, nil
}

func (tv *txMemoryView) SumTransactions(ctx context.Context, payerID int64, f ledger.TransactionFilter) (ledger.DirectionSums, error) {
	sums := ledger.DirectionSums{
		TotalCredit:     ledger.ZeroAmount(),
		TotalDebit:      ledger.ZeroAmount(),
		TotalAdjustment: ledger.ZeroAmount(),
	}
	for _, tx := range tv.parent.transactions {
		if !matches(tx, payerID, f) {
			continue
		}
		sums.Count++
		switch tx.Direction {
		case ledger.DirectionCredit:
			sums.TotalCredit = sums.TotalCredit.Add(tx.Amount)
		case ledger.DirectionDebit:
			sums.TotalDebit = sums.TotalDebit.Add(tx.Amount)
		case ledger.DirectionAdjustment:
			sums.TotalAdjustment = sums.TotalAdjustment.Add(tx.Amount)
		}
	}
	return sums, nil
}
