package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
	"github.com/shopspring/decimal"

	"salon-wallet/internal/domain"
	"salon-wallet/internal/repository"
	"salon-wallet/internal/util"
	"salon-wallet/pkg/db"
)

// memStore is an in-memory ledger store. A transaction holds txMu from begin
// to commit/rollback, which serializes writers the way the wallet row lock
// does in PostgreSQL, and rollback restores the state seen at begin.
type memStore struct {
	txMu sync.Mutex

	mu      sync.Mutex
	wallets map[uuid.UUID]domain.Wallet
	txs     map[uuid.UUID]domain.Transaction
	order   []uuid.UUID
	seq     int64

	failCreateTransaction error
	pendingListCalls      int
}

type memSnapshot struct {
	wallets map[uuid.UUID]domain.Wallet
	txs     map[uuid.UUID]domain.Transaction
	order   []uuid.UUID
}

func newMemStore() *memStore {
	return &memStore{
		wallets: make(map[uuid.UUID]domain.Wallet),
		txs:     make(map[uuid.UUID]domain.Transaction),
	}
}

// store returns a service Store backed by m.
func (m *memStore) store() Store {
	return Store{
		Beginner:     memBeginner{},
		Executor:     memExecutor{},
		Wallets:      m,
		Transactions: m,
		BeginTx: func(ctx context.Context, _ db.DBTxBeginner) (db.TxController, error) {
			// database/sql refuses to begin on a finished context.
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			m.txMu.Lock()
			return &memTx{store: m, snap: m.snapshot()}, nil
		},
		CommitTx:   func(tx db.TxController) error { return tx.Commit() },
		RollbackTx: func(tx db.TxController) { _ = tx.Rollback() },
	}
}

func (m *memStore) snapshot() memSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := memSnapshot{
		wallets: make(map[uuid.UUID]domain.Wallet, len(m.wallets)),
		txs:     make(map[uuid.UUID]domain.Transaction, len(m.txs)),
		order:   append([]uuid.UUID(nil), m.order...),
	}
	for k, v := range m.wallets {
		s.wallets[k] = v
	}
	for k, v := range m.txs {
		s.txs[k] = v
	}
	return s
}

func (m *memStore) restore(s memSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wallets, m.txs, m.order = s.wallets, s.txs, s.order
}

// memTx is the TxController handed out by memStore. It satisfies
// repository.DBExecutor so the services' type assertion succeeds.
type memTx struct {
	memExecutor
	store *memStore
	snap  memSnapshot
	done  bool
}

func (t *memTx) Commit() error {
	if t.done {
		return sql.ErrTxDone
	}
	t.done = true
	t.store.txMu.Unlock()
	return nil
}

func (t *memTx) Rollback() error {
	if t.done {
		return sql.ErrTxDone
	}
	t.done = true
	t.store.restore(t.snap)
	t.store.txMu.Unlock()
	return nil
}

var errNoSQL = errors.New("memstore: no SQL")

type memExecutor struct{}

func (memExecutor) GetContext(context.Context, interface{}, string, ...interface{}) error {
	return errNoSQL
}
func (memExecutor) SelectContext(context.Context, interface{}, string, ...interface{}) error {
	return errNoSQL
}
func (memExecutor) ExecContext(context.Context, string, ...interface{}) (sql.Result, error) {
	return nil, errNoSQL
}
func (memExecutor) QueryRowContext(context.Context, string, ...interface{}) *sql.Row {
	return nil
}

type memBeginner struct{ db.DBTxBeginner }

// --- WalletRepository ---

func (m *memStore) CreateWallet(_ context.Context, _ repository.DBExecutor, wallet *domain.Wallet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range m.wallets {
		if w.UserID == wallet.UserID && sameScope(w.SalonID, wallet.SalonID) {
			return util.ErrDuplicateEntry
		}
	}
	m.wallets[wallet.ID] = *wallet
	return nil
}

func sameScope(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (m *memStore) GetWalletByID(_ context.Context, _ repository.DBExecutor, id uuid.UUID) (*domain.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.wallets[id]
	if !ok {
		return nil, util.ErrNotFound
	}
	return &w, nil
}

func (m *memStore) GetWalletByIDForUpdate(ctx context.Context, q repository.DBExecutor, id uuid.UUID) (*domain.Wallet, error) {
	return m.GetWalletByID(ctx, q, id)
}

func (m *memStore) GetWalletByOwner(_ context.Context, _ repository.DBExecutor, userID uuid.UUID, salonID *uuid.UUID) (*domain.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range m.wallets {
		if w.UserID == userID && sameScope(w.SalonID, salonID) {
			return &w, nil
		}
	}
	return nil, util.ErrNotFound
}

func (m *memStore) UpdateWalletBalance(_ context.Context, _ repository.DBExecutor, walletID uuid.UUID, balance decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.wallets[walletID]
	if !ok {
		return util.ErrNotFound
	}
	if balance.IsNegative() {
		return errors.New("memstore: balance check constraint violated")
	}
	w.Balance = balance
	w.UpdatedAt = time.Now().UTC()
	m.wallets[walletID] = w
	return nil
}

func (m *memStore) SetWalletActive(_ context.Context, _ repository.DBExecutor, walletID uuid.UUID, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.wallets[walletID]
	if !ok {
		return util.ErrNotFound
	}
	w.IsActive = active
	m.wallets[walletID] = w
	return nil
}

// --- TransactionRepository ---

func (m *memStore) CreateTransaction(_ context.Context, _ repository.DBExecutor, transaction *domain.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCreateTransaction != nil {
		return m.failCreateTransaction
	}
	if transaction.Type == domain.TransactionTypeRefund && transaction.ReferenceID != nil {
		for _, t := range m.txs {
			if t.Type == domain.TransactionTypeRefund && t.ReferenceID != nil && *t.ReferenceID == *transaction.ReferenceID {
				return util.ErrDuplicateEntry
			}
		}
	}
	// Keeps newest-first ordering stable when timestamps collide.
	m.seq++
	transaction.CreatedAt = transaction.CreatedAt.Add(time.Duration(m.seq))
	m.txs[transaction.ID] = *transaction
	m.order = append(m.order, transaction.ID)
	return nil
}

func (m *memStore) GetTransactionByID(_ context.Context, _ repository.DBExecutor, id uuid.UUID) (*domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.txs[id]
	if !ok {
		return nil, util.ErrNotFound
	}
	return &t, nil
}

func (m *memStore) GetTransactionByIDForUpdate(ctx context.Context, q repository.DBExecutor, id uuid.UUID) (*domain.Transaction, error) {
	return m.GetTransactionByID(ctx, q, id)
}

func (m *memStore) ListTransactions(_ context.Context, _ repository.DBExecutor, filter repository.TransactionFilter) ([]domain.Transaction, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []domain.Transaction
	for i := len(m.order) - 1; i >= 0; i-- {
		t := m.txs[m.order[i]]
		if t.WalletID != filter.WalletID {
			continue
		}
		if filter.Type != nil && t.Type != *filter.Type {
			continue
		}
		if filter.Status != nil && t.Status != *filter.Status {
			continue
		}
		matched = append(matched, t)
	}
	total := int64(len(matched))
	if filter.Offset >= len(matched) {
		return []domain.Transaction{}, total, nil
	}
	end := filter.Offset + filter.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[filter.Offset:end], total, nil
}

func (m *memStore) UpdateTransactionStatus(_ context.Context, _ repository.DBExecutor, id uuid.UUID, status domain.TransactionStatus, metadata types.JSONText) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.txs[id]
	if !ok {
		return util.ErrNotFound
	}
	t.Status = status
	t.Metadata = metadata
	t.UpdatedAt = time.Now().UTC()
	m.txs[id] = t
	return nil
}

func (m *memStore) FindRefundFor(_ context.Context, _ repository.DBExecutor, withdrawalID uuid.UUID) (*domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ref := withdrawalID.String()
	for _, t := range m.txs {
		if t.Type == domain.TransactionTypeRefund && t.ReferenceID != nil && *t.ReferenceID == ref {
			return &t, nil
		}
	}
	return nil, util.ErrNotFound
}

func (m *memStore) ListPendingWithdrawals(_ context.Context, _ repository.DBExecutor, after repository.PendingCursor, limit int) ([]domain.Transaction, error) {
	m.mu.Lock()
	m.pendingListCalls++
	var pending []domain.Transaction
	for _, id := range m.order {
		t := m.txs[id]
		if t.Type == domain.TransactionTypeWithdrawal && t.Status == domain.TransactionStatusPending && afterCursor(t, after) {
			pending = append(pending, t)
		}
	}
	m.mu.Unlock()

	sort.Slice(pending, func(i, j int) bool {
		if !pending[i].CreatedAt.Equal(pending[j].CreatedAt) {
			return pending[i].CreatedAt.Before(pending[j].CreatedAt)
		}
		return pending[i].ID.String() < pending[j].ID.String()
	})
	if len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

func afterCursor(t domain.Transaction, c repository.PendingCursor) bool {
	if !t.CreatedAt.Equal(c.CreatedAt) {
		return t.CreatedAt.After(c.CreatedAt)
	}
	return t.ID.String() > c.ID.String()
}

// --- helpers ---

func (m *memStore) addWallet(balance int64, active bool) *domain.Wallet {
	w := domain.NewWallet(uuid.New(), nil, "RWF")
	w.Balance = decimal.NewFromInt(balance)
	w.IsActive = active
	m.mu.Lock()
	m.wallets[w.ID] = *w
	m.mu.Unlock()
	return w
}

func (m *memStore) balance(walletID uuid.UUID) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.wallets[walletID].Balance
}

func (m *memStore) entries(walletID uuid.UUID) []domain.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Transaction
	for _, id := range m.order {
		if t := m.txs[id]; t.WalletID == walletID {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (m *memStore) transaction(id uuid.UUID) domain.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.txs[id]
}
