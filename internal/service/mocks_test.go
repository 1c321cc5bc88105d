package service

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"salon-wallet/internal/domain"
	"salon-wallet/internal/notify"
	"salon-wallet/internal/payout"
	"salon-wallet/internal/repository"
	"salon-wallet/pkg/db"
)

// MockDBExecutor is a mock implementation of repository.DBExecutor.
type MockDBExecutor struct {
	mock.Mock
}

func (m *MockDBExecutor) GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	argsCalled := m.Called(ctx, dest, query, args)
	return argsCalled.Error(0)
}

func (m *MockDBExecutor) SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	argsCalled := m.Called(ctx, dest, query, args)
	return argsCalled.Error(0)
}

func (m *MockDBExecutor) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	argsCalled := m.Called(ctx, query, args)
	return argsCalled.Get(0).(sql.Result), argsCalled.Error(1)
}

func (m *MockDBExecutor) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	m.Called(ctx, query, args)
	return &sql.Row{}
}

// MockWalletRepository is a mock implementation of repository.WalletRepository.
type MockWalletRepository struct {
	mock.Mock
}

func (m *MockWalletRepository) CreateWallet(ctx context.Context, q repository.DBExecutor, wallet *domain.Wallet) error {
	args := m.Called(ctx, q, wallet)
	return args.Error(0)
}

func (m *MockWalletRepository) GetWalletByID(ctx context.Context, q repository.DBExecutor, id uuid.UUID) (*domain.Wallet, error) {
	args := m.Called(ctx, q, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Wallet), args.Error(1)
}

func (m *MockWalletRepository) GetWalletByIDForUpdate(ctx context.Context, q repository.DBExecutor, id uuid.UUID) (*domain.Wallet, error) {
	args := m.Called(ctx, q, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Wallet), args.Error(1)
}

func (m *MockWalletRepository) GetWalletByOwner(ctx context.Context, q repository.DBExecutor, userID uuid.UUID, salonID *uuid.UUID) (*domain.Wallet, error) {
	args := m.Called(ctx, q, userID, salonID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Wallet), args.Error(1)
}

func (m *MockWalletRepository) UpdateWalletBalance(ctx context.Context, q repository.DBExecutor, walletID uuid.UUID, balance decimal.Decimal) error {
	args := m.Called(ctx, q, walletID, balance)
	return args.Error(0)
}

func (m *MockWalletRepository) SetWalletActive(ctx context.Context, q repository.DBExecutor, walletID uuid.UUID, active bool) error {
	args := m.Called(ctx, q, walletID, active)
	return args.Error(0)
}

// MockTransactionRepository is a mock implementation of repository.TransactionRepository.
type MockTransactionRepository struct {
	mock.Mock
}

func (m *MockTransactionRepository) CreateTransaction(ctx context.Context, q repository.DBExecutor, transaction *domain.Transaction) error {
	args := m.Called(ctx, q, transaction)
	return args.Error(0)
}

func (m *MockTransactionRepository) GetTransactionByID(ctx context.Context, q repository.DBExecutor, id uuid.UUID) (*domain.Transaction, error) {
	args := m.Called(ctx, q, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Transaction), args.Error(1)
}

func (m *MockTransactionRepository) GetTransactionByIDForUpdate(ctx context.Context, q repository.DBExecutor, id uuid.UUID) (*domain.Transaction, error) {
	args := m.Called(ctx, q, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Transaction), args.Error(1)
}

func (m *MockTransactionRepository) ListTransactions(ctx context.Context, q repository.DBExecutor, filter repository.TransactionFilter) ([]domain.Transaction, int64, error) {
	args := m.Called(ctx, q, filter)
	return args.Get(0).([]domain.Transaction), args.Get(1).(int64), args.Error(2)
}

func (m *MockTransactionRepository) UpdateTransactionStatus(ctx context.Context, q repository.DBExecutor, id uuid.UUID, status domain.TransactionStatus, metadata types.JSONText) error {
	args := m.Called(ctx, q, id, status, metadata)
	return args.Error(0)
}

func (m *MockTransactionRepository) FindRefundFor(ctx context.Context, q repository.DBExecutor, withdrawalID uuid.UUID) (*domain.Transaction, error) {
	args := m.Called(ctx, q, withdrawalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Transaction), args.Error(1)
}

func (m *MockTransactionRepository) ListPendingWithdrawals(ctx context.Context, q repository.DBExecutor, after repository.PendingCursor, limit int) ([]domain.Transaction, error) {
	args := m.Called(ctx, q, after, limit)
	return args.Get(0).([]domain.Transaction), args.Error(1)
}

// MockDBBeginner is a mock implementation of db.DBTxBeginner.
type MockDBBeginner struct {
	mock.Mock
}

func (m *MockDBBeginner) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	args := m.Called(ctx, opts)
	return &sqlx.Tx{}, args.Error(1)
}

// MockTxController is a mock implementation of db.TxController.
// It also implicitly implements repository.DBExecutor for testing purposes
// by embedding MockDBExecutor.
type MockTxController struct {
	mock.Mock
	MockDBExecutor // Embed MockDBExecutor to satisfy repository.DBExecutor interface
}

func (m *MockTxController) Commit() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockTxController) Rollback() error {
	args := m.Called()
	return args.Error(0)
}

// mockStore wires a Store whose transaction lifecycle is driven by txController.
func mockStore(beginner *MockDBBeginner, executor *MockDBExecutor, wallets *MockWalletRepository, transactions *MockTransactionRepository, txController *MockTxController) Store {
	return Store{
		Beginner:     beginner,
		Executor:     executor,
		Wallets:      wallets,
		Transactions: transactions,
		BeginTx: func(ctx context.Context, dbConn db.DBTxBeginner) (db.TxController, error) {
			return txController, nil
		},
		CommitTx: func(tx db.TxController) error {
			return txController.Commit()
		},
		RollbackTx: func(tx db.TxController) {
			_ = txController.Rollback()
		},
	}
}

// MockGateway is a mock implementation of payout.Gateway.
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) Name() string { return "mock" }

func (m *MockGateway) RequestPayout(ctx context.Context, req payout.Request) (*payout.Receipt, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payout.Receipt), args.Error(1)
}

func (m *MockGateway) CheckPayoutStatus(ctx context.Context, referenceID string) (*payout.Result, error) {
	args := m.Called(ctx, referenceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payout.Result), args.Error(1)
}

func (m *MockGateway) ValidateNumber(phoneNumber string) bool {
	return payout.MTNRwanda.Validate(phoneNumber)
}

func (m *MockGateway) FormatNumber(phoneNumber string) string {
	return payout.MTNRwanda.Format(phoneNumber)
}

// MockTracker records the withdrawals handed over for reconciliation.
type MockTracker struct {
	mock.Mock
}

func (m *MockTracker) Track(transaction domain.Transaction) {
	m.Called(transaction)
}

// MockDispatcher is a mock implementation of NotificationDispatcher.
type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) Dispatch(n notify.Notification) bool {
	return m.Called(n).Bool(0)
}
