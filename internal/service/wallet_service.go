// internal/service/wallet_service.go
package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"salon-wallet/internal/domain"
	"salon-wallet/internal/metrics"
	"salon-wallet/internal/notify"
	"salon-wallet/internal/repository"
	"salon-wallet/internal/util"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// WalletService defines the interface for wallet-related business logic.
type WalletService interface {
	GetOrCreateWallet(ctx context.Context, userID uuid.UUID, salonID *uuid.UUID) (*domain.Wallet, error)
	GetWallet(ctx context.Context, walletID uuid.UUID) (*domain.Wallet, error)
	ApplyMutation(ctx context.Context, req MutationRequest) (*domain.Wallet, *domain.Transaction, error)
	Deposit(ctx context.Context, walletID uuid.UUID, amount decimal.Decimal, description string) (*domain.Wallet, *domain.Transaction, error)
	CreditCommission(ctx context.Context, walletID uuid.UUID, amount decimal.Decimal, commissionRef string) (*domain.Wallet, *domain.Transaction, error)
	SetWalletActive(ctx context.Context, walletID uuid.UUID, active bool) (*domain.Wallet, error)
	GetTransaction(ctx context.Context, transactionID uuid.UUID) (*domain.Transaction, error)
	ListTransactions(ctx context.Context, filter repository.TransactionFilter) ([]domain.Transaction, int64, error)
}

// walletService implements the WalletService interface.
type walletService struct {
	store    Store
	currency string
	notifier NotificationDispatcher
	logger   *zap.Logger
}

// WalletOption customizes a WalletService.
type WalletOption func(*walletService)

// WithNotifications makes deposits and commission credits notify the wallet
// owner through d.
func WithNotifications(d NotificationDispatcher) WalletOption {
	return func(s *walletService) { s.notifier = d }
}

// NewWalletService creates a new instance of WalletService. New wallets are
// opened in currency.
func NewWalletService(store Store, currency string, logger *zap.Logger, opts ...WalletOption) WalletService {
	s := &walletService{
		store:    store,
		currency: currency,
		logger:   logger.Named("wallet"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetOrCreateWallet returns the caller's wallet in the salon scope, creating it lazily.
func (s *walletService) GetOrCreateWallet(ctx context.Context, userID uuid.UUID, salonID *uuid.UUID) (*domain.Wallet, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("%w: user id is required", util.ErrInvalidInput)
	}
	return s.store.getOrCreateWallet(ctx, userID, salonID, s.currency)
}

func (s *walletService) GetWallet(ctx context.Context, walletID uuid.UUID) (*domain.Wallet, error) {
	wallet, err := s.store.Wallets.GetWalletByID(ctx, s.store.Executor, walletID)
	if err != nil {
		if util.IsError(err, util.ErrNotFound) {
			return nil, util.ErrWalletNotFound
		}
		return nil, fmt.Errorf("get wallet: failed to get wallet %s: %w", walletID, err)
	}
	return wallet, nil
}

// ApplyMutation changes a wallet balance and appends the matching ledger
// entry in one database transaction.
func (s *walletService) ApplyMutation(ctx context.Context, req MutationRequest) (*domain.Wallet, *domain.Transaction, error) {
	if err := req.validate(); err != nil {
		recordRejection(err)
		return nil, nil, err
	}

	var (
		wallet      *domain.Wallet
		transaction *domain.Transaction
	)
	err := s.store.inTx(ctx, "apply mutation", func(q repository.DBExecutor) error {
		var err error
		wallet, transaction, err = applyMutation(ctx, q, s.store, req)
		return err
	})
	if err != nil {
		recordRejection(err)
		return nil, nil, err
	}

	metrics.LedgerMutations.WithLabelValues(string(transaction.Type), string(transaction.Status)).Inc()
	s.logger.Debug("ledger mutation applied",
		zap.String("wallet_id", wallet.ID.String()),
		zap.String("transaction_id", transaction.ID.String()),
		zap.String("type", string(transaction.Type)),
		zap.String("amount", transaction.Amount.String()),
		zap.String("balance_after", transaction.BalanceAfter.String()))
	return wallet, transaction, nil
}

// Deposit adds money to a wallet.
func (s *walletService) Deposit(ctx context.Context, walletID uuid.UUID, amount decimal.Decimal, description string) (*domain.Wallet, *domain.Transaction, error) {
	wallet, transaction, err := s.ApplyMutation(ctx, MutationRequest{
		WalletID:    walletID,
		Type:        domain.TransactionTypeDeposit,
		Amount:      amount,
		Description: optional(description),
	})
	if err != nil {
		return nil, nil, err
	}
	s.notify(wallet, transaction, notify.TypeDeposit, "Deposit received",
		fmt.Sprintf("%s %s was added to your wallet.", transaction.Amount, wallet.Currency))
	return wallet, transaction, nil
}

// CreditCommission credits a stylist's earned commission. commissionRef is the
// id of the commission record and is kept as the entry's reference.
func (s *walletService) CreditCommission(ctx context.Context, walletID uuid.UUID, amount decimal.Decimal, commissionRef string) (*domain.Wallet, *domain.Transaction, error) {
	if commissionRef == "" {
		return nil, nil, fmt.Errorf("%w: commission reference is required", util.ErrInvalidInput)
	}
	wallet, transaction, err := s.ApplyMutation(ctx, MutationRequest{
		WalletID:    walletID,
		Type:        domain.TransactionTypeCommission,
		Amount:      amount,
		ReferenceID: &commissionRef,
		Description: optional("Commission earned"),
		Metadata:    map[string]any{domain.MetaCommissionRef: commissionRef},
	})
	if err != nil {
		return nil, nil, err
	}
	s.notify(wallet, transaction, notify.TypeCommission, "Commission earned",
		fmt.Sprintf("You earned %s %s in commission.", transaction.Amount, wallet.Currency))
	return wallet, transaction, nil
}

func (s *walletService) notify(wallet *domain.Wallet, transaction *domain.Transaction, typ notify.Type, title, body string) {
	if s.notifier == nil {
		return
	}
	s.notifier.Dispatch(notify.Notification{
		UserID:  wallet.UserID.String(),
		Channel: notify.ChannelInApp,
		Type:    typ,
		Title:   title,
		Body:    body,
		Metadata: map[string]any{
			"transactionId": transaction.ID.String(),
			"amount":        transaction.Amount.String(),
			"balanceAfter":  transaction.BalanceAfter.String(),
		},
	})
}

// SetWalletActive activates or deactivates a wallet. The balance is untouched.
func (s *walletService) SetWalletActive(ctx context.Context, walletID uuid.UUID, active bool) (*domain.Wallet, error) {
	if err := s.store.Wallets.SetWalletActive(ctx, s.store.Executor, walletID, active); err != nil {
		if util.IsError(err, util.ErrNotFound) {
			return nil, util.ErrWalletNotFound
		}
		return nil, fmt.Errorf("set wallet active: failed to update wallet %s: %w", walletID, err)
	}
	s.logger.Info("wallet status changed", zap.String("wallet_id", walletID.String()), zap.Bool("active", active))
	return s.GetWallet(ctx, walletID)
}

func (s *walletService) GetTransaction(ctx context.Context, transactionID uuid.UUID) (*domain.Transaction, error) {
	transaction, err := s.store.Transactions.GetTransactionByID(ctx, s.store.Executor, transactionID)
	if err != nil {
		if util.IsError(err, util.ErrNotFound) {
			return nil, util.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("get transaction: failed to get transaction %s: %w", transactionID, err)
	}
	return transaction, nil
}

// ListTransactions retrieves a filtered, paginated ledger history for a wallet.
func (s *walletService) ListTransactions(ctx context.Context, filter repository.TransactionFilter) ([]domain.Transaction, int64, error) {
	if filter.Type != nil && !filter.Type.IsValid() {
		return nil, 0, fmt.Errorf("%w: unknown transaction type %q", util.ErrInvalidInput, *filter.Type)
	}
	if filter.Status != nil && !filter.Status.IsValid() {
		return nil, 0, fmt.Errorf("%w: unknown transaction status %q", util.ErrInvalidInput, *filter.Status)
	}
	filter.Limit, filter.Offset = normalizePage(filter.Limit, filter.Offset)

	// First, check if the wallet exists
	if _, err := s.GetWallet(ctx, filter.WalletID); err != nil {
		return nil, 0, err
	}

	transactions, totalCount, err := s.store.Transactions.ListTransactions(ctx, s.store.Executor, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("list transactions: failed to retrieve transaction history: %w", err)
	}
	return transactions, totalCount, nil
}

func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func recordRejection(err error) {
	switch {
	case util.IsError(err, util.ErrInsufficientFunds):
		metrics.LedgerRejections.WithLabelValues("insufficient_funds").Inc()
	case util.IsError(err, util.ErrWalletInactive):
		metrics.LedgerRejections.WithLabelValues("wallet_inactive").Inc()
	case util.IsError(err, util.ErrWalletNotFound):
		metrics.LedgerRejections.WithLabelValues("wallet_not_found").Inc()
	case util.IsError(err, util.ErrInvalidInput):
		metrics.LedgerRejections.WithLabelValues("invalid_input").Inc()
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
