package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"salon-wallet/internal/domain"
	"salon-wallet/internal/metrics"
	"salon-wallet/internal/payout"
	"salon-wallet/internal/repository"
	"salon-wallet/internal/util"
)

// reservationTimeout bounds the funds reservation that follows an accepted
// payout submission.
const reservationTimeout = 15 * time.Second

// WithdrawalPolicy holds the limits applied to new withdrawals.
type WithdrawalPolicy struct {
	Currency      string
	MinWithdrawal decimal.Decimal
}

// WithdrawalRequest is a user-initiated payout to a mobile-money number.
type WithdrawalRequest struct {
	UserID      uuid.UUID
	SalonID     *uuid.UUID
	Amount      decimal.Decimal
	PhoneNumber string
	Description string
}

// Tracker takes over a PENDING withdrawal for asynchronous reconciliation.
type Tracker interface {
	Track(transaction domain.Transaction)
}

// WithdrawalService defines the withdrawal orchestration operations.
type WithdrawalService interface {
	RequestWithdrawal(ctx context.Context, req WithdrawalRequest) (*domain.Transaction, error)
	CompleteWithdrawal(ctx context.Context, transactionID uuid.UUID, providerTransactionID string) (*FinalizeResult, error)
	FailWithdrawal(ctx context.Context, transactionID uuid.UUID, reason string) (*FinalizeResult, error)
}

type withdrawalService struct {
	*Finalizer
	store   Store
	gateway payout.Gateway
	tracker Tracker
	policy  WithdrawalPolicy
	logger  *zap.Logger
}

// NewWithdrawalService creates the orchestrator. Finalization is delegated to
// finalizer so the Reconciler and the orchestrator share one implementation.
func NewWithdrawalService(
	store Store,
	gateway payout.Gateway,
	finalizer *Finalizer,
	tracker Tracker,
	policy WithdrawalPolicy,
	logger *zap.Logger,
) WithdrawalService {
	return &withdrawalService{
		Finalizer: finalizer,
		store:     store,
		gateway:   gateway,
		tracker:   tracker,
		policy:    policy,
		logger:    logger.Named("withdrawal"),
	}
}

// RequestWithdrawal submits the payout, reserves the funds as a PENDING
// WITHDRAWAL and hands the entry to the tracker. The returned entry is
// still PENDING; its outcome is reconciled in the background.
func (s *withdrawalService) RequestWithdrawal(ctx context.Context, req WithdrawalRequest) (*domain.Transaction, error) {
	if req.UserID == uuid.Nil {
		return nil, fmt.Errorf("%w: user id is required", util.ErrInvalidInput)
	}
	if req.Amount.LessThan(s.policy.MinWithdrawal) {
		return nil, fmt.Errorf("%w: minimum withdrawal is %s %s", util.ErrInvalidInput, s.policy.MinWithdrawal, s.policy.Currency)
	}
	if !s.gateway.ValidateNumber(req.PhoneNumber) {
		return nil, fmt.Errorf("%w: phone number %q is not a supported mobile-money number", util.ErrInvalidInput, req.PhoneNumber)
	}

	wallet, err := s.store.getOrCreateWallet(ctx, req.UserID, req.SalonID, s.policy.Currency)
	if err != nil {
		return nil, fmt.Errorf("request withdrawal: %w", err)
	}
	if !wallet.IsActive {
		return nil, util.ErrWalletInactive
	}
	// Advisory only. The locked re-read in applyMutation is authoritative.
	if wallet.Balance.LessThan(req.Amount) {
		return nil, util.ErrInsufficientFunds
	}

	phone := s.gateway.FormatNumber(req.PhoneNumber)
	externalID := uuid.NewString()
	receipt, err := s.gateway.RequestPayout(ctx, payout.Request{
		PhoneNumber: phone,
		Amount:      req.Amount,
		Currency:    wallet.Currency,
		ExternalID:  externalID,
		Message:     "Salon wallet withdrawal",
	})
	if err != nil {
		if !util.IsError(err, util.ErrGateway) {
			err = fmt.Errorf("%w: %w", util.ErrGateway, err)
		}
		return nil, fmt.Errorf("request withdrawal: payout submission failed: %w", err)
	}

	description := req.Description
	if description == "" {
		description = fmt.Sprintf("Withdrawal to %s", phone)
	}

	// The provider accepted the payout, so the reservation must not be
	// abandoned when the caller disconnects or the request times out.
	reserveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), reservationTimeout)
	defer cancel()

	var transaction *domain.Transaction
	err = s.store.inTx(reserveCtx, "request withdrawal", func(q repository.DBExecutor) error {
		var err error
		_, transaction, err = applyMutation(reserveCtx, q, s.store, MutationRequest{
			WalletID:    wallet.ID,
			Type:        domain.TransactionTypeWithdrawal,
			Amount:      req.Amount,
			Status:      domain.TransactionStatusPending,
			ReferenceID: &receipt.ReferenceID,
			Description: &description,
			Metadata: map[string]any{
				domain.MetaExternalID:  externalID,
				domain.MetaPhoneNumber: phone,
				domain.MetaProvider:    s.gateway.Name(),
			},
		})
		return err
	})
	if err != nil {
		recordRejection(err)
		metrics.OrphanedPayouts.Inc()
		s.logger.Error("payout submitted but funds reservation failed",
			zap.String("wallet_id", wallet.ID.String()),
			zap.String("reference_id", receipt.ReferenceID),
			zap.String("external_id", externalID),
			zap.String("amount", req.Amount.String()),
			zap.Error(err))
		return nil, err
	}

	metrics.LedgerMutations.WithLabelValues(string(transaction.Type), string(transaction.Status)).Inc()
	s.logger.Info("withdrawal reserved",
		zap.String("transaction_id", transaction.ID.String()),
		zap.String("wallet_id", wallet.ID.String()),
		zap.String("reference_id", receipt.ReferenceID),
		zap.String("amount", req.Amount.String()))

	s.tracker.Track(*transaction)
	return transaction, nil
}

// FinalizeResult describes a finalizer call. Applied is false when the
// withdrawal was already terminal and nothing was written.
type FinalizeResult struct {
	Transaction *domain.Transaction
	Refund      *domain.Transaction
	Wallet      *domain.Wallet
	Applied     bool
}

// Finalizer moves PENDING withdrawals to their terminal state.
type Finalizer struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time
}

func NewFinalizer(store Store, logger *zap.Logger) *Finalizer {
	return &Finalizer{store: store, logger: logger.Named("finalizer"), now: time.Now}
}

// lockPendingWithdrawal locks the entry row. ok is false when the entry is
// no longer PENDING.
func (f *Finalizer) lockPendingWithdrawal(ctx context.Context, q repository.DBExecutor, transactionID uuid.UUID) (*domain.Transaction, bool, error) {
	transaction, err := f.store.Transactions.GetTransactionByIDForUpdate(ctx, q, transactionID)
	if err != nil {
		if util.IsError(err, util.ErrNotFound) {
			return nil, false, util.ErrTransactionNotFound
		}
		return nil, false, fmt.Errorf("failed to lock transaction %s: %w", transactionID, err)
	}
	if transaction.Type != domain.TransactionTypeWithdrawal {
		return nil, false, fmt.Errorf("%w: transaction %s is a %s, not a withdrawal", util.ErrInvalidInput, transactionID, transaction.Type)
	}
	return transaction, transaction.Status == domain.TransactionStatusPending, nil
}

// CompleteWithdrawal marks a PENDING withdrawal COMPLETED. The funds were
// debited at reservation time, so no balance changes here.
func (f *Finalizer) CompleteWithdrawal(ctx context.Context, transactionID uuid.UUID, providerTransactionID string) (*FinalizeResult, error) {
	result := &FinalizeResult{}
	err := f.store.inTx(ctx, "complete withdrawal", func(q repository.DBExecutor) error {
		transaction, pending, err := f.lockPendingWithdrawal(ctx, q, transactionID)
		if err != nil {
			return fmt.Errorf("complete withdrawal: %w", err)
		}
		result.Transaction = transaction
		if !pending {
			return nil
		}

		if err := transaction.MergeMetadata(map[string]any{
			domain.MetaProviderTransactionID: providerTransactionID,
			domain.MetaCompletedAt:           f.now().UTC().Format(time.RFC3339),
		}); err != nil {
			return fmt.Errorf("complete withdrawal: %w", err)
		}
		if err := f.store.Transactions.UpdateTransactionStatus(ctx, q, transaction.ID, domain.TransactionStatusCompleted, transaction.Metadata); err != nil {
			return fmt.Errorf("complete withdrawal: failed to update transaction: %w", err)
		}
		transaction.Status = domain.TransactionStatusCompleted

		wallet, err := f.store.Wallets.GetWalletByID(ctx, q, transaction.WalletID)
		if err != nil {
			return fmt.Errorf("complete withdrawal: failed to get wallet %s: %w", transaction.WalletID, err)
		}
		result.Wallet = wallet
		result.Applied = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Applied {
		f.logger.Info("withdrawal completed",
			zap.String("transaction_id", transactionID.String()),
			zap.String("provider_transaction_id", providerTransactionID))
	}
	return result, nil
}

// FailWithdrawal marks a PENDING withdrawal FAILED and credits the amount
// back with a REFUND, both in one database transaction.
func (f *Finalizer) FailWithdrawal(ctx context.Context, transactionID uuid.UUID, reason string) (*FinalizeResult, error) {
	result := &FinalizeResult{}
	refunded := false
	err := f.store.inTx(ctx, "fail withdrawal", func(q repository.DBExecutor) error {
		transaction, pending, err := f.lockPendingWithdrawal(ctx, q, transactionID)
		if err != nil {
			return fmt.Errorf("fail withdrawal: %w", err)
		}
		result.Transaction = transaction
		if !pending {
			return nil
		}

		if err := transaction.MergeMetadata(map[string]any{
			domain.MetaFailureReason: reason,
			domain.MetaFailedAt:      f.now().UTC().Format(time.RFC3339),
		}); err != nil {
			return fmt.Errorf("fail withdrawal: %w", err)
		}
		if err := f.store.Transactions.UpdateTransactionStatus(ctx, q, transaction.ID, domain.TransactionStatusFailed, transaction.Metadata); err != nil {
			return fmt.Errorf("fail withdrawal: failed to update transaction: %w", err)
		}
		transaction.Status = domain.TransactionStatusFailed

		refund, err := f.store.Transactions.FindRefundFor(ctx, q, transaction.ID)
		if err != nil && !util.IsError(err, util.ErrNotFound) {
			return fmt.Errorf("fail withdrawal: failed to look up refund: %w", err)
		}
		if refund != nil {
			// Already compensated; never refund twice.
			f.logger.Warn("refund already exists for pending withdrawal",
				zap.String("transaction_id", transaction.ID.String()),
				zap.String("refund_id", refund.ID.String()))
			result.Refund = refund
			result.Applied = true
			result.Wallet, err = f.store.Wallets.GetWalletByID(ctx, q, transaction.WalletID)
			if err != nil {
				return fmt.Errorf("fail withdrawal: failed to get wallet %s: %w", transaction.WalletID, err)
			}
			return nil
		}

		withdrawalRef := transaction.ID.String()
		description := "Refund for failed withdrawal"
		wallet, refund, err := applyMutation(ctx, q, f.store, MutationRequest{
			WalletID:    transaction.WalletID,
			Type:        domain.TransactionTypeRefund,
			Amount:      transaction.Amount,
			Status:      domain.TransactionStatusCompleted,
			ReferenceID: &withdrawalRef,
			Description: &description,
			Metadata: map[string]any{
				domain.MetaWithdrawalID:  withdrawalRef,
				domain.MetaFailureReason: reason,
			},
		})
		if err != nil {
			return fmt.Errorf("fail withdrawal: failed to refund: %w", err)
		}
		result.Wallet = wallet
		result.Refund = refund
		result.Applied = true
		refunded = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if refunded {
		metrics.LedgerMutations.WithLabelValues(string(domain.TransactionTypeRefund), string(domain.TransactionStatusCompleted)).Inc()
	}
	if result.Applied {
		f.logger.Info("withdrawal failed and refunded",
			zap.String("transaction_id", transactionID.String()),
			zap.String("reason", reason))
	}
	return result, nil
}
