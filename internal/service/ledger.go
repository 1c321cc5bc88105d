package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"salon-wallet/internal/domain"
	"salon-wallet/internal/repository"
	"salon-wallet/internal/util"
)

// MutationRequest is one balance change. Status defaults to COMPLETED.
type MutationRequest struct {
	WalletID    uuid.UUID
	Type        domain.TransactionType
	Amount      decimal.Decimal
	Status      domain.TransactionStatus
	ReferenceID *string
	Description *string
	Metadata    map[string]any
}

func (r *MutationRequest) validate() error {
	if !r.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", util.ErrInvalidInput)
	}
	if !r.Type.IsValid() {
		return fmt.Errorf("%w: unknown transaction type %q", util.ErrInvalidInput, r.Type)
	}
	if r.Status == "" {
		r.Status = domain.TransactionStatusCompleted
	}
	if !r.Status.IsValid() {
		return fmt.Errorf("%w: unknown transaction status %q", util.ErrInvalidInput, r.Status)
	}
	return nil
}

// applyMutation is the only code path that writes a wallet balance. It must run
// inside a database transaction: the wallet row stays locked from the read
// until commit, which serializes concurrent mutations of the same wallet.
func applyMutation(ctx context.Context, q repository.DBExecutor, store Store, req MutationRequest) (*domain.Wallet, *domain.Transaction, error) {
	if err := req.validate(); err != nil {
		return nil, nil, err
	}

	wallet, err := store.Wallets.GetWalletByIDForUpdate(ctx, q, req.WalletID)
	if err != nil {
		if util.IsError(err, util.ErrNotFound) {
			return nil, nil, util.ErrWalletNotFound
		}
		return nil, nil, fmt.Errorf("apply mutation: failed to lock wallet %s: %w", req.WalletID, err)
	}

	// Credits stay allowed on inactive wallets so a refund can always land.
	if !req.Type.IsCredit() && !wallet.IsActive {
		return nil, nil, util.ErrWalletInactive
	}

	newBalance := wallet.Balance.Add(domain.SignedAmount(req.Type, req.Amount))
	if newBalance.IsNegative() {
		return nil, nil, util.ErrInsufficientFunds
	}

	metadata, err := domain.NewMetadata(req.Metadata)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", util.ErrInvalidInput, err)
	}

	if err := store.Wallets.UpdateWalletBalance(ctx, q, wallet.ID, newBalance); err != nil {
		return nil, nil, fmt.Errorf("apply mutation: failed to update wallet balance: %w", err)
	}

	transaction := domain.NewTransaction(wallet.ID, req.Type, req.Amount, wallet.Balance, req.Status, req.ReferenceID, req.Description, metadata)
	if err := store.Transactions.CreateTransaction(ctx, q, transaction); err != nil {
		return nil, nil, fmt.Errorf("apply mutation: failed to create transaction: %w", err)
	}

	wallet.Balance = newBalance
	wallet.UpdatedAt = transaction.CreatedAt
	return wallet, transaction, nil
}
