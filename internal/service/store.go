// internal/service/store.go
package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"salon-wallet/internal/domain"
	"salon-wallet/internal/repository"
	"salon-wallet/internal/util"
	"salon-wallet/pkg/db"
)

// Store bundles the ledger repositories with the transaction lifecycle.
// The Begin/Commit/Rollback funcs are injected so tests can substitute them.
type Store struct {
	Beginner     db.DBTxBeginner       // For starting transactions (e.g., *sqlx.DB)
	Executor     repository.DBExecutor // For non-transactional reads (e.g., *sqlx.DB)
	Wallets      repository.WalletRepository
	Transactions repository.TransactionRepository
	BeginTx      db.BeginTxFunc
	CommitTx     db.CommitTxFunc
	RollbackTx   db.RollbackTxFunc
}

// NewStore wires a Store against a real database handle.
func NewStore(conn interface {
	db.DBTxBeginner
	repository.DBExecutor
}, wallets repository.WalletRepository, transactions repository.TransactionRepository) Store {
	return Store{
		Beginner:     conn,
		Executor:     conn,
		Wallets:      wallets,
		Transactions: transactions,
		BeginTx:      db.BeginTx,
		CommitTx:     db.CommitTx,
		RollbackTx:   db.RollbackTx,
	}
}

// inTx runs fn inside one database transaction and commits when fn returns nil.
func (s Store) inTx(ctx context.Context, op string, fn func(q repository.DBExecutor) error) error {
	txController, err := s.BeginTx(ctx, s.Beginner)
	if err != nil {
		return fmt.Errorf("%s: failed to begin transaction: %w", op, err)
	}
	defer s.RollbackTx(txController)

	txExecutor, ok := txController.(repository.DBExecutor)
	if !ok {
		return fmt.Errorf("%s: transaction controller does not implement DBExecutor", op)
	}

	if err := fn(txExecutor); err != nil {
		return err
	}

	if err := s.CommitTx(txController); err != nil {
		return fmt.Errorf("%s: failed to commit transaction: %w", op, err)
	}
	return nil
}

// getOrCreateWallet returns the owner's wallet, creating it on first use.
// Two concurrent first calls race on the unique owner index; the loser
// re-reads the winner's row.
func (s Store) getOrCreateWallet(ctx context.Context, userID uuid.UUID, salonID *uuid.UUID, currency string) (*domain.Wallet, error) {
	wallet, err := s.Wallets.GetWalletByOwner(ctx, s.Executor, userID, salonID)
	if err == nil {
		return wallet, nil
	}
	if !util.IsError(err, util.ErrNotFound) {
		return nil, fmt.Errorf("get or create wallet: failed to look up wallet: %w", err)
	}

	wallet = domain.NewWallet(userID, salonID, currency)
	err = s.Wallets.CreateWallet(ctx, s.Executor, wallet)
	if err == nil {
		return wallet, nil
	}
	if !util.IsError(err, util.ErrDuplicateEntry) {
		return nil, fmt.Errorf("get or create wallet: failed to create wallet: %w", err)
	}

	wallet, err = s.Wallets.GetWalletByOwner(ctx, s.Executor, userID, salonID)
	if err != nil {
		return nil, fmt.Errorf("get or create wallet: failed to re-read wallet: %w", err)
	}
	return wallet, nil
}
