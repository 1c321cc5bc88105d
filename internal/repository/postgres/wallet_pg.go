// internal/repository/postgres/wallet_pg.go
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"salon-wallet/internal/domain"
	"salon-wallet/internal/repository"
	"salon-wallet/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const walletColumns = `id, user_id, salon_id, currency, balance, is_active, created_at, updated_at`

// WalletRepository implements repository.WalletRepository for PostgreSQL.
// It holds no connection; every method runs on the DBExecutor it is given.
type WalletRepository struct{}

// NewWalletRepository creates a new WalletRepository.
func NewWalletRepository() repository.WalletRepository {
	return &WalletRepository{}
}

// CreateWallet inserts a new wallet. The (user_id, salon scope) unique index
// turns a concurrent second insert into util.ErrDuplicateEntry.
func (r *WalletRepository) CreateWallet(ctx context.Context, q repository.DBExecutor, wallet *domain.Wallet) error {
	query := `INSERT INTO wallets (` + walletColumns + `)
              VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
              ON CONFLICT DO NOTHING`
	result, err := q.ExecContext(ctx, query,
		wallet.ID, wallet.UserID, wallet.SalonID, wallet.Currency, wallet.Balance,
		wallet.IsActive, wallet.CreatedAt, wallet.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create wallet: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected after creating wallet: %w", err)
	}
	if rowsAffected == 0 {
		return util.ErrDuplicateEntry
	}
	return nil
}

// GetWalletByID retrieves a wallet by its ID.
func (r *WalletRepository) GetWalletByID(ctx context.Context, q repository.DBExecutor, id uuid.UUID) (*domain.Wallet, error) {
	return r.getOne(ctx, q, `SELECT `+walletColumns+` FROM wallets WHERE id = $1`, id)
}

// GetWalletByIDForUpdate retrieves a wallet and holds a row lock on it.
func (r *WalletRepository) GetWalletByIDForUpdate(ctx context.Context, q repository.DBExecutor, id uuid.UUID) (*domain.Wallet, error) {
	return r.getOne(ctx, q, `SELECT `+walletColumns+` FROM wallets WHERE id = $1 FOR UPDATE`, id)
}

// GetWalletByOwner retrieves a wallet by user and salon scope.
func (r *WalletRepository) GetWalletByOwner(ctx context.Context, q repository.DBExecutor, userID uuid.UUID, salonID *uuid.UUID) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets
              WHERE user_id = $1 AND salon_id IS NOT DISTINCT FROM $2::uuid`
	return r.getOne(ctx, q, query, userID, salonID)
}

// UpdateWalletBalance sets the balance of a specific wallet.
func (r *WalletRepository) UpdateWalletBalance(ctx context.Context, q repository.DBExecutor, walletID uuid.UUID, balance decimal.Decimal) error {
	query := `UPDATE wallets SET balance = $1, updated_at = $2 WHERE id = $3`
	return r.execOne(ctx, q, query, "update wallet balance", walletID, balance, time.Now().UTC(), walletID)
}

// SetWalletActive toggles the active flag of a wallet.
func (r *WalletRepository) SetWalletActive(ctx context.Context, q repository.DBExecutor, walletID uuid.UUID, active bool) error {
	query := `UPDATE wallets SET is_active = $1, updated_at = $2 WHERE id = $3`
	return r.execOne(ctx, q, query, "set wallet active flag", walletID, active, time.Now().UTC(), walletID)
}

func (r *WalletRepository) getOne(ctx context.Context, q repository.DBExecutor, query string, args ...interface{}) (*domain.Wallet, error) {
	var wallet domain.Wallet
	if err := q.GetContext(ctx, &wallet, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, util.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	return &wallet, nil
}

func (r *WalletRepository) execOne(ctx context.Context, q repository.DBExecutor, query, op string, walletID uuid.UUID, args ...interface{}) error {
	result, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s for ID %s: %w", op, walletID, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected after %s for ID %s: %w", op, walletID, err)
	}
	if rowsAffected == 0 {
		return util.ErrNotFound
	}
	return nil
}
