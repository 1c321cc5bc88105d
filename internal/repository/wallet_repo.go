// internal/repository/wallet_repo.go
package repository

import (
	"context"

	"salon-wallet/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// WalletRepository defines the interface for wallet data operations.
type WalletRepository interface {
	// CreateWallet inserts a wallet. It returns util.ErrDuplicateEntry when the
	// owner already has a wallet in the same salon scope.
	CreateWallet(ctx context.Context, q DBExecutor, wallet *domain.Wallet) error
	// GetWalletByID retrieves a wallet by its ID.
	GetWalletByID(ctx context.Context, q DBExecutor, id uuid.UUID) (*domain.Wallet, error)
	// GetWalletByIDForUpdate retrieves a wallet and locks its row until the
	// surrounding transaction ends.
	GetWalletByIDForUpdate(ctx context.Context, q DBExecutor, id uuid.UUID) (*domain.Wallet, error)
	// GetWalletByOwner retrieves the wallet of userID in the given salon scope (nil for none).
	GetWalletByOwner(ctx context.Context, q DBExecutor, userID uuid.UUID, salonID *uuid.UUID) (*domain.Wallet, error)
	// UpdateWalletBalance sets the balance of a wallet.
	UpdateWalletBalance(ctx context.Context, q DBExecutor, walletID uuid.UUID, balance decimal.Decimal) error
	// SetWalletActive toggles the active flag without touching the balance.
	SetWalletActive(ctx context.Context, q DBExecutor, walletID uuid.UUID, active bool) error
}
