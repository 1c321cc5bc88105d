// internal/repository/transaction_repo.go
package repository

import (
	"context"
	"time"

	"salon-wallet/internal/domain"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
)

// TransactionFilter narrows a ledger history query.
type TransactionFilter struct {
	WalletID uuid.UUID
	Type     *domain.TransactionType
	Status   *domain.TransactionStatus
	Limit    int
	Offset   int
}

// PendingCursor is the (created_at, id) position after which
// ListPendingWithdrawals continues. The zero value starts from the oldest entry.
type PendingCursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

// TransactionRepository defines the interface for ledger entry operations.
type TransactionRepository interface {
	// CreateTransaction appends a ledger entry.
	CreateTransaction(ctx context.Context, q DBExecutor, transaction *domain.Transaction) error
	// GetTransactionByID retrieves a ledger entry by its ID.
	GetTransactionByID(ctx context.Context, q DBExecutor, id uuid.UUID) (*domain.Transaction, error)
	// GetTransactionByIDForUpdate retrieves a ledger entry and locks its row.
	GetTransactionByIDForUpdate(ctx context.Context, q DBExecutor, id uuid.UUID) (*domain.Transaction, error)
	// ListTransactions returns a page of entries, newest first, and the total match count.
	ListTransactions(ctx context.Context, q DBExecutor, filter TransactionFilter) ([]domain.Transaction, int64, error)
	// UpdateTransactionStatus changes status and metadata. Monetary columns are never written.
	UpdateTransactionStatus(ctx context.Context, q DBExecutor, id uuid.UUID, status domain.TransactionStatus, metadata types.JSONText) error
	// FindRefundFor returns the REFUND entry compensating withdrawalID.
	FindRefundFor(ctx context.Context, q DBExecutor, withdrawalID uuid.UUID) (*domain.Transaction, error)
	// ListPendingWithdrawals returns up to limit PENDING WITHDRAWAL entries
	// positioned after the cursor, ordered by (created_at, id).
	ListPendingWithdrawals(ctx context.Context, q DBExecutor, after PendingCursor, limit int) ([]domain.Transaction, error)
}
