// internal/repository/postgres/transaction_pg.go
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"salon-wallet/internal/domain"
	"salon-wallet/internal/repository"
	"salon-wallet/internal/util"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
)

const transactionColumns = `id, wallet_id, type, amount, balance_before, balance_after, status,
	reference_id, description, metadata, created_at, updated_at`

// TransactionRepository implements repository.TransactionRepository for PostgreSQL.
type TransactionRepository struct{}

// NewTransactionRepository creates a new TransactionRepository.
func NewTransactionRepository() repository.TransactionRepository {
	return &TransactionRepository{}
}

// CreateTransaction inserts a new ledger entry.
func (r *TransactionRepository) CreateTransaction(ctx context.Context, q repository.DBExecutor, transaction *domain.Transaction) error {
	query := `INSERT INTO wallet_transactions (` + transactionColumns + `)
              VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := q.ExecContext(ctx, query,
		transaction.ID,
		transaction.WalletID,
		transaction.Type,
		transaction.Amount,
		transaction.BalanceBefore,
		transaction.BalanceAfter,
		transaction.Status,
		transaction.ReferenceID,
		transaction.Description,
		transaction.Metadata,
		transaction.CreatedAt,
		transaction.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

// GetTransactionByID retrieves a ledger entry by its ID.
func (r *TransactionRepository) GetTransactionByID(ctx context.Context, q repository.DBExecutor, id uuid.UUID) (*domain.Transaction, error) {
	return r.getOne(ctx, q, `SELECT `+transactionColumns+` FROM wallet_transactions WHERE id = $1`, id)
}

// GetTransactionByIDForUpdate retrieves a ledger entry and holds a row lock on it.
func (r *TransactionRepository) GetTransactionByIDForUpdate(ctx context.Context, q repository.DBExecutor, id uuid.UUID) (*domain.Transaction, error) {
	return r.getOne(ctx, q, `SELECT `+transactionColumns+` FROM wallet_transactions WHERE id = $1 FOR UPDATE`, id)
}

// ListTransactions retrieves a paginated, filtered list of ledger entries for a wallet.
// It performs two queries: one for the data and one for the total count.
func (r *TransactionRepository) ListTransactions(ctx context.Context, q repository.DBExecutor, filter repository.TransactionFilter) ([]domain.Transaction, int64, error) {
	conditions := []string{"wallet_id = $1"}
	args := []interface{}{filter.WalletID}
	if filter.Type != nil {
		args = append(args, *filter.Type)
		conditions = append(conditions, fmt.Sprintf("type = $%d", len(args)))
	}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	where := strings.Join(conditions, " AND ")

	transactions := []domain.Transaction{}
	query := fmt.Sprintf(`SELECT %s FROM wallet_transactions WHERE %s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d OFFSET $%d`, transactionColumns, where, len(args)+1, len(args)+2)
	pageArgs := append(append([]interface{}{}, args...), filter.Limit, filter.Offset)
	if err := q.SelectContext(ctx, &transactions, query, pageArgs...); err != nil {
		return nil, 0, fmt.Errorf("failed to fetch transactions for wallet %s: %w", filter.WalletID, err)
	}

	var totalCount int64
	countQuery := `SELECT COUNT(*) FROM wallet_transactions WHERE ` + where
	if err := q.GetContext(ctx, &totalCount, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to get total transaction count for wallet %s: %w", filter.WalletID, err)
	}

	return transactions, totalCount, nil
}

// UpdateTransactionStatus changes the status and metadata of a ledger entry.
func (r *TransactionRepository) UpdateTransactionStatus(ctx context.Context, q repository.DBExecutor, id uuid.UUID, status domain.TransactionStatus, metadata types.JSONText) error {
	query := `UPDATE wallet_transactions SET status = $1, metadata = $2, updated_at = $3 WHERE id = $4`
	result, err := q.ExecContext(ctx, query, status, metadata, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update transaction %s: %w", id, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected after updating transaction %s: %w", id, err)
	}
	if rowsAffected == 0 {
		return util.ErrNotFound
	}
	return nil
}

// FindRefundFor returns the REFUND entry that references withdrawalID.
func (r *TransactionRepository) FindRefundFor(ctx context.Context, q repository.DBExecutor, withdrawalID uuid.UUID) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM wallet_transactions
              WHERE type = $1 AND reference_id = $2`
	return r.getOne(ctx, q, query, domain.TransactionTypeRefund, withdrawalID.String())
}

// ListPendingWithdrawals returns PENDING withdrawals after the cursor, oldest first.
func (r *TransactionRepository) ListPendingWithdrawals(ctx context.Context, q repository.DBExecutor, after repository.PendingCursor, limit int) ([]domain.Transaction, error) {
	transactions := []domain.Transaction{}
	query := `SELECT ` + transactionColumns + ` FROM wallet_transactions
              WHERE type = $1 AND status = $2 AND (created_at, id) > ($3, $4)
              ORDER BY created_at ASC, id ASC
              LIMIT $5`
	err := q.SelectContext(ctx, &transactions, query,
		domain.TransactionTypeWithdrawal, domain.TransactionStatusPending, after.CreatedAt, after.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending withdrawals: %w", err)
	}
	return transactions, nil
}

func (r *TransactionRepository) getOne(ctx context.Context, q repository.DBExecutor, query string, args ...interface{}) (*domain.Transaction, error) {
	var transaction domain.Transaction
	if err := q.GetContext(ctx, &transaction, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, util.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return &transaction, nil
}
