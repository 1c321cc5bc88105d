// internal/domain/transaction.go
package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
	"github.com/shopspring/decimal" // For precise monetary calculations
)

// TransactionType defines the type of a ledger entry.
type TransactionType string

const (
	TransactionTypeDeposit     TransactionType = "DEPOSIT"
	TransactionTypeCommission  TransactionType = "COMMISSION"
	TransactionTypeRefund      TransactionType = "REFUND"
	TransactionTypeTransferIn  TransactionType = "TRANSFER_IN"
	TransactionTypeWithdrawal  TransactionType = "WITHDRAWAL"
	TransactionTypePayment     TransactionType = "PAYMENT"
	TransactionTypeTransferOut TransactionType = "TRANSFER_OUT"
	TransactionTypeFee         TransactionType = "FEE"
)

// Direction returns +1 for types that credit a wallet and -1 for types that
// debit it. Unknown types return 0.
func (t TransactionType) Direction() int {
	switch t {
	case TransactionTypeDeposit, TransactionTypeCommission, TransactionTypeRefund, TransactionTypeTransferIn:
		return 1
	case TransactionTypeWithdrawal, TransactionTypePayment, TransactionTypeTransferOut, TransactionTypeFee:
		return -1
	}
	return 0
}

// IsValid reports whether t is a known transaction type.
func (t TransactionType) IsValid() bool {
	return t.Direction() != 0
}

// IsCredit reports whether t increases the wallet balance.
func (t TransactionType) IsCredit() bool {
	return t.Direction() > 0
}

// TransactionStatus defines the status of a ledger entry.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "PENDING"
	TransactionStatusCompleted TransactionStatus = "COMPLETED"
	TransactionStatusFailed    TransactionStatus = "FAILED"
	TransactionStatusCancelled TransactionStatus = "CANCELLED"
)

// IsValid reports whether s is a known status.
func (s TransactionStatus) IsValid() bool {
	switch s {
	case TransactionStatusPending, TransactionStatusCompleted, TransactionStatusFailed, TransactionStatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further status transition is allowed from s.
func (s TransactionStatus) IsTerminal() bool {
	return s == TransactionStatusCompleted || s == TransactionStatusFailed || s == TransactionStatusCancelled
}

// Metadata keys written by the withdrawal flow.
const (
	MetaExternalID            = "externalId"
	MetaPhoneNumber           = "phoneNumber"
	MetaProvider              = "provider"
	MetaProviderTransactionID = "providerTransactionId"
	MetaCompletedAt           = "completedAt"
	MetaFailedAt              = "failedAt"
	MetaFailureReason         = "failureReason"
	MetaWithdrawalID          = "withdrawalTransactionId"
	MetaCommissionRef         = "commissionId"
)

// Transaction is an immutable ledger entry. Only Status, Metadata and
// UpdatedAt change after creation.
type Transaction struct {
	ID            uuid.UUID         `db:"id" json:"id"`
	WalletID      uuid.UUID         `db:"wallet_id" json:"wallet_id"`
	Type          TransactionType   `db:"type" json:"type"`
	Amount        decimal.Decimal   `db:"amount" json:"amount"`
	BalanceBefore decimal.Decimal   `db:"balance_before" json:"balance_before"`
	BalanceAfter  decimal.Decimal   `db:"balance_after" json:"balance_after"`
	Status        TransactionStatus `db:"status" json:"status"`
	ReferenceID   *string           `db:"reference_id" json:"reference_id,omitempty"`
	Description   *string           `db:"description" json:"description,omitempty"`
	Metadata      types.JSONText    `db:"metadata" json:"metadata"`
	CreatedAt     time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time         `db:"updated_at" json:"updated_at"`
}

// SignedAmount returns amount with the sign of txType's direction.
func SignedAmount(txType TransactionType, amount decimal.Decimal) decimal.Decimal {
	if txType.Direction() < 0 {
		return amount.Neg()
	}
	return amount
}

// NewTransaction creates a ledger entry moving balanceBefore by amount in the
// direction of txType.
func NewTransaction(
	walletID uuid.UUID,
	txType TransactionType,
	amount decimal.Decimal,
	balanceBefore decimal.Decimal,
	status TransactionStatus,
	referenceID *string,
	description *string,
	metadata types.JSONText,
) *Transaction {
	now := time.Now().UTC()
	if len(metadata) == 0 {
		metadata = types.JSONText("{}")
	}
	return &Transaction{
		ID:            uuid.New(),
		WalletID:      walletID,
		Type:          txType,
		Amount:        amount,
		BalanceBefore: balanceBefore,
		BalanceAfter:  balanceBefore.Add(SignedAmount(txType, amount)),
		Status:        status,
		ReferenceID:   referenceID,
		Description:   description,
		Metadata:      metadata,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// NewMetadata encodes m as a JSON object. A nil map encodes as {}.
func NewMetadata(m map[string]any) (types.JSONText, error) {
	if m == nil {
		return types.JSONText("{}"), nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	return types.JSONText(b), nil
}

// MetadataMap decodes the metadata object. Malformed metadata yields an empty map.
func (t *Transaction) MetadataMap() map[string]any {
	m := map[string]any{}
	if len(t.Metadata) == 0 {
		return m
	}
	if err := json.Unmarshal(t.Metadata, &m); err != nil || m == nil {
		return map[string]any{}
	}
	return m
}

// MetadataString returns the metadata value for key when it is a string.
func (t *Transaction) MetadataString(key string) string {
	s, _ := t.MetadataMap()[key].(string)
	return s
}

// MergeMetadata adds or overwrites the keys in patch.
func (t *Transaction) MergeMetadata(patch map[string]any) error {
	m := t.MetadataMap()
	for k, v := range patch {
		m[k] = v
	}
	encoded, err := NewMetadata(m)
	if err != nil {
		return err
	}
	t.Metadata = encoded
	return nil
}
