// internal/util/errors.go
package util

import "errors"

// Common application-specific errors.
var (
	ErrNotFound              = errors.New("resource not found")
	ErrInvalidInput          = errors.New("invalid input provided")
	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrWalletNotFound        = errors.New("wallet not found")
	ErrWalletInactive        = errors.New("wallet is inactive")
	ErrTransactionNotFound   = errors.New("transaction not found")
	ErrDuplicateEntry        = errors.New("duplicate entry")
	ErrGateway               = errors.New("payout gateway error")
	ErrReconciliationTimeout = errors.New("payout status not final after poll budget")
)

// IsError reports whether any error in err's chain matches target.
func IsError(err, target error) bool {
	return errors.Is(err, target)
}
