// Package payout adapts mobile-money disbursement providers.
package payout

import (
	"context"

	"github.com/shopspring/decimal"
)

// Status is the provider-reported state of a payout.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusSuccessful Status = "SUCCESSFUL"
	StatusFailed     Status = "FAILED"
)

// IsFinal reports whether the provider will not change the status any more.
func (s Status) IsFinal() bool {
	return s == StatusSuccessful || s == StatusFailed
}

// Request asks the provider to send Amount to PhoneNumber.
// ExternalID is our idempotency/correlation id for the payout.
type Request struct {
	PhoneNumber string
	Amount      decimal.Decimal
	Currency    string
	ExternalID  string
	Message     string
}

// Receipt is returned once the provider accepted a payout for processing.
type Receipt struct {
	ReferenceID string
}

// Result is a status-check response.
type Result struct {
	Status                Status
	Reason                string
	ProviderTransactionID string
}

// Gateway is the payout provider contract consumed by the withdrawal flow.
// RequestPayout and CheckPayoutStatus failures wrap util.ErrGateway.
type Gateway interface {
	Name() string
	RequestPayout(ctx context.Context, req Request) (*Receipt, error)
	CheckPayoutStatus(ctx context.Context, referenceID string) (*Result, error)
	ValidateNumber(phoneNumber string) bool
	FormatNumber(phoneNumber string) string
}
