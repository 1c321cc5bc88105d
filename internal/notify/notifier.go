// Package notify delivers user-facing notifications about wallet activity.
//
// Delivery is best effort. Nothing in this package reports back into the
// ledger, and a failing backend only produces log lines.
package notify

import (
	"context"
	"time"
)

// Channel is the medium a notification is meant for.
type Channel string

const (
	ChannelInApp Channel = "IN_APP"
)

// Type classifies the event that triggered a notification.
type Type string

const (
	TypeWithdrawalCompleted Type = "WITHDRAWAL_COMPLETED"
	TypeWithdrawalFailed    Type = "WITHDRAWAL_FAILED"
	TypeDeposit             Type = "DEPOSIT"
	TypeCommission          Type = "COMMISSION"
)

// Notification is a single message to one user.
type Notification struct {
	UserID    string         `json:"userId"`
	Channel   Channel        `json:"channel"`
	Type      Type           `json:"type"`
	Title     string         `json:"title"`
	Body      string         `json:"body"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// Notifier delivers a notification to its backend.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}
