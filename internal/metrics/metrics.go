// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LedgerMutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wallet_ledger_mutations_total",
			Help: "Ledger entries appended, by transaction type and status",
		},
		[]string{"type", "status"},
	)

	LedgerRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wallet_ledger_rejections_total",
			Help: "Balance mutations rejected, by reason",
		},
		[]string{"reason"},
	)

	WithdrawalOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wallet_withdrawal_outcomes_total",
			Help: "Finalized withdrawals, by outcome",
		},
		[]string{"outcome"},
	)

	PollAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wallet_payout_poll_attempts_total",
			Help: "Payout status checks, by reported status",
		},
		[]string{"status"},
	)

	PendingReconciliations = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "wallet_reconciliations_in_flight",
			Help: "Withdrawals currently being polled by this replica",
		},
	)

	OrphanedPayouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wallet_orphaned_payouts_total",
			Help: "Payouts accepted by the provider whose funds reservation then failed",
		},
	)

	NotificationsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wallet_notifications_dropped_total",
			Help: "Notifications not delivered, by reason",
		},
		[]string{"reason"},
	)
)

// Outcome labels for WithdrawalOutcomes.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeTimedOut  = "timed_out"
)
