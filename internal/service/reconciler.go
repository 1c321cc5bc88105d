package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"salon-wallet/internal/domain"
	"salon-wallet/internal/lease"
	"salon-wallet/internal/metrics"
	"salon-wallet/internal/notify"
	"salon-wallet/internal/payout"
	"salon-wallet/internal/repository"
	"salon-wallet/internal/util"
)

// ReconcilerConfig bounds the status polling of one withdrawal.
type ReconcilerConfig struct {
	PollInterval time.Duration
	MaxAttempts  int
	ResumeBatch  int
	// CheckTimeout bounds a single status check. Zero leaves it to the gateway.
	CheckTimeout time.Duration
}

// WithdrawalFinalizer is the part of the orchestrator the Reconciler drives.
type WithdrawalFinalizer interface {
	CompleteWithdrawal(ctx context.Context, transactionID uuid.UUID, providerTransactionID string) (*FinalizeResult, error)
	FailWithdrawal(ctx context.Context, transactionID uuid.UUID, reason string) (*FinalizeResult, error)
}

// NotificationDispatcher enqueues a notification without blocking.
type NotificationDispatcher interface {
	Dispatch(n notify.Notification) bool
}

// Reconciler polls the payout provider for PENDING withdrawals and finalizes
// them. Every task is bound to the context given to Start; cancelling it
// stops polling and leaves the entries PENDING for the next Start.
type Reconciler struct {
	finalizer WithdrawalFinalizer
	gateway   payout.Gateway
	store     Store
	locker    lease.Locker
	notifier  NotificationDispatcher
	cfg       ReconcilerConfig
	logger    *zap.Logger

	mu  sync.Mutex
	ctx context.Context
	wg  sync.WaitGroup
}

func NewReconciler(
	finalizer WithdrawalFinalizer,
	gateway payout.Gateway,
	store Store,
	locker lease.Locker,
	notifier NotificationDispatcher,
	cfg ReconcilerConfig,
	logger *zap.Logger,
) *Reconciler {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.ResumeBatch <= 0 {
		cfg.ResumeBatch = 500
	}
	return &Reconciler{
		finalizer: finalizer,
		gateway:   gateway,
		store:     store,
		locker:    locker,
		notifier:  notifier,
		cfg:       cfg,
		logger:    logger.Named("reconciler"),
		ctx:       context.Background(),
	}
}

// Start binds future tasks to ctx and resumes every PENDING withdrawal left
// in the ledger by a previous process.
func (r *Reconciler) Start(ctx context.Context) error {
	r.mu.Lock()
	r.ctx = ctx
	r.mu.Unlock()

	// Keyset paging: entries finalized while resuming drop out of the PENDING
	// set, which would make offsets skip rows.
	var (
		after   repository.PendingCursor
		resumed int
	)
	for {
		page, err := r.store.Transactions.ListPendingWithdrawals(ctx, r.store.Executor, after, r.cfg.ResumeBatch)
		if err != nil {
			return fmt.Errorf("reconciler start: failed to list pending withdrawals: %w", err)
		}
		for _, transaction := range page {
			r.Track(transaction)
		}
		resumed += len(page)
		if len(page) < r.cfg.ResumeBatch {
			break
		}
		last := page[len(page)-1]
		after = repository.PendingCursor{CreatedAt: last.CreatedAt, ID: last.ID}
	}
	if resumed > 0 {
		r.logger.Info("resumed pending withdrawals", zap.Int("count", resumed))
	}
	return nil
}

// Track starts reconciling transaction in the background.
func (r *Reconciler) Track(transaction domain.Transaction) {
	r.mu.Lock()
	ctx := r.ctx
	r.mu.Unlock()

	r.wg.Add(1)
	go r.reconcile(ctx, transaction)
}

// Wait blocks until every task has returned.
func (r *Reconciler) Wait() {
	r.wg.Wait()
}

// leaseTTL covers the whole poll budget, including the time every status
// check may take.
func (r *Reconciler) leaseTTL() time.Duration {
	return (r.cfg.PollInterval+r.cfg.CheckTimeout)*time.Duration(r.cfg.MaxAttempts+1) + time.Minute
}

func (r *Reconciler) checkStatus(ctx context.Context, reference string) (*payout.Result, error) {
	if r.cfg.CheckTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.CheckTimeout)
		defer cancel()
	}
	return r.gateway.CheckPayoutStatus(ctx, reference)
}

func (r *Reconciler) reconcile(ctx context.Context, transaction domain.Transaction) {
	defer r.wg.Done()
	log := r.logger.With(zap.String("transaction_id", transaction.ID.String()))

	if transaction.ReferenceID == nil || *transaction.ReferenceID == "" {
		log.Error("pending withdrawal has no payout reference, failing it")
		r.fail(ctx, log, transaction, "missing payout reference", metrics.OutcomeFailed)
		return
	}
	reference := *transaction.ReferenceID

	release, acquired, err := r.locker.Acquire(ctx, transaction.ID.String(), r.leaseTTL())
	if err != nil {
		// Finalization stays guarded by the PENDING check, so polling
		// without the lease is safe, only wasteful.
		log.Warn("lease unavailable, polling without it", zap.Error(err))
	} else if !acquired {
		log.Debug("withdrawal is reconciled elsewhere")
		return
	} else {
		defer release()
	}

	metrics.PendingReconciliations.Inc()
	defer metrics.PendingReconciliations.Dec()

	timer := time.NewTimer(r.cfg.PollInterval)
	defer timer.Stop()

	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			log.Info("reconciliation interrupted, will resume on next start", zap.Int("attempt", attempt))
			return
		case <-timer.C:
		}
		timer.Reset(r.cfg.PollInterval)

		result, err := r.checkStatus(ctx, reference)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			metrics.PollAttempts.WithLabelValues("error").Inc()
			log.Warn("payout status check failed",
				zap.Int("attempt", attempt),
				zap.String("reference_id", reference),
				zap.Error(err))
			continue
		}
		metrics.PollAttempts.WithLabelValues(string(result.Status)).Inc()

		switch result.Status {
		case payout.StatusSuccessful:
			r.complete(ctx, log, transaction, result.ProviderTransactionID)
			return
		case payout.StatusFailed:
			reason := result.Reason
			if reason == "" {
				reason = "payout rejected by provider"
			}
			r.fail(ctx, log, transaction, reason, metrics.OutcomeFailed)
			return
		}
		log.Debug("payout still pending", zap.Int("attempt", attempt))
	}

	log.Warn("payout status not final after poll budget, failing withdrawal",
		zap.Int("attempts", r.cfg.MaxAttempts))
	r.fail(ctx, log, transaction, util.ErrReconciliationTimeout.Error(), metrics.OutcomeTimedOut)
}

func (r *Reconciler) complete(ctx context.Context, log *zap.Logger, transaction domain.Transaction, providerTransactionID string) {
	result, err := r.finalizer.CompleteWithdrawal(ctx, transaction.ID, providerTransactionID)
	if err != nil {
		log.Error("failed to complete withdrawal", zap.Error(err))
		return
	}
	if !result.Applied {
		return
	}
	metrics.WithdrawalOutcomes.WithLabelValues(metrics.OutcomeCompleted).Inc()
	r.notify(result.Wallet, notify.Notification{
		Channel: notify.ChannelInApp,
		Type:    notify.TypeWithdrawalCompleted,
		Title:   "Withdrawal successful",
		Body:    fmt.Sprintf("Your withdrawal of %s %s has been sent.", transaction.Amount, result.Wallet.Currency),
		Metadata: map[string]any{
			"transactionId":         transaction.ID.String(),
			"amount":                transaction.Amount.String(),
			"providerTransactionId": providerTransactionID,
		},
	})
}

func (r *Reconciler) fail(ctx context.Context, log *zap.Logger, transaction domain.Transaction, reason, outcome string) {
	result, err := r.finalizer.FailWithdrawal(ctx, transaction.ID, reason)
	if err != nil {
		log.Error("failed to fail withdrawal", zap.String("reason", reason), zap.Error(err))
		return
	}
	if !result.Applied {
		return
	}
	// One outcome per withdrawal: timed_out and failed are disjoint.
	metrics.WithdrawalOutcomes.WithLabelValues(outcome).Inc()
	r.notify(result.Wallet, notify.Notification{
		Channel: notify.ChannelInApp,
		Type:    notify.TypeWithdrawalFailed,
		Title:   "Withdrawal failed",
		Body:    fmt.Sprintf("Your withdrawal of %s %s failed and the amount was returned to your wallet.", transaction.Amount, result.Wallet.Currency),
		Metadata: map[string]any{
			"transactionId": transaction.ID.String(),
			"amount":        transaction.Amount.String(),
			"reason":        reason,
		},
	})
}

func (r *Reconciler) notify(wallet *domain.Wallet, n notify.Notification) {
	if wallet == nil || r.notifier == nil {
		return
	}
	n.UserID = wallet.UserID.String()
	r.notifier.Dispatch(n)
}
