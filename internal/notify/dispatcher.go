package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"salon-wallet/internal/metrics"
)

const deliveryTimeout = 10 * time.Second

// Dispatcher hands notifications to a fixed pool of workers.
// Dispatch never blocks the caller.
type Dispatcher struct {
	notifier Notifier
	logger   *zap.Logger
	jobs     chan Notification
	group    *errgroup.Group

	mu     sync.Mutex
	closed bool
}

// NewDispatcher starts workers goroutines draining a queue of queueSize.
func NewDispatcher(notifier Notifier, logger *zap.Logger, workers, queueSize int) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	d := &Dispatcher{
		notifier: notifier,
		logger:   logger.Named("dispatcher"),
		jobs:     make(chan Notification, queueSize),
		group:    new(errgroup.Group),
	}
	for i := range workers {
		d.group.Go(func() error {
			d.worker(i)
			return nil
		})
	}
	return d
}

func (d *Dispatcher) worker(idx int) {
	for n := range d.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
		err := d.notifier.Notify(ctx, n)
		cancel()
		if err != nil {
			metrics.NotificationsDropped.WithLabelValues("delivery_failed").Inc()
			d.logger.Warn("notification delivery failed",
				zap.Int("worker", idx),
				zap.String("user_id", n.UserID),
				zap.String("type", string(n.Type)),
				zap.Error(err))
		}
	}
}

// Dispatch enqueues n. It reports false when the notification was dropped
// because the queue is full or the dispatcher is closed.
func (d *Dispatcher) Dispatch(n Notification) bool {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		metrics.NotificationsDropped.WithLabelValues("closed").Inc()
		d.logger.Warn("dispatcher closed, dropping notification",
			zap.String("user_id", n.UserID), zap.String("type", string(n.Type)))
		return false
	}

	select {
	case d.jobs <- n:
		return true
	default:
		metrics.NotificationsDropped.WithLabelValues("queue_full").Inc()
		d.logger.Warn("notification queue full, dropping notification",
			zap.String("user_id", n.UserID), zap.String("type", string(n.Type)))
		return false
	}
}

// Close stops accepting notifications and waits for queued ones to drain.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.jobs)
	d.mu.Unlock()

	_ = d.group.Wait()
}
