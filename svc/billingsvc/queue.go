package billingsvc

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dmitrymomot/billing/pkg/billing"
	"github.com/dmitrymomot/billing/pkg/logger"
	"github.com/dmitrymomot/billing/pkg/queue"
)

// Enqueuer is the producer side of the task queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, payload any, opts ...queue.EnqueueOption) (uuid.UUID, error)
}

// RetryScheduler defers events whose claim could not be released.
type RetryScheduler struct {
	queue    Enqueuer
	name     string
	log      *slog.Logger
	attempts int
}

// NewRetryScheduler panics if q is nil. maxAttempts <= 0 keeps the queue default.
func NewRetryScheduler(q Enqueuer, queueName string, maxAttempts int, log *slog.Logger) *RetryScheduler {
	if q == nil {
		panic("billingsvc: Enqueuer is required")
	}
	if log == nil {
		log = slog.Default()
	}
	return &RetryScheduler{queue: q, name: queueName, attempts: maxAttempts, log: log}
}

func (r *RetryScheduler) ScheduleApply(ctx context.Context, task billing.ApplyEventTask) error {
	opts := []queue.EnqueueOption{queue.WithQueue(r.name), queue.WithPriority(queue.PriorityHigh)}
	if r.attempts > 0 {
		opts = append(opts, queue.WithMaxAttempts(r.attempts))
	}
	id, err := r.queue.Enqueue(ctx, task, opts...)
	if err != nil {
		return fmt.Errorf("enqueue event retry: %w", err)
	}
	r.log.LogAttrs(ctx, slog.LevelWarn, "billing event deferred to retry queue",
		logger.EventID(task.EventID), logger.Provider(task.Provider), logger.TaskID(id.String()))
	return nil
}

var _ billing.RetryScheduler = (*RetryScheduler)(nil)

// NewReapplyHandler runs deferred events through svc.
func NewReapplyHandler(svc *billing.Service) queue.Handler {
	return queue.NewTaskHandler(func(ctx context.Context, task billing.ApplyEventTask) error {
		return svc.Reapply(ctx, task)
	})
}

// NewDeadLetterHook raises a critical alert for every task that exhausted
// its attempts.
func NewDeadLetterHook(alerter billing.Alerter, log *slog.Logger) queue.DeadLetterFunc {
	if log == nil {
		log = slog.Default()
	}
	return func(ctx context.Context, task queue.DeadTask) {
		if alerter == nil {
			return
		}
		err := alerter.Alert(ctx, billing.Alert{
			Severity: billing.SeverityCritical,
			Title:    "background task moved to dead letter queue",
			Detail:   fmt.Sprintf("%s (%s) after %d attempts: %s", task.Name, task.TaskID, task.Attempts, task.Error),
			At:       task.FailedAt.UTC(),
		})
		if err != nil {
			log.LogAttrs(ctx, slog.LevelError, "failed to alert on dead task",
				logger.TaskID(task.TaskID.String()), logger.Error(err))
		}
	}
}
