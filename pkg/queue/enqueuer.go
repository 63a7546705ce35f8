package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EnqueuerRepository stores new tasks.
type EnqueuerRepository interface {
	CreateTask(ctx context.Context, task *Task) error
}

// Enqueuer adds one-time tasks to the queue.
type Enqueuer struct {
	repo        EnqueuerRepository
	queue       string
	maxAttempts int
	now         func() time.Time
}

// EnqueuerOption configures an Enqueuer.
type EnqueuerOption func(*Enqueuer)

// WithDefaultQueue sets the queue used when Enqueue is not given WithQueue.
func WithDefaultQueue(queue string) EnqueuerOption {
	return func(e *Enqueuer) {
		if queue != "" {
			e.queue = queue
		}
	}
}

// WithDefaultMaxAttempts sets the attempt budget of new tasks.
func WithDefaultMaxAttempts(n int) EnqueuerOption {
	return func(e *Enqueuer) {
		if n > 0 {
			e.maxAttempts = n
		}
	}
}

func NewEnqueuer(repo EnqueuerRepository, opts ...EnqueuerOption) (*Enqueuer, error) {
	if repo == nil {
		return nil, ErrRepositoryNil
	}
	e := &Enqueuer{repo: repo, queue: DefaultQueueName, maxAttempts: 3, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// EnqueueOption configures a single task.
type EnqueueOption func(*Task)

func WithQueue(queue string) EnqueueOption {
	return func(t *Task) {
		if queue != "" {
			t.Queue = queue
		}
	}
}

func WithPriority(p Priority) EnqueueOption {
	return func(t *Task) { t.Priority = p }
}

// WithMaxAttempts caps attempts at 1-20.
func WithMaxAttempts(n int) EnqueueOption {
	return func(t *Task) {
		if n > 0 && n <= 20 {
			t.MaxAttempts = n
		}
	}
}

// WithDelay postpones the first attempt.
func WithDelay(d time.Duration) EnqueueOption {
	return func(t *Task) {
		if d > 0 {
			t.RunAt = t.RunAt.Add(d)
		}
	}
}

// WithTaskName overrides the name derived from the payload type.
func WithTaskName(name string) EnqueueOption {
	return func(t *Task) {
		if name != "" {
			t.Name = name
		}
	}
}

// Enqueue stores payload as a new pending task and returns its id.
func (e *Enqueuer) Enqueue(ctx context.Context, payload any, opts ...EnqueueOption) (uuid.UUID, error) {
	if payload == nil {
		return uuid.Nil, ErrPayloadNil
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal payload of type %T: %w", payload, err)
	}

	now := e.now().UTC()
	task := &Task{
		ID:          uuid.New(),
		Queue:       e.queue,
		Name:        TaskName(payload),
		Payload:     body,
		Status:      TaskStatusPending,
		Priority:    PriorityDefault,
		MaxAttempts: e.maxAttempts,
		RunAt:       now,
		CreatedAt:   now,
	}
	for _, opt := range opts {
		opt(task)
	}
	if !task.Priority.Valid() {
		return uuid.Nil, ErrInvalidPriority
	}

	if err := e.repo.CreateTask(ctx, task); err != nil {
		return uuid.Nil, errors.Join(ErrTaskCreateFailed, fmt.Errorf("task %q in queue %q: %w", task.Name, task.Queue, err))
	}
	return task.ID, nil
}
