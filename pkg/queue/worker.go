package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// WorkerRepository is the storage side of a Worker.
type WorkerRepository interface {
	// ClaimTask locks the next due task of queues for lockFor and counts
	// the attempt. It returns ErrNoTaskToClaim when nothing is due.
	ClaimTask(ctx context.Context, workerID uuid.UUID, queues []string, lockFor time.Duration) (*Task, error)
	CompleteTask(ctx context.Context, taskID uuid.UUID) error
	// FailTask records errMsg and makes the task claimable again at retryAt.
	FailTask(ctx context.Context, taskID uuid.UUID, errMsg string, retryAt time.Time) error
	// MoveToDLQ removes the task from the queue into the dead letter store.
	MoveToDLQ(ctx context.Context, taskID uuid.UUID, errMsg string) (*DeadTask, error)
}

// DeadLetterFunc is called after a task was moved to the dead letter store.
type DeadLetterFunc func(ctx context.Context, task DeadTask)

// Worker claims due tasks and dispatches them to registered handlers with
// bounded concurrency.
type Worker struct {
	repo     WorkerRepository
	handlers map[string]Handler
	queues   []string
	workerID uuid.UUID
	sem      chan struct{}

	pullInterval time.Duration
	lockTimeout  time.Duration
	onDead       DeadLetterFunc
	log          *slog.Logger
	now          func() time.Time

	mu     sync.Mutex
	wg     sync.WaitGroup
	cancel context.CancelFunc
	done   chan struct{}
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

// WithQueues sets the queues the worker claims from.
func WithQueues(queues ...string) WorkerOption {
	return func(w *Worker) {
		if len(queues) > 0 {
			w.queues = queues
		}
	}
}

func WithPullInterval(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.pullInterval = d
		}
	}
}

// WithLockTimeout sets how long a claim is held. It also bounds handler runtime.
func WithLockTimeout(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.lockTimeout = d
		}
	}
}

func WithMaxConcurrentTasks(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.sem = make(chan struct{}, n)
		}
	}
}

func WithDeadLetterHook(fn DeadLetterFunc) WorkerOption {
	return func(w *Worker) { w.onDead = fn }
}

func WithWorkerLogger(l *slog.Logger) WorkerOption {
	return func(w *Worker) {
		if l != nil {
			w.log = l
		}
	}
}

func NewWorker(repo WorkerRepository, opts ...WorkerOption) (*Worker, error) {
	if repo == nil {
		return nil, ErrRepositoryNil
	}
	w := &Worker{
		repo:         repo,
		handlers:     make(map[string]Handler),
		queues:       []string{DefaultQueueName},
		workerID:     uuid.New(),
		sem:          make(chan struct{}, 1),
		pullInterval: 5 * time.Second,
		lockTimeout:  5 * time.Minute,
		log:          slog.Default(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// RegisterHandlers adds handlers, replacing any with the same name.
func (w *Worker) RegisterHandlers(handlers ...Handler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, h := range handlers {
		if h != nil {
			w.handlers[h.Name()] = h
		}
	}
}

// Start begins polling in the background.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return ErrWorkerStarted
	}
	if len(w.handlers) == 0 {
		return ErrNoHandlers
	}

	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})
	go w.loop(ctx, w.done)

	w.log.LogAttrs(ctx, slog.LevelInfo, "queue worker started",
		slog.String("worker_id", w.workerID.String()),
		slog.Any("queues", w.queues),
		slog.Int("max_concurrent", cap(w.sem)))
	return nil
}

// Stop cancels polling and waits for in-flight tasks.
func (w *Worker) Stop() error {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel = nil
	w.mu.Unlock()
	if cancel == nil {
		return nil
	}

	cancel()
	<-done
	w.wg.Wait()
	w.log.Info("queue worker stopped", slog.String("worker_id", w.workerID.String()))
	return nil
}

// Run returns a function for errgroup that starts the worker and stops it
// once ctx is done.
func (w *Worker) Run(ctx context.Context) func() error {
	return func() error {
		if err := w.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		return w.Stop()
	}
}

func (w *Worker) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(w.pullInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.fill(ctx)
		}
	}
}

// fill starts one claim attempt per free slot.
func (w *Worker) fill(ctx context.Context) {
	for {
		select {
		case w.sem <- struct{}{}:
		default:
			return
		}
		if ctx.Err() != nil {
			<-w.sem
			return
		}

		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			defer func() { <-w.sem }()
			if err := w.pullAndProcess(ctx); err != nil && !errors.Is(err, ErrHandlerNotFound) {
				w.log.LogAttrs(ctx, slog.LevelError, "failed to process task",
					slog.String("worker_id", w.workerID.String()), slog.String("error", err.Error()))
			}
		}()
	}
}

func (w *Worker) pullAndProcess(ctx context.Context) error {
	task, err := w.repo.ClaimTask(ctx, w.workerID, w.queues, w.lockTimeout)
	if errors.Is(err, ErrNoTaskToClaim) || (err == nil && task == nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("claim task: %w", err)
	}
	return w.process(ctx, task)
}

// process runs the handler with a context detached from worker shutdown so
// in-flight tasks can finish.
func (w *Worker) process(ctx context.Context, task *Task) (err error) {
	ctx = context.WithoutCancel(ctx)
	start := w.now()
	attrs := []slog.Attr{
		slog.String("task_id", task.ID.String()),
		slog.String("task_name", task.Name),
		slog.String("queue", task.Queue),
		slog.Int("attempt", task.Attempts),
	}

	w.mu.Lock()
	h, ok := w.handlers[task.Name]
	w.mu.Unlock()
	if !ok {
		w.log.LogAttrs(ctx, slog.LevelError, "no handler registered for task", attrs...)
		if derr := w.deadLetter(ctx, task, ErrHandlerNotFound.Error()+": "+task.Name); derr != nil {
			return derr
		}
		return ErrHandlerNotFound
	}

	defer func() {
		if r := recover(); r != nil {
			err = w.fail(ctx, task, fmt.Errorf("panic in handler: %v", r), attrs)
		}
	}()

	hctx, cancel := context.WithTimeout(ctx, w.lockTimeout)
	defer cancel()
	if herr := h.Handle(hctx, task.Payload); herr != nil {
		return w.fail(ctx, task, herr, attrs)
	}

	if err := w.repo.CompleteTask(ctx, task.ID); err != nil {
		return fmt.Errorf("complete task %s: %w", task.ID, err)
	}
	w.log.LogAttrs(ctx, slog.LevelInfo, "task completed",
		append(attrs, slog.Duration("duration", w.now().Sub(start)))...)
	return nil
}

func (w *Worker) fail(ctx context.Context, task *Task, cause error, attrs []slog.Attr) error {
	w.log.LogAttrs(ctx, slog.LevelWarn, "task failed",
		append(attrs, slog.Int("max_attempts", task.MaxAttempts), slog.String("error", cause.Error()))...)

	if task.Attempts >= task.MaxAttempts {
		return w.deadLetter(ctx, task, cause.Error())
	}
	if err := w.repo.FailTask(ctx, task.ID, cause.Error(), w.now().Add(retryDelay(task.Attempts))); err != nil {
		return fmt.Errorf("fail task %s: %w", task.ID, err)
	}
	return nil
}

func (w *Worker) deadLetter(ctx context.Context, task *Task, msg string) error {
	dead, err := w.repo.MoveToDLQ(ctx, task.ID, msg)
	if err != nil {
		return fmt.Errorf("move task %s to dead letter queue: %w", task.ID, err)
	}
	w.log.LogAttrs(ctx, slog.LevelError, "task moved to dead letter queue",
		slog.String("task_id", task.ID.String()), slog.String("task_name", task.Name), slog.String("error", msg))
	if w.onDead != nil && dead != nil {
		w.onDead(ctx, *dead)
	}
	return nil
}
