package queue

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStorage is an in-process queue store for tests and local runs.
// Expired locks become claimable again on the next ClaimTask.
type MemoryStorage struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]*Task
	dead  []DeadTask
	now   func() time.Time
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{tasks: make(map[uuid.UUID]*Task), now: time.Now}
}

func (ms *MemoryStorage) CreateTask(_ context.Context, task *Task) error {
	if task == nil {
		return ErrPayloadNil
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if _, ok := ms.tasks[task.ID]; ok {
		return fmt.Errorf("task %s already exists", task.ID)
	}
	c := *task
	ms.tasks[task.ID] = &c
	return nil
}

func (ms *MemoryStorage) claimable(t *Task, queues []string, now time.Time) bool {
	if !slices.Contains(queues, t.Queue) {
		return false
	}
	switch t.Status {
	case TaskStatusPending:
		return !t.RunAt.After(now)
	case TaskStatusProcessing:
		return t.LockedUntil != nil && t.LockedUntil.Before(now)
	}
	return false
}

// ClaimTask picks the highest priority due task, oldest RunAt first.
func (ms *MemoryStorage) ClaimTask(_ context.Context, workerID uuid.UUID, queues []string, lockFor time.Duration) (*Task, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := ms.now()
	var best *Task
	for _, t := range ms.tasks {
		if !ms.claimable(t, queues, now) {
			continue
		}
		if best == nil || t.Priority > best.Priority ||
			(t.Priority == best.Priority && t.RunAt.Before(best.RunAt)) {
			best = t
		}
	}
	if best == nil {
		return nil, ErrNoTaskToClaim
	}

	until := now.Add(lockFor)
	best.Status = TaskStatusProcessing
	best.LockedUntil = &until
	best.LockedBy = &workerID
	best.Attempts++
	c := *best
	return &c, nil
}

func (ms *MemoryStorage) processing(id uuid.UUID) (*Task, error) {
	t, ok := ms.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %s: %w", id, ErrTaskNotFound)
	}
	if t.Status != TaskStatusProcessing {
		return nil, fmt.Errorf("task %s: %w", id, ErrTaskNotClaimed)
	}
	return t, nil
}

func (ms *MemoryStorage) CompleteTask(_ context.Context, id uuid.UUID) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	t, err := ms.processing(id)
	if err != nil {
		return err
	}
	now := ms.now()
	t.Status = TaskStatusCompleted
	t.CompletedAt = &now
	t.LockedUntil, t.LockedBy = nil, nil
	return nil
}

func (ms *MemoryStorage) FailTask(_ context.Context, id uuid.UUID, errMsg string, retryAt time.Time) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	t, err := ms.processing(id)
	if err != nil {
		return err
	}
	t.Status = TaskStatusPending
	t.LastError = errMsg
	t.RunAt = retryAt
	t.LockedUntil, t.LockedBy = nil, nil
	return nil
}

func (ms *MemoryStorage) MoveToDLQ(_ context.Context, id uuid.UUID, errMsg string) (*DeadTask, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	t, ok := ms.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %s: %w", id, ErrTaskNotFound)
	}
	dead := DeadTask{
		ID:       uuid.New(),
		TaskID:   t.ID,
		Queue:    t.Queue,
		Name:     t.Name,
		Payload:  t.Payload,
		Attempts: t.Attempts,
		Error:    errMsg,
		FailedAt: ms.now(),
	}
	ms.dead = append(ms.dead, dead)
	delete(ms.tasks, id)
	return &dead, nil
}

// Task returns a copy of a queued task.
func (ms *MemoryStorage) Task(id uuid.UUID) (Task, bool) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	t, ok := ms.tasks[id]
	if !ok {
		return Task{}, false
	}
	return *t, true
}

// DeadTasks returns the dead letter entries in insertion order.
func (ms *MemoryStorage) DeadTasks() []DeadTask {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return slices.Clone(ms.dead)
}
