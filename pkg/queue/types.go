package queue

import (
	"time"

	"github.com/google/uuid"
)

// DefaultQueueName is used when no queue is specified.
const DefaultQueueName = "default"

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
)

// Priority orders claimable tasks, higher first. Range 0-100.
type Priority int8

const (
	PriorityLow     Priority = 25
	PriorityDefault Priority = 50
	PriorityHigh    Priority = 75
)

// Valid reports whether p is within 0-100.
func (p Priority) Valid() bool {
	return p >= 0 && p <= 100
}

// Task is a unit of work. Payload is the JSON encoding of a typed value and
// Name identifies the handler that decodes it.
type Task struct {
	ID          uuid.UUID
	Queue       string
	Name        string
	Payload     []byte
	Status      TaskStatus
	Priority    Priority
	Attempts    int
	MaxAttempts int
	RunAt       time.Time
	LockedUntil *time.Time
	LockedBy    *uuid.UUID
	LastError   string
	CreatedAt   time.Time
	CompletedAt *time.Time
}

// DeadTask is a task that exhausted its attempts or had no handler. It is
// kept for inspection and manual requeue.
type DeadTask struct {
	ID       uuid.UUID
	TaskID   uuid.UUID
	Queue    string
	Name     string
	Payload  []byte
	Attempts int
	Error    string
	FailedAt time.Time
}

// retryDelay is the backoff before attempt n+1: 30s, 60s, 90s and so on.
func retryDelay(attempts int) time.Duration {
	return time.Duration(attempts) * 30 * time.Second
}
