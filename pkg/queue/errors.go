package queue

import "errors"

var (
	ErrRepositoryNil    = errors.New("repository cannot be nil")
	ErrPayloadNil       = errors.New("payload cannot be nil")
	ErrInvalidPriority  = errors.New("priority must be between 0 and 100")
	ErrNoTaskToClaim    = errors.New("no task to claim")
	ErrTaskNotFound     = errors.New("task not found")
	ErrTaskNotClaimed   = errors.New("task is not in processing state")
	ErrHandlerNotFound  = errors.New("no handler registered for task")
	ErrNoHandlers       = errors.New("no task handlers registered")
	ErrWorkerStarted    = errors.New("worker already started")
	ErrTaskCreateFailed = errors.New("failed to create task")
)
