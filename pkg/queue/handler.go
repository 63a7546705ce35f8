package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Handler processes the payload of tasks named Name().
type Handler interface {
	Name() string
	Handle(ctx context.Context, payload json.RawMessage) error
}

// TaskHandlerFunc handles a decoded payload of type T.
type TaskHandlerFunc[T any] func(ctx context.Context, payload T) error

// NewTaskHandler returns a Handler for tasks enqueued with a T payload. The
// task name is T's qualified type name, matching what Enqueue derives.
func NewTaskHandler[T any](fn TaskHandlerFunc[T]) Handler {
	var zero T
	return typedHandler[T]{name: TaskName(zero), fn: fn}
}

type typedHandler[T any] struct {
	name string
	fn   TaskHandlerFunc[T]
}

func (h typedHandler[T]) Name() string { return h.name }

func (h typedHandler[T]) Handle(ctx context.Context, payload json.RawMessage) error {
	var v T
	if err := json.Unmarshal(payload, &v); err != nil {
		return fmt.Errorf("decode %s payload: %w", h.name, err)
	}
	return h.fn(ctx, v)
}

// TaskName returns the default task name for payload v, e.g. "billing.ApplyEventTask".
func TaskName(v any) string {
	return strings.TrimLeft(fmt.Sprintf("%T", v), "*")
}
