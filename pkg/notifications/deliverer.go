package notifications

import (
	"context"
	"errors"
	"fmt"
)

// Deliverer pushes a stored notification to the user through one channel.
type Deliverer interface {
	Deliver(ctx context.Context, n Notification) error
}

// DelivererFunc adapts a function to Deliverer.
type DelivererFunc func(ctx context.Context, n Notification) error

func (f DelivererFunc) Deliver(ctx context.Context, n Notification) error { return f(ctx, n) }

// MultiDeliverer fans a notification out to every channel. All channels are
// attempted; the failures are joined.
type MultiDeliverer struct {
	deliverers []Deliverer
}

func NewMultiDeliverer(deliverers ...Deliverer) *MultiDeliverer {
	return &MultiDeliverer{deliverers: deliverers}
}

func (m *MultiDeliverer) Deliver(ctx context.Context, n Notification) error {
	var errs []error
	for i, d := range m.deliverers {
		if err := d.Deliver(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("deliverer %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// NoOpDeliverer accepts everything. Used when only storage is wanted.
type NoOpDeliverer struct{}

func (NoOpDeliverer) Deliver(context.Context, Notification) error { return nil }
