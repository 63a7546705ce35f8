package billing

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Service is the facade used by transport layers.
type Service struct {
	processor *Processor
	sessions  *Sessions
	store     Store
	now       func() time.Time
}

func NewService(processor *Processor, sessions *Sessions, store Store) *Service {
	if processor == nil || sessions == nil || store == nil {
		panic("billing: Service dependencies are required")
	}
	return &Service{processor: processor, sessions: sessions, store: store, now: time.Now}
}

// HandleWebhook processes a raw provider delivery.
func (s *Service) HandleWebhook(ctx context.Context, body []byte, signature string) (Result, error) {
	return s.processor.Handle(ctx, body, signature)
}

// Reapply processes a deferred event from the retry queue.
func (s *Service) Reapply(ctx context.Context, task ApplyEventTask) error {
	return s.processor.Reapply(ctx, task)
}

func (s *Service) BuildCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSessionDescriptor, error) {
	return s.sessions.BuildCheckout(ctx, req)
}

func (s *Service) BuildPortal(ctx context.Context, userID string) (string, error) {
	return s.sessions.BuildPortal(ctx, userID)
}

// GetSubscription returns the user's row, or a free default when none is stored yet.
func (s *Service) GetSubscription(ctx context.Context, userID string) (*Subscription, error) {
	if userID == "" {
		return nil, errors.Join(ErrValidation, ErrMissingUserID)
	}
	sub, err := s.store.GetByUserID(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return NewFreeSubscription(userID, s.now().UTC()), nil
	}
	return sub, err
}

// EnsureSubscription creates the free row for a new account. Existing rows
// are returned untouched.
func (s *Service) EnsureSubscription(ctx context.Context, userID string) (*Subscription, error) {
	if userID == "" {
		return nil, errors.Join(ErrValidation, ErrMissingUserID)
	}
	sub, err := s.store.GetByUserID(ctx, userID)
	if err == nil {
		return sub, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("load subscription: %w", err)
	}
	sub = NewFreeSubscription(userID, s.now().UTC())
	if err := s.store.UpsertByUserID(ctx, sub); err != nil {
		return nil, fmt.Errorf("create subscription: %w", err)
	}
	return sub, nil
}
