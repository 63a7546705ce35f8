package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/billing/pkg/logger"
)

// Manager stores notifications and then delivers them.
type Manager struct {
	storage   Storage
	deliverer Deliverer
	log       *slog.Logger
	now       func() time.Time
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

func WithManagerLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

func WithManagerClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager panics if storage is nil. A nil deliverer stores only.
func NewManager(storage Storage, deliverer Deliverer, opts ...ManagerOption) *Manager {
	if storage == nil {
		panic("notifications: Storage is required")
	}
	if deliverer == nil {
		deliverer = NoOpDeliverer{}
	}
	m := &Manager{
		storage:   storage,
		deliverer: deliverer,
		log:       slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Send stores n and delivers it once. Sending an ID that was already
// delivered is a no-op, so callers may retry a failed Send with the same ID.
// A delivery failure leaves the notification stored and returns an error
// wrapping ErrDeliveryFailed.
func (m *Manager) Send(ctx context.Context, n Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Type == "" {
		n.Type = TypeInfo
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = m.now().UTC()
	}

	stored, created, err := m.storage.Create(ctx, n)
	if err != nil {
		return fmt.Errorf("store notification: %w", err)
	}
	attrs := []slog.Attr{slog.String("notification_id", stored.ID), logger.UserID(stored.UserID), slog.String("kind", stored.Kind)}
	if !created && stored.Delivered() {
		m.log.LogAttrs(ctx, slog.LevelDebug, "notification already delivered", attrs...)
		return nil
	}

	if err := m.deliverer.Deliver(ctx, stored); err != nil {
		m.log.LogAttrs(ctx, slog.LevelWarn, "notification stored but not delivered", append(attrs, logger.Error(err))...)
		return errors.Join(ErrDeliveryFailed, err)
	}
	if err := m.storage.MarkDelivered(ctx, stored.ID, m.now().UTC()); err != nil {
		// Delivered already; a retry would only resend it.
		m.log.LogAttrs(ctx, slog.LevelError, "failed to mark notification delivered", append(attrs, logger.Error(err))...)
	}
	return nil
}

func (m *Manager) List(ctx context.Context, userID string, opts ListOptions) ([]Notification, error) {
	return m.storage.List(ctx, userID, opts)
}

func (m *Manager) MarkRead(ctx context.Context, userID string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	return m.storage.MarkRead(ctx, userID, m.now().UTC(), ids...)
}

func (m *Manager) CountUnread(ctx context.Context, userID string) (int, error) {
	return m.storage.CountUnread(ctx, userID)
}
