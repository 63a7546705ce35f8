package notifications

import (
	"context"
	"time"
)

// Storage persists notifications.
type Storage interface {
	// Create stores n unless a notification with the same ID exists. It
	// returns the stored copy and whether it was inserted by this call.
	Create(ctx context.Context, n Notification) (Notification, bool, error)

	// MarkDelivered records that n was handed to its delivery channel.
	MarkDelivered(ctx context.Context, id string, at time.Time) error

	// List returns a user's notifications, newest first.
	List(ctx context.Context, userID string, opts ListOptions) ([]Notification, error)

	// MarkRead marks the given notifications of userID as read. Unknown ids
	// are ignored.
	MarkRead(ctx context.Context, userID string, at time.Time, ids ...string) error

	CountUnread(ctx context.Context, userID string) (int, error)
}

// ListOptions filters List results.
type ListOptions struct {
	Limit      int // 0 means no limit
	OnlyUnread bool
	Kinds      []string
}
