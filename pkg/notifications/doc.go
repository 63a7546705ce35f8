// Package notifications stores user-facing notifications and hands them to
// delivery channels.
//
// A Manager persists first and delivers second. Notification IDs are
// idempotency keys: a retried Send with the same ID never inserts a second
// row and never re-delivers once a channel has accepted it.
//
//	manager := notifications.NewManager(notifications.NewMemoryStorage(), deliverer)
//	err := manager.Send(ctx, notifications.Notification{
//	    ID:     "evt_01:subscription_confirmed",
//	    UserID: "user-1",
//	    Title:  "Your subscription is active",
//	})
//
// MemoryStorage serves tests and development; PostgresStorage persists to
// the notifications table created by Migrations.
package notifications
