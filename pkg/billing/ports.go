package billing

import (
	"context"
	"time"
)

// ProviderPaddle tags ledger entries created from Paddle webhooks.
const ProviderPaddle = "paddle"

// LedgerEntry records one claimed provider event.
type LedgerEntry struct {
	EventID    string
	Provider   string
	EventType  EventType
	Payload    []byte
	ReceivedAt time.Time
}

// Ledger is the idempotency gate. RecordEventIfNew must insert-or-detect
// atomically: of any number of concurrent calls for the same (provider,
// event id) exactly one returns true.
type Ledger interface {
	RecordEventIfNew(ctx context.Context, entry LedgerEntry) (bool, error)
	// ForgetEvent removes a claim whose effects could not be applied, so a
	// redelivery is processed again.
	ForgetEvent(ctx context.Context, provider, eventID string) error
}

// Store persists subscriptions. Lookups return an error wrapping ErrNotFound
// when no row matches.
type Store interface {
	GetByUserID(ctx context.Context, userID string) (*Subscription, error)
	GetByProviderSubscriptionID(ctx context.Context, subscriptionID string) (*Subscription, error)
	GetByProviderCustomerID(ctx context.Context, customerID string) (*Subscription, error)
	// UpsertByUserID creates or replaces the row keyed by sub.UserID.
	UpsertByUserID(ctx context.Context, sub *Subscription) error
	// UpdateByProviderSubscriptionID replaces the row currently holding
	// subscriptionID. The new state may clear the id.
	UpdateByProviderSubscriptionID(ctx context.Context, subscriptionID string, sub *Subscription) error
}

// Provider is the payment provider API client.
type Provider interface {
	// CreateCustomer returns ErrCustomerConflict when the email is taken.
	CreateCustomer(ctx context.Context, email string, metadata map[string]string) (string, error)
	// FindCustomerByEmail returns "" when no customer owns email.
	FindCustomerByEmail(ctx context.Context, email string) (string, error)
	CreatePortalSession(ctx context.Context, customerID string, subscriptionIDs ...string) (string, error)
	GetSubscription(ctx context.Context, subscriptionID string) (BillingPeriod, error)
}

// NoticeKind identifies a user notification.
type NoticeKind string

const (
	NoticeSubscriptionConfirmed NoticeKind = "subscription_confirmed"
	NoticeSubscriptionCanceled  NoticeKind = "subscription_canceled"
	NoticeSubscriptionPastDue   NoticeKind = "subscription_past_due"
	NoticePaymentFailed         NoticeKind = "payment_failed"
)

// Notice is emitted after a transition was durably stored.
type Notice struct {
	Kind       NoticeKind `json:"kind"`
	UserID     string     `json:"user_id"`
	Plan       Plan       `json:"plan"`
	EventID    string     `json:"event_id"`
	OccurredAt time.Time  `json:"occurred_at"`
}

// Notifier delivers user notices.
type Notifier interface {
	Notify(ctx context.Context, n Notice) error
}

// Severity ranks operator alerts.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Alert is an operator-facing signal.
type Alert struct {
	Severity  Severity  `json:"severity"`
	Title     string    `json:"title"`
	EventID   string    `json:"event_id,omitempty"`
	EventType EventType `json:"event_type,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	At        time.Time `json:"at"`
}

// Alerter forwards alerts to operators.
type Alerter interface {
	Alert(ctx context.Context, a Alert) error
}

// ApplyEventTask re-applies an event whose claim is held but whose effects
// were not stored.
type ApplyEventTask struct {
	Provider string `json:"provider"`
	EventID  string `json:"event_id"`
	Payload  []byte `json:"payload"`
}

// RetryScheduler durably queues ApplyEventTask values.
type RetryScheduler interface {
	ScheduleApply(ctx context.Context, task ApplyEventTask) error
}

// NoticeTask carries a Notice through the task queue for asynchronous delivery.
type NoticeTask struct {
	Notice Notice `json:"notice"`
}

// EventArchive keeps a copy of every verified delivery the ledger claimed.
type EventArchive interface {
	ArchiveEvent(ctx context.Context, e LedgerEntry) error
}
