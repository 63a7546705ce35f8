package billingsvc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dmitrymomot/billing/pkg/billing"
	"github.com/dmitrymomot/billing/pkg/cache"
	"github.com/dmitrymomot/billing/pkg/email"
	"github.com/dmitrymomot/billing/pkg/logger"
	"github.com/dmitrymomot/billing/pkg/notifications"
	"github.com/dmitrymomot/billing/pkg/queue"
)

// Notifier turns billing notices into user notifications. With a queue the
// delivery happens in the worker; without one it happens inline.
type Notifier struct {
	inbox     *notifications.Manager
	queue     Enqueuer
	queueName string
	dashboard string
	log       *slog.Logger
}

// NotifierOption configures a Notifier.
type NotifierOption func(*Notifier)

// WithNoticeQueue delivers notices asynchronously through q.
func WithNoticeQueue(q Enqueuer, queueName string) NotifierOption {
	return func(n *Notifier) {
		n.queue = q
		n.queueName = queueName
	}
}

func WithDashboardURL(url string) NotifierOption {
	return func(n *Notifier) { n.dashboard = strings.TrimRight(url, "/") }
}

func WithNotifierLogger(l *slog.Logger) NotifierOption {
	return func(n *Notifier) {
		if l != nil {
			n.log = l
		}
	}
}

// NewNotifier panics if inbox is nil.
func NewNotifier(inbox *notifications.Manager, opts ...NotifierOption) *Notifier {
	if inbox == nil {
		panic("billingsvc: notifications Manager is required")
	}
	n := &Notifier{inbox: inbox, log: slog.Default()}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

func (n *Notifier) Notify(ctx context.Context, notice billing.Notice) error {
	if n.queue == nil {
		return n.Deliver(ctx, notice)
	}
	id, err := n.queue.Enqueue(ctx, billing.NoticeTask{Notice: notice}, queue.WithQueue(n.queueName))
	if err != nil {
		return fmt.Errorf("enqueue notice: %w", err)
	}
	n.log.LogAttrs(ctx, slog.LevelDebug, "billing notice queued",
		logger.EventID(notice.EventID), logger.UserID(notice.UserID), logger.TaskID(id.String()))
	return nil
}

// Deliver stores and sends notice now. Redelivering the same notice is a
// no-op once it went out.
func (n *Notifier) Deliver(ctx context.Context, notice billing.Notice) error {
	return n.inbox.Send(ctx, NoticeNotification(notice, n.dashboard))
}

// Handler is the queue handler for NoticeTask payloads. A user without an
// e-mail address is not retried; the notification stays in the inbox.
func (n *Notifier) Handler() queue.Handler {
	return queue.NewTaskHandler(func(ctx context.Context, task billing.NoticeTask) error {
		err := n.Deliver(ctx, task.Notice)
		if errors.Is(err, email.ErrNoRecipient) {
			n.log.LogAttrs(ctx, slog.LevelWarn, "billing notice stored without e-mail delivery",
				logger.EventID(task.Notice.EventID), logger.UserID(task.Notice.UserID), logger.Error(err))
			return nil
		}
		return err
	})
}

var _ billing.Notifier = (*Notifier)(nil)

// NoticeNotification renders a notice as a notification. The ID is derived
// from the event and the notice kind, so retries collapse into one row.
func NoticeNotification(notice billing.Notice, dashboardURL string) notifications.Notification {
	n := notifications.Notification{
		ID:        notice.EventID + ":" + string(notice.Kind),
		UserID:    notice.UserID,
		Kind:      string(notice.Kind),
		CreatedAt: notice.OccurredAt,
		Data:      map[string]string{"plan": string(notice.Plan), "event_id": notice.EventID},
	}
	if notice.EventID == "" {
		n.ID = ""
	}
	plan := planTitle(notice.Plan)
	billingURL := ""
	if dashboardURL != "" {
		billingURL = dashboardURL + "/billing"
	}

	switch notice.Kind {
	case billing.NoticeSubscriptionConfirmed:
		n.Type = notifications.TypeSuccess
		n.Title = fmt.Sprintf("Your %s plan is active", plan)
		n.Message = fmt.Sprintf("Thanks for subscribing. The limits of the %s plan apply from now on.", plan)
		n.ActionURL = dashboardURL
		n.Data["action_label"] = "Open dashboard"
	case billing.NoticeSubscriptionCanceled:
		n.Type = notifications.TypeWarning
		n.Title = "Your subscription was canceled"
		n.Message = "Your account is back on the free plan. You can subscribe again at any time."
		n.ActionURL = billingURL
		n.Data["action_label"] = "View plans"
	case billing.NoticeSubscriptionPastDue:
		n.Type = notifications.TypeWarning
		n.Title = "Your subscription is past due"
		n.Message = fmt.Sprintf("We could not renew your %s plan. Update your payment method to keep it.", plan)
		n.ActionURL = billingURL
		n.Data["action_label"] = "Update payment method"
	case billing.NoticePaymentFailed:
		n.Type = notifications.TypeError
		n.Title = "Payment failed"
		n.Message = "Your latest payment did not go through. Please check your payment details."
		n.ActionURL = billingURL
		n.Data["action_label"] = "Update payment method"
	default:
		n.Type = notifications.TypeInfo
		n.Title = "Billing update"
		n.Message = "There is an update about your subscription."
	}
	return n
}

func planTitle(p billing.Plan) string {
	if p == "" {
		return "Free"
	}
	s := string(p)
	return strings.ToUpper(s[:1]) + s[1:]
}

// CustomerEmailSource looks up the address stored on a provider customer.
type CustomerEmailSource interface {
	CustomerEmail(ctx context.Context, customerID string) (string, error)
}

// NewRecipientLookup resolves a user's address through their provider
// customer. Users without a customer have no address.
func NewRecipientLookup(store billing.Store, source CustomerEmailSource) email.RecipientLookup {
	return func(ctx context.Context, userID string) (string, error) {
		sub, err := store.GetByUserID(ctx, userID)
		if errors.Is(err, billing.ErrNotFound) {
			return "", nil
		}
		if err != nil {
			return "", fmt.Errorf("load subscription: %w", err)
		}
		if sub.ProviderCustomerID == "" {
			return "", nil
		}
		return source.CustomerEmail(ctx, sub.ProviderCustomerID)
	}
}

// CachedEmailSource memoizes customer addresses, so retried and repeated
// notices do not query the provider every time. Empty addresses are not cached.
type CachedEmailSource struct {
	source CustomerEmailSource
	cache  *cache.LRU[string, string]
}

// NewCachedEmailSource keeps up to size addresses for ttl.
func NewCachedEmailSource(source CustomerEmailSource, size int, ttl time.Duration) *CachedEmailSource {
	return &CachedEmailSource{source: source, cache: cache.New[string, string](max(size, 1), ttl)}
}

func (c *CachedEmailSource) CustomerEmail(ctx context.Context, customerID string) (string, error) {
	if addr, ok := c.cache.Get(customerID); ok {
		return addr, nil
	}
	addr, err := c.source.CustomerEmail(ctx, customerID)
	if err != nil {
		return "", err
	}
	if addr != "" {
		c.cache.Put(customerID, addr)
	}
	return addr, nil
}
