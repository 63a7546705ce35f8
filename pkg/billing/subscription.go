package billing

import "time"

// Usage counts resources consumed within the current billing period.
type Usage struct {
	MessagesCount int64 `json:"messages_count"`
	ChatbotsCount int64 `json:"chatbots_count"`
}

// BillingPeriod is the [Start, End) window of a paid plan.
type BillingPeriod struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Subscription is the per-user billing record.
type Subscription struct {
	UserID                 string         `json:"user_id"`
	Plan                   Plan           `json:"plan"`
	Usage                  Usage          `json:"usage"`
	BillingPeriod          *BillingPeriod `json:"billing_period,omitempty"`
	ProviderCustomerID     string         `json:"provider_customer_id,omitempty"`
	ProviderSubscriptionID string         `json:"provider_subscription_id,omitempty"`
	LastEventAt            time.Time      `json:"last_event_at,omitzero"`
	CreatedAt              time.Time      `json:"created_at"`
	UpdatedAt              time.Time      `json:"updated_at"`
}

// NewFreeSubscription returns the default row for a user.
func NewFreeSubscription(userID string, now time.Time) *Subscription {
	return &Subscription{
		UserID:    userID,
		Plan:      PlanFree,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsActive reports whether a remote subscription backs the row.
func (s *Subscription) IsActive() bool {
	return s.Plan.IsPaid() && s.ProviderSubscriptionID != ""
}

// Clone returns a deep copy.
func (s *Subscription) Clone() *Subscription {
	c := *s
	if s.BillingPeriod != nil {
		bp := *s.BillingPeriod
		c.BillingPeriod = &bp
	}
	return &c
}

// setPeriod stores a period, swapping bounds given in reverse order.
func (s *Subscription) setPeriod(start, end time.Time) {
	if end.Before(start) {
		start, end = end, start
	}
	s.BillingPeriod = &BillingPeriod{Start: start.UTC(), End: end.UTC()}
}

func (s *Subscription) periodStart() (time.Time, bool) {
	if s.BillingPeriod == nil {
		return time.Time{}, false
	}
	return s.BillingPeriod.Start, true
}
