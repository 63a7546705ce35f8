package billing

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// EventType is the provider's event name.
type EventType string

const (
	EventTransactionCompleted     EventType = "transaction.completed"
	EventTransactionPaymentFailed EventType = "transaction.payment_failed"
	EventSubscriptionCreated      EventType = "subscription.created"
	EventSubscriptionUpdated      EventType = "subscription.updated"
	EventSubscriptionCanceled     EventType = "subscription.canceled"
	EventSubscriptionPastDue      EventType = "subscription.past_due"
)

// Name implements statemachine.Event.
func (t EventType) Name() string { return string(t) }

// Known reports whether the dispatcher handles t.
func (t EventType) Known() bool {
	switch t {
	case EventTransactionCompleted, EventTransactionPaymentFailed,
		EventSubscriptionCreated, EventSubscriptionUpdated,
		EventSubscriptionCanceled, EventSubscriptionPastDue:
		return true
	}
	return false
}

// Event is a provider notification normalized from its envelope.
type Event struct {
	ID         string
	Type       EventType
	OccurredAt time.Time

	UserID         string
	Plan           string // as sent in custom data, may be empty
	PriceRef       string
	SubscriptionID string
	CustomerID     string
	PeriodStart    *time.Time
	PeriodEnd      *time.Time

	// Raw is the exact body the event was parsed from.
	Raw []byte
}

type envelope struct {
	EventID    string          `json:"event_id"`
	EventType  string          `json:"event_type"`
	OccurredAt string          `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

type period struct {
	StartsAt string `json:"starts_at"`
	EndsAt   string `json:"ends_at"`
}

type eventData struct {
	ID             string         `json:"id"`
	CustomerID     string         `json:"customer_id"`
	SubscriptionID string         `json:"subscription_id"`
	CustomData     map[string]any `json:"custom_data"`
	Items          []struct {
		PriceID string `json:"price_id"`
		Price   *struct {
			ID string `json:"id"`
		} `json:"price"`
	} `json:"items"`
	CurrentBillingPeriod *period `json:"current_billing_period"`
	BillingPeriod        *period `json:"billing_period"`
}

// ParseEvent decodes a webhook body. Errors are classified as ErrValidation.
func ParseEvent(body []byte) (*Event, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, errors.Join(ErrValidation, ErrMalformedEvent, err)
	}
	if env.EventID == "" || env.EventType == "" {
		return nil, errors.Join(ErrValidation, ErrMalformedEvent, errors.New("event_id and event_type are required"))
	}

	ev := &Event{ID: env.EventID, Type: EventType(env.EventType), Raw: body}
	if env.OccurredAt != "" {
		t, err := time.Parse(time.RFC3339Nano, env.OccurredAt)
		if err != nil {
			return nil, errors.Join(ErrValidation, ErrMalformedEvent, fmt.Errorf("occurred_at: %w", err))
		}
		ev.OccurredAt = t.UTC()
	}

	if len(env.Data) == 0 || string(env.Data) == "null" {
		return ev, nil
	}
	var data eventData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, errors.Join(ErrValidation, ErrMalformedEvent, fmt.Errorf("data: %w", err))
	}

	ev.CustomerID = data.CustomerID
	ev.UserID = customString(data.CustomData, "userId", "user_id")
	ev.Plan = customString(data.CustomData, "plan")
	if len(data.Items) > 0 {
		ev.PriceRef = data.Items[0].PriceID
		if data.Items[0].Price != nil && data.Items[0].Price.ID != "" {
			ev.PriceRef = data.Items[0].Price.ID
		}
	}

	// Subscription events carry their own id; transactions reference one.
	if ev.isSubscriptionEvent() {
		ev.SubscriptionID = data.ID
	} else {
		ev.SubscriptionID = data.SubscriptionID
	}

	p := data.CurrentBillingPeriod
	if p == nil {
		p = data.BillingPeriod
	}
	if p != nil {
		ev.PeriodStart = parseOptionalTime(p.StartsAt)
		ev.PeriodEnd = parseOptionalTime(p.EndsAt)
	}
	return ev, nil
}

func (e *Event) isSubscriptionEvent() bool {
	return strings.HasPrefix(string(e.Type), "subscription.")
}

func customString(data map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := data[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func parseOptionalTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}
