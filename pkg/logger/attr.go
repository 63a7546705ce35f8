package logger

import (
	"log/slog"
	"strconv"
	"time"
)

// Group creates a slog group attribute from the provided attributes.
func Group(name string, attrs ...slog.Attr) slog.Attr {
	return slog.Attr{Key: name, Value: slog.GroupValue(attrs...)}
}

// Error creates an attribute for a single error under the key "error".
// If err is nil, it returns an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// Errors groups multiple non-nil errors under the key "errors".
// If all errors are nil, it returns an empty Attr.
func Errors(errs ...error) slog.Attr {
	as := make([]slog.Attr, 0, len(errs))
	for i, err := range errs {
		if err != nil {
			as = append(as, slog.Any(strconv.Itoa(i), err))
		}
	}
	if len(as) == 0 {
		return slog.Attr{}
	}
	return slog.Attr{Key: "errors", Value: slog.GroupValue(as...)}
}

// optional returns an empty Attr for empty identifiers so callers can pass
// fields straight from partially populated records.
func optional(key, value string) slog.Attr {
	if value == "" {
		return slog.Attr{}
	}
	return slog.String(key, value)
}

// UserID records the local user identifier under the key "user_id".
func UserID(id string) slog.Attr { return optional("user_id", id) }

// RequestID records the request identifier under the key "request_id".
func RequestID(id string) slog.Attr { return optional("request_id", id) }

// EventID records the provider event identifier under the key "event_id".
func EventID(id string) slog.Attr { return optional("event_id", id) }

// EventType records the provider event type under the key "event_type".
func EventType(eventType string) slog.Attr { return optional("event_type", eventType) }

// Provider records the payment provider tag under the key "provider".
func Provider(name string) slog.Attr { return optional("provider", name) }

// SubscriptionID records the remote subscription identifier.
func SubscriptionID(id string) slog.Attr { return optional("subscription_id", id) }

// CustomerID records the remote customer identifier.
func CustomerID(id string) slog.Attr { return optional("customer_id", id) }

// Plan records a plan name under the key "plan".
func Plan(plan string) slog.Attr { return optional("plan", plan) }

// TaskID records a queue task identifier under the key "task_id".
func TaskID(id string) slog.Attr { return optional("task_id", id) }

// RetryCount records the retry count under the key "retry_count".
func RetryCount(count int) slog.Attr {
	return slog.Int("retry_count", count)
}

// Duration records a duration under the key "duration".
func Duration(d time.Duration) slog.Attr {
	return slog.Duration("duration", d)
}

// Component records the component name under the key "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}
