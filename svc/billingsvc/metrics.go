package billingsvc

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dmitrymomot/billing/pkg/billing"
)

// Metrics are the billing Prometheus collectors.
type Metrics struct {
	webhookRequests *prometheus.CounterVec
	webhookDuration *prometheus.HistogramVec
	eventsApplied   *prometheus.CounterVec
	checkouts       *prometheus.CounterVec
	portals         *prometheus.CounterVec
}

// NewMetrics registers the collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		webhookRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "billing_webhook_requests_total",
			Help: "Webhook deliveries by event type and response status.",
		}, []string{"event_type", "status"}),
		webhookDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "billing_webhook_duration_seconds",
			Help:    "Time spent processing a webhook delivery.",
			Buckets: prometheus.DefBuckets,
		}, []string{"event_type"}),
		eventsApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "billing_events_applied_total",
			Help: "Processed billing events by outcome.",
		}, []string{"event_type", "outcome"}),
		checkouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "billing_checkout_requests_total",
			Help: "Checkout session requests by outcome.",
		}, []string{"outcome"}),
		portals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "billing_portal_requests_total",
			Help: "Customer portal session requests by outcome.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(m.webhookRequests, m.webhookDuration, m.eventsApplied, m.checkouts, m.portals)
	return m
}

// eventLabel keeps label cardinality bounded to the handled event types.
func eventLabel(t billing.EventType) string {
	switch {
	case t == "":
		return "unparsed"
	case t.Known():
		return string(t)
	}
	return "other"
}

func (m *Metrics) observeWebhook(res billing.Result, status string, took time.Duration) {
	if m == nil {
		return
	}
	label := eventLabel(res.EventType)
	m.webhookRequests.WithLabelValues(label, status).Inc()
	m.webhookDuration.WithLabelValues(label).Observe(took.Seconds())
	if res.Outcome != "" {
		m.eventsApplied.WithLabelValues(label, string(res.Outcome)).Inc()
	}
}

func (m *Metrics) observeCheckout(outcome string) {
	if m != nil {
		m.checkouts.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) observePortal(outcome string) {
	if m != nil {
		m.portals.WithLabelValues(outcome).Inc()
	}
}

func outcomeOf(err error) string {
	if err == nil {
		return "ok"
	}
	switch status := statusOf(err); {
	case status >= 500:
		return "error"
	default:
		return "rejected"
	}
}
