package billingsvc

import (
	"context"
	"log/slog"

	"github.com/dmitrymomot/billing/pkg/billing"
	"github.com/dmitrymomot/billing/pkg/logger"
)

// WebhookSender posts a JSON payload to an endpoint.
type WebhookSender interface {
	Send(ctx context.Context, endpoint string, data any) error
}

// Alerter forwards operator alerts to an ops webhook. Without an endpoint
// alerts are only logged.
type Alerter struct {
	sender   WebhookSender
	endpoint string
	log      *slog.Logger
}

func NewAlerter(sender WebhookSender, endpoint string, log *slog.Logger) *Alerter {
	if log == nil {
		log = slog.Default()
	}
	if sender == nil {
		endpoint = ""
	}
	return &Alerter{sender: sender, endpoint: endpoint, log: log}
}

type alertPayload struct {
	Type  string        `json:"type"`
	Alert billing.Alert `json:"alert"`
}

func (a *Alerter) Alert(ctx context.Context, alert billing.Alert) error {
	a.log.LogAttrs(ctx, slog.LevelError, "billing alert: "+alert.Title,
		slog.String("severity", string(alert.Severity)),
		logger.EventID(alert.EventID),
		logger.EventType(string(alert.EventType)),
		logger.UserID(alert.UserID),
		slog.String("detail", alert.Detail),
		logger.Component("alerts"))
	if a.endpoint == "" {
		return nil
	}
	return a.sender.Send(ctx, a.endpoint, alertPayload{Type: "billing.alert", Alert: alert})
}

var _ billing.Alerter = (*Alerter)(nil)
