package email

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrymomot/billing/pkg/email/templates"
	"github.com/dmitrymomot/billing/pkg/notifications"
)

// RecipientLookup returns the e-mail address of a user, or "" when none is
// known.
type RecipientLookup func(ctx context.Context, userID string) (string, error)

// Deliverer is a notifications.Deliverer that e-mails each notification.
type Deliverer struct {
	sender  Sender
	lookup  RecipientLookup
	product string
	support string
}

// NewDeliverer panics if sender or lookup is nil.
func NewDeliverer(sender Sender, lookup RecipientLookup, cfg Config) *Deliverer {
	if sender == nil {
		panic("email: Sender is required")
	}
	if lookup == nil {
		panic("email: RecipientLookup is required")
	}
	return &Deliverer{sender: sender, lookup: lookup, product: cfg.ProductName, support: cfg.SupportEmail}
}

func (d *Deliverer) Deliver(ctx context.Context, n notifications.Notification) error {
	to, err := d.lookup(ctx, n.UserID)
	if err != nil {
		return fmt.Errorf("look up recipient: %w", err)
	}
	if to == "" {
		return errors.Join(ErrNoRecipient, fmt.Errorf("user %s", n.UserID))
	}

	html, err := templates.Render(ctx, templates.Notice(templates.NoticeData{
		Product:      d.product,
		Title:        n.Title,
		Paragraphs:   paragraphs(n.Message),
		ActionLabel:  n.Data["action_label"],
		ActionURL:    n.ActionURL,
		SupportEmail: d.support,
		Tone:         tone(n.Type),
	}))
	if err != nil {
		return fmt.Errorf("render notification email: %w", err)
	}

	return d.sender.SendEmail(ctx, Message{
		To:       to,
		Subject:  n.Title,
		HTMLBody: html,
		TextBody: n.Message,
		Tag:      n.Kind,
		Metadata: map[string]string{"notification_id": n.ID},
	})
}

func paragraphs(s string) []string {
	var out []string
	for p := range strings.SplitSeq(s, "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func tone(t notifications.Type) templates.Tone {
	switch t {
	case notifications.TypeSuccess:
		return templates.ToneSuccess
	case notifications.TypeWarning:
		return templates.ToneWarning
	case notifications.TypeError:
		return templates.ToneDanger
	default:
		return templates.ToneInfo
	}
}

var _ notifications.Deliverer = (*Deliverer)(nil)
