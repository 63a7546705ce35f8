package email

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
)

// Sender delivers one message.
type Sender interface {
	SendEmail(ctx context.Context, msg Message) error
}

// Message is a rendered e-mail.
type Message struct {
	To       string            `json:"to"`
	Subject  string            `json:"subject"`
	HTMLBody string            `json:"html_body"`
	TextBody string            `json:"text_body,omitempty"`
	Tag      string            `json:"tag,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

var emailRegex = regexp.MustCompile(`^[^\s@]+@[^\s@]+$`)

// Validate reports missing or malformed fields as ErrInvalidMessage.
func (m Message) Validate() error {
	switch {
	case m.To == "":
		return errors.Join(ErrInvalidMessage, errors.New("recipient is required"))
	case !emailRegex.MatchString(m.To):
		return errors.Join(ErrInvalidMessage, errors.New("recipient must be a valid email address"))
	case m.Subject == "":
		return errors.Join(ErrInvalidMessage, errors.New("subject is required"))
	case m.HTMLBody == "" && m.TextBody == "":
		return errors.Join(ErrInvalidMessage, errors.New("body is required"))
	}
	return nil
}

// NewSenderFromConfig returns the Postmark sender when a server token is
// configured and the DevSender otherwise.
func NewSenderFromConfig(cfg Config, log *slog.Logger) (Sender, error) {
	if cfg.PostmarkServerToken == "" {
		if log != nil {
			log.Warn("postmark is not configured, writing emails to disk", slog.String("dir", cfg.DevDir))
		}
		return NewDevSender(cfg.DevDir), nil
	}
	return NewPostmarkSender(cfg)
}
