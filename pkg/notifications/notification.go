package notifications

import (
	"errors"
	"time"
)

// Type is the display severity of a notification.
type Type string

const (
	TypeInfo    Type = "info"
	TypeSuccess Type = "success"
	TypeWarning Type = "warning"
	TypeError   Type = "error"
)

// Notification is a message addressed to one user. ID doubles as the
// idempotency key: storing the same ID twice keeps the first copy.
type Notification struct {
	ID          string            `json:"id"`
	UserID      string            `json:"user_id"`
	Kind        string            `json:"kind"`
	Type        Type              `json:"type"`
	Title       string            `json:"title"`
	Message     string            `json:"message"`
	ActionURL   string            `json:"action_url,omitempty"`
	Data        map[string]string `json:"data,omitempty"`
	Read        bool              `json:"read"`
	ReadAt      *time.Time        `json:"read_at,omitempty"`
	DeliveredAt *time.Time        `json:"delivered_at,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// Validate checks the fields every storage requires.
func (n Notification) Validate() error {
	if n.UserID == "" {
		return errors.Join(ErrInvalidNotification, errors.New("user id is required"))
	}
	if n.Title == "" {
		return errors.Join(ErrInvalidNotification, errors.New("title is required"))
	}
	return nil
}

// Delivered reports whether a deliverer already accepted n.
func (n Notification) Delivered() bool {
	return n.DeliveredAt != nil
}
