package notifications

import "errors"

var (
	ErrNotFound            = errors.New("notification not found")
	ErrInvalidNotification = errors.New("invalid notification")
	ErrDeliveryFailed      = errors.New("notification delivery failed")
)
