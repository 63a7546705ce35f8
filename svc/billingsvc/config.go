package billingsvc

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the HTTP surface and side-effect settings.
type Config struct {
	UserIDHeader    string        `env:"BILLING_USER_ID_HEADER" envDefault:"X-User-ID"`
	UserEmailHeader string        `env:"BILLING_USER_EMAIL_HEADER" envDefault:"X-User-Email"`
	MaxWebhookBytes int64         `env:"BILLING_MAX_WEBHOOK_BYTES" envDefault:"1048576"`
	HealthTimeout   time.Duration `env:"BILLING_HEALTH_TIMEOUT" envDefault:"2s"`

	AlertURL    string `env:"BILLING_ALERT_URL"`
	AlertSecret string `env:"BILLING_ALERT_SECRET"`

	// DashboardURL is linked from notification e-mails.
	DashboardURL string `env:"BILLING_DASHBOARD_URL"`

	// TrustedIPHeaders name the proxy headers that carry the client address.
	TrustedIPHeaders []string `env:"BILLING_TRUSTED_IP_HEADERS" envDefault:"X-Forwarded-For,X-Real-IP" envSeparator:","`

	RateLimit      int    `env:"BILLING_RATE_LIMIT" envDefault:"60"` // requests per minute and user, 0 disables
	RateBurst      int    `env:"BILLING_RATE_BURST" envDefault:"20"`
	RateLimitStore string `env:"BILLING_RATE_LIMIT_STORE" envDefault:"memory"` // memory or redis

	EmailCacheSize int           `env:"BILLING_EMAIL_CACHE_SIZE" envDefault:"1024"`
	EmailCacheTTL  time.Duration `env:"BILLING_EMAIL_CACHE_TTL" envDefault:"10m"`

	EventsQueue  string `env:"BILLING_EVENTS_QUEUE" envDefault:"billing-events"`
	NoticesQueue string `env:"BILLING_NOTICES_QUEUE" envDefault:"billing-notices"`
}

// Validate implements config.Validator.
func (c *Config) Validate() error {
	if c.UserIDHeader == "" {
		return errors.New("user id header must not be empty")
	}
	if c.MaxWebhookBytes <= 0 {
		return errors.New("max webhook size must be positive")
	}
	if c.RateLimit < 0 || c.RateBurst < 0 {
		return errors.New("rate limits must not be negative")
	}
	switch c.RateLimitStore {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown rate limit store %q", c.RateLimitStore)
	}
	if c.AlertURL != "" && c.AlertSecret == "" {
		return errors.New("alert secret is required when an alert url is set")
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.UserIDHeader == "" {
		c.UserIDHeader = "X-User-ID"
	}
	if c.UserEmailHeader == "" {
		c.UserEmailHeader = "X-User-Email"
	}
	if c.MaxWebhookBytes <= 0 {
		c.MaxWebhookBytes = 1 << 20
	}
	if c.HealthTimeout <= 0 {
		c.HealthTimeout = 2 * time.Second
	}
	if c.RateLimitStore == "" {
		c.RateLimitStore = "memory"
	}
	if c.EventsQueue == "" {
		c.EventsQueue = "billing-events"
	}
	if c.NoticesQueue == "" {
		c.NoticesQueue = "billing-notices"
	}
	return c
}
