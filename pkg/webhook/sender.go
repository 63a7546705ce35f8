package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Sender posts JSON payloads with retries, optional HMAC signing and an
// optional circuit breaker.
type Sender struct {
	client     *http.Client
	secret     string
	maxRetries int
	backoff    Backoff
	breaker    *CircuitBreaker
	timeout    time.Duration
	userAgent  string
	now        func() time.Time
}

type Option func(*Sender)

func WithHTTPClient(c *http.Client) Option {
	return func(s *Sender) {
		if c != nil {
			s.client = c
		}
	}
}

// WithSigningSecret signs every delivery, see SignPayload.
func WithSigningSecret(secret string) Option {
	return func(s *Sender) { s.secret = secret }
}

// WithRetries sets how many times a failed delivery is retried. 0 disables
// retries.
func WithRetries(n int, b Backoff) Option {
	return func(s *Sender) {
		if n >= 0 {
			s.maxRetries = n
		}
		if b != nil {
			s.backoff = b
		}
	}
}

func WithCircuitBreaker(cb *CircuitBreaker) Option {
	return func(s *Sender) { s.breaker = cb }
}

// WithTimeout bounds each attempt.
func WithTimeout(d time.Duration) Option {
	return func(s *Sender) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func WithUserAgent(ua string) Option {
	return func(s *Sender) {
		if ua != "" {
			s.userAgent = ua
		}
	}
}

func NewSender(opts ...Option) *Sender {
	s := &Sender{
		client:     &http.Client{},
		maxRetries: 3,
		backoff:    DefaultBackoff(),
		timeout:    10 * time.Second,
		userAgent:  "billing-webhook/1.0",
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send marshals data and posts it to endpoint. 4xx answers other than 408,
// 425 and 429 are permanent and not retried. All attempts share one
// delivery id so receivers can deduplicate.
func (s *Sender) Send(ctx context.Context, endpoint string, data any) error {
	if err := validateURL(endpoint); err != nil {
		return err
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return errors.Join(ErrInvalidPayload, err)
	}
	if s.breaker != nil && !s.breaker.Allow() {
		return ErrCircuitOpen
	}

	id := uuid.NewString()
	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return errors.Join(ErrDeliveryFailed, ctx.Err(), lastErr)
			case <-time.After(s.backoff.NextInterval(attempt)):
			}
		}

		status, err := s.attempt(ctx, endpoint, id, payload)
		if s.breaker != nil {
			if err == nil {
				s.breaker.RecordSuccess()
			} else {
				s.breaker.RecordFailure()
			}
		}
		if err == nil {
			return nil
		}
		lastErr = err
		if isPermanent(status) {
			return errors.Join(ErrPermanentFailure, err)
		}
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrDeliveryFailed, s.maxRetries+1, lastErr)
}

func (s *Sender) attempt(ctx context.Context, endpoint, id string, payload []byte) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set(HeaderID, id)
	if s.secret != "" {
		sig, err := SignPayload(s.secret, payload, s.now())
		if err != nil {
			return 0, err
		}
		req.Header.Set(HeaderSignature, sig)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return resp.StatusCode, nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	snippet := strings.TrimSpace(strings.ReplaceAll(string(body), "\n", " "))
	if len(snippet) > 200 {
		snippet = snippet[:200] + "..."
	}
	return resp.StatusCode, fmt.Errorf("endpoint returned %d: %s", resp.StatusCode, snippet)
}

func isPermanent(status int) bool {
	if status < 400 || status >= 500 {
		return false
	}
	switch status {
	case http.StatusRequestTimeout, http.StatusTooEarly, http.StatusTooManyRequests:
		return false
	}
	return true
}

func validateURL(endpoint string) error {
	u, err := url.Parse(endpoint)
	if err != nil {
		return errors.Join(ErrInvalidURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q must be an absolute http(s) URL", ErrInvalidURL, endpoint)
	}
	return nil
}
