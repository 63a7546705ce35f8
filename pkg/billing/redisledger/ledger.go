// Package redisledger is a billing.Ledger on Redis. A claim is a SET NX of
// one key per (provider, event id) without expiry, so it is atomic across
// every process sharing the server. The claim value keeps the event type,
// arrival time and payload, sealed when a sealer is configured.
package redisledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/billing/pkg/billing"
	"github.com/dmitrymomot/billing/pkg/secrets"
)

// DefaultPrefix namespaces ledger keys.
const DefaultPrefix = "billing:event:"

type Ledger struct {
	client redis.UniversalClient
	prefix string
	sealer *secrets.Sealer
}

type Option func(*Ledger)

func WithPrefix(prefix string) Option {
	return func(l *Ledger) {
		if prefix != "" {
			l.prefix = prefix
		}
	}
}

// WithPayloadSealer encrypts stored payloads, bound to their event id.
func WithPayloadSealer(s *secrets.Sealer) Option {
	return func(l *Ledger) { l.sealer = s }
}

func New(client redis.UniversalClient, opts ...Option) *Ledger {
	l := &Ledger{client: client, prefix: DefaultPrefix}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

type claim struct {
	EventType  billing.EventType `json:"event_type"`
	ReceivedAt time.Time         `json:"received_at"`
	Payload    []byte            `json:"payload,omitempty"`
	Sealed     bool              `json:"sealed,omitempty"`
}

func (l *Ledger) key(provider, eventID string) string {
	return l.prefix + provider + ":" + eventID
}

func (l *Ledger) RecordEventIfNew(ctx context.Context, e billing.LedgerEntry) (bool, error) {
	c := claim{EventType: e.EventType, ReceivedAt: e.ReceivedAt, Payload: e.Payload}
	if l.sealer != nil && len(c.Payload) > 0 {
		sealed, err := l.sealer.Seal(c.Payload, []byte(e.EventID))
		if err != nil {
			return false, fmt.Errorf("seal event payload: %w", err)
		}
		c.Payload, c.Sealed = sealed, true
	}
	val, err := json.Marshal(c)
	if err != nil {
		return false, err
	}
	ok, err := l.client.SetNX(ctx, l.key(e.Provider, e.EventID), val, 0).Result()
	if err != nil {
		return false, fmt.Errorf("record event: %w", err)
	}
	return ok, nil
}

func (l *Ledger) ForgetEvent(ctx context.Context, provider, eventID string) error {
	if err := l.client.Del(ctx, l.key(provider, eventID)).Err(); err != nil {
		return fmt.Errorf("forget event: %w", err)
	}
	return nil
}

// Payload returns the stored body of a claimed event, opening it when sealed.
func (l *Ledger) Payload(ctx context.Context, provider, eventID string) ([]byte, error) {
	raw, err := l.client.Get(ctx, l.key(provider, eventID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("event %q: %w", eventID, billing.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load event payload: %w", err)
	}
	var c claim
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("decode event claim: %w", err)
	}
	if !c.Sealed {
		return c.Payload, nil
	}
	if l.sealer == nil {
		return nil, fmt.Errorf("event %q payload is sealed: %w", eventID, billing.ErrConfiguration)
	}
	return l.sealer.Open(c.Payload, []byte(eventID))
}

var _ billing.Ledger = (*Ledger)(nil)
