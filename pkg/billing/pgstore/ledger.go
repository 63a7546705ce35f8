package pgstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/billing/pkg/billing"
	"github.com/dmitrymomot/billing/pkg/pg"
	"github.com/dmitrymomot/billing/pkg/secrets"
)

// LedgerSealPurpose derives the payload key from the ledger master key.
const LedgerSealPurpose = "ledger-payload"

// Ledger is a billing.Ledger backed by the billing_events table. Claims are
// kept indefinitely.
type Ledger struct {
	pool   *pgxpool.Pool
	sealer *secrets.Sealer
}

// LedgerOption configures a Ledger.
type LedgerOption func(*Ledger)

// WithPayloadSealer encrypts stored payloads, bound to their event id.
func WithPayloadSealer(s *secrets.Sealer) LedgerOption {
	return func(l *Ledger) { l.sealer = s }
}

func NewLedger(pool *pgxpool.Pool, opts ...LedgerOption) *Ledger {
	l := &Ledger{pool: pool}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) RecordEventIfNew(ctx context.Context, e billing.LedgerEntry) (bool, error) {
	payload, sealed := e.Payload, false
	if l.sealer != nil && len(payload) > 0 {
		var err error
		if payload, err = l.sealer.Seal(payload, []byte(e.EventID)); err != nil {
			return false, fmt.Errorf("seal event payload: %w", err)
		}
		sealed = true
	}

	tag, err := l.pool.Exec(ctx, `
		INSERT INTO billing_events (provider, event_id, event_type, payload, sealed, received_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (provider, event_id) DO NOTHING`,
		e.Provider, e.EventID, string(e.EventType), payload, sealed, e.ReceivedAt)
	if err != nil {
		return false, fmt.Errorf("record event: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (l *Ledger) ForgetEvent(ctx context.Context, provider, eventID string) error {
	if _, err := l.pool.Exec(ctx,
		`DELETE FROM billing_events WHERE provider = $1 AND event_id = $2`, provider, eventID); err != nil {
		return fmt.Errorf("forget event: %w", err)
	}
	return nil
}

// Payload returns the stored body of a claimed event, opening it when sealed.
func (l *Ledger) Payload(ctx context.Context, provider, eventID string) ([]byte, error) {
	var (
		payload []byte
		sealed  bool
	)
	err := l.pool.QueryRow(ctx,
		`SELECT payload, sealed FROM billing_events WHERE provider = $1 AND event_id = $2`,
		provider, eventID).Scan(&payload, &sealed)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, fmt.Errorf("event %q: %w", eventID, billing.ErrNotFound)
		}
		return nil, fmt.Errorf("load event payload: %w", err)
	}
	if !sealed {
		return payload, nil
	}
	if l.sealer == nil {
		return nil, fmt.Errorf("event %q payload is sealed: %w", eventID, billing.ErrConfiguration)
	}
	return l.sealer.Open(payload, []byte(eventID))
}

var _ billing.Ledger = (*Ledger)(nil)
