package billing

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is an in-process Store for tests and local development.
type MemoryStore struct {
	mu   sync.RWMutex
	rows map[string]*Subscription
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string]*Subscription)}
}

func (m *MemoryStore) GetByUserID(_ context.Context, userID string) (*Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.rows[userID]; ok {
		return s.Clone(), nil
	}
	return nil, fmt.Errorf("user %q: %w", userID, ErrNotFound)
}

func (m *MemoryStore) GetByProviderSubscriptionID(_ context.Context, id string) (*Subscription, error) {
	return m.find(func(s *Subscription) bool { return id != "" && s.ProviderSubscriptionID == id }, "subscription", id)
}

func (m *MemoryStore) GetByProviderCustomerID(_ context.Context, id string) (*Subscription, error) {
	return m.find(func(s *Subscription) bool { return id != "" && s.ProviderCustomerID == id }, "customer", id)
}

func (m *MemoryStore) find(match func(*Subscription) bool, kind, id string) (*Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.rows {
		if match(s) {
			return s.Clone(), nil
		}
	}
	return nil, fmt.Errorf("%s %q: %w", kind, id, ErrNotFound)
}

func (m *MemoryStore) UpsertByUserID(_ context.Context, sub *Subscription) error {
	if sub == nil || sub.UserID == "" {
		return ErrMissingUserID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[sub.UserID] = sub.Clone()
	return nil
}

func (m *MemoryStore) UpdateByProviderSubscriptionID(_ context.Context, id string, sub *Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for userID, s := range m.rows {
		if id != "" && s.ProviderSubscriptionID == id {
			next := sub.Clone()
			next.UserID = userID
			m.rows[userID] = next
			return nil
		}
	}
	return fmt.Errorf("subscription %q: %w", id, ErrNotFound)
}

// MemoryLedger is an in-process Ledger. The map insert is guarded by a
// mutex, so the claim is atomic within one process only.
type MemoryLedger struct {
	mu      sync.Mutex
	entries map[string]LedgerEntry
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{entries: make(map[string]LedgerEntry)}
}

func ledgerKey(provider, eventID string) string {
	return provider + "\x00" + eventID
}

func (l *MemoryLedger) RecordEventIfNew(_ context.Context, e LedgerEntry) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := ledgerKey(e.Provider, e.EventID)
	if _, ok := l.entries[key]; ok {
		return false, nil
	}
	l.entries[key] = e
	return true, nil
}

func (l *MemoryLedger) ForgetEvent(_ context.Context, provider, eventID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, ledgerKey(provider, eventID))
	return nil
}

// Has reports whether the event is claimed.
func (l *MemoryLedger) Has(provider, eventID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.entries[ledgerKey(provider, eventID)]
	return ok
}
