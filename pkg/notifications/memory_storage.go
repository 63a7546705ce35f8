package notifications

import (
	"context"
	"slices"
	"sync"
	"time"
)

// MemoryStorage keeps notifications in process memory.
type MemoryStorage struct {
	mu     sync.RWMutex
	byID   map[string]*Notification
	byUser map[string][]string // ids in insertion order
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		byID:   make(map[string]*Notification),
		byUser: make(map[string][]string),
	}
}

func (s *MemoryStorage) Create(_ context.Context, n Notification) (Notification, bool, error) {
	if err := n.Validate(); err != nil {
		return Notification{}, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.byID[n.ID]; ok {
		return clone(*existing), false, nil
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	stored := clone(n)
	s.byID[n.ID] = &stored
	s.byUser[n.UserID] = append(s.byUser[n.UserID], n.ID)
	return clone(stored), true, nil
}

func (s *MemoryStorage) MarkDelivered(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	n.DeliveredAt = &at
	return nil
}

func (s *MemoryStorage) List(_ context.Context, userID string, opts ListOptions) ([]Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byUser[userID]
	out := make([]Notification, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		n := s.byID[ids[i]]
		if opts.OnlyUnread && n.Read {
			continue
		}
		if len(opts.Kinds) > 0 && !slices.Contains(opts.Kinds, n.Kind) {
			continue
		}
		out = append(out, clone(*n))
		if opts.Limit > 0 && len(out) == opts.Limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStorage) MarkRead(_ context.Context, userID string, at time.Time, ids ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		n, ok := s.byID[id]
		if !ok || n.UserID != userID || n.Read {
			continue
		}
		n.Read = true
		n.ReadAt = &at
	}
	return nil
}

func (s *MemoryStorage) CountUnread(_ context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, id := range s.byUser[userID] {
		if !s.byID[id].Read {
			count++
		}
	}
	return count, nil
}

// clone copies n so callers never share the stored map or time pointers.
func clone(n Notification) Notification {
	if n.Data != nil {
		data := make(map[string]string, len(n.Data))
		for k, v := range n.Data {
			data[k] = v
		}
		n.Data = data
	}
	if n.ReadAt != nil {
		t := *n.ReadAt
		n.ReadAt = &t
	}
	if n.DeliveredAt != nil {
		t := *n.DeliveredAt
		n.DeliveredAt = &t
	}
	return n
}

var _ Storage = (*MemoryStorage)(nil)
