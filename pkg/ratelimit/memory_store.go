package ratelimit

import (
	"context"
	"sync"
	"time"
)

type memoryBucket struct {
	tokens float64
	last   time.Time
}

// MemoryStore keeps buckets in process memory. Buckets that refilled
// completely are dropped once the store grows past its sweep threshold.
type MemoryStore struct {
	mu      sync.Mutex
	buckets map[string]*memoryBucket
	sweepAt int
}

// MemoryStoreOption configures a MemoryStore.
type MemoryStoreOption func(*MemoryStore)

// WithSweepThreshold sets the bucket count that triggers a sweep. Default 10000.
func WithSweepThreshold(n int) MemoryStoreOption {
	return func(s *MemoryStore) {
		if n > 0 {
			s.sweepAt = n
		}
	}
}

func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	s := &MemoryStore{buckets: make(map[string]*memoryBucket), sweepAt: 10000}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) Consume(_ context.Context, key string, n int, b Bucket, now time.Time) (Take, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mb, ok := s.buckets[key]
	if !ok {
		if len(s.buckets) >= s.sweepAt {
			s.sweep(b, now)
		}
		mb = &memoryBucket{}
		s.buckets[key] = mb
	}
	var take Take
	mb.tokens, take = refill(mb.tokens, mb.last, n, b, now)
	mb.last = now
	return take, nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.buckets, key)
	s.mu.Unlock()
	return nil
}

// Len reports the number of tracked buckets.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buckets)
}

// sweep must be called with the lock held.
func (s *MemoryStore) sweep(b Bucket, now time.Time) {
	full := time.Duration(b.Capacity) * b.PerToken
	for k, mb := range s.buckets {
		if now.Sub(mb.last) >= full {
			delete(s.buckets, k)
		}
	}
}
