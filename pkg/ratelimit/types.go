package ratelimit

import (
	"context"
	"time"
)

// Result is the verdict of one limiter call.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	// ResetAt is when the bucket is full again.
	ResetAt time.Time
	// RetryAfter is the wait until the request would be allowed. Zero when allowed.
	RetryAfter time.Duration
}

// Limiter decides whether a request identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

// Bucket describes a token bucket. PerToken is the time it takes to regain
// one token.
type Bucket struct {
	Capacity int
	PerToken time.Duration
}

// Take is the outcome of a Store consume call.
type Take struct {
	Allowed   bool
	Remaining int
	// UntilFull and RetryAfter are measured from the call's now.
	UntilFull  time.Duration
	RetryAfter time.Duration
}

// Store persists buckets. Consume refills the bucket for key up to now and
// takes n tokens when they are available, atomically.
type Store interface {
	Consume(ctx context.Context, key string, n int, b Bucket, now time.Time) (Take, error)
	Delete(ctx context.Context, key string) error
}
