package ratelimit

import (
	"context"
	"time"
)

// TokenBucket is a Limiter allowing bursts of up to burst requests and rate
// requests per interval on average.
type TokenBucket struct {
	store  Store
	bucket Bucket
	prefix string
	now    func() time.Time
}

// TokenBucketOption configures a TokenBucket.
type TokenBucketOption func(*tokenBucketConfig)

type tokenBucketConfig struct {
	burst  int
	prefix string
	now    func() time.Time
}

// WithBurst sets the bucket capacity. Values below rate are raised to rate.
func WithBurst(burst int) TokenBucketOption {
	return func(c *tokenBucketConfig) { c.burst = burst }
}

// WithKeyPrefix namespaces keys, so several limiters can share a store.
func WithKeyPrefix(prefix string) TokenBucketOption {
	return func(c *tokenBucketConfig) { c.prefix = prefix }
}

func WithClock(now func() time.Time) TokenBucketOption {
	return func(c *tokenBucketConfig) {
		if now != nil {
			c.now = now
		}
	}
}

func NewTokenBucket(store Store, rate int, interval time.Duration, opts ...TokenBucketOption) (*TokenBucket, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if rate <= 0 {
		return nil, ErrInvalidLimit
	}
	if interval <= 0 {
		return nil, ErrInvalidInterval
	}
	cfg := tokenBucketConfig{burst: rate, now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	perToken := interval / time.Duration(rate)
	if perToken <= 0 {
		perToken = time.Nanosecond
	}
	return &TokenBucket{
		store:  store,
		bucket: Bucket{Capacity: max(cfg.burst, rate), PerToken: perToken},
		prefix: cfg.prefix,
		now:    cfg.now,
	}, nil
}

func (tb *TokenBucket) Allow(ctx context.Context, key string) (Result, error) {
	return tb.AllowN(ctx, key, 1)
}

// AllowN takes n tokens. A request larger than the bucket is never allowed.
func (tb *TokenBucket) AllowN(ctx context.Context, key string, n int) (Result, error) {
	if key == "" {
		return Result{}, ErrKeyRequired
	}
	n = max(n, 1)
	now := tb.now()
	take, err := tb.store.Consume(ctx, tb.prefix+key, n, tb.bucket, now)
	if err != nil {
		return Result{}, err
	}
	res := Result{
		Allowed:   take.Allowed,
		Limit:     tb.bucket.Capacity,
		Remaining: max(take.Remaining, 0),
		ResetAt:   now.Add(take.UntilFull),
	}
	if !take.Allowed {
		res.RetryAfter = take.RetryAfter
	}
	return res, nil
}

// Reset refills the bucket of key.
func (tb *TokenBucket) Reset(ctx context.Context, key string) error {
	if key == "" {
		return ErrKeyRequired
	}
	return tb.store.Delete(ctx, tb.prefix+key)
}

// refill applies the token bucket arithmetic shared by the stores. tokens
// and last describe the stored state; a zero last means a fresh bucket.
func refill(tokens float64, last time.Time, n int, b Bucket, now time.Time) (float64, Take) {
	capacity := float64(b.Capacity)
	if last.IsZero() {
		tokens = capacity
	} else if now.After(last) {
		tokens = min(capacity, tokens+float64(now.Sub(last))/float64(b.PerToken))
	}

	var take Take
	if tokens >= float64(n) {
		tokens -= float64(n)
		take.Allowed = true
	} else if n <= b.Capacity {
		take.RetryAfter = time.Duration((float64(n) - tokens) * float64(b.PerToken))
	} else {
		take.RetryAfter = time.Duration(capacity * float64(b.PerToken))
	}
	take.Remaining = int(tokens)
	take.UntilFull = time.Duration((capacity - tokens) * float64(b.PerToken))
	return tokens, take
}
