package ratelimit

import "errors"

var (
	ErrInvalidLimit    = errors.New("rate limit must be positive")
	ErrInvalidInterval = errors.New("rate limit interval must be positive")
	ErrKeyRequired     = errors.New("rate limit key is required")
	ErrStoreRequired   = errors.New("rate limit store is required")
)
