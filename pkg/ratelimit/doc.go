// Package ratelimit provides a token bucket limiter with pluggable storage
// and HTTP middleware.
//
// A bucket holds up to burst tokens and regains rate tokens every interval.
// Every request takes one token; an empty bucket rejects the request until
// enough tokens have been refilled.
//
//	limiter, err := ratelimit.NewTokenBucket(ratelimit.NewMemoryStore(), 30, time.Minute,
//		ratelimit.WithBurst(10))
//	if err != nil { ... }
//	r.Use(ratelimit.Middleware(limiter, keyFunc))
//
// MemoryStore keeps buckets in process. RedisStore keeps them in Redis and
// updates them with a Lua script, so several replicas share one limit.
//
// The middleware fails open: when the store errors the request is served.
package ratelimit
