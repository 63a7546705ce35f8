// Package redis opens go-redis/v9 clients with startup retries and exposes a
// health check closure. The billing service uses it for the Redis-backed
// idempotency ledger.
package redis
