package redis

import "errors"

var (
	// ErrFailedToParseRedisConnString wraps a malformed REDIS_URL.
	ErrFailedToParseRedisConnString = errors.New("invalid redis connection url")
	ErrRedisNotReady                = errors.New("redis not reachable before retries ran out")
	ErrHealthcheckFailed            = errors.New("redis ping failed")
)
