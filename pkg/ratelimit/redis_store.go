package ratelimit

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
)

// consumeScript refills and takes tokens in one round trip. The bucket is a
// hash of the token count and the last update in milliseconds, expiring
// once it would be full again.
var consumeScript = redis.NewScript(`
local capacity = tonumber(ARGV[1])
local per_token = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local n = tonumber(ARGV[4])

local state = redis.call('HMGET', KEYS[1], 'tokens', 'ts')
local tokens = tonumber(state[1])
local ts = tonumber(state[2])
if tokens == nil or ts == nil then
	tokens = capacity
elseif now > ts then
	tokens = math.min(capacity, tokens + (now - ts) / per_token)
end

local allowed = 0
local retry = 0
if tokens >= n then
	tokens = tokens - n
	allowed = 1
elseif n <= capacity then
	retry = math.ceil((n - tokens) * per_token)
else
	retry = math.ceil(capacity * per_token)
end

local until_full = math.ceil((capacity - tokens) * per_token)
redis.call('HSET', KEYS[1], 'tokens', tostring(tokens), 'ts', tostring(now))
redis.call('PEXPIRE', KEYS[1], until_full + math.ceil(per_token))
return {allowed, math.floor(tokens), until_full, retry}
`)

// RedisStore keeps buckets in Redis so replicas share limits. Bucket
// precision is one millisecond.
type RedisStore struct {
	client redis.Scripter
}

func NewRedisStore(client redis.Scripter) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Consume(ctx context.Context, key string, n int, b Bucket, now time.Time) (Take, error) {
	perToken := math.Max(float64(b.PerToken)/float64(time.Millisecond), 1)
	vals, err := consumeScript.Run(ctx, s.client, []string{key},
		b.Capacity, perToken, now.UnixMilli(), n).Int64Slice()
	if err != nil {
		return Take{}, fmt.Errorf("ratelimit: consume %q: %w", key, err)
	}
	if len(vals) != 4 {
		return Take{}, fmt.Errorf("ratelimit: consume %q: unexpected reply of %d values", key, len(vals))
	}
	return Take{
		Allowed:    vals[0] == 1,
		Remaining:  int(vals[1]),
		UntilFull:  time.Duration(vals[2]) * time.Millisecond,
		RetryAfter: time.Duration(vals[3]) * time.Millisecond,
	}, nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	cmd, ok := s.client.(redis.Cmdable)
	if !ok {
		return fmt.Errorf("ratelimit: delete %q: client does not support DEL", key)
	}
	return cmd.Del(ctx, key).Err()
}
