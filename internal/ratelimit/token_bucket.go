package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	redis "github.com/redis/go-redis/v9"
)

var (
	ErrLimiterNotConfigured = errors.New("rate_limiter_not_configured")
	ErrInvalidBucket        = errors.New("invalid_rate_limit_bucket")
)

// Tokens are kept as floats in the hash; the reply carries milli-tokens
// because Lua numbers are truncated to integers on the way out.
const refillAndTake = `
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])

local clock = redis.call("TIME")
local now = clock[1] * 1000 + math.floor(clock[2] / 1000)

local state = redis.call("HMGET", KEYS[1], "tokens", "ts")
local tokens = tonumber(state[1]) or burst
local last = tonumber(state[2]) or now
if now > last then
  tokens = math.min(burst, tokens + (now - last) / 1000 * rate)
end

local allowed = 0
if tokens >= 1 then
  allowed = 1
  tokens = tokens - 1
end

redis.call("HSET", KEYS[1], "tokens", tokens, "ts", now)
redis.call("PEXPIRE", KEYS[1], ttl)
return {allowed, math.floor(tokens * 1000), now}
`

// TokenBucket is a redis-backed bucket shared by every API replica.
type TokenBucket struct {
	client *redis.Client
	script *redis.Script
}

type RateLimitResult struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetTime  time.Time
	RetryAfter time.Duration
}

func NewTokenBucket(client *redis.Client) *TokenBucket {
	if client == nil {
		return nil
	}
	return &TokenBucket{client: client, script: redis.NewScript(refillAndTake)}
}

// Allow takes one token from key, refilling at rate tokens per second up to
// burst.
func (t *TokenBucket) Allow(ctx context.Context, key string, rate float64, burst int) (*RateLimitResult, error) {
	denied := &RateLimitResult{Limit: burst}
	switch {
	case t == nil || t.client == nil:
		return denied, ErrLimiterNotConfigured
	case key == "" || rate <= 0 || burst <= 0:
		return denied, ErrInvalidBucket
	}

	reply, err := t.script.Run(ctx, t.client, []string{key},
		rate, burst, bucketTTL(rate, burst).Milliseconds(),
	).Int64Slice()
	if err != nil {
		return denied, fmt.Errorf("token bucket %s: %w", key, err)
	}
	if len(reply) != 3 {
		return denied, fmt.Errorf("token bucket %s: unexpected reply %v", key, reply)
	}

	tokens := float64(reply[1]) / 1000
	res := &RateLimitResult{
		Allowed:   reply[0] == 1,
		Limit:     burst,
		Remaining: int(tokens),
		ResetTime: time.UnixMilli(reply[2]),
	}
	if !res.Allowed {
		res.RetryAfter = time.Duration((1 - tokens) / rate * float64(time.Second))
		res.ResetTime = res.ResetTime.Add(res.RetryAfter)
	}
	return res, nil
}

// bucketTTL keeps idle buckets around for twice the full refill time.
func bucketTTL(rate float64, burst int) time.Duration {
	seconds := math.Max(1, math.Ceil(float64(burst)/rate*2))
	return time.Duration(seconds) * time.Second
}
