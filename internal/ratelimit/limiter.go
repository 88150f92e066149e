package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "bridge:rl:"

// LimitResult is the outcome of a rate limit check.
type LimitResult struct {
	Allowed    bool
	Remaining  int64
	ResetAt    time.Time
	RetryAfter time.Duration
}

// Limiter performs sliding-window rate limiting backed by Redis sorted sets.
type Limiter struct {
	rdb redis.UniversalClient
}

// NewLimiter creates a new rate limiter. If rdb is nil, all checks pass (fail open).
func NewLimiter(rdb redis.UniversalClient) *Limiter {
	return &Limiter{rdb: rdb}
}

// slidingWindowScript atomically removes expired entries, adds the current
// request when under the limit, and returns the count.
// KEYS[1] = sorted set key
// ARGV[1] = window start (unix micro)
// ARGV[2] = now (unix micro), used as score and member prefix
// ARGV[3] = limit
// ARGV[4] = TTL seconds for the key
// Returns: {count, 1 allowed | 0 denied, oldest score}
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local window_start = tonumber(ARGV[1])
local now = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)
local count = redis.call('ZCARD', key)

if count < limit then
    redis.call('ZADD', key, now, now .. ':' .. math.random(1000000))
    redis.call('EXPIRE', key, ttl)
    return {count + 1, 1, 0}
end

redis.call('EXPIRE', key, ttl)
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
return {count, 0, tonumber(oldest[2] or now)}
`)

// Check performs a sliding-window rate limit check for key.
func (l *Limiter) Check(ctx context.Context, key string, limit int64, window time.Duration) (LimitResult, error) {
	now := time.Now()
	if l.rdb == nil {
		return LimitResult{Allowed: true, Remaining: limit - 1, ResetAt: now.Add(window)}, nil
	}

	windowStart := now.Add(-window).UnixMicro()
	ttlSecs := int64(window.Seconds()) + 1

	result, err := slidingWindowScript.Run(ctx, l.rdb, []string{keyPrefix + key},
		windowStart, now.UnixMicro(), limit, ttlSecs,
	).Int64Slice()
	if err != nil {
		slog.Warn("rate limit check failed, allowing request", "key", key, "error", err)
		return LimitResult{Allowed: true, Remaining: limit, ResetAt: now.Add(window)}, nil
	}

	return resultFrom(now, limit, window, result), nil
}

// resultFrom interprets the script reply. The oldest entry in the window
// decides when a denied caller may retry.
func resultFrom(now time.Time, limit int64, window time.Duration, reply []int64) LimitResult {
	count := reply[0]
	allowed := reply[1] == 1

	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}

	res := LimitResult{Allowed: allowed, Remaining: remaining, ResetAt: now.Add(window)}
	if allowed || len(reply) < 3 || reply[2] == 0 {
		if !allowed {
			res.RetryAfter = window / 2
		}
		return res
	}

	res.ResetAt = time.UnixMicro(reply[2]).Add(window)
	res.RetryAfter = res.ResetAt.Sub(now)
	if res.RetryAfter < time.Second {
		res.RetryAfter = time.Second
	}
	return res
}
