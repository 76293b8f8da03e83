package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/prperemyshlev/session-gateway/pkg/database"
	"github.com/redis/go-redis/v9"
)

// slidingWindow trims the window, counts it and records the request in one step.
// Scores are unix microseconds. Returns {allowed, count, oldest score or ""}.
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
if count >= limit then
	local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
	return {0, count, oldest[2] or ''}
end

redis.call('ZADD', key, now, ARGV[4])
redis.call('PEXPIRE', key, ARGV[5])
return {1, count + 1, ''}
`)

// RateDecision is the verdict for one request
type RateDecision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// RateLimiter handles rate limiting using a Redis sliding window log
type RateLimiter struct {
	redis  *database.Redis
	limit  int
	window time.Duration
	now    func() time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(redis *database.Redis, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{redis: redis, limit: limit, window: window, now: time.Now}
}

// Allow records the request and reports whether it fits in the window.
// Rejected requests are not recorded. Concurrent callers never exceed the limit.
func (r *RateLimiter) Allow(ctx context.Context, key string) (RateDecision, error) {
	now := r.now()
	redisKey := fmt.Sprintf("ratelimit:%s", key)

	reply, err := slidingWindow.Run(ctx, r.redis.Client, []string{redisKey},
		now.UnixMicro(),
		r.window.Microseconds(),
		r.limit,
		strconv.FormatInt(now.UnixMicro(), 10)+"-"+uuid.NewString(),
		(r.window + time.Minute).Milliseconds(),
	).Slice()
	if err != nil {
		return RateDecision{}, fmt.Errorf("failed to evaluate rate window: %w", err)
	}
	if len(reply) != 3 {
		return RateDecision{}, fmt.Errorf("unexpected rate window reply %v", reply)
	}

	allowed, _ := reply[0].(int64)
	count, _ := reply[1].(int64)

	if allowed == 1 {
		return RateDecision{Allowed: true, Remaining: r.limit - int(count)}, nil
	}

	decision := RateDecision{RetryAfter: r.window}
	if raw, _ := reply[2].(string); raw != "" {
		if score, err := strconv.ParseFloat(raw, 64); err == nil {
			oldest := time.UnixMicro(int64(score))
			decision.RetryAfter = r.window - now.Sub(oldest)
		}
	}
	if decision.RetryAfter < time.Second {
		decision.RetryAfter = time.Second
	}
	return decision, nil
}
