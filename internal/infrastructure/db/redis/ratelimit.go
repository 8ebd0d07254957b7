package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/99minutos/identity-system/internal/core/ports"
)

// RateLimiter is a fixed-window counter backed by Redis.
// Key format: ratelimit:<scope>:<key>:<window_start_unix>
type RateLimiter struct {
	client *redis.Client
	max    int64
	window time.Duration
	now    func() time.Time
}

// NewRateLimiter allows max hits per key inside each window.
func NewRateLimiter(client *redis.Client, max int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client: client,
		max:    int64(max),
		window: window,
		now:    time.Now,
	}
}

// Allow counts one hit for key within scope.
func (l *RateLimiter) Allow(ctx context.Context, scope, key string) (ports.RateLimitDecision, error) {
	now := l.now()
	start := now.Truncate(l.window)
	redisKey := fmt.Sprintf("ratelimit:%s:%s:%d", scope, key, start.Unix())

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return ports.RateLimitDecision{}, fmt.Errorf("rate limit: %w", err)
	}

	count := incr.Val()
	if count > l.max {
		return ports.RateLimitDecision{Allowed: false, RetryAfter: start.Add(l.window).Sub(now)}, nil
	}
	return ports.RateLimitDecision{Allowed: true, Remaining: l.max - count}, nil
}
