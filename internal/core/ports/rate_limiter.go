package ports

import (
	"context"
	"time"
)

// RateLimitDecision is the outcome of counting one request.
type RateLimitDecision struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
}

// RateLimiter counts requests per key inside a scope.
type RateLimiter interface {
	Allow(ctx context.Context, scope, key string) (RateLimitDecision, error)
}
