package ports

import (
	"context"
	"time"
)

// RateDecision is the outcome of counting one attempt.
type RateDecision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration // zero when Allowed
}

// RateLimiter counts attempts per key within a fixed window. The increment
// and the limit check happen atomically per key.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (RateDecision, error)
}
