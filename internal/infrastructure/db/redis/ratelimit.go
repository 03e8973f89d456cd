package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/useraccounts/user-accounts/internal/core/ports"
)

// incrWindow increments the counter and starts its window on first use, in
// one round trip so concurrent attempts never observe the same count.
var incrWindow = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return {n, redis.call('PTTL', KEYS[1])}
`)

// RateLimiter is a fixed-window limiter shared by every instance pointing at
// the same Redis. Key format: ratelimit:<name>:<client key>
type RateLimiter struct {
	client redis.Scripter
	name   string
	limit  int
	window time.Duration
}

// NewRateLimiter creates a limiter allowing limit attempts per window.
func NewRateLimiter(client redis.Scripter, name string, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{client: client, name: name, limit: limit, window: window}
}

// Allow counts one attempt for key.
func (r *RateLimiter) Allow(ctx context.Context, key string) (ports.RateDecision, error) {
	res, err := incrWindow.Run(ctx, r.client, []string{r.key(key)}, r.window.Milliseconds()).Int64Slice()
	if err != nil {
		return ports.RateDecision{}, fmt.Errorf("rate limit incr: %w", err)
	}
	if len(res) != 2 {
		return ports.RateDecision{}, fmt.Errorf("rate limit incr: unexpected reply %v", res)
	}

	count, ttl := int(res[0]), time.Duration(res[1])*time.Millisecond
	d := ports.RateDecision{Limit: r.limit}
	if count > r.limit {
		if ttl <= 0 {
			ttl = r.window
		}
		d.RetryAfter = ttl
		return d, nil
	}
	d.Allowed = true
	d.Remaining = r.limit - count
	return d, nil
}

func (r *RateLimiter) key(clientKey string) string {
	return fmt.Sprintf("ratelimit:%s:%s", r.name, clientKey)
}
