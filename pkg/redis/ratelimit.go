package redis

import (
	"context"
	"fmt"
	"time"
)

// RateDecision is the outcome of counting one request against a window.
type RateDecision struct {
	Allowed bool
	Count   int64
	// RetryAfter is the time left in the current window. It is zero when the
	// request was allowed or the TTL could not be read.
	RetryAfter time.Duration
}

// RateLimiter is what the throttling middleware needs.
type RateLimiter interface {
	Allow(ctx context.Context, scope string, limit int64, window time.Duration) (RateDecision, error)
}

// Allow counts a request in the fixed window for scope. The window starts
// with the first request and its key expires when the window ends.
func (c *Client) Allow(ctx context.Context, scope string, limit int64, window time.Duration) (RateDecision, error) {
	if c.cmd == nil {
		return RateDecision{}, errNotInitialized
	}
	key := c.RateLimitKey(scope)
	count, err := c.cmd.Incr(ctx, key).Result()
	if err != nil {
		return RateDecision{}, fmt.Errorf("increment %s: %w", key, err)
	}
	if count == 1 && window > 0 {
		if err := c.cmd.Expire(ctx, key, window).Err(); err != nil {
			return RateDecision{}, fmt.Errorf("expire %s: %w", key, err)
		}
	}

	decision := RateDecision{Allowed: count <= limit, Count: count}
	if !decision.Allowed {
		if ttl, err := c.cmd.TTL(ctx, key).Result(); err == nil && ttl > 0 {
			decision.RetryAfter = ttl
		}
	}
	return decision, nil
}
