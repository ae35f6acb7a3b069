package kv

import (
	"context"
	"fmt"
	"time"
)

// RateLimitResult is the outcome of a single rate-limit check
type RateLimitResult struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// RateLimiter is a fixed-window limiter shared by all service instances.
//
// The window expiry is armed only on the increment that creates the counter;
// later increments never re-arm it, so a burst cannot extend the window.
// Fixed windows allow up to twice the limit across a window boundary; that
// approximation is deliberate.
type RateLimiter struct {
	store  Store
	prefix string
}

// NewRateLimiter creates a limiter on the given store
func NewRateLimiter(store Store) *RateLimiter {
	return &RateLimiter{store: store, prefix: "ratelimit:"}
}

// Check counts one request against key and reports whether it is allowed
func (r *RateLimiter) Check(ctx context.Context, key string, limit int, window time.Duration) (RateLimitResult, error) {
	counterKey := r.prefix + key

	count, err := r.store.Incr(ctx, counterKey)
	if err != nil {
		return RateLimitResult{}, fmt.Errorf("rate limit increment: %w", err)
	}

	if count == 1 {
		if _, err := r.store.Expire(ctx, counterKey, window); err != nil {
			return RateLimitResult{}, fmt.Errorf("rate limit window arm: %w", err)
		}
	}

	resetAt := time.Now().Add(window)
	if ttl, err := r.store.TTL(ctx, counterKey); err == nil && ttl > 0 {
		resetAt = time.Now().Add(ttl)
	}

	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}

	return RateLimitResult{
		Allowed:   count <= int64(limit),
		Remaining: remaining,
		ResetAt:   resetAt,
	}, nil
}
