package memory

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

// RateLimiter is a single-process fixed-window counter.
type RateLimiter struct {
	c *cache.Cache
}

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{c: cache.New(time.Minute, time.Minute)}
}

func (r *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	// Add only succeeds for the first hit of a window.
	_ = r.c.Add(key, 0, window)
	n, err := r.c.IncrementInt(key, 1)
	if err != nil {
		// window expired between Add and Increment
		r.c.Set(key, 1, window)
		n = 1
	}
	return n <= limit, nil
}
