package core

import (
	"context"
	"time"
)

// RateLimiter counts hits per key over fixed windows.
type RateLimiter interface {
	// Allow records a hit on key and reports whether it stays within `limit` hits per window.
	// retryAfter is the time left in the window when the hit is refused.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (allowed bool, retryAfter time.Duration, err error)
}
