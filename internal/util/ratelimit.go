package util

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter paces calls against the market-data API.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter creates a RateLimiter that allows perMinute operations per
// minute with a burst of one. A non-positive perMinute disables limiting.
func NewRateLimiter(perMinute int) *RateLimiter {
	if perMinute <= 0 {
		return &RateLimiter{}
	}
	return &RateLimiter{limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)}
}

// Wait blocks until a token is available or the context is done. It fails
// early when the context deadline would pass before the next token.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	if rl.limiter == nil {
		return ctx.Err()
	}
	return rl.limiter.Wait(ctx)
}
