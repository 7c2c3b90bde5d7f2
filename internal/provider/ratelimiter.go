package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// RateLimiter is a named token bucket shared by all calls to one upstream API.
type RateLimiter struct {
	name string
	lim  *rate.Limiter
}

// NewRateLimiter allows bursts of burst calls and refills one token every
// interval.
func NewRateLimiter(name string, burst int, interval time.Duration) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{name: name, lim: rate.NewLimiter(rate.Every(interval), burst)}
}

// Wait blocks until a token is available. It fails early when ctx would
// expire before the next token.
func (r *RateLimiter) Wait(ctx context.Context) error {
	if r.lim.Allow() {
		return nil
	}
	log.Debug().Str("provider", r.name).Msg("rate limited, waiting for token")
	if err := r.lim.Wait(ctx); err != nil {
		return fmt.Errorf("%s rate limit: %w", r.name, err)
	}
	return nil
}
