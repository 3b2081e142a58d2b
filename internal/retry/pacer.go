package retry

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"refinery/internal/services"
)

// NewPacer returns a limiter that admits one logical remote request per delay.
// Every caller that talks to the remote service shares the same pacer so the
// configured spacing holds regardless of item concurrency. A non-positive
// delay disables pacing.
func NewPacer(delay time.Duration) *rate.Limiter {
	if delay <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(delay), 1)
}

// Pace blocks until limiter admits one request. A nil limiter admits
// immediately. Cancellation returns the context's error unchanged; a limiter
// that cannot admit before the context deadline yields a transient error.
func Pace(ctx context.Context, limiter *rate.Limiter) error {
	if limiter == nil {
		return ctx.Err()
	}
	if err := limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return services.Wrap(services.KindTransient, "pace", "wait for call slot", err)
	}
	return nil
}
