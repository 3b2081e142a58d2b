package retry

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"log/slog"
	"math"
	"time"

	"refinery/internal/config"
	"refinery/internal/logging"
	"refinery/internal/services"
)

// Policy is an exponential backoff schedule. Attempt 1 runs immediately;
// before retry r the executor sleeps delay_r (times 1+U with jitter), where
// delay_1 is InitialDelay and each following delay is the previous one
// multiplied by Base.
type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Base         float64
	Jitter       bool
}

// DefaultPolicy matches the remote service defaults: five attempts starting at
// one second and doubling, with jitter.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 5, InitialDelay: time.Second, Base: 2.0, Jitter: true}
}

// PolicyFrom reads the retry section of cfg.
func PolicyFrom(cfg *config.Config) Policy {
	if cfg == nil {
		return DefaultPolicy()
	}
	return Policy{
		MaxAttempts:  cfg.Retry.MaxAttempts,
		InitialDelay: cfg.RetryInitialDelay(),
		Base:         cfg.Retry.BackoffBase,
		Jitter:       cfg.Retry.Jitter,
	}
}

// Delay returns the un-jittered wait before retry number r (1-based).
func (p Policy) Delay(r int) time.Duration {
	if r < 1 || p.InitialDelay <= 0 {
		return 0
	}
	base := p.Base
	if base < 1 {
		base = 1
	}
	delay := float64(p.InitialDelay)
	for i := 1; i < r; i++ {
		delay *= base
		if delay > float64(maxDelay) {
			return maxDelay
		}
	}
	return time.Duration(delay)
}

func (p Policy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// maxDelay keeps delay and its jittered double inside time.Duration. It is an
// overflow guard only; real schedules end at MaxAttempts long before it.
const maxDelay = time.Duration(math.MaxInt64 / 4)

// Operation is one unit of remote work that may be attempted several times.
type Operation interface {
	Attempt(ctx context.Context) error
}

// OperationFunc adapts a function to Operation.
type OperationFunc func(ctx context.Context) error

// Attempt calls f(ctx).
func (f OperationFunc) Attempt(ctx context.Context) error { return f(ctx) }

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Executor runs operations under a Policy. The zero value is not usable; build
// one with NewExecutor.
type Executor struct {
	policy Policy
	logger *slog.Logger
	sleep  Sleeper
	random func() float64
}

// Option customizes an Executor.
type Option func(*Executor)

// WithSleeper overrides how retry waits are performed (useful for tests).
func WithSleeper(sleeper Sleeper) Option {
	return func(e *Executor) {
		if sleeper != nil {
			e.sleep = sleeper
		}
	}
}

// WithRandom overrides the jitter source. fn must return values in [0,1).
func WithRandom(fn func() float64) Option {
	return func(e *Executor) {
		if fn != nil {
			e.random = fn
		}
	}
}

// NewExecutor constructs an executor for policy.
func NewExecutor(policy Policy, logger *slog.Logger, opts ...Option) *Executor {
	e := &Executor{
		policy: policy,
		logger: logging.NewComponentLogger(logger, "retry"),
		sleep:  sleepContext,
		random: secureFloat,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Policy returns the executor's schedule.
func (e *Executor) Policy() Policy {
	return e.policy
}

// Execute runs op until it succeeds, fails with a non-retryable error, or the
// attempt budget is spent. The last error is returned unchanged so callers can
// still classify it.
func (e *Executor) Execute(ctx context.Context, op Operation) error {
	if op == nil {
		return errors.New("retry: nil operation")
	}
	attempts := e.policy.attempts()
	logger := logging.WithContext(ctx, e.logger)

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		err = op.Attempt(ctx)
		if err == nil {
			return nil
		}
		if !services.Retryable(err) {
			return err
		}
		if attempt == attempts {
			break
		}

		delay := e.wait(attempt)
		attrs := []any{
			logging.Int("attempt", attempt+1),
			logging.Int("max_attempts", attempts),
			logging.Duration("delay", delay),
			logging.Kind(err),
			logging.Error(err),
			logging.Event("retry_scheduled"),
		}
		if hint := services.RetryAfter(err); hint > 0 {
			attrs = append(attrs, logging.Duration("retry_after", hint))
		}
		logger.Warn("retrying remote call", attrs...)
		if sleepErr := e.sleep(ctx, delay); sleepErr != nil {
			return sleepErr
		}
	}

	logger.Error("remote call failed after retries",
		logging.Int("max_attempts", attempts),
		logging.Kind(err),
		logging.Error(err),
		logging.Event("retry_exhausted"),
		logging.Hint("check service status and rate limits; the batch will be retried on the next run"),
	)
	return err
}

func (e *Executor) wait(retry int) time.Duration {
	delay := e.policy.Delay(retry)
	if !e.policy.Jitter || delay <= 0 {
		return delay
	}
	u := e.random()
	if u < 0 || u >= 1 {
		u = 0
	}
	return time.Duration(float64(delay) * (1 + u))
}

// Do runs fn through ex and returns its value from the successful attempt.
func Do[T any](ctx context.Context, ex *Executor, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := ex.Execute(ctx, OperationFunc(func(ctx context.Context) error {
		value, err := fn(ctx)
		if err != nil {
			return err
		}
		result = value
		return nil
	}))
	return result, err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// secureFloat returns a uniform value in [0,1) from crypto/rand.
func secureFloat() float64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0
	}
	return float64(binary.BigEndian.Uint64(buf[:])>>11) / (1 << 53)
}
