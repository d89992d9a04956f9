package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// RetryConfig configures the retry behavior. A Retry never mutates its
// config, so one value can be shared by every call to an operation.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including initial).
	// Default: 3
	MaxAttempts int

	// BaseBackoff is the delay before the first retry.
	// Default: 2s
	BaseBackoff time.Duration

	// MaxBackoff caps the delay between retries.
	// Default: 30s
	MaxBackoff time.Duration

	// Multiplier is the exponential growth factor.
	// Default: 2.0
	Multiplier float64

	// Jitter adds up to 25% random delay on top of the computed backoff.
	// Default: false
	Jitter bool

	// PerAttemptTimeout bounds each attempt individually.
	// Default: 60s
	PerAttemptTimeout time.Duration

	// RetryIf determines if an error should trigger a retry.
	// Default: IsRetryable
	RetryIf func(err error) bool

	// OnRetry is called before sleeping ahead of the next attempt.
	OnRetry func(attempt int, err *ClassifiedError, delay time.Duration)
}

// DefaultRetryConfig returns the defaults used for an empty config.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		BaseBackoff:       2 * time.Second,
		MaxBackoff:        30 * time.Second,
		Multiplier:        2.0,
		PerAttemptTimeout: 60 * time.Second,
	}
}

// Retry runs an operation with bounded attempts, exponential backoff and a
// per-attempt timeout.
type Retry struct {
	config   RetryConfig
	deadline AttemptDeadline
}

// NewRetry creates a new retry handler.
func NewRetry(config RetryConfig) *Retry {
	def := DefaultRetryConfig()
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = def.MaxAttempts
	}
	if config.BaseBackoff <= 0 {
		config.BaseBackoff = def.BaseBackoff
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = def.MaxBackoff
	}
	if config.Multiplier <= 0 {
		config.Multiplier = def.Multiplier
	}
	if config.PerAttemptTimeout <= 0 {
		config.PerAttemptTimeout = def.PerAttemptTimeout
	}
	if config.RetryIf == nil {
		config.RetryIf = IsRetryable
	}

	return &Retry{
		config:   config,
		deadline: NewAttemptDeadline(config.PerAttemptTimeout),
	}
}

// Run runs the operation with retry logic and reports how many attempts
// were made. Failures come back classified: a fatal error is returned as
// soon as it happens, and running out of attempts yields an ExhaustedError
// wrapping the last failure.
func (r *Retry) Run(ctx context.Context, op func(context.Context) error) (int, error) {
	var last *ClassifiedError

	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		err := r.deadline.Run(context.WithValue(ctx, attemptKey{}, attempt), op)
		if err == nil {
			return attempt, nil
		}

		// The caller's own deadline or cancellation ends the loop.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return attempt, ctxErr
		}

		last = Classify(err)
		if !r.config.RetryIf(last) {
			return attempt, last
		}

		if attempt >= r.config.MaxAttempts {
			break
		}

		delay := r.Backoff(attempt)
		if r.config.OnRetry != nil {
			r.config.OnRetry(attempt, last, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt, ctx.Err()
		case <-timer.C:
		}
	}

	return r.config.MaxAttempts, &ExhaustedError{Attempts: r.config.MaxAttempts, Last: last}
}

type attemptKey struct{}

// AttemptFromContext returns the 1-based attempt number Run placed in ctx,
// or 0 outside a retry loop.
func AttemptFromContext(ctx context.Context) int {
	n, _ := ctx.Value(attemptKey{}).(int)
	return n
}

// Backoff returns the delay after the given 1-based attempt:
// min(BaseBackoff * Multiplier^(attempt-1), MaxBackoff), plus jitter if enabled.
func (r *Retry) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	multiplier := math.Pow(r.config.Multiplier, float64(attempt-1))
	raw := float64(r.config.BaseBackoff) * multiplier

	delay := r.config.MaxBackoff
	if raw < float64(r.config.MaxBackoff) {
		delay = time.Duration(raw)
	}

	if r.config.Jitter && delay >= 4 {
		// #nosec G404 -- jitter is non-cryptographic timing variance.
		jitter := time.Duration(rand.Int64N(int64(delay / 4)))
		delay += jitter
	}

	return delay
}

