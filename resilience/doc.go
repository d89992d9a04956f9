// Package resilience provides the budget and failure-handling primitives used
// to call a metered upstream API.
//
// # Primitives
//
//   - TokenBucket: a fixed-window estimate of the upstream token budget.
//     The full balance is restored once per window, lazily on access, and
//     server hints (BudgetHint) overwrite the local estimate.
//
//   - Retry: bounded attempts with exponential backoff and a per-attempt
//     timeout. Failures are classified once (Classify) into a Kind, and only
//     transient, timeout and rate-limited failures are retried.
//
//   - CircuitBreaker: stops spending budget on an upstream that keeps failing.
//
//   - Executor: the per-attempt gate, composed of a Pacer (request spacing,
//     golang.org/x/time/rate) and a Bulkhead (in-flight cap).
//
// # Errors
//
// Every failure returned by Retry can be branched on with errors.Is against
// the package sentinels (ErrAuth, ErrNoAccess, ErrRateLimited, ErrTransient,
// ErrTimeout, ErrFatal) or inspected with errors.As:
//
//	_, err := bucket.WaitForTokens(ctx, 15, 2*time.Minute, 5*time.Second)
//	var short *resilience.TokenInsufficientError
//	if errors.As(err, &short) && !short.Permanent {
//	    // defer the work and try later
//	}
//
//	_, err = resilience.NewRetry(resilience.RetryConfig{}).Run(ctx, call)
//	switch {
//	case errors.Is(err, resilience.ErrNoAccess):
//	    // degrade to a cheaper endpoint
//	case errors.Is(err, resilience.ErrExhausted):
//	    // every attempt failed with a retryable error
//	}
package resilience
