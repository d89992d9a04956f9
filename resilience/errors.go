package resilience

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for resilience operations.
var (
	// ErrCircuitOpen is returned when the circuit breaker is open.
	ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

	// ErrBulkheadFull is returned when the bulkhead is at capacity.
	ErrBulkheadFull = errors.New("resilience: bulkhead at capacity")

	// ErrTimeout is returned when an attempt exceeds its deadline.
	ErrTimeout = errors.New("resilience: operation timed out")

	// ErrInvalidCost is returned for token costs that are zero or negative.
	ErrInvalidCost = errors.New("resilience: token cost must be positive")

	// ErrTokenInsufficient is matched by every TokenInsufficientError.
	ErrTokenInsufficient = errors.New("resilience: insufficient tokens")

	// ErrExhausted is matched by every ExhaustedError.
	ErrExhausted = errors.New("resilience: retry attempts exhausted")

	// ErrAuth marks credential failures. Never retried.
	ErrAuth = errors.New("resilience: authentication failed")

	// ErrNoAccess marks endpoints the credential tier cannot reach.
	// Never retried; callers are expected to degrade.
	ErrNoAccess = errors.New("resilience: endpoint not accessible")

	// ErrRateLimited marks a server-side rate limit rejection.
	ErrRateLimited = errors.New("resilience: rate limited by server")

	// ErrTransient marks network failures and retryable server errors.
	ErrTransient = errors.New("resilience: transient failure")

	// ErrFatal marks failures that no retry can fix.
	ErrFatal = errors.New("resilience: fatal failure")
)

// TokenInsufficientError reports that a call could not acquire its budget.
//
// Permanent is set when the cost can never fit in the bucket; otherwise the
// wait ran out and the call can be deferred and tried later.
type TokenInsufficientError struct {
	Requested int
	Available int
	Capacity  int
	Waited    time.Duration
	Permanent bool
}

func (e *TokenInsufficientError) Error() string {
	if e.Permanent {
		return fmt.Sprintf("resilience: cost %d exceeds bucket capacity %d", e.Requested, e.Capacity)
	}
	return fmt.Sprintf("resilience: insufficient tokens after %s: need %d, have %d",
		e.Waited.Round(time.Millisecond), e.Requested, e.Available)
}

// Is reports whether target is ErrTokenInsufficient.
func (e *TokenInsufficientError) Is(target error) bool {
	return target == ErrTokenInsufficient
}

// ExhaustedError is returned when every attempt failed with a retryable error.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("resilience: retry attempts exhausted after %d attempts: %v", e.Attempts, e.Last)
}

// Is reports whether target is ErrExhausted.
func (e *ExhaustedError) Is(target error) bool {
	return target == ErrExhausted
}

// Unwrap returns the last attempt's error.
func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// StatusError is a raw non-success status reported by a transport.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("resilience: upstream status %d", e.Status)
	}
	return fmt.Sprintf("resilience: upstream status %d: %s", e.Status, e.Body)
}

// ClassifiedError carries the failure kind decided at the transport
// boundary, plus any budget hint the server sent along with it.
type ClassifiedError struct {
	Kind   Kind
	Status int
	Hint   *BudgetHint
	Err    error
}

func (e *ClassifiedError) Error() string {
	if e.Err == nil {
		return e.Kind.sentinel().Error()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

// Is matches the sentinel for the error's kind.
func (e *ClassifiedError) Is(target error) bool {
	return target == e.Kind.sentinel()
}

func (e *ClassifiedError) Unwrap() error {
	return e.Err
}

// Retryable reports whether another attempt may succeed.
func (e *ClassifiedError) Retryable() bool {
	return e.Kind.Retryable()
}
