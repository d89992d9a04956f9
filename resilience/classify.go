package resilience

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"syscall"
)

// Kind is the classification of a failed attempt.
type Kind int

const (
	// KindFatal is a failure no retry can fix, such as a malformed request.
	KindFatal Kind = iota
	// KindTransient covers network errors and retryable server errors.
	KindTransient
	// KindTimeout is an attempt that ran past its deadline.
	KindTimeout
	// KindRateLimited is a server-side budget rejection (HTTP 429).
	KindRateLimited
	// KindAuth is a credential rejection (HTTP 401/403).
	KindAuth
	// KindNoAccess is an endpoint outside the credential's tier (HTTP 404).
	KindNoAccess
	// KindTokenInsufficient means the local budget could not be acquired.
	KindTokenInsufficient
	// KindCanceled means the caller gave up.
	KindCanceled
)

// String returns the telemetry name of the kind.
func (k Kind) String() string {
	switch k {
	case KindFatal:
		return "fatal"
	case KindTransient:
		return "transient"
	case KindTimeout:
		return "timeout"
	case KindRateLimited:
		return "rate_limited"
	case KindAuth:
		return "auth"
	case KindNoAccess:
		return "no_access"
	case KindTokenInsufficient:
		return "token_insufficient"
	case KindCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Retryable reports whether errors of this kind are worth another attempt.
func (k Kind) Retryable() bool {
	switch k {
	case KindTransient, KindTimeout, KindRateLimited:
		return true
	default:
		return false
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindTransient:
		return ErrTransient
	case KindTimeout:
		return ErrTimeout
	case KindRateLimited:
		return ErrRateLimited
	case KindAuth:
		return ErrAuth
	case KindNoAccess:
		return ErrNoAccess
	case KindTokenInsufficient:
		return ErrTokenInsufficient
	case KindCanceled:
		return context.Canceled
	default:
		return ErrFatal
	}
}

// Classify returns err as a ClassifiedError. Errors that are already
// classified pass through unchanged, so classification happens once at the
// lowest level that understands the failure.
func Classify(err error) *ClassifiedError {
	if err == nil {
		return nil
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce
	}

	var se *StatusError
	if errors.As(err, &se) {
		return ClassifyStatus(se.Status, nil, err)
	}

	var tie *TokenInsufficientError
	if errors.As(err, &tie) {
		return &ClassifiedError{Kind: KindTokenInsufficient, Err: err}
	}

	switch {
	case errors.Is(err, context.Canceled):
		return &ClassifiedError{Kind: KindCanceled, Err: err}
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return &ClassifiedError{Kind: KindTimeout, Err: err}
	case errors.Is(err, ErrBulkheadFull), errors.Is(err, ErrCircuitOpen):
		return &ClassifiedError{Kind: KindTransient, Err: err}
	case errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.EPIPE):
		return &ClassifiedError{Kind: KindTransient, Err: err}
	}

	var ne net.Error
	if errors.As(err, &ne) {
		if ne.Timeout() {
			return &ClassifiedError{Kind: KindTimeout, Err: err}
		}
		return &ClassifiedError{Kind: KindTransient, Err: err}
	}

	return &ClassifiedError{Kind: KindFatal, Err: err}
}

// ClassifyStatus classifies a non-success HTTP status. A 429 always carries a
// hint with zero tokens left so the local bucket stops issuing budget.
func ClassifyStatus(status int, hint *BudgetHint, err error) *ClassifiedError {
	if err == nil {
		err = &StatusError{Status: status}
	}

	ce := &ClassifiedError{Status: status, Hint: hint, Err: err}
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		ce.Kind = KindAuth
	case status == http.StatusNotFound:
		ce.Kind = KindNoAccess
	case status == http.StatusTooManyRequests:
		ce.Kind = KindRateLimited
		ce.Hint = hint.withZeroTokens()
	case status == http.StatusRequestTimeout, status == http.StatusGatewayTimeout:
		ce.Kind = KindTimeout
	case status >= 500:
		ce.Kind = KindTransient
	default:
		ce.Kind = KindFatal
	}
	return ce
}

// IsRetryable is the default retry predicate.
func IsRetryable(err error) bool {
	ce := Classify(err)
	return ce != nil && ce.Retryable()
}

// KindOf returns the kind of err, or KindFatal for unclassifiable errors.
func KindOf(err error) Kind {
	if ce := Classify(err); ce != nil {
		return ce.Kind
	}
	return KindFatal
}
