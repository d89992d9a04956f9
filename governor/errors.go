package governor

import "errors"

// Sentinel errors for governor operations.
var (
	// ErrNilTransport is returned by New and Do when no transport is set.
	ErrNilTransport = errors.New("governor: transport is nil")

	// ErrNilAttempt is returned when Call is given no attempt function.
	ErrNilAttempt = errors.New("governor: attempt function is nil")

	// ErrUnknownOperation is returned for names missing from the registry.
	ErrUnknownOperation = errors.New("governor: unknown operation")

	// ErrInvalidOperation is returned for malformed operation definitions.
	ErrInvalidOperation = errors.New("governor: invalid operation")

	// ErrInvalidConfig is returned by New for unusable configuration.
	ErrInvalidConfig = errors.New("governor: invalid config")

	// ErrBodyTooLarge is returned when a response exceeds MaxBodyBytes.
	ErrBodyTooLarge = errors.New("governor: response body too large")
)
