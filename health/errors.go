package health

import "errors"

var (
	// ErrCheckTimeout is set on results of checks that did not return before
	// the aggregator's deadline.
	ErrCheckTimeout = errors.New("health: check timeout")

	// ErrCheckerNotFound is returned when a named check is not registered.
	ErrCheckerNotFound = errors.New("health: checker not found")

	// ErrAuthRejected is set on budget results while a recent auth failure
	// is inside the window.
	ErrAuthRejected = errors.New("health: upstream rejected credentials")
)
