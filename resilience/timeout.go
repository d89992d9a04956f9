package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultAttemptTimeout bounds an attempt when no limit is configured.
const DefaultAttemptTimeout = 60 * time.Second

// AttemptDeadline bounds a single transport attempt. A retry loop owns one
// and runs every attempt through it, so a hung upstream costs one attempt
// instead of the caller's whole deadline.
type AttemptDeadline struct {
	limit time.Duration
}

// NewAttemptDeadline returns a deadline of limit, or DefaultAttemptTimeout
// when limit is not positive.
func NewAttemptDeadline(limit time.Duration) AttemptDeadline {
	if limit <= 0 {
		limit = DefaultAttemptTimeout
	}
	return AttemptDeadline{limit: limit}
}

// Limit returns the per-attempt limit.
func (d AttemptDeadline) Limit() time.Duration { return d.limit }

// Run calls op under the deadline. Overrunning it yields an error matching
// ErrTimeout, whether op noticed the deadline itself or ignored its context;
// in the latter case op keeps running in the background until it returns.
// Cancellation by the parent context is returned as is.
func (d AttemptDeadline) Run(ctx context.Context, op func(context.Context) error) error {
	attemptCtx, cancel := context.WithTimeout(ctx, d.limit)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- op(attemptCtx) }()

	var err error
	select {
	case err = <-done:
	case <-attemptCtx.Done():
		err = attemptCtx.Err()
	}

	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if err == attemptCtx.Err() {
		return fmt.Errorf("%w after %s", ErrTimeout, d.limit)
	}
	return fmt.Errorf("%w after %s: %w", ErrTimeout, d.limit, err)
}
