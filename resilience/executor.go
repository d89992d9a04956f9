package resilience

import "context"

// Executor gates a single attempt on its way to the transport: pacing first,
// then a concurrency slot. Either stage may be left out.
type Executor struct {
	pacer    *Pacer
	bulkhead *Bulkhead
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// NewExecutor creates an attempt gate.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// WithPacer adds request pacing.
func WithPacer(p *Pacer) ExecutorOption {
	return func(e *Executor) {
		e.pacer = p
	}
}

// WithBulkhead adds a concurrency cap.
func WithBulkhead(b *Bulkhead) ExecutorOption {
	return func(e *Executor) {
		e.bulkhead = b
	}
}

// Execute runs op once through the configured stages. The pacer is waited on
// before a bulkhead slot is taken, so paced callers never hold a slot idle.
func (e *Executor) Execute(ctx context.Context, op func(context.Context) error) error {
	if e.pacer != nil {
		if err := e.pacer.Wait(ctx); err != nil {
			return err
		}
	}
	if e.bulkhead != nil {
		return e.bulkhead.Execute(ctx, op)
	}
	return op(ctx)
}

// Pacer returns the configured pacer, or nil.
func (e *Executor) Pacer() *Pacer { return e.pacer }

// Bulkhead returns the configured bulkhead, or nil.
func (e *Executor) Bulkhead() *Bulkhead { return e.bulkhead }
