package resilience

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// BulkheadConfig configures a Bulkhead.
type BulkheadConfig struct {
	// MaxConcurrent is the number of attempts that may be in flight against
	// the upstream at once.
	// Default: 4
	MaxConcurrent int

	// MaxWait is how long an attempt queues for a slot. Zero fails at once.
	MaxWait time.Duration
}

// Bulkhead caps in-flight upstream attempts. It sits after the token bucket,
// so an attempt waiting here has already paid for its call.
type Bulkhead struct {
	size int
	wait time.Duration
	sem  *semaphore.Weighted

	mu       sync.Mutex
	inFlight int
	peak     int
	rejected int64
}

// NewBulkhead creates a bulkhead.
func NewBulkhead(config BulkheadConfig) *Bulkhead {
	size := config.MaxConcurrent
	if size <= 0 {
		size = 4
	}
	return &Bulkhead{
		size: size,
		wait: config.MaxWait,
		sem:  semaphore.NewWeighted(int64(size)),
	}
}

// Acquire takes a slot, queueing up to MaxWait. It returns ErrBulkheadFull
// when none frees up and the caller's context error when that ends first.
func (b *Bulkhead) Acquire(ctx context.Context) error {
	if b.sem.TryAcquire(1) {
		b.adjust(1)
		return nil
	}
	if b.wait <= 0 {
		b.countRejection()
		return ErrBulkheadFull
	}

	waitCtx, cancel := context.WithTimeout(ctx, b.wait)
	defer cancel()
	if err := b.sem.Acquire(waitCtx, 1); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		b.countRejection()
		return ErrBulkheadFull
	}
	b.adjust(1)
	return nil
}

// Release returns a slot taken by a successful Acquire.
func (b *Bulkhead) Release() {
	b.adjust(-1)
	b.sem.Release(1)
}

// Execute runs op while holding a slot.
func (b *Bulkhead) Execute(ctx context.Context, op func(context.Context) error) error {
	if err := b.Acquire(ctx); err != nil {
		return err
	}
	defer b.Release()
	return op(ctx)
}

func (b *Bulkhead) adjust(delta int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inFlight += delta
	if b.inFlight > b.peak {
		b.peak = b.inFlight
	}
}

func (b *Bulkhead) countRejection() {
	b.mu.Lock()
	b.rejected++
	b.mu.Unlock()
}

// Metrics returns a snapshot of slot usage.
func (b *Bulkhead) Metrics() BulkheadMetrics {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BulkheadMetrics{
		Active:        b.inFlight,
		MaxActive:     b.peak,
		Available:     b.size - b.inFlight,
		MaxConcurrent: b.size,
		Rejected:      b.rejected,
	}
}

// BulkheadMetrics describes slot usage since creation.
type BulkheadMetrics struct {
	Active        int   `json:"active"`
	MaxActive     int   `json:"maxActive"`
	Available     int   `json:"available"`
	MaxConcurrent int   `json:"maxConcurrent"`
	Rejected      int64 `json:"rejected"`
}
