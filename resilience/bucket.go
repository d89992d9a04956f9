package resilience

import (
	"context"
	"sync"
	"time"
)

// TokenBucketConfig configures a fixed-window token bucket.
type TokenBucketConfig struct {
	// Capacity is the number of tokens granted per window.
	// Default: 20
	Capacity int

	// Window is the refill period.
	// Default: 60 seconds
	Window time.Duration

	// Initial is the starting balance, clamped to [0, Capacity].
	// Default: Capacity
	Initial *int

	// Clock returns the current time.
	// Default: time.Now
	Clock func() time.Time

	// OnRefill is called with the number of tokens restored by a refill.
	// It runs while the bucket lock is held and must not call back into it.
	OnRefill func(added int)
}

// BucketStatus is a point-in-time view of a TokenBucket.
type BucketStatus struct {
	Available       int           `json:"available"`
	Capacity        int           `json:"capacity"`
	Window          time.Duration `json:"window"`
	WindowStart     time.Time     `json:"windowStart"`
	TimeUntilRefill time.Duration `json:"timeUntilRefill"`
}

// TokenBucket tracks a client-side estimate of an upstream token budget.
// The whole balance is restored once per window, lazily, on the first access
// after the window elapses. Server hints overwrite the local estimate.
type TokenBucket struct {
	config TokenBucketConfig
	now    func() time.Time

	mu          sync.Mutex
	capacity    int
	window      time.Duration
	available   int
	windowStart time.Time
}

// NewTokenBucket creates a token bucket.
func NewTokenBucket(config TokenBucketConfig) *TokenBucket {
	// Apply defaults
	if config.Capacity <= 0 {
		config.Capacity = 20
	}
	if config.Window <= 0 {
		config.Window = 60 * time.Second
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}

	initial := config.Capacity
	if config.Initial != nil {
		initial = clamp(*config.Initial, 0, config.Capacity)
	}

	return &TokenBucket{
		config:      config,
		now:         config.Clock,
		capacity:    config.Capacity,
		window:      config.Window,
		available:   initial,
		windowStart: config.Clock(),
	}
}

// TryConsume takes cost tokens if they are available. It never blocks.
// A non-positive cost is rejected.
func (b *TokenBucket) TryConsume(cost int) bool {
	if cost <= 0 {
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	return b.consumeLocked(cost, b.now())
}

// WaitForTokens blocks until cost tokens are consumed, maxWait elapses or ctx
// is done. Between checks it sleeps for pollInterval or until the next refill,
// whichever comes first. It returns how long it waited.
//
// A cost larger than the bucket's capacity fails immediately with a permanent
// TokenInsufficientError. Cancellation consumes nothing.
func (b *TokenBucket) WaitForTokens(ctx context.Context, cost int, maxWait, pollInterval time.Duration) (time.Duration, error) {
	if cost <= 0 {
		return 0, ErrInvalidCost
	}
	if pollInterval <= 0 {
		pollInterval = time.Second
	}

	start := b.now()
	for {
		if err := ctx.Err(); err != nil {
			return b.now().Sub(start), err
		}

		b.mu.Lock()
		now := b.now()
		waited := now.Sub(start)
		if cost > b.capacity {
			err := b.insufficientLocked(cost, waited)
			err.Permanent = true
			b.mu.Unlock()
			return waited, err
		}
		if b.consumeLocked(cost, now) {
			b.mu.Unlock()
			return waited, nil
		}
		if waited >= maxWait {
			err := b.insufficientLocked(cost, waited)
			b.mu.Unlock()
			return waited, err
		}
		sleep := min(pollInterval, b.untilRefillLocked(now), maxWait-waited)
		b.mu.Unlock()

		if sleep < time.Millisecond {
			sleep = time.Millisecond
		}

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return b.now().Sub(start), ctx.Err()
		case <-timer.C:
		}
	}
}

// Reconcile overwrites the local estimate with the server's view. Applying
// the same hint twice at the same instant has the same effect as once.
func (b *TokenBucket) Reconcile(h BudgetHint) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.refillLocked(now)

	if h.RefillRate != nil && *h.RefillRate > 0 {
		b.capacity = *h.RefillRate
	}
	if h.RefillInterval != nil && *h.RefillInterval > 0 {
		b.window = *h.RefillInterval
	}
	if h.RefillIn != nil && *h.RefillIn >= 0 {
		// Next refill lands at now+RefillIn; may place windowStart in the future.
		b.windowStart = now.Add(*h.RefillIn - b.window)
	}
	if h.TokensLeft != nil {
		b.available = *h.TokensLeft
	}
	b.available = clamp(b.available, 0, b.capacity)
}

// Status returns a snapshot of the bucket.
func (b *TokenBucket) Status() BucketStatus {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.refillLocked(now)

	return BucketStatus{
		Available:       b.available,
		Capacity:        b.capacity,
		Window:          b.window,
		WindowStart:     b.windowStart,
		TimeUntilRefill: b.untilRefillLocked(now),
	}
}

// Available returns the current token count.
func (b *TokenBucket) Available() int {
	return b.Status().Available
}

func (b *TokenBucket) refillLocked(now time.Time) int {
	if now.Sub(b.windowStart) < b.window {
		return 0
	}
	added := b.capacity - b.available
	b.available = b.capacity
	b.windowStart = now
	if added > 0 && b.config.OnRefill != nil {
		b.config.OnRefill(added)
	}
	return added
}

func (b *TokenBucket) consumeLocked(cost int, now time.Time) bool {
	b.refillLocked(now)
	if b.available < cost {
		return false
	}
	b.available -= cost
	return true
}

func (b *TokenBucket) untilRefillLocked(now time.Time) time.Duration {
	d := b.windowStart.Add(b.window).Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

func (b *TokenBucket) insufficientLocked(cost int, waited time.Duration) *TokenInsufficientError {
	return &TokenInsufficientError{
		Requested: cost,
		Available: b.available,
		Capacity:  b.capacity,
		Waited:    waited,
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
