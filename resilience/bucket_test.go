package resilience

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestNewTokenBucket_Defaults(t *testing.T) {
	b := NewTokenBucket(TokenBucketConfig{})
	st := b.Status()

	if st.Capacity != 20 {
		t.Errorf("Capacity = %d, want 20", st.Capacity)
	}
	if st.Window != 60*time.Second {
		t.Errorf("Window = %v, want 60s", st.Window)
	}
	if st.Available != 20 {
		t.Errorf("Available = %d, want 20", st.Available)
	}
}

func TestNewTokenBucket_InitialClamped(t *testing.T) {
	tests := []struct {
		name    string
		initial int
		want    int
	}{
		{"negative", -5, 0},
		{"within", 7, 7},
		{"above capacity", 500, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewTokenBucket(TokenBucketConfig{Capacity: 10, Initial: Int(tt.initial)})
			if got := b.Available(); got != tt.want {
				t.Errorf("Available() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestTokenBucket_TryConsume(t *testing.T) {
	b := NewTokenBucket(TokenBucketConfig{Capacity: 10})

	if !b.TryConsume(4) {
		t.Fatal("TryConsume(4) = false, want true")
	}
	if !b.TryConsume(6) {
		t.Fatal("TryConsume(6) = false, want true")
	}
	if b.TryConsume(1) {
		t.Error("TryConsume(1) on empty bucket = true, want false")
	}
	if got := b.Available(); got != 0 {
		t.Errorf("Available() = %d, want 0", got)
	}
}

func TestTokenBucket_TryConsumeRejectsInvalidCost(t *testing.T) {
	b := NewTokenBucket(TokenBucketConfig{Capacity: 10})

	for _, cost := range []int{0, -1} {
		if b.TryConsume(cost) {
			t.Errorf("TryConsume(%d) = true, want false", cost)
		}
	}
	if got := b.Available(); got != 10 {
		t.Errorf("Available() = %d, want 10 (no mutation)", got)
	}
}

func TestTokenBucket_FailedConsumeDoesNotMutate(t *testing.T) {
	b := NewTokenBucket(TokenBucketConfig{Capacity: 10, Initial: Int(3)})

	if b.TryConsume(5) {
		t.Fatal("TryConsume(5) = true, want false")
	}
	if got := b.Available(); got != 3 {
		t.Errorf("Available() = %d, want 3", got)
	}
}

func TestTokenBucket_RefillAfterWindow(t *testing.T) {
	clock := newFakeClock()
	var refilled int
	b := NewTokenBucket(TokenBucketConfig{
		Capacity: 20,
		Window:   60 * time.Second,
		Clock:    clock.Now,
		OnRefill: func(added int) { refilled += added },
	})

	if !b.TryConsume(20) {
		t.Fatal("TryConsume(20) = false, want true")
	}

	clock.Advance(59 * time.Second)
	if b.TryConsume(1) {
		t.Fatal("TryConsume before window elapsed = true, want false")
	}

	clock.Advance(time.Second)
	if got := b.Available(); got != 20 {
		t.Errorf("Available() after window = %d, want 20", got)
	}
	if refilled != 20 {
		t.Errorf("OnRefill total = %d, want 20", refilled)
	}
	if got := b.Status().TimeUntilRefill; got != 60*time.Second {
		t.Errorf("TimeUntilRefill = %v, want 60s", got)
	}
}

func TestTokenBucket_RefillIsFixedWindow(t *testing.T) {
	clock := newFakeClock()
	var refilled []int
	b := NewTokenBucket(TokenBucketConfig{
		Capacity: 20,
		Window:   time.Minute,
		Clock:    clock.Now,
		OnRefill: func(added int) { refilled = append(refilled, added) },
	})

	b.TryConsume(15)
	clock.Advance(30 * time.Second)

	// Nothing trickles in mid-window.
	if got := b.Available(); got != 5 {
		t.Errorf("Available() mid-window = %d, want 5", got)
	}
	if len(refilled) != 0 {
		t.Errorf("refills mid-window = %v, want none", refilled)
	}

	clock.Advance(30 * time.Second)
	if got := b.Available(); got != 20 {
		t.Errorf("Available() at boundary = %d, want 20", got)
	}
	if len(refilled) != 1 || refilled[0] != 15 {
		t.Errorf("refills = %v, want [15]", refilled)
	}
}

func TestTokenBucket_BoundsUnderRandomOps(t *testing.T) {
	clock := newFakeClock()
	b := NewTokenBucket(TokenBucketConfig{Capacity: 10, Window: time.Second, Clock: clock.Now})

	ops := []func(){
		func() { b.TryConsume(3) },
		func() { b.TryConsume(11) },
		func() { b.Reconcile(BudgetHint{TokensLeft: Int(-4)}) },
		func() { b.Reconcile(BudgetHint{TokensLeft: Int(99)}) },
		func() { b.Reconcile(BudgetHint{RefillRate: Int(5)}) },
		func() { b.Reconcile(BudgetHint{RefillRate: Int(12), TokensLeft: Int(12)}) },
		func() { clock.Advance(700 * time.Millisecond) },
		func() { b.Available() },
	}

	for i := 0; i < 500; i++ {
		ops[(i*7+i/3)%len(ops)]()
		st := b.Status()
		if st.Available < 0 || st.Available > st.Capacity {
			t.Fatalf("step %d: available %d outside [0, %d]", i, st.Available, st.Capacity)
		}
	}
}

func TestTokenBucket_ConcurrentConsumers(t *testing.T) {
	b := NewTokenBucket(TokenBucketConfig{Capacity: 10, Window: time.Hour})

	var wg sync.WaitGroup
	var granted atomic.Int64
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if b.TryConsume(1) {
				granted.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := granted.Load(); got != 10 {
		t.Errorf("granted = %d, want 10", got)
	}
	if got := b.Available(); got != 0 {
		t.Errorf("Available() = %d, want 0", got)
	}
}

func TestTokenBucket_WaitForTokensImmediate(t *testing.T) {
	b := NewTokenBucket(TokenBucketConfig{Capacity: 20})

	waited, err := b.WaitForTokens(context.Background(), 5, time.Second, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("WaitForTokens() error = %v", err)
	}
	if waited > 50*time.Millisecond {
		t.Errorf("waited = %v, want near zero", waited)
	}
	if got := b.Available(); got != 15 {
		t.Errorf("Available() = %d, want 15", got)
	}
}

func TestTokenBucket_WaitForTokensTimeout(t *testing.T) {
	b := NewTokenBucket(TokenBucketConfig{Capacity: 10, Window: time.Hour})
	b.TryConsume(10)

	start := time.Now()
	_, err := b.WaitForTokens(context.Background(), 5, time.Second, 100*time.Millisecond)
	elapsed := time.Since(start)

	var short *TokenInsufficientError
	if !errors.As(err, &short) {
		t.Fatalf("WaitForTokens() error = %v, want TokenInsufficientError", err)
	}
	if short.Permanent {
		t.Error("Permanent = true, want false")
	}
	if short.Requested != 5 || short.Available != 0 {
		t.Errorf("error = %+v, want Requested 5, Available 0", short)
	}
	if !errors.Is(err, ErrTokenInsufficient) {
		t.Error("errors.Is(err, ErrTokenInsufficient) = false")
	}
	if elapsed < time.Second || elapsed > 1500*time.Millisecond {
		t.Errorf("elapsed = %v, want about 1s", elapsed)
	}
}

func TestTokenBucket_WaitForTokensCostAboveCapacity(t *testing.T) {
	b := NewTokenBucket(TokenBucketConfig{Capacity: 20})

	start := time.Now()
	_, err := b.WaitForTokens(context.Background(), 1000, time.Minute, time.Second)

	var short *TokenInsufficientError
	if !errors.As(err, &short) || !short.Permanent {
		t.Fatalf("WaitForTokens() error = %v, want permanent TokenInsufficientError", err)
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Error("cost above capacity did not fail fast")
	}
}

func TestTokenBucket_WaitForTokensInvalidCost(t *testing.T) {
	b := NewTokenBucket(TokenBucketConfig{})

	if _, err := b.WaitForTokens(context.Background(), 0, time.Second, time.Millisecond); !errors.Is(err, ErrInvalidCost) {
		t.Errorf("WaitForTokens(0) error = %v, want ErrInvalidCost", err)
	}
}

func TestTokenBucket_WaitForTokensCancelled(t *testing.T) {
	b := NewTokenBucket(TokenBucketConfig{Capacity: 10, Window: time.Hour})
	b.TryConsume(10)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	_, err := b.WaitForTokens(ctx, 5, time.Minute, 10*time.Millisecond)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("WaitForTokens() error = %v, want context.Canceled", err)
	}

	// A later refill must not be short by the cancelled request.
	b.Reconcile(BudgetHint{TokensLeft: Int(10)})
	if got := b.Available(); got != 10 {
		t.Errorf("Available() = %d, want 10", got)
	}
}

func TestTokenBucket_WaitForTokensWakesAtRefill(t *testing.T) {
	b := NewTokenBucket(TokenBucketConfig{Capacity: 10, Window: 200 * time.Millisecond})
	b.TryConsume(10)

	waited, err := b.WaitForTokens(context.Background(), 10, 2*time.Second, time.Second)
	if err != nil {
		t.Fatalf("WaitForTokens() error = %v", err)
	}
	// The sleep is capped by the time to the next refill, not the poll interval.
	if waited >= time.Second {
		t.Errorf("waited = %v, want well under the 1s poll interval", waited)
	}
}

func TestTokenBucket_WaitForTokensCapacityShrinks(t *testing.T) {
	b := NewTokenBucket(TokenBucketConfig{Capacity: 20, Window: time.Hour})
	b.TryConsume(20)

	go func() {
		time.Sleep(30 * time.Millisecond)
		b.Reconcile(BudgetHint{RefillRate: Int(5)})
	}()

	_, err := b.WaitForTokens(context.Background(), 15, 5*time.Second, 10*time.Millisecond)
	var short *TokenInsufficientError
	if !errors.As(err, &short) || !short.Permanent {
		t.Fatalf("WaitForTokens() error = %v, want permanent failure after capacity shrink", err)
	}
}

func TestTokenBucket_ExpensiveCallsExhaustBudget(t *testing.T) {
	b := NewTokenBucket(TokenBucketConfig{Capacity: 20, Window: 60 * time.Second})
	ctx := context.Background()

	if _, err := b.WaitForTokens(ctx, 15, 2*time.Second, 100*time.Millisecond); err != nil {
		t.Fatalf("first call error = %v", err)
	}
	if got := b.Available(); got != 5 {
		t.Errorf("Available() after first call = %d, want 5", got)
	}

	_, err := b.WaitForTokens(ctx, 15, 2*time.Second, 100*time.Millisecond)
	if !errors.Is(err, ErrTokenInsufficient) {
		t.Fatalf("second call error = %v, want ErrTokenInsufficient", err)
	}
	if got := b.Available(); got != 5 {
		t.Errorf("Available() after failed call = %d, want 5", got)
	}
}

func TestTokenBucket_Reconcile(t *testing.T) {
	clock := newFakeClock()
	b := NewTokenBucket(TokenBucketConfig{Capacity: 20, Window: time.Minute, Clock: clock.Now})

	b.Reconcile(BudgetHint{
		TokensLeft:     Int(7),
		RefillRate:     Int(30),
		RefillInterval: Duration(2 * time.Minute),
		RefillIn:       Duration(10 * time.Second),
	})

	st := b.Status()
	if st.Available != 7 {
		t.Errorf("Available = %d, want 7", st.Available)
	}
	if st.Capacity != 30 {
		t.Errorf("Capacity = %d, want 30", st.Capacity)
	}
	if st.Window != 2*time.Minute {
		t.Errorf("Window = %v, want 2m", st.Window)
	}
	if st.TimeUntilRefill != 10*time.Second {
		t.Errorf("TimeUntilRefill = %v, want 10s", st.TimeUntilRefill)
	}

	clock.Advance(10 * time.Second)
	if got := b.Available(); got != 30 {
		t.Errorf("Available() after RefillIn = %d, want 30", got)
	}
}

func TestTokenBucket_ReconcileRefillInBeyondWindow(t *testing.T) {
	clock := newFakeClock()
	b := NewTokenBucket(TokenBucketConfig{Capacity: 20, Window: time.Minute, Clock: clock.Now})

	b.Reconcile(BudgetHint{TokensLeft: Int(0), RefillIn: Duration(90 * time.Second)})

	clock.Advance(80 * time.Second)
	if got := b.Available(); got != 0 {
		t.Errorf("Available() before server refill = %d, want 0", got)
	}
	clock.Advance(10 * time.Second)
	if got := b.Available(); got != 20 {
		t.Errorf("Available() at server refill = %d, want 20", got)
	}
}

func TestTokenBucket_ReconcileClamps(t *testing.T) {
	b := NewTokenBucket(TokenBucketConfig{Capacity: 20})

	b.Reconcile(BudgetHint{TokensLeft: Int(-3)})
	if got := b.Available(); got != 0 {
		t.Errorf("Available() after negative hint = %d, want 0", got)
	}

	b.Reconcile(BudgetHint{TokensLeft: Int(450)})
	if got := b.Available(); got != 20 {
		t.Errorf("Available() after oversized hint = %d, want 20", got)
	}
}

func TestTokenBucket_ReconcileIdempotent(t *testing.T) {
	clock := newFakeClock()
	hint := BudgetHint{
		TokensLeft: Int(4),
		RefillIn:   Duration(12 * time.Second),
		RefillRate: Int(25),
	}

	once := NewTokenBucket(TokenBucketConfig{Capacity: 20, Clock: clock.Now})
	once.TryConsume(3)
	once.Reconcile(hint)

	twice := NewTokenBucket(TokenBucketConfig{Capacity: 20, Clock: clock.Now})
	twice.TryConsume(3)
	twice.Reconcile(hint)
	twice.Reconcile(hint)

	if a, b := once.Status(), twice.Status(); a != b {
		t.Errorf("Status after one reconcile = %+v, after two = %+v", a, b)
	}
}

func TestTokenBucket_ReconcileEmptyHintIsNoop(t *testing.T) {
	clock := newFakeClock()
	b := NewTokenBucket(TokenBucketConfig{Capacity: 20, Clock: clock.Now})
	b.TryConsume(5)
	before := b.Status()

	b.Reconcile(BudgetHint{})

	if after := b.Status(); after != before {
		t.Errorf("Status = %+v, want %+v", after, before)
	}
}
