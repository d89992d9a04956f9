package resilience

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewBulkhead_Defaults(t *testing.T) {
	b := NewBulkhead(BulkheadConfig{})

	if got := b.Metrics().MaxConcurrent; got != 4 {
		t.Errorf("MaxConcurrent = %d, want 4", got)
	}
}

func TestBulkhead_RejectsWhenFull(t *testing.T) {
	b := NewBulkhead(BulkheadConfig{MaxConcurrent: 1})
	ctx := context.Background()

	if err := b.Acquire(ctx); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if err := b.Acquire(ctx); !errors.Is(err, ErrBulkheadFull) {
		t.Errorf("Acquire() on full bulkhead error = %v, want ErrBulkheadFull", err)
	}

	b.Release()
	if err := b.Acquire(ctx); err != nil {
		t.Errorf("Acquire() after Release error = %v", err)
	}

	m := b.Metrics()
	if m.Rejected != 1 || m.Active != 1 || m.MaxActive != 1 {
		t.Errorf("Metrics() = %+v, want Rejected 1, Active 1, MaxActive 1", m)
	}
}

func TestBulkhead_WaitsForSlot(t *testing.T) {
	b := NewBulkhead(BulkheadConfig{MaxConcurrent: 1, MaxWait: time.Second})
	_ = b.Acquire(context.Background())

	go func() {
		time.Sleep(20 * time.Millisecond)
		b.Release()
	}()

	if err := b.Acquire(context.Background()); err != nil {
		t.Errorf("Acquire() error = %v, want slot after release", err)
	}
}

func TestBulkhead_WaitCancelled(t *testing.T) {
	b := NewBulkhead(BulkheadConfig{MaxConcurrent: 1, MaxWait: time.Second})
	_ = b.Acquire(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if err := b.Acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Acquire() error = %v, want context.DeadlineExceeded", err)
	}
}

func TestBulkhead_CapsInFlight(t *testing.T) {
	b := NewBulkhead(BulkheadConfig{MaxConcurrent: 4, MaxWait: 5 * time.Second})

	var wg sync.WaitGroup
	var inFlight, peak atomic.Int32
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = b.Execute(context.Background(), func(ctx context.Context) error {
				n := inFlight.Add(1)
				defer inFlight.Add(-1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				return nil
			})
		}()
	}
	wg.Wait()

	if got := peak.Load(); got > 4 {
		t.Errorf("peak in-flight = %d, want <= 4", got)
	}
}

func TestPacer_SpacesAttempts(t *testing.T) {
	p := NewPacer(PacerConfig{Rate: 50, Burst: 1})
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 4; i++ {
		if err := p.Wait(ctx); err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
	}

	// One burst token, then three spaced 20ms apart.
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("elapsed = %v, want >= 50ms", elapsed)
	}
}

func TestPacer_WaitBounded(t *testing.T) {
	p := NewPacer(PacerConfig{Rate: 0.1, Burst: 1, MaxWait: 20 * time.Millisecond})
	ctx := context.Background()

	_ = p.Wait(ctx)
	err := p.Wait(ctx)
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("Wait() error = %v, want ErrTimeout", err)
	}
}

func TestPacer_Defaults(t *testing.T) {
	p := NewPacer(PacerConfig{})
	if got := p.Rate(); got != 5 {
		t.Errorf("Rate() = %v, want 5", got)
	}
}

func TestExecutor_Stages(t *testing.T) {
	b := NewBulkhead(BulkheadConfig{MaxConcurrent: 1})
	e := NewExecutor(WithPacer(NewPacer(PacerConfig{Rate: 1000})), WithBulkhead(b))

	err := e.Execute(context.Background(), func(ctx context.Context) error {
		if got := b.Metrics().Active; got != 1 {
			t.Errorf("Active during op = %d, want 1", got)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if got := b.Metrics().Active; got != 0 {
		t.Errorf("Active after op = %d, want 0", got)
	}
}

func TestExecutor_Empty(t *testing.T) {
	e := NewExecutor()
	called := false
	_ = e.Execute(context.Background(), func(ctx context.Context) error {
		called = true
		return nil
	})
	if !called {
		t.Error("operation not called")
	}
	if e.Pacer() != nil || e.Bulkhead() != nil {
		t.Error("empty executor reports stages")
	}
}
