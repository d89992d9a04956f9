package cache

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestValidateKey(t *testing.T) {
	tests := []struct {
		key  string
		want error
	}{
		{"cache:product:0123456789abcdef", nil},
		{"", ErrInvalidKey},
		{"   ", ErrInvalidKey},
		{"a\nb", ErrInvalidKey},
		{strings.Repeat("k", MaxKeyLength+1), ErrKeyTooLong},
	}

	for _, tt := range tests {
		if err := ValidateKey(tt.key); !errors.Is(err, tt.want) && !(tt.want == nil && err == nil) {
			t.Errorf("ValidateKey(%.20q) = %v, want %v", tt.key, err, tt.want)
		}
	}
}

func TestMemoryCache_SetGet(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	if err := c.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	got, ok := c.Get(ctx, "k")
	if !ok || string(got) != "v" {
		t.Errorf("Get() = %q, %v, want v, true", got, ok)
	}

	// Stored and returned values are copies.
	got[0] = 'x'
	again, _ := c.Get(ctx, "k")
	if string(again) != "v" {
		t.Errorf("cached value mutated through returned slice: %q", again)
	}
}

func TestMemoryCache_ZeroTTLStoresNothing(t *testing.T) {
	c := NewMemoryCache()
	_ = c.Set(context.Background(), "k", []byte("v"), 0)

	if _, ok := c.Get(context.Background(), "k"); ok {
		t.Error("Get() hit after zero-TTL Set")
	}
}

func TestMemoryCache_Expiry(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMemoryCache()
	c.now = func() time.Time { return now }
	ctx := context.Background()

	_ = c.Set(ctx, "a", []byte("1"), time.Minute)
	_ = c.Set(ctx, "b", []byte("2"), time.Hour)

	now = now.Add(time.Minute)
	if _, ok := c.Get(ctx, "a"); ok {
		t.Error("Get(a) hit after expiry")
	}
	if _, ok := c.Get(ctx, "b"); !ok {
		t.Error("Get(b) missed before expiry")
	}

	_ = c.Set(ctx, "c", []byte("3"), time.Second)
	now = now.Add(time.Second)
	if removed := c.Purge(); removed != 1 {
		t.Errorf("Purge() = %d, want 1", removed)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
}

func TestMemoryCache_SetSweepsUnreadExpiredEntries(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMemoryCache()
	c.now = func() time.Time { return now }
	ctx := context.Background()

	for i := range 1000 {
		_ = c.Set(ctx, fmt.Sprintf("product:%d", i), []byte("v"), time.Minute)
	}
	if c.Len() != 1000 {
		t.Fatalf("Len() = %d, want 1000", c.Len())
	}

	now = now.Add(time.Hour)
	_ = c.Set(ctx, "fresh", []byte("v"), time.Minute)
	if c.Len() != 1 {
		t.Errorf("Len() after sweep = %d, want 1", c.Len())
	}

	// Sweeps are spaced out; an entry expiring between them waits for the next.
	_ = c.Set(ctx, "short", []byte("v"), time.Second)
	now = now.Add(2 * time.Second)
	_ = c.Set(ctx, "other", []byte("v"), time.Minute)
	if c.Len() != 3 {
		t.Errorf("Len() before next sweep = %d, want 3", c.Len())
	}
}

func TestMemoryCache_Delete(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()
	_ = c.Set(ctx, "k", []byte("v"), time.Minute)

	if err := c.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := c.Delete(ctx, "k"); err != nil {
		t.Errorf("second Delete() error = %v", err)
	}
	if _, ok := c.Get(ctx, "k"); ok {
		t.Error("Get() hit after Delete")
	}
}

func TestMemoryCache_Concurrent(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := "k" + string(rune('a'+i%8))
			_ = c.Set(ctx, key, []byte{byte(i)}, time.Minute)
			c.Get(ctx, key)
		}(i)
	}
	wg.Wait()

	if c.Len() != 8 {
		t.Errorf("Len() = %d, want 8", c.Len())
	}
}

func TestPolicy_TTLFor(t *testing.T) {
	tests := []struct {
		name   string
		policy Policy
		opTTL  time.Duration
		want   time.Duration
	}{
		{"default applies", DefaultPolicy(), 0, 5 * time.Minute},
		{"negative reads as unset", DefaultPolicy(), -time.Second, 5 * time.Minute},
		{"operation ttl wins", DefaultPolicy(), 10 * time.Minute, 10 * time.Minute},
		{"clamped to max", DefaultPolicy(), 2 * time.Hour, time.Hour},
		{"no default leaves uncached", Policy{MaxTTL: time.Hour}, 0, 0},
		{"no max", Policy{}, 48 * time.Hour, 48 * time.Hour},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.policy.TTLFor(tt.opTTL); got != tt.want {
				t.Errorf("TTLFor(%v) = %v, want %v", tt.opTTL, got, tt.want)
			}
		})
	}
}

func TestRequestKeyer_Deterministic(t *testing.T) {
	k := NewRequestKeyer()

	a, err := k.Key(Request{
		Operation: "query",
		Method:    "POST",
		Path:      "/query",
		Params:    url.Values{"domain": {"1"}, "key": {"secret-a"}},
		Body:      []byte(`{"rootCategory":[172282],"current_SALES_lte":5000}`),
	})
	if err != nil {
		t.Fatalf("Key() error = %v", err)
	}

	b, _ := k.Key(Request{
		Operation: "query",
		Method:    "post",
		Path:      "/query",
		Params:    url.Values{"key": {"secret-b"}, "domain": {"1"}},
		Body:      []byte(`{ "current_SALES_lte": 5000, "rootCategory": [172282] }`),
	})

	if a != b {
		t.Errorf("equivalent requests keyed differently: %s vs %s", a, b)
	}
	if !strings.HasPrefix(a, "cache:query:") || len(a) != len("cache:query:")+16 {
		t.Errorf("key format = %q", a)
	}
	if strings.Contains(a, "secret") {
		t.Error("credential leaked into key")
	}
}

func TestRequestKeyer_Distinguishes(t *testing.T) {
	k := NewRequestKeyer()
	base := Request{Operation: "product", Method: "GET", Path: "/product", Params: url.Values{"asin": {"B000000001"}}}
	other := base
	other.Params = url.Values{"asin": {"B000000002"}}

	ka, _ := k.Key(base)
	kb, _ := k.Key(other)
	if ka == kb {
		t.Error("different ASINs produced the same key")
	}
}

func TestRequestKeyer_RequiresOperation(t *testing.T) {
	if _, err := NewRequestKeyer().Key(Request{Path: "/product"}); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("Key() error = %v, want ErrInvalidKey", err)
	}
}
