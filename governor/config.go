package governor

import (
	"fmt"
	"time"

	"github.com/jonwraymond/tokengate/cache"
	"github.com/jonwraymond/tokengate/resilience"
)

// Config configures a Client.
type Config struct {
	// Bucket configures the token bucket.
	Bucket resilience.TokenBucketConfig

	// MaxWait bounds how long a call waits for tokens.
	// Default: 120 seconds
	MaxWait time.Duration

	// PollInterval is the longest sleep between budget checks.
	// Default: 5 seconds
	PollInterval time.Duration

	// Retry is the policy for calls that do not name an operation, and the
	// base that operation overrides are layered on.
	Retry resilience.RetryConfig

	// Operations is the operation registry.
	Operations []Operation

	// Pacer spaces out attempts. Nil disables pacing.
	Pacer *resilience.PacerConfig

	// Bulkhead caps concurrent transport calls.
	// Default: 4 concurrent, waiting up to 30 seconds for a slot
	Bulkhead *resilience.BulkheadConfig

	// CircuitBreaker stops calls to a failing upstream. Nil disables it.
	CircuitBreaker *resilience.CircuitBreakerConfig

	// CachePolicy bounds cached response lifetimes.
	// Default: cache.DefaultPolicy()
	CachePolicy *cache.Policy
}

// DefaultConfig returns a configuration with every default spelled out.
func DefaultConfig() Config {
	policy := cache.DefaultPolicy()
	return Config{
		Bucket:       resilience.TokenBucketConfig{Capacity: 20, Window: 60 * time.Second},
		MaxWait:      120 * time.Second,
		PollInterval: 5 * time.Second,
		Retry:        resilience.DefaultRetryConfig(),
		Bulkhead:     &resilience.BulkheadConfig{MaxConcurrent: 4, MaxWait: 30 * time.Second},
		CachePolicy:  &policy,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Bucket.Capacity < 0 {
		return fmt.Errorf("%w: bucket capacity must not be negative", ErrInvalidConfig)
	}
	if c.Bucket.Window < 0 {
		return fmt.Errorf("%w: bucket window must not be negative", ErrInvalidConfig)
	}
	if c.MaxWait < 0 || c.PollInterval < 0 {
		return fmt.Errorf("%w: wait durations must not be negative", ErrInvalidConfig)
	}

	seen := make(map[string]bool, len(c.Operations))
	for _, op := range c.Operations {
		if err := op.Validate(); err != nil {
			return err
		}
		if seen[op.Name] {
			return fmt.Errorf("%w: duplicate operation %q", ErrInvalidConfig, op.Name)
		}
		seen[op.Name] = true
	}
	return nil
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.MaxWait <= 0 {
		c.MaxWait = def.MaxWait
	}
	if c.PollInterval <= 0 {
		c.PollInterval = def.PollInterval
	}
	if c.Bulkhead == nil {
		c.Bulkhead = def.Bulkhead
	}
	if c.CachePolicy == nil {
		c.CachePolicy = def.CachePolicy
	}
}
