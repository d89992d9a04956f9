package governor

import (
	"fmt"
	"strings"
	"time"

	"github.com/jonwraymond/tokengate/resilience"
)

// Operation describes one upstream endpoint: what it costs and how it is
// retried and cached.
type Operation struct {
	// Name identifies the operation in Do, logs and metrics.
	Name string `mapstructure:"name"`

	// Cost is the token price per unit. Zero marks a free status request
	// that bypasses the bucket.
	Cost int `mapstructure:"cost"`

	// Path is the default request path when a Request leaves it empty.
	Path string `mapstructure:"path"`

	// Method is the default request method.
	Method string `mapstructure:"method"`

	// MaxAttempts overrides the client's retry attempts when positive.
	MaxAttempts int `mapstructure:"max_attempts"`

	// Timeout overrides the per-attempt timeout when positive.
	Timeout time.Duration `mapstructure:"timeout"`

	// Cache enables the response cache for this operation.
	Cache bool `mapstructure:"cache"`

	// CacheTTL overrides the cache policy's default TTL when positive.
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// Validate checks the operation definition.
func (o Operation) Validate() error {
	if strings.TrimSpace(o.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidOperation)
	}
	if o.Cost < 0 {
		return fmt.Errorf("%w: %s: cost must not be negative", ErrInvalidOperation, o.Name)
	}
	if o.MaxAttempts < 0 || o.Timeout < 0 || o.CacheTTL < 0 {
		return fmt.Errorf("%w: %s: overrides must not be negative", ErrInvalidOperation, o.Name)
	}
	return nil
}

// Free reports whether the operation is exempt from the token budget.
func (o Operation) Free() bool {
	return o.Cost == 0
}

// policy layers the operation's overrides on top of base.
func (o Operation) policy(base resilience.RetryConfig) resilience.RetryConfig {
	if o.MaxAttempts > 0 {
		base.MaxAttempts = o.MaxAttempts
	}
	if o.Timeout > 0 {
		base.PerAttemptTimeout = o.Timeout
	}
	return base
}

// costFor returns the token price of req.
func (o Operation) costFor(req *Request) int {
	units := 1
	if req != nil && req.Units > 1 {
		units = req.Units
	}
	return o.Cost * units
}
