package config

import (
	"github.com/jonwraymond/tokengate/governor"
	"github.com/jonwraymond/tokengate/keepa"
	"github.com/jonwraymond/tokengate/resilience"
)

// Governor builds the governor configuration: the Keepa operation registry
// with any configured operation overrides merged in by name.
func (c *Config) Governor() governor.Config {
	gc := keepa.GovernorConfig()

	gc.Bucket.Capacity = c.Budget.Capacity
	gc.Bucket.Window = c.Budget.Window
	gc.MaxWait = c.Budget.MaxWait
	gc.PollInterval = c.Budget.PollInterval

	gc.Retry = resilience.RetryConfig{
		MaxAttempts:       c.Retry.MaxAttempts,
		BaseBackoff:       c.Retry.BaseBackoff,
		MaxBackoff:        c.Retry.MaxBackoff,
		Multiplier:        c.Retry.Multiplier,
		Jitter:            c.Retry.Jitter,
		PerAttemptTimeout: c.Retry.PerAttemptTimeout,
	}

	if c.Pacer.Enabled {
		gc.Pacer = &resilience.PacerConfig{Rate: c.Pacer.Rate, Burst: c.Pacer.Burst, MaxWait: c.Pacer.MaxWait}
	}
	gc.Bulkhead = &resilience.BulkheadConfig{MaxConcurrent: c.Bulkhead.MaxConcurrent, MaxWait: c.Bulkhead.MaxWait}
	if c.Circuit.Enabled {
		gc.CircuitBreaker = &resilience.CircuitBreakerConfig{
			MaxFailures:         c.Circuit.MaxFailures,
			ResetTimeout:        c.Circuit.ResetTimeout,
			HalfOpenMaxRequests: c.Circuit.HalfOpenMaxRequests,
		}
	}

	policy := c.Cache.Policy()
	gc.CachePolicy = &policy

	gc.Operations = mergeOperations(gc.Operations, c.Operations)
	return gc
}

// mergeOperations overlays the non-zero fields of each override onto the
// base operation of the same name. Overrides with new names are appended.
func mergeOperations(base, overrides []governor.Operation) []governor.Operation {
	out := append([]governor.Operation(nil), base...)
	index := make(map[string]int, len(out))
	for i, op := range out {
		index[op.Name] = i
	}

	for _, o := range overrides {
		i, ok := index[o.Name]
		if !ok {
			index[o.Name] = len(out)
			out = append(out, o)
			continue
		}
		op := &out[i]
		if o.Cost > 0 {
			op.Cost = o.Cost
		}
		if o.Path != "" {
			op.Path = o.Path
		}
		if o.Method != "" {
			op.Method = o.Method
		}
		if o.MaxAttempts > 0 {
			op.MaxAttempts = o.MaxAttempts
		}
		if o.Timeout > 0 {
			op.Timeout = o.Timeout
		}
		if o.Cache {
			op.Cache = true
		}
		if o.CacheTTL > 0 {
			op.CacheTTL = o.CacheTTL
		}
	}
	return out
}
