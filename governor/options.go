package governor

import (
	"time"

	"github.com/jonwraymond/tokengate/cache"
	"github.com/jonwraymond/tokengate/observe"
)

// Option configures a Client.
type Option func(*Client)

// WithInstrumentation sets tracer, sink and logger at once. Nil members
// keep their no-op defaults.
func WithInstrumentation(inst observe.Instrumentation) Option {
	return func(c *Client) {
		if inst.Tracer != nil {
			c.inst.Tracer = inst.Tracer
		}
		if inst.Sink != nil {
			c.inst.Sink = inst.Sink
		}
		if inst.Logger != nil {
			c.inst.Logger = inst.Logger
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l observe.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.inst.Logger = l
		}
	}
}

// WithSink sets the call telemetry sink.
func WithSink(s observe.Sink) Option {
	return func(c *Client) {
		if s != nil {
			c.inst.Sink = s
		}
	}
}

// WithTracer sets the span tracer.
func WithTracer(t observe.Tracer) Option {
	return func(c *Client) {
		if t != nil {
			c.inst.Tracer = t
		}
	}
}

// WithCache enables response caching for operations marked Cache.
func WithCache(store cache.Cache) Option {
	return func(c *Client) {
		c.cache = store
	}
}

// WithKeyer replaces the default cache.RequestKeyer.
func WithKeyer(k cache.Keyer) Option {
	return func(c *Client) {
		if k != nil {
			c.keyer = k
		}
	}
}

// WithClock sets the time source for the bucket, the circuit breaker and
// call latency.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// WithIDGenerator sets the call ID generator.
// Default: uuid.NewString
func WithIDGenerator(fn func() string) Option {
	return func(c *Client) {
		if fn != nil {
			c.newID = fn
		}
	}
}
