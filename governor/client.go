package governor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/jonwraymond/tokengate/cache"
	"github.com/jonwraymond/tokengate/observe"
	"github.com/jonwraymond/tokengate/resilience"
)

// Client governs calls against one upstream token budget.
//
// Contract:
// - Concurrency: safe for concurrent use. Waiters for tokens are not served
//   in FIFO order; MaxWait bounds how long any of them can starve.
// - Context: every blocking stage honors ctx.
type Client struct {
	cfg       Config
	transport Transport

	bucket  *resilience.TokenBucket
	gate    *resilience.Executor
	breaker *resilience.CircuitBreaker

	ops          map[string]Operation
	retries      map[string]*resilience.Retry
	defaultRetry *resilience.Retry

	cache  cache.Cache
	keyer  cache.Keyer
	flight singleflight.Group

	inst  observe.Instrumentation
	now   func() time.Time
	newID func() string

	stats *sessionStats
}

// New creates a client. The transport may be nil when only Call is used.
func New(cfg Config, transport Transport, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	c := &Client{
		transport: transport,
		inst:      observe.NopInstrumentation(),
		keyer:     cache.NewRequestKeyer(),
		now:       time.Now,
		newID:     uuid.NewString,
		ops:       make(map[string]Operation, len(cfg.Operations)),
		retries:   make(map[string]*resilience.Retry, len(cfg.Operations)),
	}
	for _, opt := range opts {
		opt(c)
	}

	if cfg.Bucket.Clock == nil {
		cfg.Bucket.Clock = c.now
	}
	c.bucket = resilience.NewTokenBucket(cfg.Bucket)

	var gateOpts []resilience.ExecutorOption
	if cfg.Pacer != nil {
		gateOpts = append(gateOpts, resilience.WithPacer(resilience.NewPacer(*cfg.Pacer)))
	}
	gateOpts = append(gateOpts, resilience.WithBulkhead(resilience.NewBulkhead(*cfg.Bulkhead)))
	c.gate = resilience.NewExecutor(gateOpts...)

	if cfg.CircuitBreaker != nil {
		cb := *cfg.CircuitBreaker
		if cb.Clock == nil {
			cb.Clock = c.now
		}
		c.breaker = resilience.NewCircuitBreaker(cb)
	}

	c.defaultRetry = c.newRetry("", cfg.Retry)
	for _, op := range cfg.Operations {
		c.ops[op.Name] = op
		c.retries[op.Name] = c.newRetry(op.Name, op.policy(cfg.Retry))
	}

	c.cfg = cfg
	c.stats = newSessionStats(c.now())
	return c, nil
}

// Call spends cost tokens on one governed call of fn. The operation name
// selects a registered retry policy when one exists and labels telemetry
// either way.
func (c *Client) Call(ctx context.Context, op string, cost int, fn AttemptFunc) (*Response, error) {
	if fn == nil {
		return nil, ErrNilAttempt
	}
	if cost <= 0 {
		return nil, fmt.Errorf("governor: %s: %w", op, resilience.ErrInvalidCost)
	}
	return c.call(ctx, observe.CallMeta{Operation: op, Cost: cost}, c.retryFor(op), fn)
}

// Do sends req as the named operation. Cost, retry policy and caching come
// from the operation registry. Cache hits spend no tokens; identical
// requests in flight at the same time share one upstream call and its
// Response, which callers must treat as read-only.
func (c *Client) Do(ctx context.Context, name string, req *Request) (*Response, error) {
	op, ok := c.ops[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownOperation, name)
	}
	if c.transport == nil {
		return nil, ErrNilTransport
	}

	r := op.prepare(req)
	meta := observe.CallMeta{Operation: op.Name, Endpoint: r.Path, Cost: op.costFor(r)}
	send := func(ctx context.Context) (*Response, error) {
		return c.transport.Send(ctx, r)
	}

	if !c.cacheable(op) {
		return c.call(ctx, meta, c.retryFor(op.Name), send)
	}
	return c.cached(ctx, op, r, meta, send)
}

// Seed reconciles the bucket with the server's view before real traffic
// starts. req is expected to be a free status request; it bypasses the
// bucket but goes through the retry loop. On failure the configured
// estimate is kept and the error returned for the caller to log.
func (c *Client) Seed(ctx context.Context, req *Request) error {
	if c.transport == nil {
		return ErrNilTransport
	}

	r := &Request{}
	if req != nil {
		*r = *req
	}
	if r.Operation == "" {
		r.Operation = "seed"
	}

	meta := observe.CallMeta{Operation: r.Operation, Endpoint: r.Path}
	resp, err := c.call(ctx, meta, c.retryFor(r.Operation), func(ctx context.Context) (*Response, error) {
		return c.transport.Send(ctx, r)
	})
	if err != nil {
		c.inst.Logger.Warn(ctx, "budget seed failed, keeping configured estimate",
			observe.F("error", err.Error()))
		return err
	}
	if resp.Hint.IsZero() {
		c.inst.Logger.Warn(ctx, "budget seed response carried no hint")
		return nil
	}

	st := c.bucket.Status()
	c.inst.Logger.Info(ctx, "budget seeded",
		observe.F("tokens_left", st.Available),
		observe.F("capacity", st.Capacity),
		observe.F("refill_in_ms", st.TimeUntilRefill.Milliseconds()),
	)
	return nil
}

// Reconcile applies a budget hint from outside the call path, such as an
// operator override.
func (c *Client) Reconcile(h resilience.BudgetHint) {
	c.bucket.Reconcile(h)
	c.stats.hint(h, c.now())
}

// Status returns the bucket snapshot.
func (c *Client) Status() resilience.BucketStatus {
	return c.bucket.Status()
}

// Stats returns the session counters.
func (c *Client) Stats() Stats {
	s := c.stats.snapshot()
	if c.breaker != nil {
		m := c.breaker.Metrics()
		s.Circuit = m.State.String()
		s.CircuitTrips = m.Trips
	}
	if p := c.gate.Pacer(); p != nil {
		s.PacerRate = p.Rate()
	}
	return s
}

// LastAuthFailure returns when the upstream last rejected the credential.
func (c *Client) LastAuthFailure() time.Time {
	return c.stats.lastAuthFailure()
}

// Operation returns a registered operation.
func (c *Client) Operation(name string) (Operation, bool) {
	op, ok := c.ops[name]
	return op, ok
}

// Config returns the effective configuration.
func (c *Client) Config() Config {
	return c.cfg
}

func (c *Client) call(ctx context.Context, meta observe.CallMeta, retry *resilience.Retry, fn AttemptFunc) (resp *Response, err error) {
	meta.CallID = c.newID()
	ctx, span := c.inst.Tracer.StartSpan(ctx, meta)
	start := c.now()
	rec := observe.CallRecord{Meta: meta}
	defer func() {
		c.finish(ctx, span, &rec, start, err)
	}()

	if c.breaker != nil {
		if err = c.breaker.Allow(); err != nil {
			return nil, err
		}
		defer func() { c.breaker.Record(err) }()
	}

	if meta.Cost > 0 {
		rec.Waited, err = c.bucket.WaitForTokens(ctx, meta.Cost, c.cfg.MaxWait, c.cfg.PollInterval)
		if err != nil {
			return nil, err
		}
		rec.TokensConsumed = meta.Cost
		if rec.Waited > 0 {
			c.inst.Logger.Debug(ctx, "waited for tokens",
				observe.F("operation", meta.Operation),
				observe.F("wait_ms", rec.Waited.Milliseconds()),
			)
		}
	}

	resp, rec.Attempts, err = c.attempt(ctx, retry, fn)

	if h := hintFrom(resp, err); !h.IsZero() {
		c.Reconcile(*h)
		if h.RefillIn != nil {
			rec.RefillIn = *h.RefillIn
		}
		if h.RefillRate != nil {
			rec.RefillRate = *h.RefillRate
		}
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// attempt runs fn through the retry loop and the attempt gate. An attempt
// abandoned by its timeout may still finish later, so responses are kept
// per attempt and only the one from the attempt that ended the loop is
// returned.
func (c *Client) attempt(ctx context.Context, retry *resilience.Retry, fn AttemptFunc) (*Response, int, error) {
	var (
		mu    sync.Mutex
		resps = make(map[int]*Response)
	)

	attempts, err := retry.Run(ctx, func(ctx context.Context) error {
		return c.gate.Execute(ctx, func(ctx context.Context) error {
			r, err := fn(ctx)
			if err != nil {
				return err
			}
			if r == nil {
				r = &Response{}
			}
			mu.Lock()
			resps[resilience.AttemptFromContext(ctx)] = r
			mu.Unlock()
			return nil
		})
	})
	if err != nil {
		return nil, attempts, err
	}

	mu.Lock()
	defer mu.Unlock()
	return resps[attempts], attempts, nil
}

func (c *Client) cached(ctx context.Context, op Operation, r *Request, meta observe.CallMeta, send AttemptFunc) (*Response, error) {
	key, err := c.keyer.Key(cache.Request{
		Operation: op.Name,
		Method:    r.Method,
		Path:      r.Path,
		Params:    r.Params,
		Body:      r.Body,
	})
	if err != nil {
		c.inst.Logger.Debug(ctx, "request not cacheable", observe.F("error", err.Error()))
		return c.call(ctx, meta, c.retryFor(op.Name), send)
	}

	if body, ok := c.cache.Get(ctx, key); ok {
		c.hit(ctx, meta)
		return &Response{Body: body, Status: http.StatusOK, Cached: true}, nil
	}

	v, err, _ := c.flight.Do(key, func() (any, error) {
		resp, err := c.call(ctx, meta, c.retryFor(op.Name), send)
		if err != nil {
			return nil, err
		}
		if resp.Status == 0 || resp.Status/100 == 2 {
			ttl := c.cfg.CachePolicy.TTLFor(op.CacheTTL)
			if err := c.cache.Set(ctx, key, resp.Body, ttl); err != nil {
				c.inst.Logger.Warn(ctx, "cache write failed",
					observe.F("operation", op.Name),
					observe.F("error", err.Error()),
				)
			}
		}
		return resp, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Response), nil
}

// hit records a call served from the cache.
func (c *Client) hit(ctx context.Context, meta observe.CallMeta) {
	meta.CallID = c.newID()
	ctx, span := c.inst.Tracer.StartSpan(ctx, meta)
	rec := observe.CallRecord{Meta: meta, Cached: true}
	c.finish(ctx, span, &rec, c.now(), nil)
}

func (c *Client) finish(ctx context.Context, span trace.Span, rec *observe.CallRecord, start time.Time, err error) {
	rec.Latency = c.now().Sub(start)
	rec.TokensLeft = c.bucket.Available()
	rec.Success = err == nil
	rec.ErrorKind = ErrorKind(err)

	c.stats.record(*rec, err, c.now())
	c.inst.Tracer.EndSpan(span, *rec, err)
	c.emit(ctx, *rec)

	if resilience.KindOf(err) == resilience.KindAuth {
		c.inst.Logger.WithOperation(rec.Meta).Error(ctx, "upstream rejected credentials")
	}
}

// emit delivers the record without letting a sink affect the call.
func (c *Client) emit(ctx context.Context, rec observe.CallRecord) {
	defer func() { _ = recover() }()
	c.inst.Sink.Record(ctx, rec)
}

func (c *Client) cacheable(op Operation) bool {
	return c.cache != nil && op.Cache && !op.Free() && c.cfg.CachePolicy.TTLFor(op.CacheTTL) > 0
}

func (c *Client) retryFor(op string) *resilience.Retry {
	if r, ok := c.retries[op]; ok {
		return r
	}
	return c.defaultRetry
}

func (c *Client) newRetry(op string, policy resilience.RetryConfig) *resilience.Retry {
	user := policy.OnRetry
	policy.OnRetry = func(attempt int, err *resilience.ClassifiedError, delay time.Duration) {
		// Stop every other caller as soon as the server says the budget is gone.
		if err.Kind == resilience.KindRateLimited && err.Hint != nil {
			c.Reconcile(*err.Hint)
		}
		c.inst.Logger.Warn(context.Background(), "retrying call",
			observe.F("operation", op),
			observe.F("attempt", attempt),
			observe.F("kind", err.Kind.String()),
			observe.F("delay_ms", delay.Milliseconds()),
		)
		if user != nil {
			user(attempt, err, delay)
		}
	}
	return resilience.NewRetry(policy)
}

// hintFrom returns the budget hint carried by a response or a failure.
func hintFrom(resp *Response, err error) *resilience.BudgetHint {
	if err == nil {
		if resp != nil {
			return resp.Hint
		}
		return nil
	}
	var ce *resilience.ClassifiedError
	if errors.As(err, &ce) {
		return ce.Hint
	}
	return nil
}

// prepare copies req and fills in the operation's defaults.
func (o Operation) prepare(req *Request) *Request {
	r := &Request{}
	if req != nil {
		*r = *req
	}
	r.Operation = o.Name
	if r.Path == "" {
		r.Path = o.Path
	}
	if r.Method == "" {
		r.Method = o.Method
	}
	r.Method = r.method()
	return r
}
