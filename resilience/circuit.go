package resilience

import (
	"sync"
	"time"
)

// State is the position of a CircuitBreaker.
type State int

const (
	// StateClosed admits every call.
	StateClosed State = iota
	// StateOpen rejects calls until the cooldown elapses.
	StateOpen
	// StateHalfOpen admits a limited number of probe calls.
	StateHalfOpen
)

var stateNames = [...]string{
	StateClosed:   "closed",
	StateOpen:     "open",
	StateHalfOpen: "half-open",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// CircuitBreakerConfig configures a CircuitBreaker.
type CircuitBreakerConfig struct {
	// MaxFailures is the number of consecutive upstream failures that open
	// the circuit.
	// Default: 5
	MaxFailures int

	// ResetTimeout is the cooldown before probes are admitted again.
	// Default: 30 seconds
	ResetTimeout time.Duration

	// HalfOpenMaxRequests caps concurrent probes.
	// Default: 1
	HalfOpenMaxRequests int

	// OnStateChange observes transitions. It runs with the breaker locked
	// and must not call back into it.
	OnStateChange func(from, to State)

	// IsFailure decides which errors count against the upstream.
	// Default: CountsAgainstUpstream
	IsFailure func(err error) bool

	// Clock returns the current time.
	// Default: time.Now
	Clock func() time.Time
}

func (c *CircuitBreakerConfig) applyDefaults() {
	if c.MaxFailures <= 0 {
		c.MaxFailures = 5
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = 30 * time.Second
	}
	if c.HalfOpenMaxRequests <= 0 {
		c.HalfOpenMaxRequests = 1
	}
	if c.IsFailure == nil {
		c.IsFailure = CountsAgainstUpstream
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
}

// CountsAgainstUpstream reports whether err says something about upstream
// health. Budget shortfalls, auth, tier and caller cancellations do not.
func CountsAgainstUpstream(err error) bool {
	if err == nil {
		return false
	}
	k := KindOf(err)
	return k == KindTransient || k == KindTimeout
}

// CircuitBreaker stops spending budget on an upstream that keeps failing.
// Only errors accepted by IsFailure move it toward open; other errors leave
// the failure streak alone.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig

	mu       sync.Mutex
	state    State
	streak   int
	probes   int
	trips    int
	openedAt time.Time
	lastFail time.Time
}

// NewCircuitBreaker creates a closed breaker.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	config.applyDefaults()
	return &CircuitBreaker{cfg: config}
}

// Allow admits a call or returns ErrCircuitOpen. In half-open it reserves a
// probe slot, so every nil return must be paired with Record.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.refreshLocked() {
	case StateOpen:
		return ErrCircuitOpen
	case StateHalfOpen:
		if cb.probes >= cb.cfg.HalfOpenMaxRequests {
			return ErrCircuitOpen
		}
		cb.probes++
	}
	return nil
}

// Record reports the outcome of a call admitted by Allow.
func (cb *CircuitBreaker) Record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	upstreamFault := cb.cfg.IsFailure(err)
	if upstreamFault {
		cb.lastFail = cb.cfg.Clock()
	}

	switch cb.state {
	case StateClosed:
		switch {
		case upstreamFault:
			cb.streak++
			if cb.streak >= cb.cfg.MaxFailures {
				cb.tripLocked()
			}
		case err == nil:
			cb.streak = 0
		}

	case StateHalfOpen:
		switch {
		case upstreamFault:
			cb.tripLocked()
		case err == nil:
			cb.streak = 0
			cb.moveLocked(StateClosed)
		case cb.probes > 0:
			// The probe never reached upstream; free its slot.
			cb.probes--
		}
	}
}

// State returns the current state, moving open to half-open once the
// cooldown has elapsed.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.refreshLocked()
}

// Reset closes the breaker and forgets the failure streak.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.streak = 0
	cb.moveLocked(StateClosed)
}

// Metrics returns a snapshot for status reporting.
func (cb *CircuitBreaker) Metrics() CircuitBreakerMetrics {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	m := CircuitBreakerMetrics{
		State:       cb.refreshLocked(),
		Failures:    cb.streak,
		Trips:       cb.trips,
		LastFailure: cb.lastFail,
	}
	if m.State == StateOpen {
		m.RetryIn = cb.cfg.ResetTimeout - cb.cfg.Clock().Sub(cb.openedAt)
	}
	return m
}

func (cb *CircuitBreaker) tripLocked() {
	cb.trips++
	cb.openedAt = cb.cfg.Clock()
	cb.moveLocked(StateOpen)
}

func (cb *CircuitBreaker) refreshLocked() State {
	if cb.state == StateOpen && cb.cfg.Clock().Sub(cb.openedAt) >= cb.cfg.ResetTimeout {
		cb.moveLocked(StateHalfOpen)
	}
	return cb.state
}

func (cb *CircuitBreaker) moveLocked(to State) {
	from := cb.state
	cb.state = to
	cb.probes = 0
	if from != to && cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(from, to)
	}
}

// CircuitBreakerMetrics is a point-in-time view of a CircuitBreaker.
type CircuitBreakerMetrics struct {
	State       State         `json:"state"`
	Failures    int           `json:"failures"`
	Trips       int           `json:"trips"`
	RetryIn     time.Duration `json:"retryIn,omitempty"`
	LastFailure time.Time     `json:"lastFailure"`
}
