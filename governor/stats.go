package governor

import (
	"errors"
	"maps"
	"sync"
	"time"

	"github.com/jonwraymond/tokengate/observe"
	"github.com/jonwraymond/tokengate/resilience"
)

// Stats summarizes a client's session.
type Stats struct {
	Started         time.Time              `json:"started"`
	Calls           int64                  `json:"calls"`
	Failures        int64                  `json:"failures"`
	FailuresByKind  map[string]int64       `json:"failuresByKind"`
	TokensConsumed  int64                  `json:"tokensConsumed"`
	CacheHits       int64                  `json:"cacheHits"`
	LastAuthFailure time.Time              `json:"lastAuthFailure,omitzero"`
	LastHint        *resilience.BudgetHint `json:"lastHint,omitempty"`
	LastHintAt      time.Time              `json:"lastHintAt,omitzero"`
	Circuit         string                 `json:"circuit,omitempty"`
	CircuitTrips    int                    `json:"circuitTrips,omitempty"`
	PacerRate       float64                `json:"pacerRate,omitempty"`
}

// Error kinds reported for failures that carry no classification of their
// own.
const (
	ErrorKindExhausted   = "exhausted"
	ErrorKindCircuitOpen = "circuit_open"
)

// ErrorKind names the failure class of err for telemetry. It returns an
// empty string for nil.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, resilience.ErrExhausted):
		return ErrorKindExhausted
	case errors.Is(err, resilience.ErrCircuitOpen):
		return ErrorKindCircuitOpen
	default:
		return resilience.KindOf(err).String()
	}
}

type sessionStats struct {
	mu    sync.Mutex
	stats Stats
}

func newSessionStats(now time.Time) *sessionStats {
	return &sessionStats{stats: Stats{Started: now, FailuresByKind: map[string]int64{}}}
}

func (s *sessionStats) record(rec observe.CallRecord, err error, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats.Calls++
	s.stats.TokensConsumed += int64(rec.TokensConsumed)
	if rec.Cached {
		s.stats.CacheHits++
	}
	if err == nil {
		return
	}
	s.stats.Failures++
	s.stats.FailuresByKind[rec.ErrorKind]++
	if resilience.KindOf(err) == resilience.KindAuth {
		s.stats.LastAuthFailure = now
	}
}

func (s *sessionStats) hint(h resilience.BudgetHint, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.LastHint = &h
	s.stats.LastHintAt = now
}

func (s *sessionStats) lastAuthFailure() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats.LastAuthFailure
}

func (s *sessionStats) snapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.stats
	out.FailuresByKind = maps.Clone(s.stats.FailuresByKind)
	if s.stats.LastHint != nil {
		h := *s.stats.LastHint
		out.LastHint = &h
	}
	return out
}
