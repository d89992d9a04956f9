package server

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/jonwraymond/tokengate/auth"
	"github.com/jonwraymond/tokengate/governor"
	"github.com/jonwraymond/tokengate/observe"
	"github.com/jonwraymond/tokengate/resilience"
)

// maxReconcileBody bounds the reconcile request body.
const maxReconcileBody = 4 << 10

// TokenReport is the body of GET /v1/tokens. Durations are milliseconds.
type TokenReport struct {
	Available   int       `json:"available"`
	Capacity    int       `json:"capacity"`
	Percent     float64   `json:"percent"`
	WindowMs    int64     `json:"windowMs"`
	RefillInMs  int64     `json:"refillInMs"`
	WindowStart time.Time `json:"windowStart"`
	Circuit     string    `json:"circuit,omitempty"`

	LastAuthFailure time.Time `json:"lastAuthFailure,omitzero"`
}

// NewTokenReport converts a bucket snapshot.
func NewTokenReport(st resilience.BucketStatus) TokenReport {
	rep := TokenReport{
		Available:   st.Available,
		Capacity:    st.Capacity,
		WindowMs:    st.Window.Milliseconds(),
		RefillInMs:  st.TimeUntilRefill.Milliseconds(),
		WindowStart: st.WindowStart,
	}
	if st.Capacity > 0 {
		rep.Percent = float64(st.Available) / float64(st.Capacity) * 100
	}
	return rep
}

func (s *Server) handleTokens(w http.ResponseWriter, r *http.Request) {
	rep := NewTokenReport(s.gov.Status())
	rep.Circuit = s.gov.Stats().Circuit
	rep.LastAuthFailure = s.gov.LastAuthFailure()
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.gov.Stats())
}

// handleReconcile applies an operator-supplied budget hint. The body uses
// the upstream field names: tokensLeft, refillIn (ms), refillRate (tokens
// per minute).
func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxReconcileBody))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "body too large")
		return
	}
	if !json.Valid(body) {
		writeError(w, http.StatusBadRequest, "body must be a JSON object")
		return
	}

	hint := governor.ParseHint(http.Header{}, body, s.now())
	if hint == nil || hint.IsZero() {
		writeError(w, http.StatusBadRequest, "no budget fields in body")
		return
	}
	if hint.TokensLeft != nil && *hint.TokensLeft < 0 {
		writeError(w, http.StatusBadRequest, "tokensLeft must not be negative")
		return
	}

	before := s.gov.Status()
	s.gov.Reconcile(*hint)
	after := s.gov.Status()

	s.logger.Warn(r.Context(), "budget overridden by operator",
		observe.F("principal", auth.PrincipalFromContext(r.Context())),
		observe.F("available_before", before.Available),
		observe.F("available_after", after.Available),
		observe.F("capacity_after", after.Capacity),
	)
	writeJSON(w, http.StatusOK, NewTokenReport(after))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
