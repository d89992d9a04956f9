package resilience

import (
	"fmt"
	"strings"
	"time"
)

// BudgetHint is the server's authoritative view of the remaining budget,
// extracted from a response by the transport. Every field is optional.
type BudgetHint struct {
	// TokensLeft replaces the bucket's available count.
	TokensLeft *int `json:"tokensLeft,omitempty"`

	// RefillIn is the time until the server's next refill.
	RefillIn *time.Duration `json:"refillIn,omitempty"`

	// RefillRate replaces the bucket's capacity per window.
	RefillRate *int `json:"refillRate,omitempty"`

	// RefillInterval replaces the bucket's window length.
	RefillInterval *time.Duration `json:"refillInterval,omitempty"`

	// TokensConsumed is informational; the bucket ignores it.
	TokensConsumed *int `json:"tokensConsumed,omitempty"`
}

// IsZero reports whether the hint carries nothing the bucket can use.
func (h *BudgetHint) IsZero() bool {
	return h == nil || (h.TokensLeft == nil && h.RefillIn == nil &&
		h.RefillRate == nil && h.RefillInterval == nil)
}

func (h *BudgetHint) String() string {
	if h == nil {
		return "<nil>"
	}
	var parts []string
	if h.TokensLeft != nil {
		parts = append(parts, fmt.Sprintf("tokensLeft=%d", *h.TokensLeft))
	}
	if h.RefillIn != nil {
		parts = append(parts, fmt.Sprintf("refillIn=%s", *h.RefillIn))
	}
	if h.RefillRate != nil {
		parts = append(parts, fmt.Sprintf("refillRate=%d", *h.RefillRate))
	}
	if h.RefillInterval != nil {
		parts = append(parts, fmt.Sprintf("refillInterval=%s", *h.RefillInterval))
	}
	if h.TokensConsumed != nil {
		parts = append(parts, fmt.Sprintf("tokensConsumed=%d", *h.TokensConsumed))
	}
	return "{" + strings.Join(parts, " ") + "}"
}

// withZeroTokens returns a copy of h with TokensLeft forced to zero.
func (h *BudgetHint) withZeroTokens() *BudgetHint {
	out := BudgetHint{}
	if h != nil {
		out = *h
	}
	out.TokensLeft = Int(0)
	return &out
}

// Int returns a pointer to v, for building hints.
func Int(v int) *int { return &v }

// Duration returns a pointer to d, for building hints.
func Duration(d time.Duration) *time.Duration { return &d }
