package health

import (
	"context"
	"fmt"
	"time"

	"github.com/jonwraymond/tokengate/resilience"
)

// BudgetSource exposes a governor's budget state. *governor.Client
// implements it.
type BudgetSource interface {
	Status() resilience.BucketStatus
	LastAuthFailure() time.Time
}

// BudgetCheckerConfig tunes BudgetChecker.
type BudgetCheckerConfig struct {
	// Name of the check.
	// Default: budget
	Name string

	// LowWatermark is the fraction of capacity below which the budget is
	// reported Degraded.
	// Default: 0.1
	LowWatermark float64

	// AuthFailureWindow is how long an auth failure keeps the check
	// Unhealthy.
	// Default: 15 minutes
	AuthFailureWindow time.Duration

	// Now returns the current time.
	// Default: time.Now
	Now func() time.Time
}

// BudgetChecker reports Unhealthy after a recent auth failure, Degraded when
// the estimated budget is below the low watermark, and Healthy otherwise.
func BudgetChecker(src BudgetSource, config BudgetCheckerConfig) Checker {
	if config.Name == "" {
		config.Name = "budget"
	}
	if config.LowWatermark <= 0 {
		config.LowWatermark = 0.1
	}
	if config.AuthFailureWindow <= 0 {
		config.AuthFailureWindow = 15 * time.Minute
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	return NewCheckerFunc(config.Name, func(ctx context.Context) Result {
		st := src.Status()
		details := map[string]any{
			"available":       st.Available,
			"capacity":        st.Capacity,
			"window":          st.Window.String(),
			"timeUntilRefill": st.TimeUntilRefill.String(),
		}

		now := config.Now()
		if last := src.LastAuthFailure(); !last.IsZero() && now.Sub(last) < config.AuthFailureWindow {
			details["lastAuthFailure"] = last.UTC().Format(time.RFC3339)
			return Unhealthy("upstream rejected the API key", ErrAuthRejected).WithDetails(details)
		}

		if st.Capacity > 0 && float64(st.Available)/float64(st.Capacity) < config.LowWatermark {
			msg := fmt.Sprintf("%d of %d tokens left, refill in %s",
				st.Available, st.Capacity, st.TimeUntilRefill.Round(time.Second))
			return Degraded(msg).WithDetails(details)
		}

		return Healthy(fmt.Sprintf("%d of %d tokens left", st.Available, st.Capacity)).WithDetails(details)
	})
}
