package resilience

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// PacerConfig configures request pacing. Pacing smooths the rate at which
// attempts leave the process; it is independent of the token budget, which
// only bounds how much is spent per window.
type PacerConfig struct {
	// Rate is the number of attempts allowed per second.
	// Default: 5
	Rate float64

	// Burst is the maximum burst size.
	// Default: 1
	Burst int

	// MaxWait is the maximum time to wait for a slot.
	// Default: 10 seconds
	MaxWait time.Duration
}

// Pacer spaces out outbound attempts.
type Pacer struct {
	config  PacerConfig
	limiter *rate.Limiter
}

// NewPacer creates a pacer.
func NewPacer(config PacerConfig) *Pacer {
	if config.Rate <= 0 {
		config.Rate = 5
	}
	if config.Burst <= 0 {
		config.Burst = 1
	}
	if config.MaxWait <= 0 {
		config.MaxWait = 10 * time.Second
	}

	return &Pacer{
		config:  config,
		limiter: rate.NewLimiter(rate.Limit(config.Rate), config.Burst),
	}
}

// Wait blocks until the next attempt may leave, up to MaxWait.
func (p *Pacer) Wait(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, p.config.MaxWait)
	defer cancel()

	if err := p.limiter.Wait(waitCtx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: pacer wait exceeded %s", ErrTimeout, p.config.MaxWait)
	}
	return nil
}

// Rate returns the pacing rate in attempts per second.
func (p *Pacer) Rate() float64 {
	return float64(p.limiter.Limit())
}
