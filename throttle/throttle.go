package throttle

import (
	"errors"
	"fmt"

	"golang.org/x/time/rate"
)

// ErrMustNotBeZero is returned by NewLimiter when rps or burst is not
// strictly positive.
var ErrMustNotBeZero = errors.New("must be greater than zero")

// Limiter wraps a token-bucket rate limiter for polling from a
// non-blocking event loop.
type Limiter struct {
	limiter *rate.Limiter
	rps     int
	burst   int
}

// NewLimiter returns a Limiter admitting up to rps attempts per
// second, with a burst allowance of burst.
func NewLimiter(rps, burst int) (*Limiter, error) {
	if rps <= 0 || burst <= 0 {
		return nil, fmt.Errorf("rps[%d] and burst[%d] %w", rps, burst, ErrMustNotBeZero)
	}

	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		rps:     rps,
		burst:   burst,
	}, nil
}

// Allow reports whether an attempt may proceed right now, consuming a
// token if so. It never blocks.
func (l *Limiter) Allow() bool {
	if l == nil {
		return true
	}
	return l.limiter.Allow()
}

// RPS and Burst report the configuration a Limiter was built with.
func (l *Limiter) RPS() int   { return l.rps }
func (l *Limiter) Burst() int { return l.burst }
