// Package backoff provides exponential backoff with jitter for retrying
// transient provider failures.
package backoff

import (
	"math"
	"math/rand/v2"
	"time"
)

// Policy defines the parameters for exponential backoff calculation.
type Policy struct {
	// Initial is the delay before the second attempt.
	Initial time.Duration
	// Max caps any single delay.
	Max time.Duration
	// Factor is the exponential growth applied per attempt.
	Factor float64
	// Jitter is the randomization factor (0.0 to 1.0) added on top of the base delay.
	Jitter float64
}

// DefaultPolicy returns the policy used for model and embedding calls.
// Initial: 1s, Max: 30s, Factor: 2, Jitter: 10%
func DefaultPolicy() Policy {
	return Policy{
		Initial: time.Second,
		Max:     30 * time.Second,
		Factor:  2,
		Jitter:  0.1,
	}
}

// WithInitial returns a copy of p with a different initial delay.
func (p Policy) WithInitial(d time.Duration) Policy {
	if d > 0 {
		p.Initial = d
	}
	return p
}

// Delay computes the backoff for a 1-indexed attempt:
// min(Max, Initial*Factor^(attempt-1) * (1 + Jitter*random)).
func (p Policy) Delay(attempt int) time.Duration {
	return p.delayWithRand(attempt, rand.Float64()) // #nosec G404 -- jitter does not require cryptographic randomness
}

func (p Policy) delayWithRand(attempt int, random float64) time.Duration {
	exp := math.Max(float64(attempt-1), 0)
	base := float64(p.Initial) * math.Pow(p.Factor, exp)
	total := base + base*p.Jitter*random
	if p.Max > 0 {
		total = math.Min(float64(p.Max), total)
	}
	return time.Duration(total)
}
