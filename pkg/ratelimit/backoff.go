package ratelimit

import (
	"math"
	"time"
)

// Backoff is an exponential retry schedule without jitter.
type Backoff struct {
	Initial    time.Duration
	Multiplier float64
	Max        time.Duration
}

// DefaultBackoff waits 1s, 2s, 4s, 8s and then 10s between attempts.
var DefaultBackoff = Backoff{
	Initial:    time.Second,
	Multiplier: 2,
	Max:        10 * time.Second,
}

// Delay returns the wait before retry number attempt (1-based).
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	mult := b.Multiplier
	if mult < 1 {
		mult = 1
	}

	d := float64(b.Initial) * math.Pow(mult, float64(attempt-1))
	if b.Max > 0 && d > float64(b.Max) {
		return b.Max
	}
	return time.Duration(d)
}
