package webhook

import (
	"math"
	"math/rand/v2"
	"time"
)

// Backoff returns the delay before retry number attempt (1-based).
type Backoff interface {
	NextInterval(attempt int) time.Duration
}

// ExponentialBackoff grows the delay by Multiplier per attempt, with up to
// JitterFactor of random spread, capped at MaxInterval.
type ExponentialBackoff struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	JitterFactor    float64
}

func (e ExponentialBackoff) NextInterval(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	initial := cmpOr(e.InitialInterval, time.Second)
	ceiling := cmpOr(e.MaxInterval, 30*time.Second)
	mult := e.Multiplier
	if mult <= 0 {
		mult = 2
	}

	d := float64(initial) * math.Pow(mult, float64(attempt-1))
	if e.JitterFactor > 0 {
		d *= 1 + (rand.Float64()*2-1)*e.JitterFactor
	}
	return min(time.Duration(d), ceiling)
}

// FixedBackoff waits Interval between every attempt.
type FixedBackoff struct {
	Interval time.Duration
}

func (f FixedBackoff) NextInterval(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	return f.Interval
}

// DefaultBackoff is 1s doubling to 30s with 10% jitter.
func DefaultBackoff() Backoff {
	return ExponentialBackoff{InitialInterval: time.Second, MaxInterval: 30 * time.Second, Multiplier: 2, JitterFactor: 0.1}
}

func cmpOr(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}
