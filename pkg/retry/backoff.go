package retry

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Backoff returns the pause after a failed attempt (1-based)
type Backoff interface {
	Delay(attempt int) time.Duration
}

// Exponential doubles (by Factor) from Base up to Max, spread by Jitter
type Exponential struct {
	Base   time.Duration
	Max    time.Duration
	Factor float64
	// Jitter is the +/- fraction applied to each delay, 0 to 1
	Jitter float64
}

// Delay implements Backoff
func (e Exponential) Delay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	factor := e.Factor
	if factor < 1 {
		factor = 2
	}

	d := float64(e.Base) * math.Pow(factor, float64(attempt-1))
	if e.Max > 0 && d > float64(e.Max) {
		d = float64(e.Max)
	}
	if e.Jitter > 0 {
		spread := d * e.Jitter
		d += rand.Float64()*2*spread - spread
	}
	return time.Duration(math.Max(d, 0))
}

// Constant pauses the same amount after every failure
type Constant time.Duration

// Delay implements Backoff
func (c Constant) Delay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	return time.Duration(c)
}

// Wait blocks for d or until ctx is done
func Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
