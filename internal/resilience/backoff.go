package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// Backoff computes the pause between consecutive attempts. The zero value
// never waits.
type Backoff struct {
	// Initial is the pause before the second attempt. Zero disables waiting.
	Initial time.Duration
	// Max caps the pause. Zero means no cap.
	Max time.Duration
	// Multiplier scales the pause after each attempt. Values below 1 are
	// treated as 1.
	Multiplier float64
	// Jitter adds up to ±Jitter of the computed pause (0.25 = ±25%).
	Jitter float64
}

// Delay returns the pause after the given failed attempt (1-based).
func (b Backoff) Delay(attempt int) time.Duration {
	if b.Initial <= 0 || attempt < 1 {
		return 0
	}
	mul := b.Multiplier
	if mul < 1 {
		mul = 1
	}
	d := float64(b.Initial) * math.Pow(mul, float64(attempt-1))
	if b.Max > 0 && d > float64(b.Max) {
		d = float64(b.Max)
	}
	if b.Jitter > 0 {
		d += (rand.Float64()*2 - 1) * d * b.Jitter
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

// Wait sleeps for Delay(attempt) or until ctx is done.
func (b Backoff) Wait(ctx context.Context, attempt int) error {
	d := b.Delay(attempt)
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
