package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff_ZeroNeverWaits(t *testing.T) {
	var b Backoff
	assert.Equal(t, time.Duration(0), b.Delay(1))
	assert.Equal(t, time.Duration(0), b.Delay(5))
	assert.NoError(t, b.Wait(context.Background(), 3))
}

func TestBackoff_Exponential(t *testing.T) {
	b := Backoff{Initial: 100 * time.Millisecond, Multiplier: 2, Max: 350 * time.Millisecond}

	assert.Equal(t, time.Duration(0), b.Delay(0))
	assert.Equal(t, 100*time.Millisecond, b.Delay(1))
	assert.Equal(t, 200*time.Millisecond, b.Delay(2))
	assert.Equal(t, 350*time.Millisecond, b.Delay(3))
}

func TestBackoff_MultiplierBelowOneIsConstant(t *testing.T) {
	b := Backoff{Initial: 50 * time.Millisecond}
	assert.Equal(t, 50*time.Millisecond, b.Delay(4))
}

func TestBackoff_JitterBounds(t *testing.T) {
	b := Backoff{Initial: 100 * time.Millisecond, Multiplier: 1, Jitter: 0.5}
	for i := 0; i < 100; i++ {
		d := b.Delay(1)
		assert.GreaterOrEqual(t, d, 50*time.Millisecond)
		assert.LessOrEqual(t, d, 150*time.Millisecond)
	}
}

func TestBackoff_WaitCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b := Backoff{Initial: time.Hour}
	assert.ErrorIs(t, b.Wait(ctx, 1), context.Canceled)
}
