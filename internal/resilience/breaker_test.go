package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func fail(_ context.Context) (string, error) { return "", errBoom }
func succeed(_ context.Context) (string, error) { return "ok", nil }

func TestBreaker_ClosedPassesThrough(t *testing.T) {
	b := NewBreaker(BreakerConfig{})

	got, err := Do(context.Background(), b, succeed)
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, BreakerClosed, b.State())
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureThreshold: 3, Cooldown: time.Minute})

	for i := 0; i < 3; i++ {
		_, err := Do(context.Background(), b, fail)
		assert.ErrorIs(t, err, errBoom)
	}
	assert.Equal(t, BreakerOpen, b.State())

	called := false
	_, err := Do(context.Background(), b, func(context.Context) (string, error) {
		called = true
		return "", nil
	})
	assert.ErrorIs(t, err, ErrBreakerOpen)
	assert.False(t, called)
}

func TestBreaker_SuccessResetsFailures(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureThreshold: 3})

	_, _ = Do(context.Background(), b, fail)
	_, _ = Do(context.Background(), b, fail)
	assert.Equal(t, 2, b.Failures())

	_, _ = Do(context.Background(), b, succeed)
	assert.Equal(t, 0, b.Failures())
	assert.Equal(t, BreakerClosed, b.State())
}

func TestBreaker_HalfOpenProbe(t *testing.T) {
	now := time.Now()
	b := NewBreaker(BreakerConfig{FailureThreshold: 2, Cooldown: 100 * time.Millisecond})
	b.now = func() time.Time { return now }

	_, _ = Do(context.Background(), b, fail)
	_, _ = Do(context.Background(), b, fail)
	require.Equal(t, BreakerOpen, b.State())

	b.now = func() time.Time { return now.Add(200 * time.Millisecond) }
	assert.Equal(t, BreakerHalfOpen, b.State())

	_, err := Do(context.Background(), b, succeed)
	require.NoError(t, err)
	assert.Equal(t, BreakerClosed, b.State())
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	now := time.Now()
	b := NewBreaker(BreakerConfig{FailureThreshold: 2, Cooldown: 100 * time.Millisecond})
	b.now = func() time.Time { return now }

	_, _ = Do(context.Background(), b, fail)
	_, _ = Do(context.Background(), b, fail)

	later := now.Add(200 * time.Millisecond)
	b.now = func() time.Time { return later }
	_, err := Do(context.Background(), b, fail)
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, BreakerOpen, b.State())
	assert.Equal(t, 3, b.Failures())
}

func TestBreaker_CountsFilter(t *testing.T) {
	b := NewBreaker(BreakerConfig{
		FailureThreshold: 2,
		Counts:           func(err error) bool { return err.Error() == "counts" },
	})

	for i := 0; i < 5; i++ {
		_, _ = Do(context.Background(), b, fail)
	}
	assert.Equal(t, BreakerClosed, b.State())

	for i := 0; i < 2; i++ {
		_, _ = Do(context.Background(), b, func(context.Context) (string, error) {
			return "", errors.New("counts")
		})
	}
	assert.Equal(t, BreakerOpen, b.State())
}

func TestBreaker_CancellationIsNeutral(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureThreshold: 1})

	_, _ = Do(context.Background(), b, func(context.Context) (string, error) {
		return "", context.Canceled
	})
	assert.Equal(t, BreakerClosed, b.State())
	assert.Equal(t, 0, b.Failures())
}

func TestBreakerState_String(t *testing.T) {
	assert.Equal(t, "closed", BreakerClosed.String())
	assert.Equal(t, "open", BreakerOpen.String())
	assert.Equal(t, "half-open", BreakerHalfOpen.String())
	assert.Equal(t, "unknown", BreakerState(42).String())
}
