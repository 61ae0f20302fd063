package pulse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// surge drives one complete surge episode of the given length and leaves the
// controller back in Calm.
func surge(c *Controller, clock *fakeClock, length time.Duration) {
	c.UpdateHeat(70)
	clock.Advance(length)
	c.UpdateHeat(20)
}

func TestGracePeriod_ZeroBeforeAnySurge(t *testing.T) {
	clock := newFakeClock()
	c := NewWithClock(20, directConfig(), clock.Now)

	assert.Zero(t, c.GracePeriod())

	// Entering Surge does not start a grace period; only ending one does
	c.UpdateHeat(70)
	assert.Zero(t, c.GracePeriod())
}

func TestGracePeriod_FirstSurgeScalesWithLength(t *testing.T) {
	clock := newFakeClock()
	c := NewWithClock(20, directConfig(), clock.Now)

	// 15s surge: 30s base * (1 + 15/60) = 37.5s
	surge(c, clock, 15*time.Second)
	assert.Equal(t, 37500*time.Millisecond, c.GracePeriod())
}

func TestGracePeriod_DecaysLinearlyToZero(t *testing.T) {
	clock := newFakeClock()
	c := NewWithClock(20, directConfig(), clock.Now)

	surge(c, clock, 15*time.Second)
	require.Equal(t, 37500*time.Millisecond, c.GracePeriod())

	clock.Advance(10 * time.Second)
	assert.Equal(t, 27500*time.Millisecond, c.GracePeriod())

	clock.Advance(27500 * time.Millisecond)
	assert.Zero(t, c.GracePeriod())

	// Never negative, no matter how long ago the surge ended
	clock.Advance(time.Hour)
	assert.Zero(t, c.GracePeriod())
}

func TestGracePeriod_EscalatesWithRepeatedSurges(t *testing.T) {
	clock := newFakeClock()
	c := NewWithClock(20, directConfig(), clock.Now)

	// Zero-length surges keep the length factor at 1, isolating the
	// repeat multiplier: 30s * 1.5^(count-1).
	expected := []time.Duration{
		30 * time.Second,
		45 * time.Second,
		67500 * time.Millisecond,
		101250 * time.Millisecond,
	}
	for i, want := range expected {
		surge(c, clock, 0)
		assert.Equal(t, want, c.GracePeriod(), "after surge %d", i+1)
		clock.Advance(10 * time.Minute)
	}
}

func TestGracePeriod_RepeatMultiplierCapped(t *testing.T) {
	clock := newFakeClock()
	c := NewWithClock(20, directConfig(), clock.Now)

	// 1.5^5 would be ~7.6; the multiplier caps at 4
	for i := 0; i < 6; i++ {
		surge(c, clock, 0)
		clock.Advance(10 * time.Minute)
	}
	surge(c, clock, 0)
	assert.Equal(t, 120*time.Second, c.GracePeriod())
}

func TestGracePeriod_LengthFactorCapped(t *testing.T) {
	clock := newFakeClock()
	c := NewWithClock(20, directConfig(), clock.Now)

	// 150s surge gives factor 3.5, capped at 3: 30s * 3 = 90s
	surge(c, clock, 150*time.Second)
	assert.Equal(t, 90*time.Second, c.GracePeriod())
}

func TestGracePeriod_NeverExceedsMaximum(t *testing.T) {
	clock := newFakeClock()
	c := NewWithClock(20, directConfig(), clock.Now)

	// Both caps saturated: 30s * 4 * 3 = 360s, clamped to the 300s maximum
	for i := 0; i < 5; i++ {
		surge(c, clock, 0)
		clock.Advance(10 * time.Minute)
	}
	surge(c, clock, 150*time.Second)
	assert.Equal(t, 300*time.Second, c.GracePeriod())
}

func TestGracePeriod_ClearedByReset(t *testing.T) {
	clock := newFakeClock()
	c := NewWithClock(20, directConfig(), clock.Now)

	surge(c, clock, 15*time.Second)
	require.NotZero(t, c.GracePeriod())

	c.ResetSurgeTracking()
	assert.Zero(t, c.GracePeriod())
	assert.False(t, c.SurgeActive())
}
