package pulse

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is an advanceable clock for driving time-dependent controller
// logic deterministically.
type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.now = f.now.Add(d)
}

// directConfig disables smoothing and rate limiting so inputs take effect
// verbatim, isolating the zone/surge/grace machinery under test.
func directConfig() Config {
	cfg := DefaultConfig()
	cfg.Smoothing = 1.0
	cfg.MaxDeltaPerUpdate = 100.0
	return cfg
}

func TestUpdateHeat_HeatStaysInRangeForArbitraryInputs(t *testing.T) {
	clock := newFakeClock()
	c := NewWithClock(50, DefaultConfig(), clock.Now)

	inputs := []float64{
		-1e9, -50, 0, 0.001, 42, 99.999, 100, 150, 1e9,
		math.Inf(1), math.Inf(-1), math.NaN(), -0.0, 63.5,
	}
	for _, in := range inputs {
		clock.Advance(time.Second)
		res := c.UpdateHeat(in)
		assert.GreaterOrEqual(t, res.CurrentHeat, 0.0, "input %v", in)
		assert.LessOrEqual(t, res.CurrentHeat, 100.0, "input %v", in)
	}
}

func TestUpdateHeat_RateLimiterCapsStepBeforeSmoothing(t *testing.T) {
	clock := newFakeClock()
	c := NewWithClock(0, DefaultConfig(), clock.Now)

	res := c.UpdateHeat(100)

	// The pre-smoothing target may move at most MaxDeltaPerUpdate
	assert.Equal(t, 15.0, c.TargetHeat())
	// Smoothing then pulls current only a fifth of the way there
	assert.InDelta(t, 3.0, res.CurrentHeat, 1e-9)
}

func TestUpdateHeat_RateLimiterHoldsInBothDirections(t *testing.T) {
	clock := newFakeClock()
	c := NewWithClock(50, DefaultConfig(), clock.Now)

	c.UpdateHeat(0)
	assert.Equal(t, 35.0, c.TargetHeat(), "downward step capped at -15")

	c2 := NewWithClock(50, DefaultConfig(), clock.Now)
	c2.UpdateHeat(100)
	assert.Equal(t, 65.0, c2.TargetHeat(), "upward step capped at +15")
}

func TestUpdateHeat_SmoothsTowardLimitedValue(t *testing.T) {
	clock := newFakeClock()
	c := NewWithClock(30, DefaultConfig(), clock.Now)

	res := c.UpdateHeat(40)

	// limited = 40 (within delta), current = 0.2*40 + 0.8*30 = 32
	assert.InDelta(t, 32.0, res.CurrentHeat, 1e-9)
	assert.Equal(t, 40.0, c.TargetHeat())
}

func TestUpdateHeat_NaNCausesNoMovement(t *testing.T) {
	clock := newFakeClock()
	c := NewWithClock(55, DefaultConfig(), clock.Now)

	res := c.UpdateHeat(math.NaN())

	assert.Equal(t, 55.0, res.CurrentHeat)
	assert.Equal(t, 55.0, c.TargetHeat())
}

func TestUpdateHeat_ResultRecordFields(t *testing.T) {
	clock := newFakeClock()
	c := NewWithClock(30, directConfig(), clock.Now)

	clock.Advance(10 * time.Second)
	res := c.UpdateHeat(45)

	assert.Equal(t, 30.0, res.PreviousHeat)
	assert.Equal(t, 45.0, res.CurrentHeat)
	assert.Equal(t, 15.0, res.Delta)
	assert.Equal(t, ZoneCalm, res.PreviousZone)
	assert.Equal(t, ZoneActive, res.CurrentZone)
	assert.True(t, res.ZoneChanged)
	assert.Equal(t, 10*time.Second, res.TimeInPrevZone)
	assert.False(t, res.SurgeActive)
	assert.Equal(t, uint64(1), res.UpdateCount)
	assert.Greater(t, res.TickInterval, time.Duration(0))
	assert.Equal(t, time.Duration(0), res.GracePeriod)
}

func TestUpdateHeat_SurgeEpisodeScenario(t *testing.T) {
	clock := newFakeClock()
	c := NewWithClock(30, directConfig(), clock.Now)
	require.Equal(t, ZoneCalm, c.Zone())

	// Calm -> Active
	clock.Advance(time.Second)
	res := c.UpdateHeat(45)
	assert.True(t, res.ZoneChanged)
	assert.Equal(t, ZoneActive, res.CurrentZone)

	// Active -> Surge: episode opens
	clock.Advance(time.Second)
	res = c.UpdateHeat(65)
	assert.True(t, res.ZoneChanged)
	assert.Equal(t, ZoneSurge, res.CurrentZone)
	assert.True(t, res.SurgeActive)

	// Still surging
	clock.Advance(5 * time.Second)
	res = c.UpdateHeat(70)
	assert.False(t, res.ZoneChanged)
	assert.True(t, res.SurgeActive)

	clock.Advance(5 * time.Second)
	res = c.UpdateHeat(75)
	assert.True(t, res.SurgeActive)

	// Surge ends after 15s in zone
	clock.Advance(5 * time.Second)
	res = c.UpdateHeat(30)
	assert.True(t, res.ZoneChanged)
	assert.Equal(t, ZoneCalm, res.CurrentZone)
	assert.False(t, res.SurgeActive)

	stats := c.Statistics()
	assert.Equal(t, uint64(1), stats.SurgeCount)
	assert.Equal(t, 15*time.Second, stats.LastSurgeDuration)
	assert.Equal(t, 15*time.Second, stats.TotalSurgeDuration)

	// Immediately after the surge the full computed grace remains:
	// 30s base * (1 + 15/60) = 37.5s
	assert.Equal(t, 37500*time.Millisecond, c.GracePeriod())
}

func TestUpdateHeat_TransitionLogFinalizesPreviousEntry(t *testing.T) {
	clock := newFakeClock()
	c := NewWithClock(30, directConfig(), clock.Now)

	clock.Advance(time.Second)
	c.UpdateHeat(45) // Calm -> Active
	clock.Advance(20 * time.Second)
	c.UpdateHeat(65) // Active -> Surge

	transitions := c.RecentTransitions(0)
	require.Len(t, transitions, 2)

	first := transitions[0]
	assert.Equal(t, ZoneCalm, first.From)
	assert.Equal(t, ZoneActive, first.To)
	assert.True(t, first.Completed)
	assert.Equal(t, 20*time.Second, first.Duration)

	second := transitions[1]
	assert.Equal(t, ZoneActive, second.From)
	assert.Equal(t, ZoneSurge, second.To)
	assert.False(t, second.Completed, "newest transition stays open")
}

func TestUpdateHeat_TransitionLogBounded(t *testing.T) {
	clock := newFakeClock()
	cfg := directConfig()
	cfg.TransitionCapacity = 4
	c := NewWithClock(30, cfg, clock.Now)

	// Oscillate Calm <-> Active to generate many transitions
	for i := 0; i < 10; i++ {
		clock.Advance(time.Second)
		c.UpdateHeat(45)
		clock.Advance(time.Second)
		c.UpdateHeat(30)
	}

	assert.Len(t, c.RecentTransitions(0), 4)
	assert.Equal(t, uint64(20), c.Statistics().ZoneTransitions, "total count keeps growing")
}

func TestRegulateHeat_MovesProportionallyTowardTarget(t *testing.T) {
	clock := newFakeClock()
	c := NewWithClock(50, directConfig(), clock.Now)

	res := c.RegulateHeat(100, 0.5)
	assert.InDelta(t, 75.0, res.CurrentHeat, 1e-9)

	res = c.RegulateHeat(100, 0.5)
	assert.InDelta(t, 87.5, res.CurrentHeat, 1e-9)
}

func TestRegulateHeat_SpeedClamped(t *testing.T) {
	clock := newFakeClock()
	c := NewWithClock(50, directConfig(), clock.Now)

	res := c.RegulateHeat(100, 5.0)
	assert.InDelta(t, 100.0, res.CurrentHeat, 1e-9, "speed above 1 clamps to a full step")

	c2 := NewWithClock(50, directConfig(), clock.Now)
	res = c2.RegulateHeat(100, -1)
	assert.InDelta(t, 50.0, res.CurrentHeat, 1e-9, "non-positive speed moves nothing")
}

func TestApplyHeatDecay_UsesConfiguredDampeningByDefault(t *testing.T) {
	clock := newFakeClock()
	c := NewWithClock(80, directConfig(), clock.Now)

	heat := c.ApplyHeatDecay(0)
	assert.InDelta(t, 76.0, heat, 1e-9) // 80 * 0.95

	heat = c.ApplyHeatDecay(0.5)
	assert.InDelta(t, 38.0, heat, 1e-9)
}

func TestDecayHeat_ReportsZoneTransition(t *testing.T) {
	clock := newFakeClock()
	c := NewWithClock(30, directConfig(), clock.Now)

	clock.Advance(time.Second)
	c.UpdateHeat(62)
	require.Equal(t, ZoneSurge, c.Zone())

	// 62 * 0.9 = 55.8 drops out of Surge; the decay step must report the
	// transition and the closed surge episode, not just the new heat
	clock.Advance(10 * time.Second)
	res := c.DecayHeat(0.9)

	assert.InDelta(t, 55.8, res.CurrentHeat, 1e-9)
	assert.True(t, res.ZoneChanged)
	assert.Equal(t, ZoneSurge, res.PreviousZone)
	assert.Equal(t, ZoneActive, res.CurrentZone)
	assert.False(t, res.SurgeActive)
	assert.Equal(t, uint64(2), res.UpdateCount)
	assert.Equal(t, 10*time.Second, res.TimeInPrevZone)
	assert.Equal(t, uint64(1), c.Statistics().SurgeCount)
}

func TestApplyHeatDecay_RoutesThroughUpdatePipeline(t *testing.T) {
	clock := newFakeClock()
	c := NewWithClock(80, DefaultConfig(), clock.Now)

	before := c.Statistics().UpdateCount
	c.ApplyHeatDecay(0)
	after := c.Statistics().UpdateCount

	assert.Equal(t, before+1, after, "decay must count as a regular update")
}

func TestEmergencyCooldown_ResetsSurgeTracking(t *testing.T) {
	clock := newFakeClock()
	c := NewWithClock(30, directConfig(), clock.Now)

	// Build up a surge episode and close it
	clock.Advance(time.Second)
	c.UpdateHeat(95)
	clock.Advance(30 * time.Second)
	c.UpdateHeat(30)
	require.Equal(t, uint64(1), c.Statistics().SurgeCount)
	require.Greater(t, c.GracePeriod(), time.Duration(0))

	// Another surge, still open this time
	clock.Advance(time.Second)
	c.UpdateHeat(95)
	require.True(t, c.SurgeActive())

	res := c.EmergencyCooldown(20)

	assert.False(t, res.SurgeActive)
	assert.Equal(t, time.Duration(0), res.GracePeriod)
	assert.False(t, c.SurgeActive())

	stats := c.Statistics()
	assert.Equal(t, uint64(0), stats.SurgeCount)
	assert.Equal(t, time.Duration(0), stats.TotalSurgeDuration)
	assert.Equal(t, time.Duration(0), c.GracePeriod(), "grace period suppressed")
	assert.Equal(t, uint64(1), stats.EmergencyCooldowns)
}

func TestEmergencyCooldown_ConvergesWithinSmoothingBounds(t *testing.T) {
	clock := newFakeClock()
	c := NewWithClock(0, DefaultConfig(), clock.Now)
	c.UpdateHeat(95)
	for i := 0; i < 60; i++ {
		clock.Advance(time.Second)
		c.UpdateHeat(95)
	}
	require.Greater(t, c.Heat(), 60.0)

	// Repeated cooldown calls walk heat down through the limiter+EMA
	for i := 0; i < 60; i++ {
		clock.Advance(time.Second)
		c.EmergencyCooldown(20)
	}

	assert.InDelta(t, 20.0, c.Heat(), 1.0)
	assert.Contains(t, []Zone{ZoneCalm, ZoneActive}, c.Zone())
	assert.Equal(t, uint64(0), c.Statistics().SurgeCount)
}

func TestController_SeedClampedAndZoneDerived(t *testing.T) {
	clock := newFakeClock()

	c := NewWithClock(150, DefaultConfig(), clock.Now)
	assert.Equal(t, 100.0, c.Heat())
	assert.Equal(t, ZoneSurge, c.Zone())
	assert.False(t, c.SurgeActive(), "no surge episode before the first transition in")
	assert.Empty(t, c.RecentTransitions(0), "seeding records no transition")

	c2 := NewWithClock(-5, DefaultConfig(), clock.Now)
	assert.Equal(t, 0.0, c2.Heat())
	assert.Equal(t, ZoneCalm, c2.Zone())
}

func TestController_ZoneAlwaysMatchesClassifier(t *testing.T) {
	clock := newFakeClock()
	cfg := DefaultConfig()
	c := NewWithClock(10, cfg, clock.Now)

	inputs := []float64{10, 55, 90, 20, 61, 59, 0, 100, 40}
	for _, in := range inputs {
		clock.Advance(time.Second)
		c.UpdateHeat(in)
		assert.Equal(t, cfg.classifyZone(c.Heat()), c.Zone(),
			"cached zone must never desynchronize from heat")
	}
}
