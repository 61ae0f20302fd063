package pulse

import "time"

// Trend describes the direction of recent heat movement.
type Trend string

const (
	TrendRising  Trend = "rising"
	TrendFalling Trend = "falling"
	TrendStable  Trend = "stable"
)

// trendBand is the heat movement below which the trend reads stable.
const trendBand = 0.5

// Stats is a read-only, point-in-time aggregate of controller state. It is
// computed on demand from the sample history and surge bookkeeping, never
// maintained incrementally.
type Stats struct {
	CurrentHeat float64
	TargetHeat  float64
	CurrentZone Zone

	AverageHeat float64
	MinHeat     float64
	MaxHeat     float64
	Variance    float64
	SampleCount int

	// ZoneDistribution is cumulative residency per zone, including the
	// still-open residency in the current zone.
	ZoneDistribution map[Zone]time.Duration

	SurgeCount         uint64
	TotalSurgeDuration time.Duration
	LastSurgeDuration  time.Duration
	SurgeActive        bool

	TickInterval time.Duration
	GracePeriod  time.Duration

	HeatTrend     Trend
	ZoneStability float64

	Uptime             time.Duration
	UpdateCount        uint64
	ZoneTransitions    uint64
	EmergencyCooldowns uint64
}

// Statistics computes a snapshot of the controller's aggregate state. The
// lock is held only for the duration of the copy.
func (c *Controller) Statistics() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	samples := c.history.Samples()

	s := Stats{
		CurrentHeat:        c.currentHeat,
		TargetHeat:         c.targetHeat,
		CurrentZone:        c.zone,
		SampleCount:        len(samples),
		SurgeCount:         c.surgeCount,
		TotalSurgeDuration: c.totalSurgeDuration,
		LastSurgeDuration:  c.lastSurgeDuration,
		SurgeActive:        !c.currentSurgeStart.IsZero(),
		TickInterval:       tickInterval(c.currentHeat, c.zone, c.cfg),
		GracePeriod:        c.gracePeriodLocked(now),
		HeatTrend:          c.heatTrendLocked(),
		ZoneStability:      c.zoneStabilityLocked(),
		Uptime:             now.Sub(c.startedAt),
		UpdateCount:        c.updateCount,
		ZoneTransitions:    c.transitionCount,
		EmergencyCooldowns: c.emergencyCooldowns,
	}

	s.AverageHeat, s.MinHeat, s.MaxHeat, s.Variance = summarize(samples)

	s.ZoneDistribution = map[Zone]time.Duration{
		ZoneCalm:   c.zoneTime[ZoneCalm],
		ZoneActive: c.zoneTime[ZoneActive],
		ZoneSurge:  c.zoneTime[ZoneSurge],
	}
	s.ZoneDistribution[c.zone] += now.Sub(c.zoneEnteredAt)

	return s
}

// summarize computes mean, min, max, and population variance over the
// buffered samples in a single pass plus a variance pass.
func summarize(samples []HeatSample) (avg, lo, hi, variance float64) {
	if len(samples) == 0 {
		return 0, 0, 0, 0
	}

	lo = samples[0].Heat
	hi = samples[0].Heat
	var sum float64
	for _, s := range samples {
		sum += s.Heat
		lo = min(lo, s.Heat)
		hi = max(hi, s.Heat)
	}
	avg = sum / float64(len(samples))

	for _, s := range samples {
		d := s.Heat - avg
		variance += d * d
	}
	variance /= float64(len(samples))
	return avg, lo, hi, variance
}

// HeatTrend reports the direction of recent heat movement.
func (c *Controller) HeatTrend() Trend {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.heatTrendLocked()
}

// ZoneStability reports the zone churn score over the last ten updates.
func (c *Controller) ZoneStability() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.zoneStabilityLocked()
}

// heatTrendLocked compares the newest of the last five samples against the
// oldest; movement inside ±trendBand reads as stable.
func (c *Controller) heatTrendLocked() Trend {
	samples := c.history.Samples()
	if len(samples) < 5 {
		return TrendStable
	}
	recent := samples[len(samples)-5:]
	delta := recent[len(recent)-1].Heat - recent[0].Heat
	switch {
	case delta > trendBand:
		return TrendRising
	case delta < -trendBand:
		return TrendFalling
	default:
		return TrendStable
	}
}

// zoneStabilityLocked scores zone churn over the last ten updates: 1.0 when
// every observation is the same zone, down to 0.0 when all three zones
// appeared.
func (c *Controller) zoneStabilityLocked() float64 {
	if c.recentZoneN < len(c.recentZones) {
		return 1.0
	}
	seen := map[Zone]bool{}
	for _, z := range c.recentZones {
		seen[z] = true
	}
	return max(0, 1.0-float64(len(seen)-1)/2.0)
}
