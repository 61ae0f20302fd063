package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricHeat = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pulsectl_heat",
		Help: "Current smoothed heat value",
	})

	metricTargetHeat = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pulsectl_target_heat",
		Help: "Rate-limited target heat value",
	})

	metricZone = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pulsectl_zone",
		Help: "Current zone (0=calm, 1=active, 2=surge)",
	})

	metricTickInterval = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pulsectl_tick_interval_seconds",
		Help: "Recommended tick interval",
	})

	metricGracePeriod = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pulsectl_grace_period_seconds",
		Help: "Remaining post-surge grace period",
	})

	metricUpdates = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pulsectl_updates_total",
		Help: "Total heat updates processed",
	})

	metricTransitions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pulsectl_zone_transitions_total",
		Help: "Total zone transitions",
	})

	metricSurges = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pulsectl_surges_total",
		Help: "Total completed surge episodes",
	})

	metricCooldowns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pulsectl_emergency_cooldowns_total",
		Help: "Total emergency cooldowns",
	})
)

// metricsRecorder tracks the last seen counters so monotonic totals can be
// advanced from snapshot deltas.
type metricsRecorder struct {
	lastUpdates     uint64
	lastTransitions uint64
	lastSurges      uint64
	lastCooldowns   uint64
}

func (m *metricsRecorder) Record(snap PulseSnapshot) {
	metricHeat.Set(snap.Heat)
	metricTargetHeat.Set(snap.TargetHeat)
	metricZone.Set(float64(snap.Zone))
	metricTickInterval.Set(snap.TickInterval.Seconds())
	metricGracePeriod.Set(snap.GracePeriod.Seconds())

	m.lastUpdates = bumpCounter(metricUpdates, m.lastUpdates, snap.Stats.UpdateCount)
	m.lastTransitions = bumpCounter(metricTransitions, m.lastTransitions, snap.Stats.ZoneTransitions)
	m.lastSurges = bumpCounter(metricSurges, m.lastSurges, snap.Stats.SurgeCount)
	m.lastCooldowns = bumpCounter(metricCooldowns, m.lastCooldowns, snap.Stats.EmergencyCooldowns)
}

// bumpCounter adds the positive delta between the snapshot total and the
// last seen total. Resets (emergency cooldown zeroes the surge counter) are
// absorbed by re-basing without incrementing.
func bumpCounter(c prometheus.Counter, last, current uint64) uint64 {
	if current > last {
		c.Add(float64(current - last))
	}
	return current
}
