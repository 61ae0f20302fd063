package pulse

import (
	"math"
	"time"
)

// Zone modifiers applied after the base interval curve: surging systems
// tick faster, calm ones slower.
const (
	surgeIntervalFactor = 0.8
	calmIntervalFactor  = 1.2
)

// tickInterval computes the recommended cadence for the next processing
// cycle. The base curve is inverse-exponential in normalized heat, so the
// interval shrinks as load rises; the zone modifier is applied afterwards
// and the result is clamped back into [MinTickInterval, MaxTickInterval]
// and rounded to milliseconds.
//
// Holding the zone fixed, the result is monotonically non-increasing in
// heat.
func tickInterval(heat float64, zone Zone, cfg Config) time.Duration {
	h := heat / 100.0
	spread := (cfg.MaxTickInterval - cfg.MinTickInterval).Seconds()
	seconds := cfg.MinTickInterval.Seconds() + spread*math.Exp(-cfg.IntervalSteepness*h)

	switch zone {
	case ZoneSurge:
		seconds *= surgeIntervalFactor
	case ZoneCalm:
		seconds *= calmIntervalFactor
	}

	d := time.Duration(seconds * float64(time.Second))
	if d < cfg.MinTickInterval {
		d = cfg.MinTickInterval
	}
	if d > cfg.MaxTickInterval {
		d = cfg.MaxTickInterval
	}
	return d.Round(time.Millisecond)
}
