package pulse

import "time"

// Config holds the construction-time tunables for a Controller.
//
// The rate limiter runs before the smoother (limit, then smooth) and the
// two defaults below are independent knobs. That ordering and the default
// magnitudes are carried as configured policy, not re-derived.
type Config struct {
	// Zone thresholds. Calm is [0,CalmMax), Active is [CalmMax,ActiveMax),
	// Surge is [ActiveMax,100].
	CalmMax   float64
	ActiveMax float64

	// Smoothing is the EMA factor applied after rate limiting:
	// current = Smoothing*limited + (1-Smoothing)*current.
	Smoothing float64

	// MaxDeltaPerUpdate caps how far a single reading can move the
	// pre-smoothing heat, preventing one-tick spikes from causing
	// discontinuous zone jumps.
	MaxDeltaPerUpdate float64

	// Tick interval curve: interval = MinTickInterval +
	// (MaxTickInterval-MinTickInterval) * e^(-IntervalSteepness * heat/100),
	// then zone-modified and clamped back into [Min,Max].
	MinTickInterval   time.Duration
	MaxTickInterval   time.Duration
	IntervalSteepness float64

	// Grace period: BaseGracePeriod scaled by GraceMultiplier^(surges-1)
	// (capped at GraceMultiplierCap) and by 1+lastSurge/60s (capped at
	// SurgeLengthFactorCap), never exceeding MaxGracePeriod.
	BaseGracePeriod      time.Duration
	GraceMultiplier      float64
	GraceMultiplierCap   float64
	SurgeLengthFactorCap float64
	MaxGracePeriod       time.Duration

	// HeatDampening is the default multiplier for ApplyHeatDecay when the
	// caller passes no explicit rate, modelling passive cooling between
	// external readings.
	HeatDampening float64

	// HistoryCapacity bounds the heat sample ring buffer;
	// TransitionCapacity bounds the zone transition log.
	HistoryCapacity    int
	TransitionCapacity int
}

// DefaultConfig returns the reference tuning: zones split at 40/60,
// smoothing 0.2, spike limit 15 heat units per update, tick interval in
// [100ms,5s] with steepness 4, grace base 30s growing 1.5x per surge
// (capped 4x) and up to 3x for long surges, ceiling 300s.
func DefaultConfig() Config {
	return Config{
		CalmMax:              40.0,
		ActiveMax:            60.0,
		Smoothing:            0.2,
		MaxDeltaPerUpdate:    15.0,
		MinTickInterval:      100 * time.Millisecond,
		MaxTickInterval:      5 * time.Second,
		IntervalSteepness:    4.0,
		BaseGracePeriod:      30 * time.Second,
		GraceMultiplier:      1.5,
		GraceMultiplierCap:   4.0,
		SurgeLengthFactorCap: 3.0,
		MaxGracePeriod:       300 * time.Second,
		HeatDampening:        0.95,
		HistoryCapacity:      600,
		TransitionCapacity:   256,
	}
}
