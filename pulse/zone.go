// Package pulse implements a heat-driven regulator: it converts a scalar
// load signal in [0,100] into a discrete operating zone, an adaptive tick
// interval, and a cooldown grace period after overload surges.
//
// The controller performs no I/O and schedules nothing itself. The caller
// feeds it one heat reading per cycle through UpdateHeat and queries the
// zone, interval, and grace period to decide what to do next cycle.
package pulse

// Zone is the discrete operating regime derived from the smoothed heat.
// Zones are ordered: Calm < Active < Surge.
type Zone int

const (
	ZoneCalm Zone = iota
	ZoneActive
	ZoneSurge
)

// String returns the lowercase zone name.
func (z Zone) String() string {
	switch z {
	case ZoneCalm:
		return "calm"
	case ZoneActive:
		return "active"
	case ZoneSurge:
		return "surge"
	default:
		return "unknown"
	}
}

// classifyZone maps a heat value to its zone using the configured
// thresholds: Calm [0,CalmMax), Active [CalmMax,ActiveMax), Surge
// [ActiveMax,100]. Zone is a pure function of heat; the controller caches
// it only as an optimization and recomputes on every mutation.
func (c Config) classifyZone(heat float64) Zone {
	switch {
	case heat < c.CalmMax:
		return ZoneCalm
	case heat < c.ActiveMax:
		return ZoneActive
	default:
		return ZoneSurge
	}
}
