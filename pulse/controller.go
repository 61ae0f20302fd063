package pulse

import (
	"log"
	"math"
	"sync"
	"time"
)

// ZoneTransition records a change of operating zone. Duration is the time
// subsequently spent in the To zone; it is finalized when the next
// transition begins and immutable afterwards (Completed reports whether it
// has been set).
type ZoneTransition struct {
	From      Zone
	To        Zone
	HeatAt    float64
	StartedAt time.Time
	Duration  time.Duration
	Completed bool
}

// UpdateResult describes the outcome of one heat update.
type UpdateResult struct {
	PreviousHeat   float64
	CurrentHeat    float64
	Delta          float64
	PreviousZone   Zone
	CurrentZone    Zone
	ZoneChanged    bool
	TimeInPrevZone time.Duration
	SurgeActive    bool
	TickInterval   time.Duration
	GracePeriod    time.Duration
	UpdateCount    uint64
}

// Controller is the heat regulator. It owns all mutable state and must be
// treated as single-writer: every mutation goes through UpdateHeat (or the
// administrative wrappers that route into it), serialized by an internal
// mutex. Read-only queries take the same lock only for the duration of a
// copy and never block on anything else.
type Controller struct {
	mu  sync.Mutex
	cfg Config
	now func() time.Time

	currentHeat   float64
	targetHeat    float64
	zone          Zone
	zoneEnteredAt time.Time

	history         *heatHistory
	transitions     []ZoneTransition
	transitionCount uint64
	zoneTime        [3]time.Duration // completed residency per zone

	surgeCount         uint64
	totalSurgeDuration time.Duration
	currentSurgeStart  time.Time // nonzero exactly while a surge episode is open
	lastSurgeEndedAt   time.Time
	lastSurgeDuration  time.Duration

	// Recent zone observations, one per update, for the stability score.
	recentZones [10]Zone
	recentZoneN int
	recentHead  int

	emergencyCooldowns uint64
	startedAt          time.Time
	updateCount        uint64
}

// New creates a Controller seeded with initialHeat (clamped to [0,100]).
// The initial zone is derived from the seed with no transition recorded and
// no surge episode open.
func New(initialHeat float64, cfg Config) *Controller {
	return NewWithClock(initialHeat, cfg, time.Now)
}

// NewWithClock is New with an injectable monotonic clock, used by tests to
// drive interval, grace, and surge-duration math deterministically.
func NewWithClock(initialHeat float64, cfg Config, now func() time.Time) *Controller {
	seed := clampHeat(initialHeat, 0)
	start := now()
	return &Controller{
		cfg:           cfg,
		now:           now,
		currentHeat:   seed,
		targetHeat:    seed,
		zone:          cfg.classifyZone(seed),
		zoneEnteredAt: start,
		history:       newHeatHistory(cfg.HistoryCapacity),
		startedAt:     start,
	}
}

// clampHeat forces v into [0,100]. NaN carries no ordering information, so
// it is treated as "no movement" and resolved to fallback.
func clampHeat(v, fallback float64) float64 {
	if math.IsNaN(v) {
		return fallback
	}
	return max(0, min(100, v))
}

// UpdateHeat applies a new heat reading: clamp to [0,100], rate-limit the
// step to ±MaxDeltaPerUpdate from the current heat, then smooth the limited
// value in with the configured EMA factor. Out-of-range and non-finite
// inputs are clamped by contract, never rejected. This is the only path
// that mutates heat state.
func (c *Controller) UpdateHeat(newHeat float64) UpdateResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.updateHeatLocked(newHeat)
}

func (c *Controller) updateHeatLocked(newHeat float64) UpdateResult {
	now := c.now()
	prevHeat := c.currentHeat
	prevZone := c.zone

	clamped := clampHeat(newHeat, prevHeat)

	// Rate limiter: cap the step, not the target
	limited := clamped
	if delta := clamped - prevHeat; delta > c.cfg.MaxDeltaPerUpdate {
		limited = prevHeat + c.cfg.MaxDeltaPerUpdate
	} else if delta < -c.cfg.MaxDeltaPerUpdate {
		limited = prevHeat - c.cfg.MaxDeltaPerUpdate
	}

	// Target tracks where the signal wants to go; current is smoothed
	c.targetHeat = limited
	c.currentHeat = c.cfg.Smoothing*limited + (1-c.cfg.Smoothing)*prevHeat

	c.history.Append(HeatSample{At: now, Heat: c.currentHeat})

	newZone := c.cfg.classifyZone(c.currentHeat)
	zoneChanged := newZone != prevZone
	timeInPrev := now.Sub(c.zoneEnteredAt)

	if zoneChanged {
		c.zoneTime[prevZone] += timeInPrev
		c.recordTransitionLocked(prevZone, newZone, now)
		c.zone = newZone
		c.zoneEnteredAt = now

		if prevZone == ZoneSurge {
			c.endSurgeLocked(now)
		}
		if newZone == ZoneSurge {
			c.currentSurgeStart = now
		}
		log.Printf("pulse: zone %s -> %s (heat %.1f)", prevZone, newZone, c.currentHeat)
	}

	// Surge bookkeeping must never claim an open episode outside the Surge
	// zone; reachable only through a bug in this file.
	if !c.currentSurgeStart.IsZero() && c.zone != ZoneSurge {
		panic("pulse: surge episode open outside Surge zone")
	}

	c.recordZoneObservationLocked(newZone)
	c.updateCount++

	return UpdateResult{
		PreviousHeat:   prevHeat,
		CurrentHeat:    c.currentHeat,
		Delta:          c.currentHeat - prevHeat,
		PreviousZone:   prevZone,
		CurrentZone:    newZone,
		ZoneChanged:    zoneChanged,
		TimeInPrevZone: timeInPrev,
		SurgeActive:    !c.currentSurgeStart.IsZero(),
		TickInterval:   tickInterval(c.currentHeat, newZone, c.cfg),
		GracePeriod:    c.gracePeriodLocked(now),
		UpdateCount:    c.updateCount,
	}
}

// recordTransitionLocked finalizes the previous open transition and appends
// a new open one, evicting the oldest entry when the log is full.
func (c *Controller) recordTransitionLocked(from, to Zone, now time.Time) {
	if n := len(c.transitions); n > 0 && !c.transitions[n-1].Completed {
		c.transitions[n-1].Duration = now.Sub(c.transitions[n-1].StartedAt)
		c.transitions[n-1].Completed = true
	}
	c.transitions = append(c.transitions, ZoneTransition{
		From:      from,
		To:        to,
		HeatAt:    c.currentHeat,
		StartedAt: now,
	})
	if c.cfg.TransitionCapacity > 0 && len(c.transitions) > c.cfg.TransitionCapacity {
		c.transitions = c.transitions[len(c.transitions)-c.cfg.TransitionCapacity:]
	}
	c.transitionCount++
}

// endSurgeLocked closes the open surge episode, if any. Emergency cooldown
// can clear the episode start while the zone is still Surge; the later
// transition out of Surge then has nothing to close.
func (c *Controller) endSurgeLocked(now time.Time) {
	if c.currentSurgeStart.IsZero() {
		return
	}
	duration := now.Sub(c.currentSurgeStart)
	c.lastSurgeDuration = duration
	c.lastSurgeEndedAt = now
	c.totalSurgeDuration += duration
	c.surgeCount++
	c.currentSurgeStart = time.Time{}
	log.Printf("pulse: surge ended after %s (total surges: %d)", duration, c.surgeCount)
}

func (c *Controller) recordZoneObservationLocked(z Zone) {
	if c.recentZoneN < len(c.recentZones) {
		c.recentZones[(c.recentHead+c.recentZoneN)%len(c.recentZones)] = z
		c.recentZoneN++
		return
	}
	c.recentZones[c.recentHead] = z
	c.recentHead = (c.recentHead + 1) % len(c.recentZones)
}

// RegulateHeat nudges the heat a speed-fraction of the way toward target
// (proportional control). Speed is clamped to [0,1]; zero moves nothing.
// The step routes through UpdateHeat, so limiting and smoothing still apply.
func (c *Controller) RegulateHeat(target, speed float64) UpdateResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	target = clampHeat(target, c.currentHeat)
	speed = max(0, min(1, speed))
	if math.IsNaN(speed) {
		speed = 0
	}
	next := c.currentHeat + (target-c.currentHeat)*speed
	return c.updateHeatLocked(next)
}

// ApplyHeatDecay multiplies the current heat by rate to model passive
// cooling when no external reading arrives. A rate <= 0 (or non-finite)
// selects the configured HeatDampening. Returns the resulting heat.
func (c *Controller) ApplyHeatDecay(rate float64) float64 {
	return c.DecayHeat(rate).CurrentHeat
}

// DecayHeat is ApplyHeatDecay returning the full update result, for callers
// that need the zone transition and surge bookkeeping a decay step can
// trigger.
func (c *Controller) DecayHeat(rate float64) UpdateResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	if rate <= 0 || math.IsNaN(rate) || math.IsInf(rate, 0) {
		rate = c.cfg.HeatDampening
	}
	return c.updateHeatLocked(c.currentHeat * rate)
}

// EmergencyCooldown forces heat toward target and resets all surge tracking
// to the never-surged state. It is the only operation allowed to suppress
// an in-progress grace period, intended for recovery from pathological
// oscillation, and is always logged.
func (c *Controller) EmergencyCooldown(target float64) UpdateResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	log.Printf("pulse: EMERGENCY cooldown to %.1f (heat %.1f, surges %d, grace suppressed)",
		target, c.currentHeat, c.surgeCount)
	c.emergencyCooldowns++

	res := c.updateHeatLocked(target)
	c.resetSurgeLocked()
	res.SurgeActive = false
	res.GracePeriod = 0
	return res
}

// ResetSurgeTracking clears all surge counters and timestamps without
// touching heat state.
func (c *Controller) ResetSurgeTracking() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetSurgeLocked()
}

func (c *Controller) resetSurgeLocked() {
	c.surgeCount = 0
	c.totalSurgeDuration = 0
	c.currentSurgeStart = time.Time{}
	c.lastSurgeEndedAt = time.Time{}
	c.lastSurgeDuration = 0
}

// GracePeriod returns the remaining mandatory cooldown after the last
// surge: zero if no surge has ever ended, otherwise the computed grace
// minus the time already elapsed, floored at zero. Repeated surges and
// longer surges both lengthen the computed grace, up to the configured
// caps.
func (c *Controller) GracePeriod() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gracePeriodLocked(c.now())
}

func (c *Controller) gracePeriodLocked(now time.Time) time.Duration {
	if c.lastSurgeEndedAt.IsZero() {
		return 0
	}

	grace := c.cfg.BaseGracePeriod.Seconds()

	if c.surgeCount > 1 {
		mult := math.Pow(c.cfg.GraceMultiplier, float64(c.surgeCount-1))
		grace *= min(mult, c.cfg.GraceMultiplierCap)
	}

	lengthFactor := 1 + c.lastSurgeDuration.Seconds()/60.0
	grace *= min(lengthFactor, c.cfg.SurgeLengthFactorCap)

	grace = min(grace, c.cfg.MaxGracePeriod.Seconds())

	remaining := time.Duration(grace*float64(time.Second)) - now.Sub(c.lastSurgeEndedAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// TickInterval returns the recommended cadence for the next cycle. The
// controller only reports the interval; driving a timer with it is the
// caller's job.
func (c *Controller) TickInterval() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return tickInterval(c.currentHeat, c.zone, c.cfg)
}

// Zone returns the current operating zone.
func (c *Controller) Zone() Zone {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.zone
}

// Heat returns the current smoothed heat.
func (c *Controller) Heat() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentHeat
}

// TargetHeat returns where the signal last wanted to go (the rate-limited,
// pre-smoothing value).
func (c *Controller) TargetHeat() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.targetHeat
}

// SurgeActive reports whether a surge episode is currently open.
func (c *Controller) SurgeActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.currentSurgeStart.IsZero()
}

// RecentTransitions returns up to n of the most recent zone transitions,
// oldest first.
func (c *Controller) RecentTransitions(n int) []ZoneTransition {
	c.mu.Lock()
	defer c.mu.Unlock()

	if n <= 0 || n > len(c.transitions) {
		n = len(c.transitions)
	}
	out := make([]ZoneTransition, n)
	copy(out, c.transitions[len(c.transitions)-n:])
	return out
}
