package main

import (
	"context"
	"log"
	"time"

	"pulsectl/pulse"
)

// HeatReading is one parsed heat value from an external source.
type HeatReading struct {
	Value  float64
	At     time.Time
	Source string
}

// CommandKind selects a controller operation for a PulseCommand.
type CommandKind int

const (
	CmdSetHeat CommandKind = iota
	CmdRegulate
	CmdDecay
	CmdCooldown
	CmdReset
)

// PulseCommand is an administrative request routed to the pulse worker.
// Target, Speed, and Rate are interpreted per kind.
type PulseCommand struct {
	Kind   CommandKind
	Target float64
	Speed  float64
	Rate   float64
}

// PulseSnapshot is an immutable copy of controller state emitted after every
// mutation. Consumers must never reach back into the controller.
type PulseSnapshot struct {
	At           time.Time
	Heat         float64
	TargetHeat   float64
	Zone         pulse.Zone
	ZoneName     string
	ZoneChanged  bool
	SurgeActive  bool
	TickInterval time.Duration
	GracePeriod  time.Duration
	UpdateCount  uint64

	Stats       pulse.Stats
	Transitions []pulse.ZoneTransition
}

// snapshotTransitions bounds the transition slice carried in each snapshot.
const snapshotTransitions = 20

// pulseWorker is the exclusive owner of the pulse.Controller. All mutations
// flow through this goroutine: heat readings from MQTT, administrative
// commands from the console or the command topic, and the passive decay
// timer. After every mutation it emits a snapshot downstream.
func pulseWorker(
	ctx context.Context,
	cfg AppConfig,
	readingChan <-chan HeatReading,
	commandChan <-chan PulseCommand,
	snapshotChan chan<- PulseSnapshot,
) {
	controller := pulse.New(0, cfg.Controller)

	// The decay timer doubles as the adaptive tick: it fires on the
	// controller's recommended interval and applies passive cooling only
	// when no reading arrived since the last fire.
	timer := time.NewTimer(cfg.DecayTick)
	defer timer.Stop()

	readingSinceTick := false

	emit := func(res pulse.UpdateResult) {
		stats := controller.Statistics()
		snap := PulseSnapshot{
			At:           time.Now(),
			Heat:         res.CurrentHeat,
			TargetHeat:   stats.TargetHeat,
			Zone:         res.CurrentZone,
			ZoneName:     res.CurrentZone.String(),
			ZoneChanged:  res.ZoneChanged,
			SurgeActive:  res.SurgeActive,
			TickInterval: res.TickInterval,
			GracePeriod:  res.GracePeriod,
			UpdateCount:  stats.UpdateCount,
			Stats:        stats,
			Transitions:  controller.RecentTransitions(snapshotTransitions),
		}
		select {
		case snapshotChan <- snap:
		case <-ctx.Done():
		}
	}

	rearm := func(d time.Duration) {
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		if d <= 0 {
			d = cfg.DecayTick
		}
		timer.Reset(d)
	}

	for {
		select {
		case reading := <-readingChan:
			res := controller.UpdateHeat(reading.Value)
			readingSinceTick = true
			emit(res)
			rearm(res.TickInterval)

		case cmd := <-commandChan:
			res, ok := applyCommand(controller, cmd)
			if ok {
				emit(res)
				rearm(res.TickInterval)
			}

		case <-timer.C:
			if readingSinceTick {
				readingSinceTick = false
				rearm(controller.TickInterval())
				continue
			}
			res := controller.DecayHeat(cfg.DecayRate)
			emit(res)
			rearm(res.TickInterval)

		case <-ctx.Done():
			log.Println("Pulse worker stopped")
			return
		}
	}
}

// applyCommand executes one administrative command against the controller.
// Returns false when the command mutated nothing worth emitting.
func applyCommand(controller *pulse.Controller, cmd PulseCommand) (pulse.UpdateResult, bool) {
	switch cmd.Kind {
	case CmdSetHeat:
		return controller.UpdateHeat(cmd.Target), true
	case CmdRegulate:
		return controller.RegulateHeat(cmd.Target, cmd.Speed), true
	case CmdDecay:
		return controller.DecayHeat(cmd.Rate), true
	case CmdCooldown:
		return controller.EmergencyCooldown(cmd.Target), true
	case CmdReset:
		controller.ResetSurgeTracking()
		return pulse.UpdateResult{
			CurrentHeat:  controller.Heat(),
			CurrentZone:  controller.Zone(),
			TickInterval: controller.TickInterval(),
		}, true
	default:
		log.Printf("Unknown pulse command kind: %d\n", cmd.Kind)
		return pulse.UpdateResult{}, false
	}
}
