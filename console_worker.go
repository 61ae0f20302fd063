package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"pulsectl/pulse"
)

// parseCommand turns a text command into a PulseCommand. Shared between the
// console and the MQTT command topic.
func parseCommand(line string) (PulseCommand, error) {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return PulseCommand{}, fmt.Errorf("empty command")
	}

	parseF := func(s string) (float64, error) { return strconv.ParseFloat(s, 64) }

	switch parts[0] {
	case "heat":
		if len(parts) != 2 {
			return PulseCommand{}, fmt.Errorf("usage: heat <value>")
		}
		v, err := parseF(parts[1])
		if err != nil {
			return PulseCommand{}, fmt.Errorf("bad value %q: %w", parts[1], err)
		}
		return PulseCommand{Kind: CmdSetHeat, Target: v}, nil

	case "regulate":
		if len(parts) != 3 {
			return PulseCommand{}, fmt.Errorf("usage: regulate <target> <speed>")
		}
		target, err := parseF(parts[1])
		if err != nil {
			return PulseCommand{}, fmt.Errorf("bad target %q: %w", parts[1], err)
		}
		speed, err := parseF(parts[2])
		if err != nil {
			return PulseCommand{}, fmt.Errorf("bad speed %q: %w", parts[2], err)
		}
		return PulseCommand{Kind: CmdRegulate, Target: target, Speed: speed}, nil

	case "decay":
		cmd := PulseCommand{Kind: CmdDecay}
		if len(parts) > 2 {
			return PulseCommand{}, fmt.Errorf("usage: decay [rate]")
		}
		if len(parts) == 2 {
			rate, err := parseF(parts[1])
			if err != nil {
				return PulseCommand{}, fmt.Errorf("bad rate %q: %w", parts[1], err)
			}
			cmd.Rate = rate
		}
		return cmd, nil

	case "cooldown":
		if len(parts) != 2 {
			return PulseCommand{}, fmt.Errorf("usage: cooldown <target>")
		}
		target, err := parseF(parts[1])
		if err != nil {
			return PulseCommand{}, fmt.Errorf("bad target %q: %w", parts[1], err)
		}
		return PulseCommand{Kind: CmdCooldown, Target: target}, nil

	case "reset":
		if len(parts) != 1 {
			return PulseCommand{}, fmt.Errorf("usage: reset")
		}
		return PulseCommand{Kind: CmdReset}, nil
	}

	return PulseCommand{}, fmt.Errorf("unknown command: %s", parts[0])
}

// readlineWriter wraps log output to work with readline
type readlineWriter struct {
	rl *readline.Instance
}

func (w *readlineWriter) Write(p []byte) (n int, err error) {
	if w.rl != nil {
		w.rl.Clean()
	}
	n, err = os.Stderr.Write(p)
	if w.rl != nil {
		w.rl.Refresh()
	}
	return n, err
}

var rlWriter = &readlineWriter{}

// consoleState tracks the latest snapshot and the watch toggle for the
// interactive console.
type consoleState struct {
	rl       *readline.Instance
	latest   *PulseSnapshot
	watching bool
}

func (s *consoleState) print(format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	if s.rl != nil {
		s.rl.Clean()
		fmt.Println(line)
		s.rl.Refresh()
	} else {
		fmt.Println(line)
	}
}

func (s *consoleState) printSnapshot(snap PulseSnapshot) {
	s.print("heat %6.2f -> %6.2f  zone %-6s  tick %8s  grace %8s  surge %v",
		snap.Heat, snap.TargetHeat, snap.Zone, snap.TickInterval, snap.GracePeriod, snap.SurgeActive)
}

func (s *consoleState) printStats() {
	if s.latest == nil {
		s.print("No snapshot received yet")
		return
	}
	st := s.latest.Stats
	s.print("heat:        %.2f (target %.2f, trend %s)", st.CurrentHeat, st.TargetHeat, st.HeatTrend)
	s.print("zone:        %s (stability %.2f)", st.CurrentZone, st.ZoneStability)
	s.print("history:     %d samples, avg %.2f, min %.2f, max %.2f, variance %.2f",
		st.SampleCount, st.AverageHeat, st.MinHeat, st.MaxHeat, st.Variance)
	s.print("surges:      %d (total %s, last %s, active %v)",
		st.SurgeCount, st.TotalSurgeDuration, st.LastSurgeDuration, st.SurgeActive)
	s.print("tick:        %s  grace: %s", st.TickInterval, st.GracePeriod)
	s.print("uptime:      %s, %d updates, %d transitions, %d emergency cooldowns",
		st.Uptime.Round(time.Second), st.UpdateCount, st.ZoneTransitions, st.EmergencyCooldowns)
	for _, zone := range []pulse.Zone{pulse.ZoneCalm, pulse.ZoneActive, pulse.ZoneSurge} {
		s.print("  in %-6s  %s", zone, st.ZoneDistribution[zone].Round(time.Second))
	}
}

// handleConsoleCommand processes one console line. Mutation commands go to
// the pulse worker; query commands answer from the latest snapshot.
func handleConsoleCommand(ctx context.Context, line string, state *consoleState, commandChan chan<- PulseCommand) {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return
	}

	switch parts[0] {
	case "stats":
		state.printStats()
		return

	case "zone":
		if state.latest == nil {
			state.print("No snapshot received yet")
			return
		}
		state.print("%s (heat %.2f)", state.latest.Zone, state.latest.Heat)
		return

	case "watch":
		state.watching = !state.watching
		if state.watching {
			state.print("Watching snapshots (run 'watch' again to stop)")
		} else {
			state.print("Watch stopped")
		}
		return

	case "help":
		fmt.Println("Commands:")
		fmt.Println("  heat <value>               - Feed a heat reading")
		fmt.Println("  regulate <target> <speed>  - Nudge heat toward target, speed in (0,1]")
		fmt.Println("  decay [rate]               - Apply passive decay (default rate from config)")
		fmt.Println("  cooldown <target>          - Emergency cooldown, resets surge tracking")
		fmt.Println("  reset                      - Reset surge tracking only")
		fmt.Println("  stats                      - Show controller statistics")
		fmt.Println("  zone                       - Show current zone")
		fmt.Println("  watch                      - Toggle live snapshot output")
		fmt.Println("  help                       - Show this help")
		fmt.Println("  exit                       - Quit")
		return
	}

	cmd, err := parseCommand(line)
	if err != nil {
		log.Printf("Error: %v (try 'help')", err)
		return
	}
	select {
	case commandChan <- cmd:
	case <-ctx.Done():
	}
}

// readlineLoop runs the readline loop, sending lines to the channel
func readlineLoop(
	ctx context.Context,
	cancel context.CancelFunc,
	rl *readline.Instance,
	lineChan chan<- string,
) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			cancel() // Ctrl+C pressed, shutdown the app
			return
		}
		if err != nil {
			return // EOF or other error
		}
		line = strings.TrimSpace(line)
		if line != "" {
			lineChan <- line
		}
	}
}

// getHistoryFilePath returns the path for console history file
func getHistoryFilePath() string {
	cacheDir := os.Getenv("XDG_CACHE_HOME")
	if cacheDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "" // No history if we can't find home
		}
		cacheDir = filepath.Join(home, ".cache")
	}
	pulsectlCache := filepath.Join(cacheDir, "pulsectl")
	_ = os.MkdirAll(pulsectlCache, 0750)
	return filepath.Join(pulsectlCache, "console_history")
}

// consoleWorker provides the interactive control console.
func consoleWorker(
	ctx context.Context,
	cancel context.CancelFunc,
	snapshotChan <-chan PulseSnapshot,
	commandChan chan<- PulseCommand,
) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:      "> ",
		HistoryFile: getHistoryFilePath(),
	})
	if err != nil {
		log.Printf("Console worker: readline init failed: %v", err)
		return
	}
	defer func() {
		_ = rl.Close()
		rlWriter.rl = nil
	}()

	// Redirect log output through readline-aware writer
	rlWriter.rl = rl
	log.SetOutput(rlWriter)

	log.Println("Console started (type 'help' for commands)")

	lineChan := make(chan string, 10)
	state := &consoleState{rl: rl}

	go readlineLoop(ctx, cancel, rl, lineChan)

	for {
		select {
		case line := <-lineChan:
			if line == "exit" || line == "quit" {
				cancel()
				return
			}
			handleConsoleCommand(ctx, line, state, commandChan)

		case snap := <-snapshotChan:
			state.latest = &snap
			if state.watching {
				state.printSnapshot(snap)
			}

		case <-ctx.Done():
			log.Println("Console stopped")
			return
		}
	}
}
