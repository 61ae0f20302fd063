package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"pulsectl/pulse"
)

// httpState holds the latest snapshot for the read-only HTTP API. Handlers
// load the pointer atomically, so serving never contends with the pulse
// worker.
type httpState struct {
	snapshot atomic.Pointer[PulseSnapshot]
}

func (s *httpState) Store(snap PulseSnapshot) {
	s.snapshot.Store(&snap)
}

func (s *httpState) Load() (PulseSnapshot, bool) {
	p := s.snapshot.Load()
	if p == nil {
		return PulseSnapshot{}, false
	}
	return *p, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v\n", err)
	}
}

func (s *httpState) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

// pulseResponse is the JSON surface of one snapshot. Durations are reported
// in seconds.
type pulseResponse struct {
	At           time.Time `json:"at"`
	Heat         float64   `json:"heat"`
	TargetHeat   float64   `json:"target_heat"`
	Zone         string    `json:"zone"`
	SurgeActive  bool      `json:"surge_active"`
	TickSeconds  float64   `json:"tick_interval_seconds"`
	GraceSeconds float64   `json:"grace_period_seconds"`
	UpdateCount  uint64    `json:"update_count"`
}

func (s *httpState) pulseHandler(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.Load()
	if !ok {
		http.Error(w, "no snapshot yet", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, pulseResponse{
		At:           snap.At,
		Heat:         snap.Heat,
		TargetHeat:   snap.TargetHeat,
		Zone:         snap.ZoneName,
		SurgeActive:  snap.SurgeActive,
		TickSeconds:  snap.TickInterval.Seconds(),
		GraceSeconds: snap.GracePeriod.Seconds(),
		UpdateCount:  snap.UpdateCount,
	})
}

// statsResponse flattens pulse.Stats into the JSON surface served by the
// API. Durations are reported in seconds.
type statsResponse struct {
	CurrentHeat float64 `json:"current_heat"`
	TargetHeat  float64 `json:"target_heat"`
	CurrentZone string  `json:"current_zone"`

	AverageHeat float64 `json:"average_heat"`
	MinHeat     float64 `json:"min_heat"`
	MaxHeat     float64 `json:"max_heat"`
	Variance    float64 `json:"variance"`
	SampleCount int     `json:"sample_count"`

	ZoneDistribution map[string]float64 `json:"zone_distribution_seconds"`

	SurgeCount         uint64  `json:"surge_count"`
	TotalSurgeSeconds  float64 `json:"total_surge_seconds"`
	LastSurgeSeconds   float64 `json:"last_surge_seconds"`
	SurgeActive        bool    `json:"surge_active"`
	TickSeconds        float64 `json:"tick_interval_seconds"`
	GraceSeconds       float64 `json:"grace_period_seconds"`
	HeatTrend          string  `json:"heat_trend"`
	ZoneStability      float64 `json:"zone_stability"`
	UptimeSeconds      float64 `json:"uptime_seconds"`
	UpdateCount        uint64  `json:"update_count"`
	ZoneTransitions    uint64  `json:"zone_transitions"`
	EmergencyCooldowns uint64  `json:"emergency_cooldowns"`
}

func newStatsResponse(stats pulse.Stats) statsResponse {
	dist := make(map[string]float64, len(stats.ZoneDistribution))
	for zone, d := range stats.ZoneDistribution {
		dist[zone.String()] = d.Seconds()
	}
	return statsResponse{
		CurrentHeat:        stats.CurrentHeat,
		TargetHeat:         stats.TargetHeat,
		CurrentZone:        stats.CurrentZone.String(),
		AverageHeat:        stats.AverageHeat,
		MinHeat:            stats.MinHeat,
		MaxHeat:            stats.MaxHeat,
		Variance:           stats.Variance,
		SampleCount:        stats.SampleCount,
		ZoneDistribution:   dist,
		SurgeCount:         stats.SurgeCount,
		TotalSurgeSeconds:  stats.TotalSurgeDuration.Seconds(),
		LastSurgeSeconds:   stats.LastSurgeDuration.Seconds(),
		SurgeActive:        stats.SurgeActive,
		TickSeconds:        stats.TickInterval.Seconds(),
		GraceSeconds:       stats.GracePeriod.Seconds(),
		HeatTrend:          string(stats.HeatTrend),
		ZoneStability:      stats.ZoneStability,
		UptimeSeconds:      stats.Uptime.Seconds(),
		UpdateCount:        stats.UpdateCount,
		ZoneTransitions:    stats.ZoneTransitions,
		EmergencyCooldowns: stats.EmergencyCooldowns,
	}
}

func (s *httpState) statsHandler(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.Load()
	if !ok {
		http.Error(w, "no snapshot yet", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, newStatsResponse(snap.Stats))
}

type transitionResponse struct {
	From            string    `json:"from"`
	To              string    `json:"to"`
	HeatAt          float64   `json:"heat_at"`
	StartedAt       time.Time `json:"started_at"`
	DurationSeconds float64   `json:"duration_seconds"`
	Completed       bool      `json:"completed"`
}

func (s *httpState) transitionsHandler(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.Load()
	if !ok {
		http.Error(w, "no snapshot yet", http.StatusServiceUnavailable)
		return
	}
	out := make([]transitionResponse, 0, len(snap.Transitions))
	for _, tr := range snap.Transitions {
		out = append(out, transitionResponse{
			From:            tr.From.String(),
			To:              tr.To.String(),
			HeatAt:          tr.HeatAt,
			StartedAt:       tr.StartedAt,
			DurationSeconds: tr.Duration.Seconds(),
			Completed:       tr.Completed,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *httpState) router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.healthHandler).Methods("GET")
	r.HandleFunc("/pulse", s.pulseHandler).Methods("GET")
	r.HandleFunc("/pulse/stats", s.statsHandler).Methods("GET")
	r.HandleFunc("/pulse/transitions", s.transitionsHandler).Methods("GET")
	r.Handle("/metrics", promhttp.Handler())
	return handlers.LoggingHandler(os.Stdout, r)
}

// httpWorker serves the read-only API. It consumes snapshots from the
// broadcast worker, records metrics, and keeps the latest snapshot available
// to handlers.
func httpWorker(ctx context.Context, cfg AppConfig, snapshotChan <-chan PulseSnapshot) {
	state := &httpState{}
	recorder := &metricsRecorder{}

	srv := &http.Server{
		Addr:         cfg.HTTPListenAddr,
		Handler:      state.router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	go func() {
		log.Printf("HTTP API listening on %s\n", cfg.HTTPListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("HTTP server error: %v\n", err)
		}
	}()

	for {
		select {
		case snap := <-snapshotChan:
			state.Store(snap)
			recorder.Record(snap)

		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Printf("HTTP shutdown error: %v\n", err)
			}
			log.Println("HTTP worker stopped")
			return
		}
	}
}
