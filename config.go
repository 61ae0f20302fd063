package main

import (
	"log"
	"os"
	"strconv"
	"time"

	"pulsectl/pulse"
)

// AppConfig holds all daemon settings. Values come from the environment
// (optionally seeded from a .env file) and are read once at startup.
type AppConfig struct {
	MQTTBroker   string
	MQTTUsername string
	MQTTPassword string
	MQTTClientID string

	// HeatTopic carries incoming heat readings; StateTopicPrefix is where
	// the daemon publishes its own state.
	HeatTopic        string
	CommandTopic     string
	StateTopicPrefix string

	HTTPListenAddr string

	// DecayTick is the fallback cadence for passive cooling when the
	// controller has not recommended an interval yet.
	DecayTick time.Duration
	DecayRate float64

	Controller pulse.Config
}

// LoadConfig reads the daemon configuration from the environment. Every
// setting except the MQTT credentials has a usable default.
func LoadConfig() AppConfig {
	cfg := AppConfig{
		MQTTBroker:   envString("MQTT_BROKER", "localhost"),
		MQTTUsername: os.Getenv("MQTT_USERNAME"),
		MQTTPassword: os.Getenv("MQTT_PASSWORD"),
		MQTTClientID: envString("MQTT_CLIENT_ID", "pulsectl"),

		HeatTopic:        envString("PULSE_HEAT_TOPIC", "pulsectl/heat/input"),
		CommandTopic:     envString("PULSE_COMMAND_TOPIC", "pulsectl/command"),
		StateTopicPrefix: envString("PULSE_STATE_PREFIX", "pulsectl/state"),

		HTTPListenAddr: envString("HTTP_LISTEN_ADDR", ":8080"),

		DecayTick: envDuration("PULSE_DECAY_TICK", 5*time.Second),
		DecayRate: envFloat("PULSE_DECAY_RATE", 0),
	}

	pc := pulse.DefaultConfig()
	pc.CalmMax = envFloat("PULSE_CALM_MAX", pc.CalmMax)
	pc.ActiveMax = envFloat("PULSE_ACTIVE_MAX", pc.ActiveMax)
	pc.Smoothing = envFloat("PULSE_SMOOTHING", pc.Smoothing)
	pc.MaxDeltaPerUpdate = envFloat("PULSE_MAX_DELTA", pc.MaxDeltaPerUpdate)
	pc.MinTickInterval = envDuration("PULSE_MIN_TICK", pc.MinTickInterval)
	pc.MaxTickInterval = envDuration("PULSE_MAX_TICK", pc.MaxTickInterval)
	pc.IntervalSteepness = envFloat("PULSE_INTERVAL_STEEPNESS", pc.IntervalSteepness)
	pc.BaseGracePeriod = envDuration("PULSE_BASE_GRACE", pc.BaseGracePeriod)
	pc.GraceMultiplier = envFloat("PULSE_GRACE_MULTIPLIER", pc.GraceMultiplier)
	pc.GraceMultiplierCap = envFloat("PULSE_GRACE_MULTIPLIER_CAP", pc.GraceMultiplierCap)
	pc.SurgeLengthFactorCap = envFloat("PULSE_SURGE_LENGTH_FACTOR_CAP", pc.SurgeLengthFactorCap)
	pc.MaxGracePeriod = envDuration("PULSE_MAX_GRACE", pc.MaxGracePeriod)
	pc.HeatDampening = envFloat("PULSE_HEAT_DAMPENING", pc.HeatDampening)
	pc.HistoryCapacity = envInt("PULSE_HISTORY_CAPACITY", pc.HistoryCapacity)
	pc.TransitionCapacity = envInt("PULSE_TRANSITION_CAPACITY", pc.TransitionCapacity)
	cfg.Controller = pc

	return cfg
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("Invalid %s=%q, using %v: %v\n", key, v, fallback, err)
		return fallback
	}
	return f
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("Invalid %s=%q, using %v: %v\n", key, v, fallback, err)
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("Invalid %s=%q, using %v: %v\n", key, v, fallback, err)
		return fallback
	}
	return d
}
