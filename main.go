package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/joho/godotenv"
)

// SafeGo launches a goroutine with panic recovery and retry logic.
// On panic, retries with exponential backoff (max 10 retries).
// Retry count resets if worker ran for 2+ minutes before failing.
// After exhausting retries, cancels context to trigger shutdown.
func SafeGo(
	ctx context.Context,
	cancel context.CancelFunc,
	name string,
	fn func(ctx context.Context),
) {
	const maxRetries = 10
	const maxDelay = 10 * time.Minute
	const resetAfter = 2 * time.Minute

	go func() {
		retries := 0
		delay := time.Second

		for {
			startTime := time.Now()
			var panicValue any

			func() {
				defer func() {
					panicValue = recover()
				}()
				fn(ctx)
			}()

			// If function returned normally (no panic), exit the goroutine
			// This covers both context cancellation and unexpected completion
			if panicValue == nil {
				return
			}

			// If ran for resetAfter duration before panicking, reset retry state
			if time.Since(startTime) >= resetAfter {
				retries = 0
				delay = time.Second
			}

			retries++
			log.Printf("Panic in %s (attempt %d/%d): %v\n", name, retries, maxRetries, panicValue)

			// Check if we've exhausted retries
			if retries >= maxRetries {
				log.Printf("%s failed after %d retries, shutting down\n", name, maxRetries)
				cancel()
				return
			}

			// Wait before retry with exponential backoff
			log.Printf("%s will retry in %v\n", name, delay)
			select {
			case <-time.After(delay):
				// Double delay for next time, cap at max
				delay = min(delay*2, maxDelay)
			case <-ctx.Done():
				return
			}
		}
	}()
}

func main() {
	log.Println("Starting pulsectl...")

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: Error loading .env file: %v\n", err)
	}

	cfg := LoadConfig()

	// Create context for lifecycle management
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Create channels for communication between workers
	readingChan := make(chan HeatReading, 10)
	commandChan := make(chan PulseCommand, 10)
	snapshotChan := make(chan PulseSnapshot, 10)
	publishChan := make(chan PulseSnapshot, 10)
	httpChan := make(chan PulseSnapshot, 10)
	consoleChan := make(chan PulseSnapshot, 10)
	mqttClientChan := make(chan mqtt.Client, 1) // Buffered to prevent blocking onConnect

	// Launch publish worker (receives client updates via channel)
	SafeGo(ctx, cancel, "publish-worker", func(ctx context.Context) {
		publishWorker(ctx, cfg, publishChan, mqttClientChan)
	})
	log.Println("Publish worker started")

	// Launch the pulse worker (exclusive controller owner)
	SafeGo(ctx, cancel, "pulse-worker", func(ctx context.Context) {
		pulseWorker(ctx, cfg, readingChan, commandChan, snapshotChan)
	})
	log.Println("Pulse worker started")

	// Launch HTTP API worker
	SafeGo(ctx, cancel, "http-worker", func(ctx context.Context) {
		httpWorker(ctx, cfg, httpChan)
	})
	log.Println("HTTP worker started")

	// Launch console worker
	SafeGo(ctx, cancel, "console-worker", func(ctx context.Context) {
		consoleWorker(ctx, cancel, consoleChan, commandChan)
	})

	// Collect all downstream worker channels for fan-out
	downstreamChans := []chan<- PulseSnapshot{
		publishChan,
		httpChan,
		consoleChan,
	}

	// Launch broadcast worker (fans out to all downstream workers)
	SafeGo(ctx, cancel, "broadcast-worker", func(ctx context.Context) {
		broadcastWorker(ctx, snapshotChan, downstreamChans)
	})
	log.Println("Broadcast worker started")

	// Launch MQTT worker
	SafeGo(ctx, cancel, "mqtt-worker", func(ctx context.Context) {
		mqttWorker(ctx, cfg, readingChan, commandChan, mqttClientChan)
	})
	log.Println("MQTT worker started")

	// Wait for interrupt signal or context cancellation (from panic)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		log.Println("\nShutting down...")
	case <-ctx.Done():
		log.Println("\nShutting down...")
	}
}
