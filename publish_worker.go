package main

import (
	"context"
	"fmt"
	"log"
	"strconv"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTMessage represents an outgoing MQTT message
type MQTTMessage struct {
	Topic   string
	Payload []byte
	QoS     byte
	Retain  bool
}

// snapshotMessages renders a snapshot as retained state messages under the
// configured topic prefix.
func snapshotMessages(prefix string, snap PulseSnapshot) []MQTTMessage {
	state := func(suffix, payload string) MQTTMessage {
		return MQTTMessage{
			Topic:   prefix + "/" + suffix,
			Payload: []byte(payload),
			QoS:     0,
			Retain:  true,
		}
	}

	return []MQTTMessage{
		state("zone", snap.Zone.String()),
		state("heat", fmt.Sprintf("%.2f", snap.Heat)),
		state("target_heat", fmt.Sprintf("%.2f", snap.TargetHeat)),
		state("tick_interval_ms", strconv.FormatInt(snap.TickInterval.Milliseconds(), 10)),
		state("grace_period_ms", strconv.FormatInt(snap.GracePeriod.Milliseconds(), 10)),
		state("surge_active", strconv.FormatBool(snap.SurgeActive)),
		state("surge_count", strconv.FormatUint(snap.Stats.SurgeCount, 10)),
	}
}

// publishWorker publishes controller state to MQTT. Messages produced before
// the broker connection is up are queued and flushed when the client arrives
// on clientChan.
func publishWorker(
	ctx context.Context,
	cfg AppConfig,
	snapshotChan <-chan PulseSnapshot,
	clientChan <-chan mqtt.Client,
) {
	log.Println("Publish worker started")

	var client mqtt.Client
	var messageQueue []MQTTMessage

	publish := func(msg MQTTMessage) {
		token := client.Publish(msg.Topic, msg.QoS, msg.Retain, msg.Payload)
		token.Wait()
		if token.Error() != nil {
			log.Printf("Failed to publish to %s: %v\n", msg.Topic, token.Error())
		}
	}

	for {
		select {
		case newClient := <-clientChan:
			log.Println("Publish worker received new client")
			client = newClient

			if client != nil && client.IsConnected() && len(messageQueue) > 0 {
				for _, msg := range messageQueue {
					publish(msg)
				}
				log.Printf("Publish worker flushed %d queued messages\n", len(messageQueue))
				messageQueue = nil
			}

		case snap := <-snapshotChan:
			msgs := snapshotMessages(cfg.StateTopicPrefix, snap)
			if client != nil && client.IsConnected() {
				for _, msg := range msgs {
					publish(msg)
				}
			} else {
				// Only the latest snapshot matters; replace, don't grow
				messageQueue = msgs
			}

		case <-ctx.Done():
			log.Println("Publish worker stopped")
			return
		}
	}
}
