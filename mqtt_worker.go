package main

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Payloads Home Assistant style publishers use for a sensor with no value.
func isUnavailablePayload(s string) bool {
	switch s {
	case "", "unavailable", "unknown", "Undefined", "None", "nan":
		return true
	}
	return false
}

// mqttWorker manages the broker connection: it subscribes to the heat and
// command topics, parses payloads, and forwards them to the pulse worker.
// The connected client is handed to the publish worker via clientChan so
// outgoing state shares the same connection.
func mqttWorker(
	ctx context.Context,
	cfg AppConfig,
	readingChan chan<- HeatReading,
	commandChan chan<- PulseCommand,
	clientChan chan<- mqtt.Client,
) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:1883", cfg.MQTTBroker))
	opts.SetClientID(cfg.MQTTClientID)
	opts.SetUsername(cfg.MQTTUsername)
	opts.SetPassword(cfg.MQTTPassword)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetryInterval(5 * time.Second)

	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		log.Printf("MQTT connection lost: %v\n", err)
	})

	opts.SetOnConnectHandler(func(client mqtt.Client) {
		log.Printf("Connected to MQTT broker at %s\n", cfg.MQTTBroker)

		// Send the new client to the publish worker
		select {
		case clientChan <- client:
		case <-ctx.Done():
			return
		}

		token := client.Subscribe(cfg.HeatTopic, 0, func(client mqtt.Client, msg mqtt.Message) {
			payload := strings.TrimSpace(string(msg.Payload()))
			if isUnavailablePayload(payload) {
				return
			}
			value, err := strconv.ParseFloat(payload, 64)
			if err != nil {
				log.Printf("Ignoring unparseable heat payload %q: %v\n", payload, err)
				return
			}
			select {
			case readingChan <- HeatReading{Value: value, At: time.Now(), Source: msg.Topic()}:
			case <-ctx.Done():
			}
		})
		if token.Wait() && token.Error() != nil {
			log.Printf("Failed to subscribe to topic %s: %v\n", cfg.HeatTopic, token.Error())
		} else {
			log.Printf("Subscribed to topic: %s\n", cfg.HeatTopic)
		}

		token = client.Subscribe(cfg.CommandTopic, 0, func(client mqtt.Client, msg mqtt.Message) {
			cmd, err := parseCommand(strings.TrimSpace(string(msg.Payload())))
			if err != nil {
				log.Printf("Ignoring bad command payload %q: %v\n", msg.Payload(), err)
				return
			}
			select {
			case commandChan <- cmd:
			case <-ctx.Done():
			}
		})
		if token.Wait() && token.Error() != nil {
			log.Printf("Failed to subscribe to topic %s: %v\n", cfg.CommandTopic, token.Error())
		} else {
			log.Printf("Subscribed to topic: %s\n", cfg.CommandTopic)
		}
	})

	client := mqtt.NewClient(opts)

	log.Printf("Connecting to MQTT broker at %s...\n", cfg.MQTTBroker)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		log.Printf("Failed to connect to MQTT broker: %v\n", token.Error())
		return
	}

	<-ctx.Done()

	if client.IsConnected() {
		client.Disconnect(250)
		log.Println("Disconnected from MQTT broker")
	}
}
