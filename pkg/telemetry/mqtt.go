package telemetry

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/itohio/golongboard/pkg/config"
)

const (
	mqttTimeout    = 5 * time.Second
	mqttQoS        = 0
	mqttDisconnect = 250 // ms to wait for in-flight work on Close
)

// client is the part of mqtt.Client used here.
type client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Disconnect(quiesce uint)
}

var _ client = (mqtt.Client)(nil)

// MQTT publishes telemetry as JSON and optionally receives remote command bytes.
type MQTT struct {
	client         client
	telemetryTopic string
	commandTopic   string
}

// DialMQTT connects to the configured broker.
func DialMQTT(cfg config.MQTTConfig) (*MQTT, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.OnConnect = func(mqtt.Client) {
		log.Printf("Connected to MQTT broker %s", cfg.Broker)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Printf("MQTT connection lost: %v", err)
	}

	c := mqtt.NewClient(opts)
	token := c.Connect()
	if !token.WaitTimeout(mqttTimeout) {
		// ConnectRetry keeps trying in the background.
		log.Printf("MQTT broker %s not reachable yet, retrying in background", cfg.Broker)
	} else if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker %s: %w", cfg.Broker, err)
	}

	return newMQTT(c, cfg), nil
}

func newMQTT(c client, cfg config.MQTTConfig) *MQTT {
	return &MQTT{
		client:         c,
		telemetryTopic: cfg.TelemetryTopic,
		commandTopic:   cfg.CommandTopic,
	}
}

// Send implements Sink.
func (m *MQTT) Send(r Record) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal telemetry: %w", err)
	}
	token := m.client.Publish(m.telemetryTopic, mqttQoS, false, payload)
	if !token.WaitTimeout(mqttTimeout) {
		return fmt.Errorf("publish to %s timed out", m.telemetryTopic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", m.telemetryTopic, err)
	}
	return nil
}

// SubscribeCommands delivers the first byte of every message on the command topic to handler.
func (m *MQTT) SubscribeCommands(handler func(b byte)) error {
	token := m.client.Subscribe(m.commandTopic, mqttQoS, func(_ mqtt.Client, msg mqtt.Message) {
		payload := msg.Payload()
		if len(payload) == 0 {
			return
		}
		handler(payload[0])
	})
	if !token.WaitTimeout(mqttTimeout) {
		return fmt.Errorf("subscribe to %s timed out", m.commandTopic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe to %s: %w", m.commandTopic, err)
	}
	log.Printf("Subscribed to MQTT topic: %s", m.commandTopic)
	return nil
}

// Close disconnects from the broker.
func (m *MQTT) Close() {
	m.client.Disconnect(mqttDisconnect)
}
