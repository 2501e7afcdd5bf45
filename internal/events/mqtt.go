package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	publishTimeout = 5 * time.Second
	connectTimeout = 10 * time.Second
)

// Client is the subset of the paho client the publisher needs.
type Client interface {
	Connect() mqtt.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	IsConnected() bool
}

// MQTTConfig describes the broker connection.
type MQTTConfig struct {
	Broker   string // e.g. tcp://localhost:1883
	ClientID string
	Username string
	Password string
	Prefix   string // topic prefix; events go to <prefix>/<agent>
}

// MQTTPublisher publishes events as JSON with QoS 1.
type MQTTPublisher struct {
	client Client
	prefix string
	logger *slog.Logger
}

// NewMQTT connects to the broker described by cfg.
func NewMQTT(cfg MQTTConfig, logger *slog.Logger) (*MQTTPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = fmt.Sprintf("selfheal-%d", time.Now().Unix())
	}
	opts.SetClientID(clientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetKeepAlive(30 * time.Second)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("mqtt connection lost", "error", err)
	})
	return NewMQTTWithClient(mqtt.NewClient(opts), cfg.Prefix, logger)
}

// NewMQTTWithClient connects an already configured client.
func NewMQTTWithClient(client Client, prefix string, logger *slog.Logger) (*MQTTPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if prefix == "" {
		prefix = "selfheal/events"
	}
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to mqtt: %w", err)
	}
	return &MQTTPublisher{client: client, prefix: prefix, logger: logger.With("sink", "mqtt")}, nil
}

// Topic returns the topic events from agent are published on.
func (p *MQTTPublisher) Topic(agent string) string {
	return p.prefix + "/" + agent
}

// Publish sends ev as JSON to Topic(ev.Agent) with QoS 1.
func (p *MQTTPublisher) Publish(_ context.Context, ev Event) error {
	if !p.client.IsConnected() {
		return fmt.Errorf("mqtt not connected")
	}
	payload, err := json.Marshal(stamp(ev))
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	topic := p.Topic(ev.Agent)
	token := p.client.Publish(topic, 1, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	p.logger.Debug("event published", "topic", topic, "size", len(payload))
	return nil
}

// Close disconnects from the broker.
func (p *MQTTPublisher) Close() error {
	if p.client.IsConnected() {
		p.client.Disconnect(250)
	}
	return nil
}
