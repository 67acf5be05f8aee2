package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

// MQTTConfig holds MQTT sink configuration.
type MQTTConfig struct {
	Broker                string // e.g. "tcp://localhost:1883"
	ClientID              string
	Username              string
	Password              string
	TopicPrefix           string
	QoS                   byte
	Retain                bool
	ConnectTimeoutSeconds int
}

// MQTTBackend publishes each output file as one message on
// <topic_prefix>/<path>.
type MQTTBackend struct {
	client      pahomqtt.Client
	topicPrefix string
	qos         byte
	retain      bool
	timeout     time.Duration
	logger      zerolog.Logger
}

// NewMQTTBackend connects to the broker.
func NewMQTTBackend(cfg *MQTTConfig, logger zerolog.Logger) (*MQTTBackend, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("MQTT broker is required")
	}
	if cfg.QoS > 2 {
		return nil, fmt.Errorf("invalid MQTT QoS %d", cfg.QoS)
	}
	timeout := time.Duration(cfg.ConnectTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetConnectTimeout(timeout)
	opts.SetCleanSession(true)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	client := pahomqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(timeout) {
		return nil, fmt.Errorf("MQTT connection timeout after %s", timeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("MQTT connection failed: %w", err)
	}

	b := newMQTTBackend(client, cfg, timeout, logger)
	b.logger.Info().Str("broker", cfg.Broker).Msg("Connected to MQTT broker")
	return b, nil
}

func newMQTTBackend(client pahomqtt.Client, cfg *MQTTConfig, timeout time.Duration, logger zerolog.Logger) *MQTTBackend {
	return &MQTTBackend{
		client:      client,
		topicPrefix: strings.Trim(cfg.TopicPrefix, "/"),
		qos:         cfg.QoS,
		retain:      cfg.Retain,
		timeout:     timeout,
		logger:      logger.With().Str("component", "mqtt-storage").Logger(),
	}
}

// Topic returns the topic a file is published on.
func (b *MQTTBackend) Topic(path string) string {
	return objectKey(b.topicPrefix, path)
}

// Write publishes data and waits for the broker to acknowledge it (for QoS
// above zero), ctx or the publish timeout ending first.
func (b *MQTTBackend) Write(ctx context.Context, path string, data []byte) error {
	topic := b.Topic(path)
	token := b.client.Publish(topic, b.qos, b.retain, data)

	timer := time.NewTimer(b.timeout)
	defer timer.Stop()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("MQTT publish to %s timed out after %s", topic, b.timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("MQTT publish to %s failed: %w", topic, err)
	}

	b.logger.Debug().
		Str("topic", topic).
		Int("size", len(data)).
		Msg("Published file")
	return nil
}

// Close disconnects, giving in-flight messages a second to drain.
func (b *MQTTBackend) Close() error {
	if b.client.IsConnected() {
		b.client.Disconnect(1000)
	}
	return nil
}

// Type returns "mqtt".
func (b *MQTTBackend) Type() string {
	return "mqtt"
}
