package positionsource

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/benmeehan/geofence-monitor/internal/models"
	"github.com/benmeehan/geofence-monitor/pkg/mqtt"
	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

// MQTTSource subscribes to the device telemetry topic and feeds every
// decoded position into the monitor. Payloads are either the JSON
// position message or a raw NMEA sentence; for NMEA the device ID comes
// from the topic (devices/<id>/position).
type MQTTSource struct {
	// Configuration fields
	topic string
	qos   int

	// Dependencies
	mqttClient mqtt.MQTTClient
	ingestor   Ingestor
	logger     zerolog.Logger

	// Internal state management
	running bool
}

// NewMQTTSource creates an MQTTSource for the given topic filter.
func NewMQTTSource(topic string, qos int, mqttClient mqtt.MQTTClient, ingestor Ingestor, logger zerolog.Logger) *MQTTSource {
	return &MQTTSource{
		topic:      topic,
		qos:        qos,
		mqttClient: mqttClient,
		ingestor:   ingestor,
		logger:     logger,
	}
}

// Start subscribes to the telemetry topic.
func (m *MQTTSource) Start() error {
	if m.running {
		m.logger.Warn().Msg("MQTTSource is already running")
		return errors.New("mqtt position source is already running")
	}

	token := m.mqttClient.Subscribe(m.topic, byte(m.qos), m.handleMessage)
	if token.Wait() && token.Error() != nil {
		m.logger.Error().Err(token.Error()).Str("topic", m.topic).Msg("Failed to subscribe to telemetry topic")
		return token.Error()
	}

	m.running = true
	m.logger.Info().Str("topic", m.topic).Int("qos", m.qos).Msg("MQTTSource started")
	return nil
}

// Stop unsubscribes from the telemetry topic.
func (m *MQTTSource) Stop() error {
	if !m.running {
		m.logger.Warn().Msg("MQTTSource is not running")
		return errors.New("mqtt position source is not running")
	}

	token := m.mqttClient.Unsubscribe(m.topic)
	if token.Wait() && token.Error() != nil {
		m.logger.Error().Err(token.Error()).Msg("Failed to unsubscribe from telemetry topic")
		return token.Error()
	}

	m.running = false
	m.logger.Info().Msg("MQTTSource stopped")
	return nil
}

// handleMessage decodes one telemetry message and hands it to the
// ingestor. Malformed payloads are logged and dropped; the subscription
// stays up.
func (m *MQTTSource) handleMessage(_ pahomqtt.Client, msg pahomqtt.Message) {
	pos, err := m.decode(msg.Topic(), msg.Payload())
	if err != nil {
		m.logger.Warn().Err(err).Str("topic", msg.Topic()).Msg("Dropping undecodable telemetry message")
		return
	}
	if pos.DeviceID == "" {
		m.logger.Warn().Str("topic", msg.Topic()).Msg("Dropping telemetry message without device id")
		return
	}

	m.ingestor.Ingest(pos)
}

func (m *MQTTSource) decode(topic string, payload []byte) (models.Position, error) {
	raw := strings.TrimSpace(string(payload))
	if strings.HasPrefix(raw, "$") {
		return decodeNMEA(deviceIDFromTopic(topic), raw)
	}

	var pos models.Position
	if err := json.Unmarshal(payload, &pos); err != nil {
		return models.Position{}, err
	}
	return pos, nil
}

// deviceIDFromTopic extracts the device segment from a devices/<id>/...
// topic. Empty when the topic does not follow that layout.
func deviceIDFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) >= 2 {
		return parts[1]
	}
	return ""
}
