package services

import (
	"encoding/json"
	"errors"
	"fmt"

	MQTT "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/geofleet/trackd/internal/models"
	"github.com/geofleet/trackd/internal/observability"
	"github.com/geofleet/trackd/pkg/mqtt"
)

// PositionIngestor accepts raw position payloads into the pipeline.
type PositionIngestor interface {
	Ingest(raw map[string]any) (models.PositionRecord, error)
}

// MQTTIngestService subscribes to the position topic tree and feeds
// every payload into the ingestion pipeline. Broker access control is
// the trust boundary here; payloads carry no token.
type MQTTIngestService struct {
	// Configuration fields
	topic string
	qos   int

	// Dependencies
	mqttClient mqtt.MQTTClient
	ingestor   PositionIngestor
	logger     zerolog.Logger

	// Internal state management
	running bool
}

// NewMQTTIngestService creates a new MQTTIngestService instance.
func NewMQTTIngestService(topic string, qos int, mqttClient mqtt.MQTTClient,
	ingestor PositionIngestor, logger zerolog.Logger) *MQTTIngestService {
	return &MQTTIngestService{
		topic:      topic,
		qos:        qos,
		mqttClient: mqttClient,
		ingestor:   ingestor,
		logger:     logger,
		running:    false,
	}
}

// Start subscribes to the configured topic filter.
func (m *MQTTIngestService) Start() error {
	if m.running {
		m.logger.Warn().Msg("MQTTIngestService is already running")
		return errors.New("mqtt ingest service is already running")
	}

	token := m.mqttClient.Subscribe(m.topic, byte(m.qos), m.onMessage)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", m.topic, token.Error())
	}

	m.running = true
	m.logger.Info().
		Str("topic", m.topic).
		Int("qos", m.qos).
		Msg("MQTTIngestService started")
	return nil
}

// Stop unsubscribes from the position topic.
func (m *MQTTIngestService) Stop() error {
	if !m.running {
		m.logger.Warn().Msg("MQTTIngestService is not running")
		return errors.New("mqtt ingest service is not running")
	}

	token := m.mqttClient.Unsubscribe(m.topic)
	if token.Wait() && token.Error() != nil {
		m.logger.Error().Err(token.Error()).Msg("Failed to unsubscribe from position topic")
		return token.Error()
	}

	m.running = false
	m.logger.Info().Msg("MQTTIngestService stopped")
	return nil
}

// onMessage decodes one bus payload and hands it to the pipeline.
// Anything malformed is logged and dropped; the bus has no reply path.
func (m *MQTTIngestService) onMessage(client MQTT.Client, msg MQTT.Message) {
	var raw map[string]any
	if err := json.Unmarshal(msg.Payload(), &raw); err != nil {
		observability.PositionsRejected.WithLabelValues("malformed").Inc()
		m.logger.Warn().
			Err(err).
			Str("topic", msg.Topic()).
			Msg("Dropping payload with invalid JSON")
		return
	}

	if _, err := m.ingestor.Ingest(raw); err != nil {
		m.logger.Warn().
			Err(err).
			Str("topic", msg.Topic()).
			Msg("Dropping rejected position report")
	}
}
