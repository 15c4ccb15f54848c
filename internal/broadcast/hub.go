package broadcast

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/geofleet/trackd/internal/constants"
	"github.com/geofleet/trackd/internal/models"
	"github.com/geofleet/trackd/internal/observability"
)

// Sink is one live subscriber endpoint. Sinks are owned by the
// transport layer; the hub only references them. Send must not block:
// a sink that cannot take an event immediately returns an error and is
// removed from the registry.
type Sink interface {
	Send(event models.StreamEvent) error
	Probe() error
	Close() error
}

// Snapshotter supplies the current latest position of every known
// device for new subscribers.
type Snapshotter interface {
	Snapshot() []models.PositionRecord
}

// Hub fans accepted position updates out to every registered sink and
// hands new subscribers a one-time snapshot. A periodic probe evicts
// sinks that stopped responding so the registry only holds live
// connections.
type Hub struct {
	// Configuration fields
	pingInterval time.Duration

	// Dependencies
	snapshotter Snapshotter
	logger      zerolog.Logger

	// Internal state management
	mu      sync.RWMutex
	sinks   map[string]Sink
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewHub creates a new Hub instance with the provided configuration.
func NewHub(pingInterval time.Duration, snapshotter Snapshotter, logger zerolog.Logger) *Hub {
	if pingInterval <= 0 {
		pingInterval = constants.DefaultPingInterval
	}
	return &Hub{
		pingInterval: pingInterval,
		snapshotter:  snapshotter,
		logger:       logger,
		sinks:        make(map[string]Sink),
		running:      false,
	}
}

// Start launches the periodic liveness probe.
func (h *Hub) Start() error {
	if h.running {
		h.logger.Warn().Msg("BroadcastHub is already running")
		return errors.New("broadcast hub is already running")
	}

	h.ctx, h.cancel = context.WithCancel(context.Background())
	h.running = true

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()

		ticker := time.NewTicker(h.pingInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				h.probeSinks()
			case <-h.ctx.Done():
				h.logger.Info().Msg("BroadcastHub is stopping")
				return
			}
		}
	}()

	h.logger.Info().
		Dur("ping_interval", h.pingInterval).
		Msg("BroadcastHub started")
	return nil
}

// Stop halts the liveness probe and closes every registered sink.
func (h *Hub) Stop() error {
	if !h.running {
		h.logger.Warn().Msg("BroadcastHub is not running")
		return errors.New("broadcast hub is not running")
	}

	h.cancel()
	h.wg.Wait()

	h.mu.Lock()
	for id, sink := range h.sinks {
		if err := sink.Close(); err != nil {
			h.logger.Debug().Err(err).Str("subscriber_id", id).Msg("Failed to close subscriber sink")
		}
		delete(h.sinks, id)
		observability.Subscribers.Dec()
	}
	h.mu.Unlock()

	h.running = false
	h.logger.Info().Msg("BroadcastHub stopped")
	return nil
}

// Subscribe registers a sink and synchronously delivers the current
// snapshot to it before any later update can be interleaved. No
// snapshot event is sent while no device is known. On snapshot delivery
// failure the sink is closed and not registered.
func (h *Hub) Subscribe(sink Sink) (string, error) {
	id := uuid.New().String()

	h.mu.Lock()
	devices := h.snapshotter.Snapshot()
	if len(devices) > 0 {
		if err := sink.Send(models.NewSnapshotEvent(devices)); err != nil {
			h.mu.Unlock()
			sink.Close()
			return "", err
		}
	}
	h.sinks[id] = sink
	h.mu.Unlock()

	observability.Subscribers.Inc()
	h.logger.Debug().
		Str("subscriber_id", id).
		Int("devices", len(devices)).
		Msg("Subscriber joined")
	return id, nil
}

// Unsubscribe removes and closes a sink. Unknown or already removed
// ids are a no-op.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	sink, ok := h.sinks[id]
	if ok {
		delete(h.sinks, id)
	}
	h.mu.Unlock()

	if !ok {
		return
	}
	sink.Close()
	observability.Subscribers.Dec()
	h.logger.Debug().Str("subscriber_id", id).Msg("Subscriber left")
}

// Publish delivers an update event for one accepted record to every
// registered sink. Delivery is independent per sink; sinks that fail
// are dropped without affecting the rest.
func (h *Hub) Publish(record models.PositionRecord) {
	event := models.NewUpdateEvent(record)

	h.mu.RLock()
	targets := make(map[string]Sink, len(h.sinks))
	for id, sink := range h.sinks {
		targets[id] = sink
	}
	h.mu.RUnlock()

	for id, sink := range targets {
		if err := sink.Send(event); err != nil {
			h.logger.Debug().
				Err(err).
				Str("subscriber_id", id).
				Str("device_id", record.DeviceID).
				Msg("Dropping unresponsive subscriber")
			h.drop(id, "send_failed")
		}
	}
	observability.BroadcastEvents.Inc()
}

// SubscriberCount returns the number of registered sinks.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sinks)
}

// probeSinks checks each sink for liveness and evicts the dead ones.
func (h *Hub) probeSinks() {
	h.mu.RLock()
	targets := make(map[string]Sink, len(h.sinks))
	for id, sink := range h.sinks {
		targets[id] = sink
	}
	h.mu.RUnlock()

	for id, sink := range targets {
		if err := sink.Probe(); err != nil {
			h.logger.Info().
				Err(err).
				Str("subscriber_id", id).
				Msg("Subscriber failed liveness probe, removing")
			h.drop(id, "probe_failed")
		}
	}
}

// drop forcibly removes a sink after a delivery or probe failure.
func (h *Hub) drop(id, cause string) {
	h.mu.Lock()
	sink, ok := h.sinks[id]
	if ok {
		delete(h.sinks, id)
	}
	h.mu.Unlock()

	if !ok {
		return
	}
	sink.Close()
	observability.Subscribers.Dec()
	observability.SubscribersDropped.WithLabelValues(cause).Inc()
}
