package tracker

import (
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/geofleet/trackd/internal/constants"
	"github.com/geofleet/trackd/internal/models"
	"github.com/geofleet/trackd/internal/observability"
	"github.com/geofleet/trackd/internal/state"
)

// Broadcaster fans accepted records out to live subscribers and knows
// how many are connected.
type Broadcaster interface {
	Publish(record models.PositionRecord)
	SubscriberCount() int
}

// HistoryRecorder mirrors accepted records into durable storage without
// blocking.
type HistoryRecorder interface {
	Record(record models.PositionRecord)
}

// Service is the ingestion pipeline: it normalizes raw payloads,
// applies them to the in-memory store, and triggers persistence and
// fan-out as independent side effects. Acceptance is unconditional once
// validation has passed.
type Service struct {
	// Configuration fields
	onlineWindow time.Duration

	// Dependencies
	normalizer  *Normalizer
	store       *state.Store
	broadcaster Broadcaster
	recorder    HistoryRecorder
	logger      zerolog.Logger

	// Internal state management
	startedAt      time.Time
	totalPositions atomic.Uint64
}

// NewService creates a new ingestion Service instance. recorder may be
// nil when durable history is disabled.
func NewService(onlineWindow time.Duration, normalizer *Normalizer, store *state.Store,
	broadcaster Broadcaster, recorder HistoryRecorder, logger zerolog.Logger) *Service {
	if onlineWindow <= 0 {
		onlineWindow = constants.DefaultOnlineWindow
	}
	return &Service{
		onlineWindow: onlineWindow,
		normalizer:   normalizer,
		store:        store,
		broadcaster:  broadcaster,
		recorder:     recorder,
		logger:       logger,
		startedAt:    time.Now(),
	}
}

// Ingest validates one raw payload and, on acceptance, updates the
// in-memory state and triggers persistence and broadcast. It returns
// the accepted record, or a *ValidationError describing the rejection.
func (s *Service) Ingest(raw map[string]any) (models.PositionRecord, error) {
	start := time.Now()

	record, err := s.normalizer.Normalize(raw)
	if err != nil {
		observability.PositionsRejected.WithLabelValues("validation").Inc()
		return models.PositionRecord{}, err
	}

	s.store.Apply(record)
	s.totalPositions.Add(1)
	observability.PositionsAccepted.Inc()

	if s.recorder != nil {
		s.recorder.Record(record)
	}
	s.broadcaster.Publish(record)

	observability.ObserveIngestLatency(start)
	s.logger.Debug().
		Str("device_id", record.DeviceID).
		Float64("lat", record.Lat).
		Float64("lng", record.Lng).
		Msg("Position accepted")
	return record, nil
}

// Snapshot returns the latest record for every known device.
func (s *Service) Snapshot() []models.PositionRecord {
	return s.store.Snapshot()
}

// Recent returns buffered in-memory history for a device, most recent
// first.
func (s *Service) Recent(deviceID string, limit int) []models.PositionRecord {
	return s.store.Recent(deviceID, limit)
}

// Stats assembles the aggregate counters served by the stats endpoint.
func (s *Service) Stats() models.Stats {
	now := time.Now()
	return models.Stats{
		TotalDevices:        s.store.DeviceCount(),
		TotalPositions:      s.totalPositions.Load(),
		OnlineDevices:       s.store.OnlineCount(s.onlineWindow, now),
		Subscribers:         s.broadcaster.SubscriberCount(),
		UptimeSeconds:       int64(now.Sub(s.startedAt).Seconds()),
		HistoryPoints:       s.store.HistoryPoints(),
		OnlineWindowSeconds: int64(s.onlineWindow.Seconds()),
		Process:             observability.ProcessStats(s.logger),
	}
}
