package history

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/geofleet/trackd/internal/constants"
	"github.com/geofleet/trackd/internal/models"
	"github.com/geofleet/trackd/internal/observability"
	"github.com/geofleet/trackd/internal/utils"
)

// PositionStore is the durable storage the writer mirrors accepted
// records into.
type PositionStore interface {
	SaveDevice(ctx context.Context, record models.PositionRecord) error
	AppendPosition(ctx context.Context, record models.PositionRecord) error
	Prune(ctx context.Context, deviceID string, keep int) error
}

// Writer mirrors accepted records into durable storage without ever
// blocking the ingestion path. Records are queued and drained by a
// single worker so per-device writes land in acceptance order; when the
// queue is full the record is dropped and counted, never waited on.
type Writer struct {
	// Configuration fields
	points    int
	queueSize int
	opTimeout time.Duration

	// Dependencies
	store  PositionStore
	logger zerolog.Logger

	// Internal state management
	queue   *utils.JobQueue
	running bool
}

// NewWriter creates a new Writer instance with the provided configuration.
func NewWriter(points, queueSize int, opTimeout time.Duration, store PositionStore, logger zerolog.Logger) *Writer {
	if points <= 0 {
		points = constants.DefaultHistoryPoints
	}
	if queueSize <= 0 {
		queueSize = constants.DefaultHistoryQueueSize
	}
	if opTimeout <= 0 {
		opTimeout = constants.DefaultStoreTimeout
	}
	return &Writer{
		points:    points,
		queueSize: queueSize,
		opTimeout: opTimeout,
		store:     store,
		logger:    logger,
		running:   false,
	}
}

// Start brings up the persistence worker.
func (w *Writer) Start() error {
	if w.running {
		w.logger.Warn().Msg("HistoryWriter is already running")
		return errors.New("history writer is already running")
	}

	w.queue = utils.NewJobQueue(1, w.queueSize)
	w.running = true

	w.logger.Info().
		Int("points", w.points).
		Int("queue_size", w.queueSize).
		Msg("HistoryWriter started")
	return nil
}

// Stop drains queued records and shuts the worker down.
func (w *Writer) Stop() error {
	if !w.running {
		w.logger.Warn().Msg("HistoryWriter is not running")
		return errors.New("history writer is not running")
	}

	w.queue.Shutdown()
	w.running = false
	w.logger.Info().Msg("HistoryWriter stopped")
	return nil
}

// Record enqueues a record for persistence. It never blocks: when the
// queue is full or the writer is stopped the record is dropped.
func (w *Writer) Record(record models.PositionRecord) {
	if w.queue == nil {
		return
	}
	if !w.queue.TrySubmit(func() { w.persist(record) }) {
		observability.HistoryJobsDropped.Inc()
		w.logger.Warn().
			Str("device_id", record.DeviceID).
			Msg("History queue full, dropping position")
	}
}

// persist applies the three storage operations for one record. Failures
// are logged and swallowed so a broken database never surfaces into the
// ingestion path.
func (w *Writer) persist(record models.PositionRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), w.opTimeout)
	defer cancel()

	if err := w.store.SaveDevice(ctx, record); err != nil {
		observability.HistoryWriteFailures.Inc()
		w.logger.Error().
			Err(err).
			Str("device_id", record.DeviceID).
			Msg("Failed to save device summary")
	}
	if err := w.store.AppendPosition(ctx, record); err != nil {
		observability.HistoryWriteFailures.Inc()
		w.logger.Error().
			Err(err).
			Str("device_id", record.DeviceID).
			Msg("Failed to append position history")
		return
	}
	if err := w.store.Prune(ctx, record.DeviceID, w.points); err != nil {
		observability.HistoryWriteFailures.Inc()
		w.logger.Error().
			Err(err).
			Str("device_id", record.DeviceID).
			Msg("Failed to prune position history")
	}
}
