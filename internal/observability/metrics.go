package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PositionsAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trackd_positions_accepted_total",
		Help: "Total position reports accepted by the ingestion pipeline",
	})
	PositionsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trackd_positions_rejected_total",
		Help: "Total position reports rejected, by reason",
	}, []string{"reason"})
	BroadcastEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trackd_broadcast_events_total",
		Help: "Total events fanned out to subscribers",
	})
	Subscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "trackd_subscribers",
		Help: "Currently registered push subscribers",
	})
	SubscribersDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trackd_subscribers_dropped_total",
		Help: "Subscribers forcibly removed, by cause",
	}, []string{"cause"})
	HistoryJobsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trackd_history_jobs_dropped_total",
		Help: "Position reports dropped because the persistence queue was full",
	})
	HistoryWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trackd_history_write_failures_total",
		Help: "Failed durable store operations",
	})
	IngestLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "trackd_ingest_latency_seconds",
		Help:    "Latency of accepting one position report",
		Buckets: prometheus.DefBuckets,
	})
)

func ObserveIngestLatency(start time.Time) {
	IngestLatency.Observe(time.Since(start).Seconds())
}
