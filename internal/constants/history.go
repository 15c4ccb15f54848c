package constants

import "time"

const (
	// DefaultHistoryPoints bounds the per-device position history, both in
	// memory and in the durable store.
	DefaultHistoryPoints = 500

	// DefaultHistoryQueueSize is the capacity of the asynchronous persistence
	// queue. Jobs beyond this are dropped rather than blocking ingestion.
	DefaultHistoryQueueSize = 1024

	// DefaultStoreTimeout bounds every durable storage operation.
	DefaultStoreTimeout = 5 * time.Second
)
