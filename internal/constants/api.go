package constants

import "time"

const (
	// DefaultHistoryLimit applies when the history endpoint is called without
	// an explicit limit.
	DefaultHistoryLimit = 100

	// MaxHistoryLimit caps a caller-supplied history limit.
	MaxHistoryLimit = 1000

	// DefaultOnlineWindow classifies a device as online when its latest
	// record is at most this old.
	DefaultOnlineWindow = 60 * time.Second

	// MaxTrackBodyBytes caps the request body accepted on the ingestion
	// endpoint.
	MaxTrackBodyBytes = 1 << 20
)
