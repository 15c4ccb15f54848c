package constants

import "time"

const (
	// DefaultPingInterval is how often the broadcaster probes each subscriber.
	DefaultPingInterval = 30 * time.Second

	// DefaultSendBuffer is the per-subscriber event queue capacity. A
	// subscriber that falls this far behind is forcibly disconnected.
	DefaultSendBuffer = 64

	// DefaultWriteTimeout bounds a single write to a subscriber sink.
	DefaultWriteTimeout = 10 * time.Second
)
