package models

// Stream event types delivered over the push channel.
const (
	EventTypeSnapshot = "snapshot"
	EventTypeUpdate   = "update"
)

// StreamEvent is the wire shape sent to push-channel subscribers. A snapshot
// event carries the full set of latest positions; an update event carries
// exactly one record.
type StreamEvent struct {
	Type    string           `json:"type"`
	Devices []PositionRecord `json:"devices,omitempty"`
	Device  *PositionRecord  `json:"device,omitempty"`
}

// NewSnapshotEvent builds the one-time event sent to a newly joined
// subscriber.
func NewSnapshotEvent(devices []PositionRecord) StreamEvent {
	return StreamEvent{Type: EventTypeSnapshot, Devices: devices}
}

// NewUpdateEvent wraps a single accepted record for incremental delivery.
func NewUpdateEvent(record PositionRecord) StreamEvent {
	return StreamEvent{Type: EventTypeUpdate, Device: &record}
}
