package state

import (
	"sync"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/geofleet/trackd/internal/constants"
	"github.com/geofleet/trackd/internal/models"
)

// deviceState holds the latest record and the bounded history buffer
// for a single device. Both fields are guarded by mu so that latest and
// history always move together.
type deviceState struct {
	mu      sync.Mutex
	latest  models.PositionRecord
	history []models.PositionRecord
}

// Store is the in-memory source of truth for current device positions.
// Distinct devices update in parallel on separate map shards; updates
// for the same device serialize on the per-device mutex. Devices are
// never removed, they just stop counting as online.
type Store struct {
	devices       cmap.ConcurrentMap[string, *deviceState]
	historyPoints int
}

// NewStore creates a Store that retains up to historyPoints records per
// device. Non-positive values fall back to the default bound.
func NewStore(historyPoints int) *Store {
	if historyPoints <= 0 {
		historyPoints = constants.DefaultHistoryPoints
	}
	return &Store{
		devices:       cmap.New[*deviceState](),
		historyPoints: historyPoints,
	}
}

// HistoryPoints returns the configured per-device retention bound.
func (s *Store) HistoryPoints() int {
	return s.historyPoints
}

// Apply records an accepted position: it overwrites the device's latest
// record and appends to its history, evicting from the front once the
// bound is exceeded. The device entry is created on first sight.
func (s *Store) Apply(record models.PositionRecord) models.PositionRecord {
	state := s.stateFor(record.DeviceID)

	state.mu.Lock()
	state.latest = record
	state.history = append(state.history, record)
	if len(state.history) > s.historyPoints {
		state.history = state.history[len(state.history)-s.historyPoints:]
	}
	state.mu.Unlock()

	return record
}

// stateFor returns the device entry, creating it if needed. Entries are
// never deleted, so losing the creation race always finds the winner.
func (s *Store) stateFor(deviceID string) *deviceState {
	if state, ok := s.devices.Get(deviceID); ok {
		return state
	}

	created := &deviceState{}
	if s.devices.SetIfAbsent(deviceID, created) {
		return created
	}
	state, _ := s.devices.Get(deviceID)
	return state
}

// Snapshot returns the latest record for every known device. Order is
// not defined.
func (s *Store) Snapshot() []models.PositionRecord {
	items := s.devices.Items()
	records := make([]models.PositionRecord, 0, len(items))
	for _, state := range items {
		state.mu.Lock()
		records = append(records, state.latest)
		state.mu.Unlock()
	}
	return records
}

// Recent returns up to limit buffered records for a device, most recent
// first. A non-positive limit returns the whole buffer. Unknown devices
// yield an empty slice, not an error.
func (s *Store) Recent(deviceID string, limit int) []models.PositionRecord {
	state, ok := s.devices.Get(deviceID)
	if !ok {
		return []models.PositionRecord{}
	}

	state.mu.Lock()
	defer state.mu.Unlock()

	count := len(state.history)
	if limit > 0 && limit < count {
		count = limit
	}
	records := make([]models.PositionRecord, 0, count)
	for i := len(state.history) - 1; i >= len(state.history)-count; i-- {
		records = append(records, state.history[i])
	}
	return records
}

// DeviceCount returns the number of devices seen since startup.
func (s *Store) DeviceCount() int {
	return s.devices.Count()
}

// OnlineCount returns how many devices reported within the given window
// before now. Records stamped ahead of the local clock count as online.
func (s *Store) OnlineCount(window time.Duration, now time.Time) int {
	online := 0
	for _, state := range s.devices.Items() {
		state.mu.Lock()
		age := state.latest.Age(now)
		state.mu.Unlock()
		if age <= window {
			online++
		}
	}
	return online
}
