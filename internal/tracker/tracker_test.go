package tracker_test

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/geofleet/trackd/internal/models"
	"github.com/geofleet/trackd/internal/state"
	"github.com/geofleet/trackd/internal/tracker"
)

type MockBroadcaster struct {
	mock.Mock
}

func (m *MockBroadcaster) Publish(record models.PositionRecord) {
	m.Called(record)
}

func (m *MockBroadcaster) SubscriberCount() int {
	args := m.Called()
	return args.Int(0)
}

type MockHistoryRecorder struct {
	mock.Mock
}

func (m *MockHistoryRecorder) Record(record models.PositionRecord) {
	m.Called(record)
}

func newTestService(broadcaster *MockBroadcaster, recorder tracker.HistoryRecorder) (*tracker.Service, *state.Store) {
	store := state.NewStore(10)
	service := tracker.NewService(60*time.Second, tracker.NewNormalizer(fixedClock(1700000000000)),
		store, broadcaster, recorder, zerolog.Nop())
	return service, store
}

func TestService_IngestAcceptsAndTriggersSideEffects(t *testing.T) {
	broadcaster := &MockBroadcaster{}
	recorder := &MockHistoryRecorder{}
	service, store := newTestService(broadcaster, recorder)

	expected := models.PositionRecord{
		DeviceID:  "TEST_001",
		Lat:       40.7128,
		Lng:       -74.0060,
		Speed:     25.5,
		Heading:   45,
		Sats:      12,
		Timestamp: 1640995200000,
	}
	broadcaster.On("Publish", expected).Once()
	recorder.On("Record", expected).Once()

	record, err := service.Ingest(map[string]any{
		"device_id": "TEST_001",
		"lat":       40.7128,
		"lng":       -74.0060,
		"speed":     25.5,
		"heading":   float64(45),
		"sats":      float64(12),
		"ts":        float64(1640995200000),
	})

	require.NoError(t, err)
	assert.Equal(t, expected, record)

	snapshot := store.Snapshot()
	require.Len(t, snapshot, 1)
	assert.Equal(t, expected, snapshot[0])

	broadcaster.AssertExpectations(t)
	recorder.AssertExpectations(t)
}

func TestService_IngestRejectionLeavesStateUntouched(t *testing.T) {
	broadcaster := &MockBroadcaster{}
	recorder := &MockHistoryRecorder{}
	service, store := newTestService(broadcaster, recorder)

	_, err := service.Ingest(map[string]any{"lat": 40.0})

	var validationErr *tracker.ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Empty(t, store.Snapshot(), "rejected records must not reach the store")
	broadcaster.AssertNotCalled(t, "Publish", mock.Anything)
	recorder.AssertNotCalled(t, "Record", mock.Anything)
}

func TestService_IngestWorksWithoutRecorder(t *testing.T) {
	broadcaster := &MockBroadcaster{}
	broadcaster.On("Publish", mock.Anything).Once()
	service, _ := newTestService(broadcaster, nil)

	_, err := service.Ingest(map[string]any{
		"device_id": "D1",
		"lat":       1.0,
		"lng":       2.0,
	})

	require.NoError(t, err)
	broadcaster.AssertExpectations(t)
}

func TestService_StatsAggregatesCounters(t *testing.T) {
	broadcaster := &MockBroadcaster{}
	broadcaster.On("Publish", mock.Anything)
	broadcaster.On("SubscriberCount").Return(2)
	service, _ := newTestService(broadcaster, nil)

	fresh := time.Now().UnixMilli()
	for _, raw := range []map[string]any{
		{"device_id": "D1", "lat": 1.0, "lng": 2.0, "ts": float64(fresh)},
		{"device_id": "D1", "lat": 1.1, "lng": 2.0, "ts": float64(fresh)},
		{"device_id": "D2", "lat": 1.0, "lng": 2.0, "ts": float64(1000)},
	} {
		_, err := service.Ingest(raw)
		require.NoError(t, err)
	}

	stats := service.Stats()

	assert.Equal(t, 2, stats.TotalDevices)
	assert.Equal(t, uint64(3), stats.TotalPositions)
	assert.Equal(t, 1, stats.OnlineDevices, "only the freshly reporting device is online")
	assert.Equal(t, 2, stats.Subscribers)
	assert.Equal(t, 10, stats.HistoryPoints)
	assert.Equal(t, int64(60), stats.OnlineWindowSeconds)
	assert.GreaterOrEqual(t, stats.UptimeSeconds, int64(0))
	require.NotNil(t, stats.Process)
	assert.Greater(t, stats.Process.Goroutines, 0)
}
