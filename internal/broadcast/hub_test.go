package broadcast_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geofleet/trackd/internal/broadcast"
	"github.com/geofleet/trackd/internal/models"
)

type fakeSnapshotter struct {
	mu      sync.Mutex
	records []models.PositionRecord
}

func (f *fakeSnapshotter) Snapshot() []models.PositionRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.PositionRecord(nil), f.records...)
}

func (f *fakeSnapshotter) set(records ...models.PositionRecord) {
	f.mu.Lock()
	f.records = records
	f.mu.Unlock()
}

type fakeSink struct {
	mu       sync.Mutex
	events   []models.StreamEvent
	sendErr  error
	probeErr error
	closed   bool
}

func (f *fakeSink) Send(event models.StreamEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.events = append(f.events, event)
	return nil
}

func (f *fakeSink) Probe() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.probeErr
}

func (f *fakeSink) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSink) Events() []models.StreamEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.StreamEvent(nil), f.events...)
}

func (f *fakeSink) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func testRecord(deviceID string, ts int64) models.PositionRecord {
	return models.PositionRecord{DeviceID: deviceID, Lat: 1, Lng: 2, Timestamp: ts}
}

func TestHub_SubscribeDeliversSnapshotFirst(t *testing.T) {
	snapshotter := &fakeSnapshotter{}
	snapshotter.set(testRecord("D1", 1), testRecord("D2", 2))
	hub := broadcast.NewHub(time.Minute, snapshotter, zerolog.Nop())

	sink := &fakeSink{}
	id, err := hub.Subscribe(sink)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	events := sink.Events()
	require.Len(t, events, 1)
	assert.Equal(t, models.EventTypeSnapshot, events[0].Type)
	assert.Len(t, events[0].Devices, 2)
}

func TestHub_SubscribeSendsNothingWhenNoDevicesKnown(t *testing.T) {
	hub := broadcast.NewHub(time.Minute, &fakeSnapshotter{}, zerolog.Nop())

	sink := &fakeSink{}
	_, err := hub.Subscribe(sink)
	require.NoError(t, err)

	assert.Empty(t, sink.Events())
}

func TestHub_SubscribeClosesSinkWhenSnapshotDeliveryFails(t *testing.T) {
	snapshotter := &fakeSnapshotter{}
	snapshotter.set(testRecord("D1", 1))
	hub := broadcast.NewHub(time.Minute, snapshotter, zerolog.Nop())

	sink := &fakeSink{sendErr: errors.New("buffer full")}
	_, err := hub.Subscribe(sink)

	require.Error(t, err)
	assert.True(t, sink.Closed())
	assert.Equal(t, 0, hub.SubscriberCount())
}

func TestHub_PublishFansOutToEverySubscriber(t *testing.T) {
	snapshotter := &fakeSnapshotter{}
	hub := broadcast.NewHub(time.Minute, snapshotter, zerolog.Nop())

	sinks := []*fakeSink{{}, {}, {}}
	ids := make([]string, len(sinks))
	for i, sink := range sinks {
		id, err := hub.Subscribe(sink)
		require.NoError(t, err)
		ids[i] = id
	}

	removed := sinks[2]
	hub.Unsubscribe(ids[2])

	record := testRecord("D1", 10)
	hub.Publish(record)

	for _, sink := range sinks[:2] {
		events := sink.Events()
		require.Len(t, events, 1)
		assert.Equal(t, models.EventTypeUpdate, events[0].Type)
		require.NotNil(t, events[0].Device)
		assert.Equal(t, record, *events[0].Device)
	}
	assert.Empty(t, removed.Events(), "removed subscriber must receive nothing")

	// A subscriber joining after the publish sees a snapshot, never a
	// replay of missed updates.
	snapshotter.set(record)
	late := &fakeSink{}
	_, err := hub.Subscribe(late)
	require.NoError(t, err)
	events := late.Events()
	require.Len(t, events, 1)
	assert.Equal(t, models.EventTypeSnapshot, events[0].Type)
}

func TestHub_PublishDropsFailingSink(t *testing.T) {
	hub := broadcast.NewHub(time.Minute, &fakeSnapshotter{}, zerolog.Nop())

	healthy := &fakeSink{}
	broken := &fakeSink{sendErr: errors.New("connection reset")}
	_, err := hub.Subscribe(healthy)
	require.NoError(t, err)
	_, err = hub.Subscribe(broken)
	require.NoError(t, err)

	hub.Publish(testRecord("D1", 1))

	assert.Equal(t, 1, hub.SubscriberCount())
	assert.True(t, broken.Closed())
	assert.Len(t, healthy.Events(), 1, "healthy subscriber still gets the update")
}

func TestHub_UnsubscribeIsIdempotent(t *testing.T) {
	hub := broadcast.NewHub(time.Minute, &fakeSnapshotter{}, zerolog.Nop())

	sink := &fakeSink{}
	id, err := hub.Subscribe(sink)
	require.NoError(t, err)

	hub.Unsubscribe(id)
	hub.Unsubscribe(id)
	hub.Unsubscribe("never-registered")

	assert.True(t, sink.Closed())
	assert.Equal(t, 0, hub.SubscriberCount())
}

func TestHub_ProbeEvictsUnresponsiveSinks(t *testing.T) {
	hub := broadcast.NewHub(20*time.Millisecond, &fakeSnapshotter{}, zerolog.Nop())
	require.NoError(t, hub.Start())
	defer hub.Stop()

	healthy := &fakeSink{}
	dead := &fakeSink{probeErr: errors.New("no pong")}
	_, err := hub.Subscribe(healthy)
	require.NoError(t, err)
	_, err = hub.Subscribe(dead)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return hub.SubscriberCount() == 1
	}, time.Second, 10*time.Millisecond, "dead sink should be evicted by the probe")
	assert.True(t, dead.Closed())
	assert.False(t, healthy.Closed())
}

func TestHub_StopClosesAllSinks(t *testing.T) {
	hub := broadcast.NewHub(time.Minute, &fakeSnapshotter{}, zerolog.Nop())
	require.NoError(t, hub.Start())

	sink := &fakeSink{}
	_, err := hub.Subscribe(sink)
	require.NoError(t, err)

	require.NoError(t, hub.Stop())

	assert.True(t, sink.Closed())
	assert.Equal(t, 0, hub.SubscriberCount())
}

func TestHub_StartAndStopAreGuarded(t *testing.T) {
	hub := broadcast.NewHub(time.Minute, &fakeSnapshotter{}, zerolog.Nop())

	assert.EqualError(t, hub.Stop(), "broadcast hub is not running")
	require.NoError(t, hub.Start())
	assert.EqualError(t, hub.Start(), "broadcast hub is already running")
	require.NoError(t, hub.Stop())
}
