package history_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geofleet/trackd/internal/history"
	"github.com/geofleet/trackd/internal/models"
)

func openTestStore(t *testing.T) *history.Store {
	t.Helper()
	store, err := history.OpenStore(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func persistedRecord(deviceID string, ts int64) models.PositionRecord {
	return models.PositionRecord{
		DeviceID:  deviceID,
		Lat:       40.7128,
		Lng:       -74.0060,
		Speed:     10,
		Heading:   90,
		Sats:      8,
		Timestamp: ts,
	}
}

func TestStore_PositionsMostRecentFirst(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for _, ts := range []int64{300, 100, 200} {
		require.NoError(t, store.AppendPosition(ctx, persistedRecord("D1", ts)))
	}

	positions, err := store.Positions(ctx, "D1", 10)
	require.NoError(t, err)
	require.Len(t, positions, 3)
	assert.Equal(t, int64(300), positions[0].Timestamp)
	assert.Equal(t, int64(200), positions[1].Timestamp)
	assert.Equal(t, int64(100), positions[2].Timestamp)
}

func TestStore_PositionsHonorsLimitAndUnknownDevice(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for ts := int64(1); ts <= 5; ts++ {
		require.NoError(t, store.AppendPosition(ctx, persistedRecord("D1", ts)))
	}

	positions, err := store.Positions(ctx, "D1", 2)
	require.NoError(t, err)
	require.Len(t, positions, 2)
	assert.Equal(t, int64(5), positions[0].Timestamp)

	positions, err = store.Positions(ctx, "ghost", 10)
	require.NoError(t, err)
	assert.Empty(t, positions)
}

func TestStore_PruneKeepsNewestRows(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for ts := int64(1); ts <= 5; ts++ {
		require.NoError(t, store.AppendPosition(ctx, persistedRecord("D1", ts)))
	}

	require.NoError(t, store.Prune(ctx, "D1", 3))

	positions, err := store.Positions(ctx, "D1", 10)
	require.NoError(t, err)
	require.Len(t, positions, 3)
	assert.Equal(t, int64(5), positions[0].Timestamp)
	assert.Equal(t, int64(3), positions[2].Timestamp)

	// Pruning again within the bound changes nothing.
	require.NoError(t, store.Prune(ctx, "D1", 3))
	again, err := store.Positions(ctx, "D1", 10)
	require.NoError(t, err)
	assert.Equal(t, positions, again)
}

func TestStore_PruneBreaksTimestampTiesByInsertionOrder(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	first := persistedRecord("D1", 100)
	first.Lat = 1
	second := persistedRecord("D1", 100)
	second.Lat = 2
	third := persistedRecord("D1", 100)
	third.Lat = 3
	for _, record := range []models.PositionRecord{first, second, third} {
		require.NoError(t, store.AppendPosition(ctx, record))
	}

	require.NoError(t, store.Prune(ctx, "D1", 2))

	positions, err := store.Positions(ctx, "D1", 10)
	require.NoError(t, err)
	require.Len(t, positions, 2)
	assert.Equal(t, 3.0, positions[0].Lat, "newest insertion survives")
	assert.Equal(t, 2.0, positions[1].Lat, "oldest insertion is evicted first")
}

func TestStore_PruneIsScopedToDevice(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AppendPosition(ctx, persistedRecord("D1", 1)))
	require.NoError(t, store.AppendPosition(ctx, persistedRecord("D2", 1)))
	require.NoError(t, store.AppendPosition(ctx, persistedRecord("D2", 2)))

	require.NoError(t, store.Prune(ctx, "D2", 1))

	d1, err := store.Positions(ctx, "D1", 10)
	require.NoError(t, err)
	assert.Len(t, d1, 1, "other devices keep their history")
	d2, err := store.Positions(ctx, "D2", 10)
	require.NoError(t, err)
	assert.Len(t, d2, 1)
}

func TestStore_SaveDeviceUpsertsSummary(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveDevice(ctx, persistedRecord("D1", 100)))
	updated := persistedRecord("D1", 200)
	updated.Lat = 41.0
	require.NoError(t, store.SaveDevice(ctx, updated))
	require.NoError(t, store.SaveDevice(ctx, persistedRecord("D2", 150)))

	devices, err := store.LatestDevices(ctx)
	require.NoError(t, err)
	require.Len(t, devices, 2)

	byID := make(map[string]models.PositionRecord)
	for _, device := range devices {
		byID[device.DeviceID] = device
	}
	assert.Equal(t, int64(200), byID["D1"].Timestamp)
	assert.Equal(t, 41.0, byID["D1"].Lat)
	assert.Equal(t, int64(150), byID["D2"].Timestamp)
}
