package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/geofleet/trackd/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS devices (
	device_id  TEXT PRIMARY KEY,
	lat        REAL NOT NULL,
	lng        REAL NOT NULL,
	speed      REAL NOT NULL DEFAULT 0,
	heading    INTEGER NOT NULL DEFAULT 0,
	sats       INTEGER NOT NULL DEFAULT 0,
	ts         INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS positions (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	device_id TEXT NOT NULL,
	lat       REAL NOT NULL,
	lng       REAL NOT NULL,
	speed     REAL NOT NULL DEFAULT 0,
	heading   INTEGER NOT NULL DEFAULT 0,
	sats      INTEGER NOT NULL DEFAULT 0,
	ts        INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_positions_device_ts ON positions (device_id, ts);
`

// Store persists device summaries and append-only position history in
// SQLite. All operations honor the caller's context deadline.
type Store struct {
	db *sql.DB
}

// OpenStore opens (creating if necessary) the database at path and
// ensures the schema exists.
func OpenStore(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	// A single connection avoids SQLITE_BUSY between the writer and the
	// history endpoint.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create history schema: %w", err)
	}

	return &Store{db: db}, nil
}

// SaveDevice upserts the summary row for the record's device.
func (s *Store) SaveDevice(ctx context.Context, record models.PositionRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO devices (device_id, lat, lng, speed, heading, sats, ts, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (device_id) DO UPDATE SET
			lat = excluded.lat,
			lng = excluded.lng,
			speed = excluded.speed,
			heading = excluded.heading,
			sats = excluded.sats,
			ts = excluded.ts,
			updated_at = excluded.updated_at`,
		record.DeviceID, record.Lat, record.Lng, record.Speed,
		record.Heading, record.Sats, record.Timestamp, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to upsert device %s: %w", record.DeviceID, err)
	}
	return nil
}

// AppendPosition appends one history row for the record's device.
func (s *Store) AppendPosition(ctx context.Context, record models.PositionRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO positions (device_id, lat, lng, speed, heading, sats, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		record.DeviceID, record.Lat, record.Lng, record.Speed,
		record.Heading, record.Sats, record.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to append position for %s: %w", record.DeviceID, err)
	}
	return nil
}

// Prune deletes history rows for a device beyond the keep newest
// entries, ordered by timestamp then row id so ties evict the oldest
// row first. Pruning a device already within the bound is a no-op.
func (s *Store) Prune(ctx context.Context, deviceID string, keep int) error {
	if keep < 0 {
		keep = 0
	}
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM positions
		WHERE device_id = ?
		  AND id NOT IN (
			SELECT id FROM positions
			WHERE device_id = ?
			ORDER BY ts DESC, id DESC
			LIMIT ?
		  )`,
		deviceID, deviceID, keep)
	if err != nil {
		return fmt.Errorf("failed to prune history for %s: %w", deviceID, err)
	}
	return nil
}

// LatestDevices returns the persisted summary record of every known
// device, used to warm the in-memory store across restarts.
func (s *Store) LatestDevices(ctx context.Context) ([]models.PositionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT device_id, lat, lng, speed, heading, sats, ts
		FROM devices`)
	if err != nil {
		return nil, fmt.Errorf("failed to query device summaries: %w", err)
	}
	defer rows.Close()

	records := []models.PositionRecord{}
	for rows.Next() {
		var record models.PositionRecord
		if err := rows.Scan(&record.DeviceID, &record.Lat, &record.Lng,
			&record.Speed, &record.Heading, &record.Sats, &record.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan device summary: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read device summaries: %w", err)
	}
	return records, nil
}

// Positions returns up to limit persisted records for a device, most
// recent first.
func (s *Store) Positions(ctx context.Context, deviceID string, limit int) ([]models.PositionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT device_id, lat, lng, speed, heading, sats, ts
		FROM positions
		WHERE device_id = ?
		ORDER BY ts DESC, id DESC
		LIMIT ?`,
		deviceID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history for %s: %w", deviceID, err)
	}
	defer rows.Close()

	records := []models.PositionRecord{}
	for rows.Next() {
		var record models.PositionRecord
		if err := rows.Scan(&record.DeviceID, &record.Lat, &record.Lng,
			&record.Speed, &record.Heading, &record.Sats, &record.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read history rows: %w", err)
	}
	return records, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
