package tracker

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/geofleet/trackd/internal/models"
)

// ValidationError reports an inbound payload that could not be coerced
// into a position record. Its message is suitable for returning to the
// submitting client.
type ValidationError struct {
	message string
}

func (e *ValidationError) Error() string {
	return e.message
}

func newMissingFieldsError(fields []string) *ValidationError {
	return &ValidationError{
		message: fmt.Sprintf("Missing required fields: %s", strings.Join(fields, ", ")),
	}
}

// Normalizer validates and coerces raw device payloads into canonical
// position records. device_id, lat and lng are mandatory; every other
// field falls back to a default rather than causing a rejection.
type Normalizer struct {
	now func() time.Time
}

// NewNormalizer creates a Normalizer. A nil clock defaults to time.Now.
func NewNormalizer(now func() time.Time) *Normalizer {
	if now == nil {
		now = time.Now
	}
	return &Normalizer{now: now}
}

// Normalize turns a decoded payload into a PositionRecord or returns a
// *ValidationError describing why the payload was rejected.
func (n *Normalizer) Normalize(raw map[string]any) (models.PositionRecord, error) {
	var missing []string

	deviceID, ok := coerceString(raw["device_id"])
	if !ok {
		missing = append(missing, "device_id")
	}
	lat, ok := coerceFloat(raw["lat"])
	if !ok {
		missing = append(missing, "lat")
	}
	lng, ok := coerceFloat(raw["lng"])
	if !ok {
		missing = append(missing, "lng")
	}
	if len(missing) > 0 {
		return models.PositionRecord{}, newMissingFieldsError(missing)
	}

	if lat < -90 || lat > 90 {
		return models.PositionRecord{}, &ValidationError{
			message: fmt.Sprintf("Field lat must be between -90 and 90, got %s", formatFloat(lat)),
		}
	}
	if lng < -180 || lng > 180 {
		return models.PositionRecord{}, &ValidationError{
			message: fmt.Sprintf("Field lng must be between -180 and 180, got %s", formatFloat(lng)),
		}
	}

	record := models.PositionRecord{
		DeviceID: deviceID,
		Lat:      lat,
		Lng:      lng,
	}

	// Optional fields keep their zero default when absent or malformed.
	if speed, ok := coerceFloat(raw["speed"]); ok {
		record.Speed = speed
	}
	if heading, ok := coerceInt(raw["heading"]); ok {
		record.Heading = heading
	}
	if sats, ok := coerceInt(raw["sats"]); ok {
		record.Sats = sats
	}

	record.Timestamp = n.now().UnixMilli()
	if ts, ok := coerceFloat(raw["ts"]); ok && ts > 0 {
		record.Timestamp = int64(ts)
	}

	return record, nil
}

// coerceString accepts strings and numbers; JSON decoders hand numeric
// identifiers over as float64.
func coerceString(v any) (string, bool) {
	switch value := v.(type) {
	case string:
		trimmed := strings.TrimSpace(value)
		return trimmed, trimmed != ""
	case float64:
		return formatFloat(value), true
	case int:
		return strconv.Itoa(value), true
	case int64:
		return strconv.FormatInt(value, 10), true
	default:
		return "", false
	}
}

// coerceFloat accepts numbers and numeric strings. NaN and infinities
// are treated as not coercible.
func coerceFloat(v any) (float64, bool) {
	var value float64
	switch typed := v.(type) {
	case float64:
		value = typed
	case float32:
		value = float64(typed)
	case int:
		value = float64(typed)
	case int64:
		value = float64(typed)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(typed), 64)
		if err != nil {
			return 0, false
		}
		value = parsed
	default:
		return 0, false
	}

	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, false
	}
	return value, true
}

func coerceInt(v any) (int, bool) {
	value, ok := coerceFloat(v)
	if !ok {
		return 0, false
	}
	return int(value), true
}

func formatFloat(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}
