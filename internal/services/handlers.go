package services

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/geofleet/trackd/internal/constants"
	"github.com/geofleet/trackd/internal/observability"
	"github.com/geofleet/trackd/internal/tracker"
)

// authorized checks the shared device token, taken from the
// X-Device-Token header or the token query parameter.
func (s *HTTPService) authorized(r *http.Request) bool {
	token := r.Header.Get("X-Device-Token")
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.deviceToken)) == 1
}

func (s *HTTPService) handleTrack(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		observability.PositionsRejected.WithLabelValues("auth").Inc()
		s.logger.Debug().Str("remote", r.RemoteAddr).Msg("Rejected track request with invalid token")
		writeError(w, http.StatusUnauthorized, "Invalid device token")
		return
	}

	var raw map[string]any
	body := io.LimitReader(r.Body, constants.MaxTrackBodyBytes)
	if err := json.NewDecoder(body).Decode(&raw); err != nil {
		observability.PositionsRejected.WithLabelValues("validation").Inc()
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	_, err := s.tracker.Ingest(raw)
	if err != nil {
		var validationErr *tracker.ValidationError
		if errors.As(err, &validationErr) {
			writeError(w, http.StatusBadRequest, validationErr.Error())
			return
		}
		s.logger.Error().Err(err).Msg("Failed to ingest position")
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, trackResponse{Success: true, Message: "Position updated successfully"})
}

func (s *HTTPService) handlePositions(w http.ResponseWriter, r *http.Request) {
	devices := s.tracker.Snapshot()
	writeJSON(w, http.StatusOK, positionsResponse{
		Success: true,
		Count:   len(devices),
		Devices: devices,
	})
}

func (s *HTTPService) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statsResponse{Success: true, Stats: s.tracker.Stats()})
}

// handleHistory serves persisted history, falling back to the
// in-memory buffer when the durable store is disabled or failing.
func (s *HTTPService) handleHistory(w http.ResponseWriter, r *http.Request) {
	deviceID := mux.Vars(r)["deviceId"]
	limit := historyLimit(r.URL.Query().Get("limit"))

	if s.historyReader != nil {
		ctx, cancel := context.WithTimeout(r.Context(), s.historyTimeout)
		defer cancel()

		positions, err := s.historyReader.Positions(ctx, deviceID, limit)
		if err == nil {
			writeJSON(w, http.StatusOK, historyResponse{
				Success:   true,
				DeviceID:  deviceID,
				Count:     len(positions),
				Positions: positions,
			})
			return
		}
		s.logger.Warn().
			Err(err).
			Str("device_id", deviceID).
			Msg("Durable history read failed, serving in-memory buffer")
	}

	positions := s.tracker.Recent(deviceID, limit)
	writeJSON(w, http.StatusOK, historyResponse{
		Success:   true,
		DeviceID:  deviceID,
		Count:     len(positions),
		Positions: positions,
	})
}

func (s *HTTPService) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Success:       true,
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
	})
}

// historyLimit parses the limit query parameter, clamping it to the
// allowed range. Absent or unparseable values get the default.
func historyLimit(value string) int {
	limit, err := strconv.Atoi(value)
	if err != nil || limit <= 0 {
		return constants.DefaultHistoryLimit
	}
	if limit > constants.MaxHistoryLimit {
		return constants.MaxHistoryLimit
	}
	return limit
}
