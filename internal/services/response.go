package services

import (
	"encoding/json"
	"net/http"

	"github.com/geofleet/trackd/internal/models"
)

// Response envelopes for the HTTP API. Every payload carries a success
// flag so clients can branch without inspecting status codes.

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type trackResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type positionsResponse struct {
	Success bool                    `json:"success"`
	Count   int                     `json:"count"`
	Devices []models.PositionRecord `json:"devices"`
}

type statsResponse struct {
	Success bool         `json:"success"`
	Stats   models.Stats `json:"stats"`
}

type historyResponse struct {
	Success   bool                    `json:"success"`
	DeviceID  string                  `json:"device_id"`
	Count     int                     `json:"count"`
	Positions []models.PositionRecord `json:"positions"`
}

type healthResponse struct {
	Success       bool   `json:"success"`
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Success: false, Error: message})
}
