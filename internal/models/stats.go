package models

// Stats is the aggregate counter payload served by the stats endpoint.
type Stats struct {
	TotalDevices        int           `json:"total_devices"`
	TotalPositions      uint64        `json:"total_positions"`
	OnlineDevices       int           `json:"online_devices"`
	Subscribers         int           `json:"subscribers"`
	UptimeSeconds       int64         `json:"uptime_seconds"`
	HistoryPoints       int           `json:"history_points"`
	OnlineWindowSeconds int64         `json:"online_window_seconds"`
	Process             *ProcessStats `json:"process,omitempty"`
}

// ProcessStats describes the server process itself.
type ProcessStats struct {
	MemoryBytes uint64  `json:"memory_bytes"`
	CPUPercent  float64 `json:"cpu_percent"`
	Goroutines  int     `json:"goroutines"`
}
