package utils

import (
	"fmt"

	"github.com/geofleet/trackd/pkg/file"
)

// Config holds the complete configuration for the tracking server.
type Config struct {
	Server struct {
		Host            string `yaml:"host"`             // Address to bind the HTTP listener to
		Port            int    `yaml:"port"`             // TCP port for the HTTP listener
		ReadTimeout     int    `yaml:"read_timeout"`     // Request read timeout (in seconds)
		WriteTimeout    int    `yaml:"write_timeout"`    // Response write timeout (in seconds)
		IdleTimeout     int    `yaml:"idle_timeout"`     // Keep-alive idle timeout (in seconds)
		ShutdownTimeout int    `yaml:"shutdown_timeout"` // Graceful shutdown grace period (in seconds)
		StaticDir       string `yaml:"static_dir"`       // Optional directory of static assets to serve at /
	} `yaml:"server"`
	Auth struct {
		DeviceToken string `yaml:"device_token"` // Shared secret required on ingestion requests
	} `yaml:"auth"`
	MQTT struct {
		Enabled       bool   `yaml:"enabled"`        // Enable the MQTT ingestion path
		Broker        string `yaml:"broker"`         // MQTT broker URL
		ClientID      string `yaml:"client_id"`      // Base client identifier, suffixed per connection
		Topic         string `yaml:"topic"`          // Subscription filter for position reports
		QOS           int    `yaml:"qos"`            // MQTT QoS level for the subscription
		CACertificate string `yaml:"ca_certificate"` // Path to the CA certificate, empty for plain TCP
	} `yaml:"mqtt"`
	History struct {
		Enabled   bool   `yaml:"enabled"`    // Enable durable history persistence
		DBPath    string `yaml:"db_path"`    // Path to the SQLite database file
		Points    int    `yaml:"points"`     // Retained history points per device
		QueueSize int    `yaml:"queue_size"` // Pending persistence job capacity
		OpTimeout int    `yaml:"op_timeout"` // Per-operation database timeout (in seconds)
	} `yaml:"history"`
	Broadcast struct {
		PingInterval int `yaml:"ping_interval"` // Liveness probe interval (in seconds)
		SendBuffer   int `yaml:"send_buffer"`   // Per-subscriber outbound event buffer
		WriteTimeout int `yaml:"write_timeout"` // Per-message write deadline (in seconds)
	} `yaml:"broadcast"`
	Stats struct {
		OnlineWindow int `yaml:"online_window"` // Device recency window for online counts (in seconds)
	} `yaml:"stats"`
	Metrics struct {
		Enabled bool `yaml:"enabled"` // Expose Prometheus metrics at /metrics
	} `yaml:"metrics"`
	Logging struct {
		Level string `yaml:"level"` // zerolog level: trace, debug, info, warn, error
	} `yaml:"logging"`
}

// LoadConfig reads and parses the YAML configuration file.
func LoadConfig(filename string, fileClient file.FileOperations) (*Config, error) {
	var config Config
	if err := fileClient.ReadYamlFile(filename, &config); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &config, nil
}

// Validate rejects configurations the server cannot safely run with.
// Zero values for tunables are allowed and fall back to defaults at
// wiring time.
func (c *Config) Validate() error {
	if c.Auth.DeviceToken == "" {
		return fmt.Errorf("auth.device_token must not be empty")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.History.Points < 0 {
		return fmt.Errorf("history.points must not be negative, got %d", c.History.Points)
	}
	if c.History.QueueSize < 0 {
		return fmt.Errorf("history.queue_size must not be negative, got %d", c.History.QueueSize)
	}
	if c.MQTT.Enabled {
		if c.MQTT.Broker == "" {
			return fmt.Errorf("mqtt.broker must not be empty when mqtt is enabled")
		}
		if c.MQTT.QOS < 0 || c.MQTT.QOS > 2 {
			return fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QOS)
		}
	}
	if c.History.Enabled && c.History.DBPath == "" {
		return fmt.Errorf("history.db_path must not be empty when history is enabled")
	}
	return nil
}
