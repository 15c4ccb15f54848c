package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/geofleet/trackd/internal/broadcast"
	"github.com/geofleet/trackd/internal/constants"
	"github.com/geofleet/trackd/internal/history"
	"github.com/geofleet/trackd/internal/service_registry"
	"github.com/geofleet/trackd/internal/services"
	"github.com/geofleet/trackd/internal/state"
	"github.com/geofleet/trackd/internal/tracker"
	"github.com/geofleet/trackd/internal/utils"
	"github.com/geofleet/trackd/pkg/file"
	"github.com/geofleet/trackd/pkg/mqtt"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the configuration file")
	flag.Parse()

	// Set up structured logging with JSON output
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	// Initialize file operations handler
	fileClient := file.NewFileService()

	// Load configuration from file
	config, err := utils.LoadConfig(*configPath, fileClient)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}
	applyLogLevel(config.Logging.Level, logger)

	// In-memory world state and the fan-out hub feeding on it
	stateStore := state.NewStore(config.History.Points)
	hub := broadcast.NewHub(time.Duration(config.Broadcast.PingInterval)*time.Second, stateStore, logger)

	// Durable history is optional; without it the history endpoint
	// serves the in-memory buffer only.
	var reader services.HistoryReader
	var recorder tracker.HistoryRecorder
	var writer *history.Writer
	if config.History.Enabled {
		historyStore, err := history.OpenStore(config.History.DBPath)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to open history database")
		}
		defer historyStore.Close()

		writer = history.NewWriter(config.History.Points, config.History.QueueSize,
			time.Duration(config.History.OpTimeout)*time.Second, historyStore, logger)
		reader = historyStore
		recorder = writer

		warmStateStore(stateStore, historyStore, logger)
	}

	trackerService := tracker.NewService(
		time.Duration(config.Stats.OnlineWindow)*time.Second,
		tracker.NewNormalizer(nil),
		stateStore,
		hub,
		recorder,
		logger,
	)

	// Create a new service registry to manage services
	serviceRegistry := service_registry.NewServiceRegistry(logger)
	if writer != nil {
		serviceRegistry.RegisterService("history", writer)
	}
	serviceRegistry.RegisterService("broadcast", hub)

	if config.MQTT.Enabled {
		// Generate a unique MQTT Client ID by appending a UUID
		clientID := config.MQTT.ClientID + "-" + uuid.New().String()
		logger.Info().Str("client_id", clientID).Msg("Using MQTT Client ID")

		mqttClient := mqtt.NewMqttService(fileClient)
		if err := mqttClient.Initialize(config.MQTT.Broker, clientID, config.MQTT.CACertificate); err != nil {
			logger.Fatal().Err(err).Msg("Failed to initialize MQTT connection")
		}
		defer mqttClient.Disconnect(250)

		serviceRegistry.RegisterService("mqtt_ingest",
			services.NewMQTTIngestService(config.MQTT.Topic, config.MQTT.QOS, mqttClient, trackerService, logger))
	}

	serviceRegistry.RegisterService("http",
		services.NewHTTPService(config, trackerService, hub, reader, logger))

	// Start all registered services in the registry
	if err := serviceRegistry.StartServices(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start services")
	}
	logger.Info().Msg("All services started successfully")

	// Handle graceful shutdown
	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)
	<-stopCh

	logger.Info().Msg("Shutting down gracefully...")
	if err := serviceRegistry.StopServices(); err != nil {
		logger.Error().Err(err).Msg("Some services failed to stop cleanly")
	}
}

func applyLogLevel(level string, logger zerolog.Logger) {
	if level == "" {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
		return
	}
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		logger.Warn().Str("level", level).Msg("Unknown log level, keeping info")
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
		return
	}
	zerolog.SetGlobalLevel(parsed)
}

// warmStateStore loads persisted device summaries so the dashboard
// shows last-known positions across restarts.
func warmStateStore(store *state.Store, historyStore *history.Store, logger zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), constants.DefaultStoreTimeout)
	defer cancel()

	devices, err := historyStore.LatestDevices(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to load persisted device summaries")
		return
	}
	for _, record := range devices {
		store.Apply(record)
	}
	if len(devices) > 0 {
		logger.Info().Int("devices", len(devices)).Msg("Warmed state store from persisted summaries")
	}
}
