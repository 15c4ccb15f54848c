package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/geofleet/trackd/internal/broadcast"
	"github.com/geofleet/trackd/internal/constants"
	"github.com/geofleet/trackd/internal/models"
	"github.com/geofleet/trackd/internal/tracker"
	"github.com/geofleet/trackd/internal/utils"
)

// HistoryReader serves persisted position history to the history
// endpoint. nil disables the durable path and the endpoint falls back
// to the in-memory buffer.
type HistoryReader interface {
	Positions(ctx context.Context, deviceID string, limit int) ([]models.PositionRecord, error)
}

// HTTPService owns the HTTP listener: ingestion, query endpoints, the
// WebSocket push channel and optional metrics/static assets.
type HTTPService struct {
	// Configuration fields
	addr            string
	readTimeout     time.Duration
	writeTimeout    time.Duration
	idleTimeout     time.Duration
	shutdownTimeout time.Duration
	staticDir       string
	deviceToken     string
	metricsEnabled  bool
	sendBuffer      int
	sinkWriteWait   time.Duration
	pongWait        time.Duration
	historyTimeout  time.Duration

	// Dependencies
	tracker       *tracker.Service
	hub           *broadcast.Hub
	historyReader HistoryReader
	logger        zerolog.Logger

	// Internal state management
	server    *http.Server
	wg        sync.WaitGroup
	running   bool
	startedAt time.Time
}

// NewHTTPService creates a new HTTPService instance from the server,
// auth and broadcast sections of the configuration.
func NewHTTPService(config *utils.Config, trackerService *tracker.Service, hub *broadcast.Hub,
	historyReader HistoryReader, logger zerolog.Logger) *HTTPService {
	pingInterval := time.Duration(config.Broadcast.PingInterval) * time.Second
	if pingInterval <= 0 {
		pingInterval = constants.DefaultPingInterval
	}
	sinkWriteWait := time.Duration(config.Broadcast.WriteTimeout) * time.Second
	if sinkWriteWait <= 0 {
		sinkWriteWait = constants.DefaultWriteTimeout
	}
	sendBuffer := config.Broadcast.SendBuffer
	if sendBuffer <= 0 {
		sendBuffer = constants.DefaultSendBuffer
	}
	historyTimeout := time.Duration(config.History.OpTimeout) * time.Second
	if historyTimeout <= 0 {
		historyTimeout = constants.DefaultStoreTimeout
	}

	return &HTTPService{
		addr:            fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port),
		readTimeout:     durationOrDefault(config.Server.ReadTimeout, 15*time.Second),
		writeTimeout:    durationOrDefault(config.Server.WriteTimeout, 15*time.Second),
		idleTimeout:     durationOrDefault(config.Server.IdleTimeout, 60*time.Second),
		shutdownTimeout: durationOrDefault(config.Server.ShutdownTimeout, 10*time.Second),
		staticDir:       config.Server.StaticDir,
		deviceToken:     config.Auth.DeviceToken,
		metricsEnabled:  config.Metrics.Enabled,
		sendBuffer:      sendBuffer,
		sinkWriteWait:   sinkWriteWait,
		pongWait:        2 * pingInterval,
		historyTimeout:  historyTimeout,
		tracker:         trackerService,
		hub:             hub,
		historyReader:   historyReader,
		logger:          logger,
		running:         false,
		startedAt:       time.Now(),
	}
}

func durationOrDefault(seconds int, fallback time.Duration) time.Duration {
	if seconds <= 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}

// Router assembles the full route table.
func (s *HTTPService) Router() *mux.Router {
	router := mux.NewRouter()

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/track", s.handleTrack).Methods(http.MethodPost)
	api.HandleFunc("/positions", s.handlePositions).Methods(http.MethodGet)
	api.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	api.HandleFunc("/history/{deviceId}", s.handleHistory).Methods(http.MethodGet)
	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	router.HandleFunc("/ws", s.handleWebSocket)

	if s.metricsEnabled {
		router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	}
	if s.staticDir != "" {
		router.PathPrefix("/").Handler(http.FileServer(http.Dir(s.staticDir)))
	}
	return router
}

// Start binds the listener and begins serving. Binding happens
// synchronously so a taken port fails startup instead of surfacing
// later.
func (s *HTTPService) Start() error {
	if s.running {
		s.logger.Warn().Msg("HTTPService is already running")
		return errors.New("http service is already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", s.addr, err)
	}

	s.server = &http.Server{
		Handler:      s.Router(),
		ReadTimeout:  s.readTimeout,
		WriteTimeout: s.writeTimeout,
		IdleTimeout:  s.idleTimeout,
	}
	s.running = true

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("HTTP server terminated unexpectedly")
		}
	}()

	s.logger.Info().
		Str("addr", s.addr).
		Bool("metrics", s.metricsEnabled).
		Msg("HTTPService started")
	return nil
}

// Stop drains in-flight requests and shuts the listener down.
func (s *HTTPService) Stop() error {
	if !s.running {
		s.logger.Warn().Msg("HTTPService is not running")
		return errors.New("http service is not running")
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Error().Err(err).Msg("Failed to shut down HTTP server cleanly")
		return err
	}
	s.wg.Wait()

	s.running = false
	s.logger.Info().Msg("HTTPService stopped")
	return nil
}
