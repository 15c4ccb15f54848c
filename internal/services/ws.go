package services

import (
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/geofleet/trackd/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

var (
	errSinkClosed     = errors.New("subscriber sink is closed")
	errSendBufferFull = errors.New("subscriber send buffer is full")
	errPongTimeout    = errors.New("subscriber missed liveness probe")
)

// wsSink adapts one WebSocket connection to the broadcaster's Sink
// interface. Events are queued on a bounded channel drained by a single
// writer goroutine, so Send never blocks; a subscriber that lets the
// buffer fill up is reported as failed and removed by the hub.
type wsSink struct {
	conn      *websocket.Conn
	send      chan models.StreamEvent
	writeWait time.Duration
	pongWait  time.Duration
	lastPong  atomic.Int64
	done      chan struct{}
	closeOnce sync.Once
	logger    zerolog.Logger
}

func newWSSink(conn *websocket.Conn, sendBuffer int, writeWait, pongWait time.Duration, logger zerolog.Logger) *wsSink {
	sink := &wsSink{
		conn:      conn,
		send:      make(chan models.StreamEvent, sendBuffer),
		writeWait: writeWait,
		pongWait:  pongWait,
		done:      make(chan struct{}),
		logger:    logger,
	}
	sink.lastPong.Store(time.Now().UnixNano())
	conn.SetPongHandler(func(string) error {
		sink.lastPong.Store(time.Now().UnixNano())
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	return sink
}

// Send queues an event for delivery without blocking.
func (s *wsSink) Send(event models.StreamEvent) error {
	select {
	case <-s.done:
		return errSinkClosed
	default:
	}
	select {
	case s.send <- event:
		return nil
	default:
		return errSendBufferFull
	}
}

// Probe verifies the peer answered the previous ping cycle and sends
// the next ping.
func (s *wsSink) Probe() error {
	select {
	case <-s.done:
		return errSinkClosed
	default:
	}
	if time.Since(time.Unix(0, s.lastPong.Load())) > s.pongWait {
		return errPongTimeout
	}
	return s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.writeWait))
}

// Close tears the connection down. Safe to call multiple times.
func (s *wsSink) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.conn.Close()
	})
	return nil
}

// writePump serializes all data writes to the connection.
func (s *wsSink) writePump() {
	defer s.conn.Close()

	for {
		select {
		case <-s.done:
			s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(s.writeWait))
			return
		case event := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(s.writeWait))
			if err := s.conn.WriteJSON(event); err != nil {
				s.logger.Debug().Err(err).Msg("WebSocket write failed")
				return
			}
		}
	}
}

// readPump consumes the connection until the client goes away. Inbound
// data messages are discarded; reading is what drives pong processing.
func (s *wsSink) readPump() {
	s.conn.SetReadLimit(1024)
	s.conn.SetReadDeadline(time.Now().Add(s.pongWait))
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// handleWebSocket upgrades the request and runs the subscriber until it
// disconnects.
func (s *HTTPService) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("WebSocket upgrade failed")
		return
	}

	sink := newWSSink(conn, s.sendBuffer, s.sinkWriteWait, s.pongWait, s.logger)
	go sink.writePump()

	id, err := s.hub.Subscribe(sink)
	if err != nil {
		s.logger.Debug().Err(err).Msg("Failed to deliver snapshot to new subscriber")
		return
	}
	s.logger.Info().
		Str("subscriber_id", id).
		Str("remote", r.RemoteAddr).
		Msg("Dashboard client connected")

	sink.readPump()
	s.hub.Unsubscribe(id)
	s.logger.Info().Str("subscriber_id", id).Msg("Dashboard client disconnected")
}
