package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// SessionState tracks a session through its lifecycle. Closed is terminal:
// there is no transition out of it.
type SessionState int32

const (
	StateConnecting SessionState = iota
	StateOpen
	StateClosed
)

const (
	pongWait     = 60 * time.Second
	pingInterval = 54 * time.Second
	writeWait    = 10 * time.Second
	sendBuffer   = 256
)

// Session is one participant's realtime channel. Inbound chat and typing
// events route to the hub; outbound hub events drain through the buffered
// send channel. The session owns its connection; the hub owns its registry
// membership.
type Session struct {
	id    string
	conn  *websocket.Conn
	send  chan []byte
	done  chan struct{}
	hub   *Hub
	addr  string
	state atomic.Int32

	closeOnce      sync.Once
	limiter        *rate.Limiter
	maxMessageSize int64
	logger         *slog.Logger
}

// NewSession creates a session in the Connecting state for an upgraded
// connection. The hub transitions it to Open on registration.
func NewSession(conn *websocket.Conn, hub *Hub, addr string, cfg *Config, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}

	interval := cfg.RateLimitInterval
	if interval <= 0 {
		interval = time.Second
	}
	limit := rate.Limit(float64(cfg.RateLimitBurst) / interval.Seconds())

	return &Session{
		id:             uuid.NewString(),
		conn:           conn,
		send:           make(chan []byte, sendBuffer),
		done:           make(chan struct{}),
		hub:            hub,
		addr:           addr,
		limiter:        rate.NewLimiter(limit, cfg.RateLimitBurst),
		maxMessageSize: cfg.MaxMessageSize,
		logger:         logger,
	}
}

// ID returns the session's identifier, unique for its lifetime.
func (s *Session) ID() string {
	return s.id
}

// State returns the session's current lifecycle state.
func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

// markOpen transitions Connecting to Open. It reports false if the session
// already left Connecting, in which case the hub must not register it.
func (s *Session) markOpen() bool {
	return s.state.CompareAndSwap(int32(StateConnecting), int32(StateOpen))
}

// Close transitions the session to Closed, unregisters it from the hub,
// and closes the transport. Safe to call from multiple goroutines; the
// explicit close path and the pump error paths race here harmlessly.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.state.Store(int32(StateClosed))
		close(s.done)
		if s.conn != nil {
			if err := s.conn.Close(); err != nil && !isExpectedCloseError(err) {
				s.logger.Warn("close connection", "session", s.id, "error", err)
			}
		}
		s.hub.Unregister(s)
	})
}

func (s *Session) setupReadDeadlines() {
	if err := s.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		s.logger.Warn("set read deadline", "session", s.id, "error", err)
	}
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
}

// readPump consumes inbound frames until the transport fails or closes,
// then triggers the idempotent close path.
func (s *Session) readPump() {
	defer s.Close()

	s.setupReadDeadlines()

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			s.logReadError(err)
			return
		}

		if !s.limiter.Allow() {
			s.logger.Warn("rate limit exceeded, dropping message", "session", s.id, "addr", s.addr)
			continue
		}

		s.handleInbound(raw)
	}
}

// handleInbound routes one decoded envelope to the hub. Sessions may
// originate chat and typing events only; file-shared events come from the
// ingestion coordinator, so an inbound one is discarded like any unknown
// event.
func (s *Session) handleInbound(raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		s.logger.Warn("invalid message", "session", s.id, "addr", s.addr, "error", err)
		return
	}

	switch env.Event {
	case EventChatMessage:
		s.hub.BroadcastChat(env.Data, s)
	case EventTyping, EventStopTyping:
		s.hub.BroadcastTyping(env.Event, env.Data, s)
	default:
		s.logger.Warn("discarding event", "session", s.id, "event", env.Event)
	}
}

func (s *Session) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		s.logger.Warn("message exceeded size limit", "session", s.id, "limit", s.maxMessageSize)
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		s.logger.Info("session disconnected", "session", s.id, "addr", s.addr)
	case errors.Is(err, io.EOF), isExpectedCloseError(err):
		s.logger.Info("connection closed", "session", s.id, "addr", s.addr)
	default:
		s.logger.Warn("read error", "session", s.id, "addr", s.addr, "error", err)
	}
}

// writePump drains the send channel to the wire with bounded write
// deadlines and keeps the connection alive with pings. It exits when the
// hub closes the send channel or a write fails, then triggers close.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		s.Close()
	}()

	for {
		select {
		case <-s.done:
			// Close path triggered elsewhere (shutdown, read failure);
			// stop pumping instead of waiting out the ping interval.
			return

		case payload, ok := <-s.send:
			if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				s.logger.Warn("set write deadline", "session", s.id, "error", err)
				return
			}
			if !ok {
				if err := s.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil && !isExpectedCloseError(err) {
					s.logger.Warn("write close message", "session", s.id, "error", err)
				}
				return
			}
			if !s.writeBatch(payload) {
				return
			}

		case <-ticker.C:
			if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				if !isExpectedCloseError(err) {
					s.logger.Warn("write ping", "session", s.id, "error", err)
				}
				return
			}
		}
	}
}

// writeBatch writes one payload plus anything already queued, newline
// separated, in a single frame.
func (s *Session) writeBatch(payload []byte) bool {
	w, err := s.conn.NextWriter(websocket.TextMessage)
	if err != nil {
		return false
	}
	if _, err := w.Write(payload); err != nil {
		s.logger.Warn("write message", "session", s.id, "error", err)
		return false
	}

	queued := len(s.send)
	for i := 0; i < queued; i++ {
		next, ok := <-s.send
		if !ok {
			break
		}
		if _, err := w.Write([]byte{'\n'}); err != nil {
			return false
		}
		if _, err := w.Write(next); err != nil {
			return false
		}
	}

	if err := w.Close(); err != nil {
		s.logger.Warn("close frame writer", "session", s.id, "error", err)
		return false
	}
	return true
}

// isExpectedCloseError reports whether an error is routine during
// connection teardown.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "use of closed network connection") ||
		strings.Contains(msg, "websocket: close sent") ||
		strings.Contains(msg, "broken pipe")
}
