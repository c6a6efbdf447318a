package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/lanshare/lanshare/internal/artifact"
)

// broadcastEvent is one fan-out unit. exclude, when non-nil, names the one
// session that must not receive the payload (typing indicators skip their
// author; chat and file events go to everyone).
type broadcastEvent struct {
	payload []byte
	exclude *Session
}

// Hub owns the set of live sessions and multiplexes file-shared, chat, and
// typing events over it. All registry mutations and broadcasts funnel
// through one event loop, so two broadcasts issued in sequence by the same
// caller reach every common recipient in that order.
type Hub struct {
	sessions   map[*Session]bool
	broadcast  chan broadcastEvent
	register   chan *Session
	unregister chan *Session
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
	logger     *slog.Logger
}

// NewHub creates a Hub ready to run. A nil logger falls back to
// slog.Default.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		sessions:   make(map[*Session]bool),
		broadcast:  make(chan broadcastEvent),
		register:   make(chan *Session),
		unregister: make(chan *Session),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Register adds a session to the live set and starts its pumps. Safe to
// call concurrently with broadcasts; a no-op once the hub is shut down.
func (h *Hub) Register(s *Session) {
	if s == nil {
		return
	}
	select {
	case h.register <- s:
	case <-h.ctx.Done():
	}
}

// Unregister removes a session from the live set. Idempotent: removing a
// session twice, or one that was never registered, is a no-op.
func (h *Hub) Unregister(s *Session) {
	if s == nil {
		return
	}
	select {
	case h.unregister <- s:
	case <-h.ctx.Done():
	}
}

// BroadcastArtifact delivers a file-shared event to every live session,
// including the uploader's own connection if it has one. Implements
// artifact.Broadcaster.
func (h *Hub) BroadcastArtifact(view artifact.PublicView) {
	data, err := json.Marshal(view)
	if err != nil {
		h.logger.Error("marshal file-shared event", "error", err)
		return
	}
	h.enqueue(EventFileShared, data, nil)
}

// BroadcastChat delivers a chat message to every live session, including
// the sender. The payload is the sender's data field, echoed verbatim.
func (h *Hub) BroadcastChat(payload json.RawMessage, from *Session) {
	h.enqueue(EventChatMessage, payload, nil)
}

// BroadcastTyping delivers a typing or stop-typing event to every live
// session except the author's own.
func (h *Hub) BroadcastTyping(event string, payload json.RawMessage, from *Session) {
	h.enqueue(event, payload, from)
}

func (h *Hub) enqueue(event string, data json.RawMessage, exclude *Session) {
	payload, err := json.Marshal(Envelope{Event: event, Data: data})
	if err != nil {
		h.logger.Error("marshal event envelope", "event", event, "error", err)
		return
	}
	select {
	case h.broadcast <- broadcastEvent{payload: payload, exclude: exclude}:
	case <-h.ctx.Done():
	}
}

// Run starts the hub's event loop, handling session registration,
// unregistration, and event fan-out. Call in its own goroutine; it returns
// only after Shutdown.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownSessions()
			return

		case s := <-h.register:
			if !s.markOpen() {
				continue
			}
			h.mutex.Lock()
			h.sessions[s] = true
			count := len(h.sessions)
			h.mutex.Unlock()
			h.logger.Info("session registered", "session", s.ID(), "addr", s.addr, "total", count)

			if s.conn != nil {
				h.wg.Add(2)
				go func() {
					defer h.wg.Done()
					s.writePump()
				}()
				go func() {
					defer h.wg.Done()
					s.readPump()
				}()
			}

		case s := <-h.unregister:
			h.remove(s)

		case ev := <-h.broadcast:
			h.handleBroadcast(ev)
		}
	}
}

// handleBroadcast fans one event out to a snapshot of the live set and
// removes any session whose send buffer is full or closed. A dead or slow
// session never blocks delivery to the rest.
func (h *Hub) handleBroadcast(ev broadcastEvent) {
	var failed []*Session

	for _, s := range h.snapshot() {
		if ev.exclude != nil && s == ev.exclude {
			continue
		}
		if !h.trySend(s, ev.payload) {
			failed = append(failed, s)
		}
	}

	for _, s := range failed {
		h.logger.Warn("dropping unresponsive session", "session", s.ID(), "addr", s.addr)
		h.remove(s)
	}
}

// trySend queues payload on the session's buffered channel without
// blocking. Membership is checked under the read lock so the send cannot
// race a concurrent remove closing the channel.
func (h *Hub) trySend(s *Session, payload []byte) bool {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	if _, ok := h.sessions[s]; !ok {
		return false
	}
	select {
	case s.send <- payload:
		return true
	default:
		return false
	}
}

// SessionCount reports the number of live sessions.
func (h *Hub) SessionCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.sessions)
}

// snapshot returns the current live set for torn-iteration-free fan-out.
func (h *Hub) snapshot() []*Session {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	sessions := make([]*Session, 0, len(h.sessions))
	for s := range h.sessions {
		sessions = append(sessions, s)
	}
	return sessions
}

// remove deletes a session from the live set and closes its send channel.
// Removing an unknown session is a no-op.
func (h *Hub) remove(s *Session) {
	if s == nil {
		return
	}
	h.mutex.Lock()
	_, ok := h.sessions[s]
	if ok {
		delete(h.sessions, s)
	}
	count := len(h.sessions)
	h.mutex.Unlock()

	if ok {
		// Close after releasing the lock; trySend checks membership under
		// the same lock, so no sender still holds the channel.
		close(s.send)
		h.logger.Info("session unregistered", "session", s.ID(), "addr", s.addr, "total", count)
	}
}

func (h *Hub) shutdownSessions() {
	sessions := h.snapshot()
	h.logger.Info("closing client sessions", "count", len(sessions))

	for _, s := range sessions {
		s.Close()
	}
}

// Shutdown stops the event loop, closes every session, and waits for the
// session pumps to finish or the timeout to elapse.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.logger.Info("hub shutdown complete")
		return nil
	case <-time.After(timeout):
		h.logger.Warn("hub shutdown timed out")
		return context.DeadlineExceeded
	}
}
