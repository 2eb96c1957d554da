package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait   = 5 * time.Second
	sessionSend = 16
)

var (
	errSessionFull   = errors.New("websocket session send buffer full")
	errSessionClosed = errors.New("websocket session closed")
)

// wsSession owns one connection. Only writeLoop writes to conn; send just
// enqueues so a stalled peer never blocks the notifier.
type wsSession struct {
	conn *websocket.Conn
	out  chan Event
	done chan struct{}
}

func newWSSession(conn *websocket.Conn) *wsSession {
	return &wsSession{conn: conn, out: make(chan Event, sessionSend), done: make(chan struct{})}
}

func (s *wsSession) send(ev Event) error {
	select {
	case <-s.done:
		return errSessionClosed
	default:
	}
	select {
	case s.out <- ev:
		return nil
	default:
		return errSessionFull
	}
}

func (s *wsSession) writeLoop(logger *slog.Logger) {
	for {
		select {
		case <-s.done:
			return
		case ev := <-s.out:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteJSON(ev); err != nil {
				logger.Warn("ws write failed", "user_id", ev.UserID, "error", err)
				// Unblocks the read loop in Serve.
				_ = s.conn.Close()
				return
			}
		}
	}
}

// Hub pushes notifications to users connected over WebSocket. A user may hold
// several connections; each one receives every event.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]map[*wsSession]struct{}
	logger   *slog.Logger
	now      func() time.Time
}

// NewHub creates an empty Hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		sessions: make(map[string]map[*wsSession]struct{}),
		logger:   logger,
		now:      time.Now,
	}
}

// Serve registers conn for userID and blocks until the peer goes away.
// Inbound messages are read and dropped so control frames get processed.
func (h *Hub) Serve(userID string, conn *websocket.Conn) {
	s := newWSSession(conn)
	h.add(userID, s)
	go s.writeLoop(h.logger)
	defer func() {
		h.remove(userID, s)
		close(s.done)
		_ = conn.Close()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) add(userID string, s *wsSession) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.sessions[userID]
	if !ok {
		set = make(map[*wsSession]struct{})
		h.sessions[userID] = set
	}
	set[s] = struct{}{}
}

func (h *Hub) remove(userID string, s *wsSession) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.sessions[userID]
	delete(set, s)
	if len(set) == 0 {
		delete(h.sessions, userID)
	}
}

// Connected returns the number of live connections for userID.
func (h *Hub) Connected(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[userID])
}

// Notify queues the event on every connection of userID without waiting for
// the write. Offline users are not an error; a connection whose buffer is
// full misses the event.
func (h *Hub) Notify(ctx context.Context, userID, kind string, payload map[string]any) error {
	h.mu.RLock()
	targets := make([]*wsSession, 0, len(h.sessions[userID]))
	for s := range h.sessions[userID] {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	ev := Event{UserID: userID, Kind: kind, Payload: payload, At: h.now()}
	var firstErr error
	for _, s := range targets {
		if err := s.send(ev); err != nil {
			h.logger.WarnContext(ctx, "ws send failed", "user_id", userID, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

var _ Notifier = (*Hub)(nil)
