package ws

import (
	"context"
	"sync"
	"time"

	"chat-realtime/internal/fanout"
	"chat-realtime/internal/observability"
)

const wsRoutingKey = "ws_events.sessions"

// Hub is the directory of live sessions. It resolves users to sessions for fan-out
// and reports which users have a room focused.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	byUser   map[int]map[string]*Session
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		sessions: make(map[string]*Session),
		byUser:   make(map[int]map[string]*Session),
	}
}

// Add registers a session.
func (h *Hub) Add(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[s.ID()] = s
	if _, ok := h.byUser[s.UserID()]; !ok {
		h.byUser[s.UserID()] = make(map[string]*Session)
	}
	h.byUser[s.UserID()][s.ID()] = s
}

// Remove unregisters a session. It reports whether the session was registered.
func (h *Hub) Remove(s *Session) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.sessions[s.ID()]; !ok {
		return false
	}
	delete(h.sessions, s.ID())
	if conns, ok := h.byUser[s.UserID()]; ok {
		delete(conns, s.ID())
		if len(conns) == 0 {
			delete(h.byUser, s.UserID())
		}
	}
	return true
}

// Len reports the number of live sessions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// SessionsFor returns the live sessions of userIDs.
func (h *Hub) SessionsFor(userIDs []int) []fanout.Sink {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]fanout.Sink, 0, len(userIDs))
	for _, id := range userIDs {
		for _, s := range h.byUser[id] {
			out = append(out, s)
		}
	}
	return out
}

// AllSessions returns every live session.
func (h *Hub) AllSessions() []fanout.Sink {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]fanout.Sink, 0, len(h.sessions))
	for _, s := range h.sessions {
		out = append(out, s)
	}
	return out
}

// ViewersOf returns the users with a session whose active room is roomID.
func (h *Hub) ViewersOf(roomID int) []int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []int
	for userID, conns := range h.byUser {
		for _, s := range conns {
			if s.ActiveRoom() == roomID {
				out = append(out, userID)
				break
			}
		}
	}
	return out
}

// CloseAll terminates every session, used on shutdown.
func (h *Hub) CloseAll(reason string) {
	for _, s := range h.AllSessions() {
		s.Drop(reason)
	}
}

// publishWSEvent reports a session lifecycle event to the bus.
func publishWSEvent(ctx context.Context, name string, info ConnInfo, reason string) {
	payload := map[string]interface{}{
		"ws": map[string]interface{}{
			"kind":        "session",
			"event":       name,
			"conn_id":     info.ConnID,
			"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
			"reason":      reason,
		},
		"identity": map[string]interface{}{
			"user_id":   info.UserID,
			"device_id": info.DeviceID,
			"ip":        info.IP,
		},
	}

	headers := observability.BuildHeaders(info.RequestID, info.TraceID)
	_ = observability.PublishEvent(ctx, wsRoutingKey, observability.EventEnvelope{
		EventType: "ws_events",
		EventName: name,
		Payload:   payload,
	}, headers)
	observability.IncWSEvent("lifecycle", name)
}
