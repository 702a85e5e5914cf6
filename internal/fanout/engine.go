// Package fanout delivers live events to the sessions of a set of users.
package fanout

import (
	"encoding/json"

	"go.uber.org/zap"

	"chat-realtime/internal/models"
	"chat-realtime/internal/observability"
)

// Sink is one live session.
type Sink interface {
	ID() string
	UserID() int
	// Enqueue queues a frame without blocking. It returns false when the session's
	// buffer is full or the session is closed.
	Enqueue(frame []byte) bool
	// Drop terminates a session that cannot keep up.
	Drop(reason string)
}

// Directory resolves users to their live sessions.
type Directory interface {
	SessionsFor(userIDs []int) []Sink
	AllSessions() []Sink
}

// Report counts the outcome of one fan-out.
type Report struct {
	Delivered int
	Dropped   int
}

// Engine encodes an event once and enqueues it to every target session. Callers
// that need per-room ordering invoke it from the room's serial lane; enqueueing
// never blocks, so one slow session cannot stall the others.
type Engine struct {
	dir    Directory
	logger *zap.Logger
}

// New builds an Engine.
func New(dir Directory, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{dir: dir, logger: logger}
}

// Encode renders an event frame.
func Encode(event string, data any) ([]byte, error) {
	return json.Marshal(models.Envelope{Event: event, Data: data})
}

// ToUsers delivers event to every live session of userIDs. Duplicate ids are ignored.
func (e *Engine) ToUsers(userIDs []int, event string, data any) Report {
	return e.deliver(e.dir.SessionsFor(dedupe(userIDs)), event, data)
}

// ToAll delivers event to every live session.
func (e *Engine) ToAll(event string, data any) Report {
	return e.deliver(e.dir.AllSessions(), event, data)
}

// ToSession delivers event to one session.
func (e *Engine) ToSession(s Sink, event string, data any) Report {
	return e.deliver([]Sink{s}, event, data)
}

func (e *Engine) deliver(sinks []Sink, event string, data any) Report {
	var rep Report
	if len(sinks) == 0 {
		return rep
	}
	frame, err := Encode(event, data)
	if err != nil {
		e.logger.Error("encode event failed", zap.String("event", event), zap.Error(err))
		return rep
	}
	for _, s := range sinks {
		if s.Enqueue(frame) {
			rep.Delivered++
			observability.IncFanout(event, "delivered")
			continue
		}
		rep.Dropped++
		observability.IncFanout(event, "dropped")
		e.logger.Warn("session send buffer full, dropping session",
			zap.String("session_id", s.ID()),
			zap.Int("user_id", s.UserID()),
			zap.String("event", event),
		)
		s.Drop("send buffer overflow")
	}
	return rep
}

func dedupe(ids []int) []int {
	seen := make(map[int]struct{}, len(ids))
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
