package fanout

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-realtime/internal/models"
)

type fakeSink struct {
	id      string
	userID  int
	mu      sync.Mutex
	buf     chan []byte
	dropped string
}

func newSink(id string, userID, size int) *fakeSink {
	return &fakeSink{id: id, userID: userID, buf: make(chan []byte, size)}
}

func (s *fakeSink) ID() string  { return s.id }
func (s *fakeSink) UserID() int { return s.userID }

func (s *fakeSink) Enqueue(frame []byte) bool {
	select {
	case s.buf <- frame:
		return true
	default:
		return false
	}
}

func (s *fakeSink) Drop(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropped = reason
}

func (s *fakeSink) events(t *testing.T) []models.Envelope {
	t.Helper()
	var out []models.Envelope
	for {
		select {
		case frame := <-s.buf:
			var env models.Envelope
			require.NoError(t, json.Unmarshal(frame, &env))
			out = append(out, env)
		default:
			return out
		}
	}
}

type fakeDirectory struct {
	sinks []*fakeSink
}

func (d *fakeDirectory) SessionsFor(userIDs []int) []Sink {
	var out []Sink
	for _, id := range userIDs {
		for _, s := range d.sinks {
			if s.userID == id {
				out = append(out, s)
			}
		}
	}
	return out
}

func (d *fakeDirectory) AllSessions() []Sink {
	out := make([]Sink, 0, len(d.sinks))
	for _, s := range d.sinks {
		out = append(out, s)
	}
	return out
}

func TestToUsersReachesEverySessionIncludingSender(t *testing.T) {
	a := newSink("a", 1, 4)
	a2 := newSink("a2", 1, 4)
	b := newSink("b", 2, 4)
	c := newSink("c", 3, 4)
	outsider := newSink("d", 4, 4)
	engine := New(&fakeDirectory{sinks: []*fakeSink{a, a2, b, c, outsider}}, nil)

	rep := engine.ToUsers([]int{1, 2, 3, 2}, models.EventReceiveMessage, map[string]string{"content": "hi"})
	assert.Equal(t, Report{Delivered: 4}, rep)

	for _, s := range []*fakeSink{a, a2, b, c} {
		events := s.events(t)
		require.Len(t, events, 1, s.id)
		assert.Equal(t, models.EventReceiveMessage, events[0].Event)
	}
	assert.Empty(t, outsider.events(t))
}

func TestDeliveryPreservesOrderPerSession(t *testing.T) {
	a := newSink("a", 1, 16)
	engine := New(&fakeDirectory{sinks: []*fakeSink{a}}, nil)

	for i := 0; i < 10; i++ {
		engine.ToUsers([]int{1}, models.EventReceiveMessage, i)
	}
	events := a.events(t)
	require.Len(t, events, 10)
	for i, env := range events {
		assert.Equal(t, fmt.Sprint(i), fmt.Sprint(env.Data))
	}
}

func TestSlowSessionIsDroppedWithoutBlockingOthers(t *testing.T) {
	slow := newSink("slow", 1, 1)
	fast := newSink("fast", 2, 8)
	engine := New(&fakeDirectory{sinks: []*fakeSink{slow, fast}}, nil)

	engine.ToUsers([]int{1, 2}, "e", 1)
	rep := engine.ToUsers([]int{1, 2}, "e", 2)

	assert.Equal(t, Report{Delivered: 1, Dropped: 1}, rep)
	assert.Equal(t, "send buffer overflow", slow.dropped)
	assert.Len(t, fast.events(t), 2)
}

func TestToAllAndEmptyTargets(t *testing.T) {
	a := newSink("a", 1, 2)
	b := newSink("b", 2, 2)
	engine := New(&fakeDirectory{sinks: []*fakeSink{a, b}}, nil)

	assert.Equal(t, Report{Delivered: 2}, engine.ToAll(models.EventOnlineUsers, []models.Identity{{ID: 1}}))
	assert.Equal(t, Report{}, engine.ToUsers(nil, "e", nil))
	assert.Equal(t, Report{Delivered: 1}, engine.ToSession(a, models.EventError, models.ErrorPayload{Message: "x"}))
	assert.Len(t, a.events(t), 2)
}
