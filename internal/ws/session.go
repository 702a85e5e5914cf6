package ws

import (
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"chat-realtime/internal/fanout"
	"chat-realtime/internal/models"
)

// Options tune live sessions.
type Options struct {
	SendBuffer   int
	RateLimit    float64
	IdleTimeout  time.Duration
	WriteTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.SendBuffer <= 0 {
		o.SendBuffer = 256
	}
	if o.RateLimit <= 0 {
		o.RateLimit = 20
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = 60 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	return o
}

func (o Options) pingPeriod() time.Duration {
	return o.IdleTimeout * 9 / 10
}

const maxFrameBytes = 64 << 10

// ConnInfo is where a session came from, for logs and lifecycle events.
type ConnInfo struct {
	ConnID      string
	UserID      int
	Username    string
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

// Session is one live connection bound to an identity. Outbound frames go through
// a bounded queue drained by a single writer goroutine.
type Session struct {
	conn     *websocket.Conn
	identity models.Identity
	info     ConnInfo
	opts     Options
	logger   *zap.Logger
	limiter  *rate.Limiter

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	mu     sync.Mutex
	closed bool
	reason string
	rooms  map[int]struct{}
	active int
}

var _ fanout.Sink = (*Session)(nil)

func newSession(conn *websocket.Conn, identity models.Identity, info ConnInfo, opts Options, logger *zap.Logger) *Session {
	opts = opts.withDefaults()
	burst := int(opts.RateLimit) * 2
	if burst < 1 {
		burst = 1
	}
	return &Session{
		conn:     conn,
		identity: identity,
		info:     info,
		opts:     opts,
		logger:   logger.With(zap.String("session_id", info.ConnID), zap.Int("user_id", identity.ID)),
		limiter:  rate.NewLimiter(rate.Limit(opts.RateLimit), burst),
		send:     make(chan []byte, opts.SendBuffer),
		done:     make(chan struct{}),
		rooms:    make(map[int]struct{}),
	}
}

func (s *Session) ID() string                { return s.info.ConnID }
func (s *Session) UserID() int               { return s.identity.ID }
func (s *Session) Identity() models.Identity { return s.identity }

// Enqueue queues a frame without blocking.
func (s *Session) Enqueue(frame []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.send <- frame:
		return true
	default:
		return false
	}
}

// Drop closes the session. Pending frames are discarded. Safe to call repeatedly.
func (s *Session) Drop(reason string) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.reason = reason
		s.mu.Unlock()
		close(s.done)
	})
}

// Done is closed once the session is dropped.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) closeReason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// ActiveRoom is the room most recently activated by join_room, or 0.
func (s *Session) ActiveRoom() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Rooms lists the rooms this session subscribed to.
func (s *Session) Rooms() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int, 0, len(s.rooms))
	for id := range s.rooms {
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}

func (s *Session) subscribe(roomID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[roomID] = struct{}{}
	s.active = roomID
}

func (s *Session) unsubscribe(roomID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, roomID)
	if s.active == roomID {
		s.active = 0
	}
}

// writePump is the only goroutine that writes data frames to the connection.
func (s *Session) writePump() {
	ticker := time.NewTicker(s.opts.pingPeriod())
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case frame := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				s.Drop("write failed")
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.Drop("ping failed")
				return
			}
		case <-s.done:
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, truncate(s.closeReason(), 120))
			_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
			return
		}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
