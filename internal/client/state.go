package client

import (
	"encoding/json"
	"sync"

	"chat-realtime/internal/models"
	"chat-realtime/internal/unread"
)

// Event is one server frame.
type Event struct {
	Name string          `json:"event"`
	Data json.RawMessage `json:"data"`
}

// State is the client-side view derived from the event stream.
type State struct {
	mu       sync.Mutex
	self     int
	unread   *unread.Counter
	typing   map[int][]models.Identity
	online   []models.Identity
	byID     map[int]models.Message
	rooms    map[int][]int
	private  []int
	errors   []models.ErrorPayload
}

// NewState returns an empty view for selfID.
func NewState(selfID int) *State {
	return &State{
		self:   selfID,
		unread: unread.NewCounter(selfID),
		typing: make(map[int][]models.Identity),
		byID:   make(map[int]models.Message),
		rooms:  make(map[int][]int),
	}
}

// Activate focuses roomID and resets its unread counter.
func (s *State) Activate(roomID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unread.Activate(roomID)
}

// MarkPrivateRead resets the unread count of private messages.
func (s *State) MarkPrivateRead() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unread.ClearPrivate()
}

// Leave forgets everything kept for roomID.
func (s *State) Leave(roomID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leaveLocked(roomID)
}

// SeedUnread replaces counters with a server snapshot.
func (s *State) SeedUnread(counts []models.UnreadCount) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unread.Seed(counts)
}

// Apply folds one server event into the view. Unknown events are ignored.
func (s *State) Apply(ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch ev.Name {
	case models.EventReceiveMessage, models.EventPrivateMessage:
		var msg models.Message
		if err := json.Unmarshal(ev.Data, &msg); err != nil {
			return err
		}
		s.storeLocked(msg)
		s.unread.Receive(msg)
	case models.EventMessageReaction:
		var msg models.Message
		if err := json.Unmarshal(ev.Data, &msg); err != nil {
			return err
		}
		if cur, ok := s.byID[msg.ID]; ok {
			cur.Reactions = msg.Reactions
			s.byID[msg.ID] = cur
		}
	case models.EventOnlineUsers:
		var roster []models.Identity
		if err := json.Unmarshal(ev.Data, &roster); err != nil {
			return err
		}
		s.online = roster
	case models.EventUserTyping:
		var p models.TypingPayload
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return err
		}
		s.typing[p.RoomID] = p.Users
	case models.EventUserLeftRoom:
		var p models.RoomPresencePayload
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return err
		}
		if p.UserID == s.self {
			s.leaveLocked(p.RoomID)
		}
	case models.EventError:
		var p models.ErrorPayload
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return err
		}
		s.errors = append(s.errors, p)
	}
	return nil
}

// Unread returns the unread count of roomID.
func (s *State) Unread(roomID int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread.Get(roomID)
}

// UnreadPrivate returns the number of unread private messages.
func (s *State) UnreadPrivate() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread.Private()
}

// UnreadTotal sums room and private unread counts.
func (s *State) UnreadTotal() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread.Total()
}

// UnreadSnapshot lists non-zero counters.
func (s *State) UnreadSnapshot() []models.UnreadCount {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread.Snapshot()
}

// Typing returns the last roster received for roomID.
func (s *State) Typing(roomID int) []models.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Identity(nil), s.typing[roomID]...)
}

// Online returns the last online roster received.
func (s *State) Online() []models.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Identity(nil), s.online...)
}

// Messages returns the messages seen in roomID in arrival order.
func (s *State) Messages(roomID int) []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collectLocked(s.rooms[roomID])
}

// Private returns recipient-addressed messages in arrival order.
func (s *State) Private() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collectLocked(s.private)
}

// Errors returns the error events received so far.
func (s *State) Errors() []models.ErrorPayload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.ErrorPayload(nil), s.errors...)
}

func (s *State) storeLocked(msg models.Message) {
	if _, dup := s.byID[msg.ID]; dup {
		s.byID[msg.ID] = msg
		return
	}
	s.byID[msg.ID] = msg
	if msg.RoomID != nil {
		s.rooms[*msg.RoomID] = append(s.rooms[*msg.RoomID], msg.ID)
	} else {
		s.private = append(s.private, msg.ID)
	}
}

func (s *State) leaveLocked(roomID int) {
	s.unread.Leave(roomID)
	delete(s.typing, roomID)
	for _, id := range s.rooms[roomID] {
		delete(s.byID, id)
	}
	delete(s.rooms, roomID)
}

func (s *State) collectLocked(ids []int) []models.Message {
	out := make([]models.Message, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.byID[id])
	}
	return out
}
