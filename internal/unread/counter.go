// Package unread derives per-room unread counters from an ordered event stream.
// A Counter is owned by one consumer and is not safe for concurrent use.
//
// Activation is a point in the stream, not a moment on a clock: a message is
// counted iff it is applied while its room is not the active one. Server message
// ids identify redelivered frames, so a message is counted at most once.
package unread

import (
	"sort"

	"chat-realtime/internal/models"
)

// EventKind is the type of an input to the reducer.
type EventKind int

const (
	Activated EventKind = iota + 1
	Deactivated
	Received
	Left
	PrivateRead
)

// Event is one reducer input. RoomID is used by Activated and Left; Message by Received.
type Event struct {
	Kind    EventKind
	RoomID  int
	Message models.Message
}

type roomState struct {
	count int
	// seen is the highest message id the user has had in view. Ids at or
	// below it are never counted again.
	seen int
	// newest is the highest message id applied for the room.
	newest  int
	counted map[int]struct{}
}

// Counter tracks unread messages for one user.
type Counter struct {
	self    int
	active  int
	rooms   map[int]*roomState
	private int
	dms     map[int]struct{}
}

// NewCounter returns an empty counter for selfID.
func NewCounter(selfID int) *Counter {
	return &Counter{
		self:  selfID,
		rooms: make(map[int]*roomState),
		dms:   make(map[int]struct{}),
	}
}

// Replay folds events into a fresh counter.
func Replay(selfID int, events []Event) *Counter {
	c := NewCounter(selfID)
	for _, ev := range events {
		c.Apply(ev)
	}
	return c
}

// Apply reduces one event.
func (c *Counter) Apply(ev Event) {
	switch ev.Kind {
	case Activated:
		c.Activate(ev.RoomID)
	case Deactivated:
		c.Deactivate()
	case Received:
		c.Receive(ev.Message)
	case Left:
		c.Leave(ev.RoomID)
	case PrivateRead:
		c.ClearPrivate()
	}
}

// Activate focuses roomID and resets its counter. Everything already applied for
// the room counts as seen, including frames that are redelivered later.
func (c *Counter) Activate(roomID int) {
	if c.active != 0 && c.active != roomID {
		c.room(c.active).markSeen()
	}
	c.active = roomID
	r := c.room(roomID)
	r.count = 0
	r.markSeen()
}

// Deactivate clears the focused room.
func (c *Counter) Deactivate() {
	if c.active != 0 {
		c.room(c.active).markSeen()
	}
	c.active = 0
}

// Receive accounts for a message and reports whether it was counted.
func (c *Counter) Receive(msg models.Message) bool {
	if !msg.InRoom() {
		return c.receivePrivate(msg)
	}
	r := c.room(*msg.RoomID)
	if msg.ID > r.newest {
		r.newest = msg.ID
	}
	if msg.SenderID == c.self {
		return false
	}
	if *msg.RoomID == c.active {
		r.markSeen()
		return false
	}
	if msg.ID != 0 {
		if msg.ID <= r.seen {
			return false
		}
		if _, dup := r.counted[msg.ID]; dup {
			return false
		}
		r.counted[msg.ID] = struct{}{}
	}
	r.count++
	return true
}

func (c *Counter) receivePrivate(msg models.Message) bool {
	if msg.RecipientID == nil || msg.SenderID == c.self {
		return false
	}
	if msg.ID != 0 {
		if _, dup := c.dms[msg.ID]; dup {
			return false
		}
		c.dms[msg.ID] = struct{}{}
	}
	c.private++
	return true
}

// ClearPrivate resets the unread count of recipient-addressed messages.
func (c *Counter) ClearPrivate() {
	c.private = 0
}

// Leave forgets roomID entirely.
func (c *Counter) Leave(roomID int) {
	delete(c.rooms, roomID)
	if c.active == roomID {
		c.active = 0
	}
}

// Seed replaces counters with a server snapshot. The active room stays at zero.
func (c *Counter) Seed(counts []models.UnreadCount) {
	for _, r := range c.rooms {
		r.count = 0
	}
	for _, uc := range counts {
		if uc.RoomID != c.active {
			c.room(uc.RoomID).count = uc.Count
		}
	}
}

// Active returns the focused room, or 0.
func (c *Counter) Active() int {
	return c.active
}

// Get returns the unread count of roomID.
func (c *Counter) Get(roomID int) int {
	if r, ok := c.rooms[roomID]; ok {
		return r.count
	}
	return 0
}

// Private returns the unread count of recipient-addressed messages.
func (c *Counter) Private() int {
	return c.private
}

// Total sums every room counter and the private count.
func (c *Counter) Total() int {
	n := c.private
	for _, r := range c.rooms {
		n += r.count
	}
	return n
}

// Snapshot lists non-zero room counters ordered by room.
func (c *Counter) Snapshot() []models.UnreadCount {
	out := make([]models.UnreadCount, 0, len(c.rooms))
	for roomID, r := range c.rooms {
		if r.count > 0 {
			out = append(out, models.UnreadCount{RoomID: roomID, Count: r.count})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RoomID < out[j].RoomID })
	return out
}

func (c *Counter) room(roomID int) *roomState {
	r, ok := c.rooms[roomID]
	if !ok {
		r = &roomState{counted: make(map[int]struct{})}
		c.rooms[roomID] = r
	}
	return r
}

func (r *roomState) markSeen() {
	if r.newest > r.seen {
		r.seen = r.newest
	}
	// Everything counted so far is at or below seen now.
	r.counted = make(map[int]struct{})
}
