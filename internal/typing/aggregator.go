// Package typing keeps the short-lived set of identities typing in each room.
package typing

import (
	"sort"
	"sync"
	"time"

	"chat-realtime/internal/models"
	"chat-realtime/internal/observability"
)

// DefaultWindow is how long a typing_start holds without being repeated.
const DefaultWindow = 5 * time.Second

// EmitFunc receives the full roster of a room after every transition. It is called
// with the room held, so rosters for one room are emitted in transition order.
type EmitFunc func(roomID int, roster []models.Identity)

type entry struct {
	identity models.Identity
	timer    *time.Timer
}

type room struct {
	mu     sync.Mutex
	typing map[int]*entry
	// dead rooms have an empty roster and are about to be dropped from the map.
	dead bool
}

// Aggregator debounces typing signals into per-room rosters.
type Aggregator struct {
	window time.Duration
	emit   EmitFunc

	mu     sync.Mutex
	rooms  map[int]*room
	closed bool
}

// New builds an Aggregator. A non-positive window falls back to DefaultWindow.
func New(window time.Duration, emit EmitFunc) *Aggregator {
	if window <= 0 {
		window = DefaultWindow
	}
	if emit == nil {
		emit = func(int, []models.Identity) {}
	}
	return &Aggregator{window: window, emit: emit, rooms: make(map[int]*room)}
}

// Start marks identity as typing in roomID and re-arms its expiry. The roster is
// emitted even when the identity was already typing.
func (a *Aggregator) Start(roomID int, identity models.Identity) []models.Identity {
	var r *room
	for {
		r = a.room(roomID)
		if r == nil {
			return nil
		}
		r.mu.Lock()
		if !r.dead {
			break
		}
		r.mu.Unlock()
	}
	defer r.mu.Unlock()

	if e, ok := r.typing[identity.ID]; ok {
		e.timer.Stop()
	}
	e := &entry{identity: identity}
	e.timer = time.AfterFunc(a.window, func() { a.expire(roomID, r, e) })
	r.typing[identity.ID] = e

	return a.emitLocked(roomID, r)
}

// Stop removes userID from the room's roster. changed is false when the user was
// not typing; nothing is emitted then.
func (a *Aggregator) Stop(roomID, userID int) (roster []models.Identity, changed bool) {
	a.mu.Lock()
	r, ok := a.rooms[roomID]
	a.mu.Unlock()
	if !ok {
		return []models.Identity{}, false
	}

	r.mu.Lock()
	e, ok := r.typing[userID]
	if !ok {
		roster = rosterLocked(r)
		r.mu.Unlock()
		return roster, false
	}
	e.timer.Stop()
	delete(r.typing, userID)
	roster = a.emitLocked(roomID, r)
	empty := a.markDeadLocked(r)
	r.mu.Unlock()

	if empty {
		a.reap(roomID, r)
	}
	return roster, true
}

// ClearUser removes userID from every roster, typically once it goes offline.
func (a *Aggregator) ClearUser(userID int) {
	a.mu.Lock()
	rooms := make(map[int]*room, len(a.rooms))
	for id, r := range a.rooms {
		rooms[id] = r
	}
	a.mu.Unlock()

	for id := range rooms {
		a.Stop(id, userID)
	}
}

// Roster returns the identities currently typing in roomID, ordered by id.
func (a *Aggregator) Roster(roomID int) []models.Identity {
	a.mu.Lock()
	r, ok := a.rooms[roomID]
	a.mu.Unlock()
	if !ok {
		return []models.Identity{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return rosterLocked(r)
}

// Close stops every pending timer. Later calls are ignored.
func (a *Aggregator) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	for _, r := range a.rooms {
		r.mu.Lock()
		for id, e := range r.typing {
			e.timer.Stop()
			delete(r.typing, id)
		}
		r.mu.Unlock()
	}
}

func (a *Aggregator) room(roomID int) *room {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	r, ok := a.rooms[roomID]
	if ok {
		r.mu.Lock()
		dead := r.dead
		r.mu.Unlock()
		if !dead {
			return r
		}
	}
	r = &room{typing: make(map[int]*entry)}
	a.rooms[roomID] = r
	return r
}

func (a *Aggregator) expire(roomID int, r *room, e *entry) {
	r.mu.Lock()
	// A re-armed or stopped entry has been replaced.
	if r.typing[e.identity.ID] != e {
		r.mu.Unlock()
		return
	}
	delete(r.typing, e.identity.ID)
	a.emitLocked(roomID, r)
	empty := a.markDeadLocked(r)
	r.mu.Unlock()

	if empty {
		a.reap(roomID, r)
	}
}

func (a *Aggregator) markDeadLocked(r *room) bool {
	if len(r.typing) == 0 {
		r.dead = true
	}
	return r.dead
}

// reap drops r from the map unless it has already been replaced.
func (a *Aggregator) reap(roomID int, r *room) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.rooms[roomID] == r {
		delete(a.rooms, roomID)
	}
}

func (a *Aggregator) size() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.rooms)
}

func (a *Aggregator) emitLocked(roomID int, r *room) []models.Identity {
	roster := rosterLocked(r)
	observability.ObserveTypingRoster(len(roster))
	a.emit(roomID, roster)
	return roster
}

func rosterLocked(r *room) []models.Identity {
	out := make([]models.Identity, 0, len(r.typing))
	for _, e := range r.typing {
		out = append(out, e.identity)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
