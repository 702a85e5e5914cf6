// Package presence tracks which identities hold at least one live session.
package presence

import (
	"sort"
	"sync"

	"chat-realtime/internal/models"
	"chat-realtime/internal/observability"
)

// Notifier receives the full online roster after every change.
type Notifier interface {
	BroadcastRoster(roster []models.Identity)
}

type entry struct {
	identity models.Identity
	sessions map[string]struct{}
}

// Registry is the process-wide online roster. It is built at startup and
// starts empty; nothing survives a restart.
type Registry struct {
	mu       sync.Mutex
	users    map[int]*entry
	sessions map[string]int
	notifier Notifier
}

// New builds an empty registry. notifier may be nil.
func New(notifier Notifier) *Registry {
	return &Registry{
		users:    make(map[int]*entry),
		sessions: make(map[string]int),
		notifier: notifier,
	}
}

// SetNotifier installs the roster notifier. It must be called before sessions register.
func (r *Registry) SetNotifier(n Notifier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifier = n
}

// Register binds sessionID to identity. It reports whether the identity just came online.
func (r *Registry) Register(identity models.Identity, sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, dup := r.sessions[sessionID]; dup {
		return false
	}
	e, ok := r.users[identity.ID]
	if !ok {
		e = &entry{sessions: make(map[string]struct{})}
		r.users[identity.ID] = e
	}
	e.identity = identity
	e.sessions[sessionID] = struct{}{}
	r.sessions[sessionID] = identity.ID

	r.notifyLocked()
	return !ok
}

// Deregister drops a session. It reports the identity the session was bound to and
// whether that identity went offline. Unknown sessions are ignored.
func (r *Registry) Deregister(sessionID string) (models.Identity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.sessions[sessionID]
	if !ok {
		return models.Identity{}, false
	}
	delete(r.sessions, sessionID)
	e := r.users[userID]
	delete(e.sessions, sessionID)
	offline := len(e.sessions) == 0
	if offline {
		delete(r.users, userID)
	}

	r.notifyLocked()
	return e.identity, offline
}

// List returns the online identities ordered by id.
func (r *Registry) List() []models.Identity {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rosterLocked()
}

// IsOnline reports whether userID has a live session.
func (r *Registry) IsOnline(userID int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.users[userID]
	return ok
}

// SessionCount reports how many live sessions userID holds.
func (r *Registry) SessionCount(userID int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.users[userID]; ok {
		return len(e.sessions)
	}
	return 0
}

func (r *Registry) rosterLocked() []models.Identity {
	roster := make([]models.Identity, 0, len(r.users))
	for _, e := range r.users {
		roster = append(roster, e.identity)
	}
	sort.Slice(roster, func(i, j int) bool { return roster[i].ID < roster[j].ID })
	return roster
}

// notifyLocked runs under r.mu so rosters reach sessions in change order.
func (r *Registry) notifyLocked() {
	observability.SetOnlineUsers(len(r.users))
	if r.notifier != nil {
		r.notifier.BroadcastRoster(r.rosterLocked())
	}
}
