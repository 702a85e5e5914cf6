package repositories

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"chat-realtime/internal/models"
)

type memoryMember struct {
	lastViewed time.Time
}

// MemoryStore keeps rooms, messages and users in process memory. It implements
// every repository interface and backs STORE_DRIVER=memory and the tests.
type MemoryStore struct {
	mu sync.Mutex

	now func() time.Time

	nextRoomID    int
	nextMessageID int

	rooms     map[int]models.Room
	direct    map[string]int
	views     map[int]map[int]*memoryMember
	messages  map[int]models.Message
	reactions map[int][]models.Reaction
	reads     map[int][]models.ReadMark
	users     map[int]models.Identity
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:       time.Now,
		rooms:     make(map[int]models.Room),
		direct:    make(map[string]int),
		views:     make(map[int]map[int]*memoryMember),
		messages:  make(map[int]models.Message),
		reactions: make(map[int][]models.Reaction),
		reads:     make(map[int][]models.ReadMark),
		users:     make(map[int]models.Identity),
	}
}

// Store exposes m through the Store bundle.
func (m *MemoryStore) Store() Store {
	return Store{Rooms: m, Messages: m, Users: m}
}

// CreateRoom stores a new room.
func (m *MemoryStore) CreateRoom(_ context.Context, room models.Room) (models.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createRoomLocked(room), nil
}

func (m *MemoryStore) createRoomLocked(room models.Room) models.Room {
	m.nextRoomID++
	now := m.now()
	room = room.Clone()
	room.ID = m.nextRoomID
	room.Active = true
	room.CreatedAt = now
	room.UpdatedAt = now
	if room.Kind == models.RoomGroup && !slices.Contains(room.Admins, room.CreatorID) && room.IsMember(room.CreatorID) {
		room.Admins = append(room.Admins, room.CreatorID)
	}
	m.rooms[room.ID] = room
	m.views[room.ID] = make(map[int]*memoryMember)
	for _, id := range room.Members {
		m.views[room.ID][id] = &memoryMember{}
	}
	return room.Clone()
}

// FindRoom returns a copy of the room.
func (m *MemoryStore) FindRoom(_ context.Context, roomID int) (models.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[roomID]
	if !ok {
		return models.Room{}, ErrRoomNotFound
	}
	return room.Clone(), nil
}

// SaveRoom replaces the stored room.
func (m *MemoryStore) SaveRoom(_ context.Context, room models.Room) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[room.ID]; !ok {
		return ErrRoomNotFound
	}
	room = room.Clone()
	room.UpdatedAt = m.now()
	m.rooms[room.ID] = room

	views := m.views[room.ID]
	for id := range views {
		if !room.IsMember(id) {
			delete(views, id)
		}
	}
	for _, id := range room.Members {
		if _, ok := views[id]; !ok {
			views[id] = &memoryMember{}
		}
	}
	return nil
}

// FindOrCreateDirectRoom returns the pair's direct room, creating it once.
func (m *MemoryStore) FindOrCreateDirectRoom(_ context.Context, userA, userB int) (models.Room, bool, error) {
	if userA == userB {
		return models.Room{}, false, ErrSelfDirectRoom
	}
	pair := []int{userA, userB}
	sort.Ints(pair)
	key := directKey(pair[0], pair[1])

	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.direct[key]; ok {
		return m.rooms[id].Clone(), false, nil
	}
	room := m.createRoomLocked(models.Room{
		Kind:      models.RoomDirect,
		CreatorID: userA,
		Members:   pair,
		Admins:    slices.Clone(pair),
	})
	m.direct[key] = room.ID
	return room, true, nil
}

// ListRoomsForUser returns active, visible rooms the user belongs to, most recently updated first.
func (m *MemoryStore) ListRoomsForUser(_ context.Context, userID int) ([]models.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Room{}
	for _, room := range m.rooms {
		if room.Active && room.IsMember(userID) && !room.IsHiddenFor(userID) {
			out = append(out, room.Clone())
		}
	}
	sortRooms(out)
	return out, nil
}

// ListPublicRooms returns active group rooms.
func (m *MemoryStore) ListPublicRooms(_ context.Context) ([]models.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Room{}
	for _, room := range m.rooms {
		if room.Active && room.Kind == models.RoomGroup {
			out = append(out, room.Clone())
		}
	}
	sortRooms(out)
	return out, nil
}

// MarkRoomViewed advances the member's watermark.
func (m *MemoryStore) MarkRoomViewed(_ context.Context, roomID, userID int, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if member, ok := m.views[roomID][userID]; ok && at.After(member.lastViewed) {
		member.lastViewed = at
	}
	return nil
}

// CreateMessage stores a message and advances the room pointer.
func (m *MemoryStore) CreateMessage(_ context.Context, in models.NewMessage) (models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextMessageID++
	msg := models.Message{
		ID:          m.nextMessageID,
		RoomID:      in.RoomID,
		RecipientID: in.RecipientID,
		SenderID:    in.SenderID,
		Content:     in.Content,
		Type:        in.Type,
		FileURL:     in.FileURL,
		FileName:    in.FileName,
		FileSize:    in.FileSize,
		CreatedAt:   m.now(),
	}
	m.messages[msg.ID] = msg
	if in.RoomID != nil {
		if room, ok := m.rooms[*in.RoomID]; ok {
			id := msg.ID
			room.LastMessageID = &id
			room.UpdatedAt = msg.CreatedAt
			m.rooms[room.ID] = room
		}
	}
	return m.withDetailsLocked(msg), nil
}

// GetMessage returns a message with reactions and read marks.
func (m *MemoryStore) GetMessage(_ context.Context, messageID int) (models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[messageID]
	if !ok {
		return models.Message{}, ErrMessageNotFound
	}
	return m.withDetailsLocked(msg), nil
}

// ListRoomMessages pages newest-first and returns the page oldest-first.
func (m *MemoryStore) ListRoomMessages(_ context.Context, roomID, limit, offset int) ([]models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pageLocked(func(msg models.Message) bool {
		return msg.RoomID != nil && *msg.RoomID == roomID
	}, limit, offset), nil
}

// ListDirectMessages pages the recipient-addressed messages of a pair.
func (m *MemoryStore) ListDirectMessages(_ context.Context, userA, userB, limit, offset int) ([]models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pageLocked(func(msg models.Message) bool {
		if msg.RecipientID == nil {
			return false
		}
		r := *msg.RecipientID
		return (msg.SenderID == userA && r == userB) || (msg.SenderID == userB && r == userA)
	}, limit, offset), nil
}

// AppendReaction adds the tuple unless it is already present.
func (m *MemoryStore) AppendReaction(_ context.Context, messageID, userID int, emoji string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.messages[messageID]; !ok {
		return ErrMessageNotFound
	}
	for _, r := range m.reactions[messageID] {
		if r.UserID == userID && r.Emoji == emoji {
			return nil
		}
	}
	m.reactions[messageID] = append(m.reactions[messageID], models.Reaction{
		MessageID: messageID,
		UserID:    userID,
		Emoji:     emoji,
		CreatedAt: m.now(),
	})
	return nil
}

// RemoveReaction deletes the tuple if present.
func (m *MemoryStore) RemoveReaction(_ context.Context, messageID, userID int, emoji string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reactions[messageID] = slices.DeleteFunc(m.reactions[messageID], func(r models.Reaction) bool {
		return r.UserID == userID && r.Emoji == emoji
	})
	return nil
}

// ListReactions returns the current reaction set of a message.
func (m *MemoryStore) ListReactions(_ context.Context, messageID int) ([]models.Reaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.messages[messageID]; !ok {
		return nil, ErrMessageNotFound
	}
	return append([]models.Reaction{}, m.reactions[messageID]...), nil
}

// MarkRead appends a read mark once.
func (m *MemoryStore) MarkRead(_ context.Context, messageID, userID int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.messages[messageID]; !ok {
		return false, ErrMessageNotFound
	}
	for _, r := range m.reads[messageID] {
		if r.UserID == userID {
			return false, nil
		}
	}
	m.reads[messageID] = append(m.reads[messageID], models.ReadMark{MessageID: messageID, UserID: userID, ReadAt: m.now()})
	return true, nil
}

// SearchMessages matches content case-insensitively within roomIDs, newest first.
func (m *MemoryStore) SearchMessages(_ context.Context, query string, roomIDs []int, limit int) ([]models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	needle := strings.ToLower(query)
	out := []models.Message{}
	for _, msg := range m.sortedLocked() {
		if msg.RoomID == nil || !slices.Contains(roomIDs, *msg.RoomID) {
			continue
		}
		if strings.Contains(strings.ToLower(msg.Content), needle) {
			out = append(out, m.withDetailsLocked(msg))
		}
	}
	slices.Reverse(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// CountUnread counts messages newer than each member watermark, excluding own messages.
func (m *MemoryStore) CountUnread(_ context.Context, userID int) ([]models.UnreadCount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := map[int]int{}
	for _, msg := range m.messages {
		if msg.RoomID == nil || msg.SenderID == userID {
			continue
		}
		room, ok := m.rooms[*msg.RoomID]
		if !ok || !room.Active || room.IsHiddenFor(userID) {
			continue
		}
		member, ok := m.views[room.ID][userID]
		if !ok {
			continue
		}
		if msg.CreatedAt.After(member.lastViewed) {
			counts[room.ID]++
		}
	}
	out := make([]models.UnreadCount, 0, len(counts))
	for roomID, n := range counts {
		out = append(out, models.UnreadCount{RoomID: roomID, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RoomID < out[j].RoomID })
	return out, nil
}

// UpsertUser records display data.
func (m *MemoryStore) UpsertUser(_ context.Context, user models.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.ID] = user
	return nil
}

// FindUsers returns known identities ordered by id.
func (m *MemoryStore) FindUsers(_ context.Context, ids []int) ([]models.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Identity{}
	for _, id := range ids {
		if u, ok := m.users[id]; ok {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return slices.CompactFunc(out, func(a, b models.Identity) bool { return a.ID == b.ID }), nil
}

func (m *MemoryStore) pageLocked(match func(models.Message) bool, limit, offset int) []models.Message {
	var matched []models.Message
	for _, msg := range m.sortedLocked() {
		if match(msg) {
			matched = append(matched, msg)
		}
	}
	slices.Reverse(matched)
	out := []models.Message{}
	for i := offset; i < len(matched) && len(out) < limit; i++ {
		out = append(out, m.withDetailsLocked(matched[i]))
	}
	slices.Reverse(out)
	return out
}

func (m *MemoryStore) sortedLocked() []models.Message {
	out := make([]models.Message, 0, len(m.messages))
	for _, msg := range m.messages {
		out = append(out, msg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *MemoryStore) withDetailsLocked(msg models.Message) models.Message {
	msg.Reactions = append([]models.Reaction{}, m.reactions[msg.ID]...)
	msg.ReadBy = append([]models.ReadMark{}, m.reads[msg.ID]...)
	return msg
}

func sortRooms(rooms []models.Room) {
	sort.Slice(rooms, func(i, j int) bool {
		if rooms[i].UpdatedAt.Equal(rooms[j].UpdatedAt) {
			return rooms[i].ID > rooms[j].ID
		}
		return rooms[i].UpdatedAt.After(rooms[j].UpdatedAt)
	})
}
