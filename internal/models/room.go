package models

import (
	"slices"
	"time"
)

// RoomKind distinguishes open group rooms from two-party direct rooms.
type RoomKind string

const (
	RoomGroup  RoomKind = "group"
	RoomDirect RoomKind = "direct"
)

// Room is a persistent chat room.
type Room struct {
	ID            int       `db:"id" json:"id"`
	Name          string    `db:"name" json:"name"`
	Description   string    `db:"description" json:"description,omitempty"`
	Avatar        string    `db:"avatar" json:"avatar,omitempty"`
	Kind          RoomKind  `db:"kind" json:"roomType"`
	CreatorID     int       `db:"creator_id" json:"creatorId"`
	Members       []int     `db:"-" json:"members"`
	Admins        []int     `db:"-" json:"admins"`
	HiddenFor     []int     `db:"-" json:"-"`
	Active        bool      `db:"is_active" json:"isActive"`
	LastMessageID *int      `db:"last_message_id" json:"lastMessageId,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time `db:"updated_at" json:"updatedAt"`
}

// IsDirect reports whether r is a two-party room.
func (r Room) IsDirect() bool {
	return r.Kind == RoomDirect
}

// IsMember reports whether userID belongs to r.
func (r Room) IsMember(userID int) bool {
	return slices.Contains(r.Members, userID)
}

// IsAdmin reports whether userID may administer r. The creator of a group room
// is always an admin.
func (r Room) IsAdmin(userID int) bool {
	if r.Kind == RoomGroup && r.CreatorID == userID {
		return true
	}
	return slices.Contains(r.Admins, userID)
}

// IsHiddenFor reports whether userID soft-deleted this direct room.
func (r Room) IsHiddenFor(userID int) bool {
	return slices.Contains(r.HiddenFor, userID)
}

// Peer returns the other member of a direct room.
func (r Room) Peer(userID int) (int, bool) {
	if !r.IsDirect() || len(r.Members) != 2 {
		return 0, false
	}
	if r.Members[0] == userID {
		return r.Members[1], true
	}
	if r.Members[1] == userID {
		return r.Members[0], true
	}
	return 0, false
}

// Clone returns a copy of r that shares no slices with it.
func (r Room) Clone() Room {
	out := r
	out.Members = slices.Clone(r.Members)
	out.Admins = slices.Clone(r.Admins)
	out.HiddenFor = slices.Clone(r.HiddenFor)
	if r.LastMessageID != nil {
		id := *r.LastMessageID
		out.LastMessageID = &id
	}
	return out
}

// RoomPatch carries optional metadata changes. Empty fields keep the current value.
type RoomPatch struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Avatar      string `json:"avatar"`
}

// UnreadCount is the number of unseen messages in a room for one member.
type UnreadCount struct {
	RoomID int `db:"room_id" json:"roomId"`
	Count  int `db:"unread" json:"count"`
}
