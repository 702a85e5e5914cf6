package repositories

import (
	"context"
	"errors"
	"time"

	"chat-realtime/internal/models"
)

var (
	ErrRoomNotFound    = errors.New("room not found")
	ErrMessageNotFound = errors.New("message not found")
	ErrUserNotFound    = errors.New("user not found")
	ErrSelfDirectRoom  = errors.New("cannot create direct room with self")
)

// RoomRepository abstracts room persistence.
type RoomRepository interface {
	CreateRoom(ctx context.Context, room models.Room) (models.Room, error)
	FindRoom(ctx context.Context, roomID int) (models.Room, error)
	SaveRoom(ctx context.Context, room models.Room) error
	// FindOrCreateDirectRoom returns the direct room of the unordered pair, creating
	// it on first use. created reports whether this call created it.
	FindOrCreateDirectRoom(ctx context.Context, userA, userB int) (room models.Room, created bool, err error)
	ListRoomsForUser(ctx context.Context, userID int) ([]models.Room, error)
	ListPublicRooms(ctx context.Context) ([]models.Room, error)
	MarkRoomViewed(ctx context.Context, roomID, userID int, at time.Time) error
}

// MessageRepository abstracts message persistence.
type MessageRepository interface {
	CreateMessage(ctx context.Context, in models.NewMessage) (models.Message, error)
	GetMessage(ctx context.Context, messageID int) (models.Message, error)
	// ListRoomMessages pages newest-first and returns the page oldest-first.
	ListRoomMessages(ctx context.Context, roomID, limit, offset int) ([]models.Message, error)
	ListDirectMessages(ctx context.Context, userA, userB, limit, offset int) ([]models.Message, error)
	AppendReaction(ctx context.Context, messageID, userID int, emoji string) error
	RemoveReaction(ctx context.Context, messageID, userID int, emoji string) error
	ListReactions(ctx context.Context, messageID int) ([]models.Reaction, error)
	MarkRead(ctx context.Context, messageID, userID int) (bool, error)
	SearchMessages(ctx context.Context, query string, roomIDs []int, limit int) ([]models.Message, error)
	CountUnread(ctx context.Context, userID int) ([]models.UnreadCount, error)
}

// UserRepository stores the display data of identities seen by the service.
type UserRepository interface {
	UpsertUser(ctx context.Context, user models.Identity) error
	FindUsers(ctx context.Context, ids []int) ([]models.Identity, error)
}

// Store bundles the repositories the chat core depends on.
type Store struct {
	Rooms    RoomRepository
	Messages MessageRepository
	Users    UserRepository
}
