package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"chat-realtime/internal/errs"
	"chat-realtime/internal/middleware"
	"chat-realtime/internal/models"
)

// ChatService is the slice of chat.Service the REST surface calls.
type ChatService interface {
	CreateRoom(ctx context.Context, actor models.Identity, name, description, avatar string) (models.Room, error)
	GetRoom(ctx context.Context, actor models.Identity, roomID int) (models.Room, error)
	ListRooms(ctx context.Context, actor models.Identity) ([]models.Room, error)
	ListPublicRooms(ctx context.Context) ([]models.Room, error)
	OpenDirect(ctx context.Context, actor models.Identity, peerID int) (models.Room, bool, error)
	UpdateRoom(ctx context.Context, actor models.Identity, roomID int, patch models.RoomPatch) (models.Room, error)
	AddAdmin(ctx context.Context, actor models.Identity, roomID, userID int) (models.Room, error)
	RemoveAdmin(ctx context.Context, actor models.Identity, roomID, userID int) (models.Room, error)
	RemoveMember(ctx context.Context, actor models.Identity, roomID, userID int) (models.Room, error)
	DeleteRoom(ctx context.Context, actor models.Identity, roomID int) error
	JoinRoom(ctx context.Context, actor models.Identity, roomID int) (models.Room, bool, error)
	LeaveRoom(ctx context.Context, actor models.Identity, roomID int) (models.Room, bool, error)
	MarkRoomViewed(ctx context.Context, actor models.Identity, roomID int) error
	Unread(ctx context.Context, actor models.Identity) ([]models.UnreadCount, error)

	RoomHistory(ctx context.Context, actor models.Identity, roomID, limit, offset int) ([]models.Message, error)
	DirectHistory(ctx context.Context, actor models.Identity, peerID, limit, offset int) ([]models.Message, error)
	SendMessage(ctx context.Context, actor models.Identity, in models.NewMessage) (models.Message, error)
	ToggleReaction(ctx context.Context, actor models.Identity, messageID int, emoji string) (models.Message, error)
	MarkRead(ctx context.Context, actor models.Identity, messageID int) (models.Message, error)
	Search(ctx context.Context, actor models.Identity, query string, roomID int) ([]models.Message, error)
	Online() []models.Identity
}

func statusFor(kind errs.Kind) int {
	switch kind {
	case errs.Unauthenticated:
		return http.StatusUnauthorized
	case errs.NotFound:
		return http.StatusNotFound
	case errs.Forbidden:
		return http.StatusForbidden
	case errs.AlreadyExists, errs.AlreadyMember:
		return http.StatusConflict
	case errs.InvalidState:
		return http.StatusUnprocessableEntity
	case errs.Invalid:
		return http.StatusBadRequest
	case errs.Unavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	kind := errs.KindOf(err)
	if kind == errs.Internal {
		_ = c.Error(err)
	}
	c.JSON(statusFor(kind), gin.H{"error": errs.Message(err), "code": kind})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg, "code": errs.Invalid})
}

// actorFrom returns the identity stored by the auth middleware.
func actorFrom(c *gin.Context) models.Identity {
	if val, ok := c.Get(middleware.IdentityKey); ok {
		if identity, ok := val.(models.Identity); ok {
			return identity
		}
	}
	return models.Identity{ID: c.GetInt(middleware.UserIDKey)}
}

func intParam(c *gin.Context, name string) (int, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return id, true
}

func intQuery(c *gin.Context, name string) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return n, true
}
