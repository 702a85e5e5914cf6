package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"chat-realtime/internal/errs"
	"chat-realtime/internal/models"
	"chat-realtime/internal/telemetry"
)

// RoomHandler serves room catalogue, membership and administration endpoints.
type RoomHandler struct {
	svc   ChatService
	audit *telemetry.AuditEmitter
}

// NewRoomHandler builds a RoomHandler. audit may be nil.
func NewRoomHandler(svc ChatService, audit *telemetry.AuditEmitter) *RoomHandler {
	return &RoomHandler{svc: svc, audit: audit}
}

// ListRooms returns the rooms the caller belongs to.
func (h *RoomHandler) ListRooms(c *gin.Context) {
	rooms, err := h.svc.ListRooms(c.Request.Context(), actorFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

// ListPublicRooms returns every active group room, for discovery.
func (h *RoomHandler) ListPublicRooms(c *gin.Context) {
	rooms, err := h.svc.ListPublicRooms(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

// CreateRoom creates a group room owned by the caller.
func (h *RoomHandler) CreateRoom(c *gin.Context) {
	var req struct {
		Name        string `json:"name" binding:"required"`
		Description string `json:"description"`
		Avatar      string `json:"avatar"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	room, err := h.svc.CreateRoom(c.Request.Context(), actorFrom(c), req.Name, req.Description, req.Avatar)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, room)
}

// OpenDirect returns the direct room with another user, creating it on first use.
func (h *RoomHandler) OpenDirect(c *gin.Context) {
	var req struct {
		UserID int `json:"userId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	room, created, err := h.svc.OpenDirect(c.Request.Context(), actorFrom(c), req.UserID)
	if err != nil {
		writeError(c, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, room)
}

// GetRoom returns one room.
func (h *RoomHandler) GetRoom(c *gin.Context) {
	roomID, ok := intParam(c, "id")
	if !ok {
		return
	}
	room, err := h.svc.GetRoom(c.Request.Context(), actorFrom(c), roomID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, room)
}

// UpdateRoom patches room metadata. Admins only.
func (h *RoomHandler) UpdateRoom(c *gin.Context) {
	roomID, ok := intParam(c, "id")
	if !ok {
		return
	}
	var patch models.RoomPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, err.Error())
		return
	}

	room, err := h.svc.UpdateRoom(c.Request.Context(), actorFrom(c), roomID, patch)
	if err != nil {
		writeError(c, err)
		return
	}
	auditRoom(c, h.audit, telemetry.ActionRoomUpdated, roomID, 0)
	c.JSON(http.StatusOK, room)
}

// DeleteRoom deactivates a group room, or hides a direct room for the caller.
func (h *RoomHandler) DeleteRoom(c *gin.Context) {
	roomID, ok := intParam(c, "id")
	if !ok {
		return
	}
	if err := h.svc.DeleteRoom(c.Request.Context(), actorFrom(c), roomID); err != nil {
		writeError(c, err)
		return
	}
	auditRoom(c, h.audit, telemetry.ActionRoomDeleted, roomID, 0)
	c.Status(http.StatusNoContent)
}

// JoinRoom adds the caller to a group room. Joining twice is a conflict.
func (h *RoomHandler) JoinRoom(c *gin.Context) {
	roomID, ok := intParam(c, "id")
	if !ok {
		return
	}
	room, joined, err := h.svc.JoinRoom(c.Request.Context(), actorFrom(c), roomID)
	if err != nil {
		writeError(c, err)
		return
	}
	if !joined {
		writeError(c, errs.New(errs.AlreadyMember, "room.join", "already a member of this room"))
		return
	}
	c.JSON(http.StatusOK, room)
}

// LeaveRoom removes the caller from a group room.
func (h *RoomHandler) LeaveRoom(c *gin.Context) {
	roomID, ok := intParam(c, "id")
	if !ok {
		return
	}
	room, left, err := h.svc.LeaveRoom(c.Request.Context(), actorFrom(c), roomID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"room": room, "left": left})
}

// MarkViewed records that the caller has seen everything in a room so far.
func (h *RoomHandler) MarkViewed(c *gin.Context) {
	roomID, ok := intParam(c, "id")
	if !ok {
		return
	}
	if err := h.svc.MarkRoomViewed(c.Request.Context(), actorFrom(c), roomID); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Unread returns per-room unread counts of the caller.
func (h *RoomHandler) Unread(c *gin.Context) {
	counts, err := h.svc.Unread(c.Request.Context(), actorFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread": counts})
}

// AddAdmin promotes a member.
func (h *RoomHandler) AddAdmin(c *gin.Context) {
	roomID, ok := intParam(c, "id")
	if !ok {
		return
	}
	var req struct {
		UserID int `json:"userId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	room, err := h.svc.AddAdmin(c.Request.Context(), actorFrom(c), roomID, req.UserID)
	if err != nil {
		writeError(c, err)
		return
	}
	auditRoom(c, h.audit, telemetry.ActionAdminAdded, roomID, req.UserID)
	c.JSON(http.StatusOK, room)
}

// RemoveAdmin demotes an admin other than the creator.
func (h *RoomHandler) RemoveAdmin(c *gin.Context) {
	roomID, ok := intParam(c, "id")
	if !ok {
		return
	}
	userID, ok := intParam(c, "userId")
	if !ok {
		return
	}

	room, err := h.svc.RemoveAdmin(c.Request.Context(), actorFrom(c), roomID, userID)
	if err != nil {
		writeError(c, err)
		return
	}
	auditRoom(c, h.audit, telemetry.ActionAdminRemoved, roomID, userID)
	c.JSON(http.StatusOK, room)
}

// RemoveMember removes a member other than the creator.
func (h *RoomHandler) RemoveMember(c *gin.Context) {
	roomID, ok := intParam(c, "id")
	if !ok {
		return
	}
	userID, ok := intParam(c, "userId")
	if !ok {
		return
	}

	room, err := h.svc.RemoveMember(c.Request.Context(), actorFrom(c), roomID, userID)
	if err != nil {
		writeError(c, err)
		return
	}
	auditRoom(c, h.audit, telemetry.ActionMemberRemoved, roomID, userID)
	c.JSON(http.StatusOK, room)
}
