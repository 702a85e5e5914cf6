package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"chat-realtime/internal/models"
)

// MessageHandler serves history, posting, reactions, read marks and search.
type MessageHandler struct {
	svc ChatService
}

// NewMessageHandler builds a MessageHandler.
func NewMessageHandler(svc ChatService) *MessageHandler {
	return &MessageHandler{svc: svc}
}

// RoomMessages returns a page of a room's history, oldest first.
func (h *MessageHandler) RoomMessages(c *gin.Context) {
	roomID, ok := intParam(c, "id")
	if !ok {
		return
	}
	limit, ok := intQuery(c, "limit")
	if !ok {
		return
	}
	skip, ok := intQuery(c, "skip")
	if !ok {
		return
	}

	msgs, err := h.svc.RoomHistory(c.Request.Context(), actorFrom(c), roomID, limit, skip)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// DirectMessages returns a page of recipient-addressed messages with one user.
func (h *MessageHandler) DirectMessages(c *gin.Context) {
	peerID, ok := intParam(c, "userId")
	if !ok {
		return
	}
	limit, ok := intQuery(c, "limit")
	if !ok {
		return
	}
	skip, ok := intQuery(c, "skip")
	if !ok {
		return
	}

	msgs, err := h.svc.DirectHistory(c.Request.Context(), actorFrom(c), peerID, limit, skip)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// PostMessage creates a message. It is delivered live exactly as if it had been
// sent over the socket.
func (h *MessageHandler) PostMessage(c *gin.Context) {
	var in models.NewMessage
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err.Error())
		return
	}

	msg, err := h.svc.SendMessage(c.Request.Context(), actorFrom(c), in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// ToggleReaction adds the caller's emoji or removes it if already present.
func (h *MessageHandler) ToggleReaction(c *gin.Context) {
	messageID, ok := intParam(c, "id")
	if !ok {
		return
	}
	var req struct {
		Emoji string `json:"emoji" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	msg, err := h.svc.ToggleReaction(c.Request.Context(), actorFrom(c), messageID, req.Emoji)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

// MarkRead records that the caller has read a message.
func (h *MessageHandler) MarkRead(c *gin.Context) {
	messageID, ok := intParam(c, "id")
	if !ok {
		return
	}
	msg, err := h.svc.MarkRead(c.Request.Context(), actorFrom(c), messageID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

// Search finds messages by substring in the caller's rooms.
func (h *MessageHandler) Search(c *gin.Context) {
	roomID, ok := intQuery(c, "roomId")
	if !ok {
		return
	}
	msgs, err := h.svc.Search(c.Request.Context(), actorFrom(c), c.Query("query"), roomID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// OnlineUsers returns the current online roster.
func (h *MessageHandler) OnlineUsers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"users": h.svc.Online()})
}
