package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"chat-realtime/internal/middleware"
	"chat-realtime/internal/observability"
	"chat-realtime/internal/telemetry"
)

func requestIDFromContext(c *gin.Context) string {
	if id := c.GetString(middleware.RequestIDKey); id != "" {
		return id
	}
	if id := observability.RequestIDFromContext(c.Request.Context()); id != "" {
		return id
	}

	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(middleware.RequestIDKey, requestID)
	return requestID
}

func userIDFromContext(c *gin.Context) *int64 {
	if userID := c.GetInt(middleware.UserIDKey); userID != 0 {
		value := int64(userID)
		return &value
	}
	return nil
}

// auditRoom records an administrative room action taken by the caller.
func auditRoom(c *gin.Context, emitter *telemetry.AuditEmitter, action string, roomID, targetID int) {
	emitter.RoomAction(c.Request.Context(), action, roomID, targetID, requestIDFromContext(c), userIDFromContext(c))
}
