package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"chat-realtime/internal/auth"
	"chat-realtime/internal/models"
	"chat-realtime/internal/telemetry"
)

// RegisterDebugRoutes wires debug-only endpoints.
func RegisterDebugRoutes(router gin.IRouter, emitter *telemetry.AuditEmitter, issuer *auth.JWTProvider, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/audit-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		emitter.Emit(c.Request.Context(), "INFO", "audit test", requestIDFromContext(c), userIDFromContext(c))
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Mints a short-lived token so the socket can be exercised without an identity service.
	router.POST("/debug/token", func(c *gin.Context) {
		if issuer == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "token issuer not configured"})
			return
		}
		var req struct {
			ID       int    `json:"id" binding:"required,min=1"`
			Username string `json:"username"`
			Avatar   string `json:"avatar"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		token, err := issuer.Issue(models.Identity{ID: req.ID, Username: req.Username, Avatar: req.Avatar}, time.Hour)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"token": token})
	})
}
