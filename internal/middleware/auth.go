package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"chat-realtime/internal/auth"
	"chat-realtime/internal/errs"
)

// Context keys set by Auth.
const (
	UserIDKey   = "userID"
	IdentityKey = "identity"
)

// Auth validates the bearer token and stores the caller's identity on the context.
func Auth(provider auth.Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := auth.BearerToken(c.GetHeader("Authorization"))
		if err == nil {
			identity, authErr := provider.Authenticate(c.Request.Context(), token)
			if authErr == nil {
				c.Set(UserIDKey, identity.ID)
				c.Set(IdentityKey, identity)
				c.Next()
				return
			}
			err = authErr
		}

		status := http.StatusUnauthorized
		if errs.Is(err, errs.Unavailable) {
			status = http.StatusServiceUnavailable
		}
		c.AbortWithStatusJSON(status, gin.H{"error": errs.Message(err), "code": errs.KindOf(err)})
	}
}

// Logger logs one line per request with the request id and caller.
func Logger(logger *zap.Logger) gin.HandlerFunc {
	logger = logger.Named("http")
	return func(c *gin.Context) {
		c.Next()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.String("request_id", c.GetString(RequestIDKey)),
		}
		if userID := c.GetInt(UserIDKey); userID != 0 {
			fields = append(fields, zap.Int("user_id", userID))
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			logger.Warn("request failed", fields...)
			return
		}
		logger.Debug("request", fields...)
	}
}
