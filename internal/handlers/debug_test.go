package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-realtime/internal/auth"
	"chat-realtime/internal/repositories"
)

func TestDebugRoutesDisabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterDebugRoutes(r, nil, nil, false)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/debug/audit-test", "").Code)
}

func TestDebugTokenAuthenticates(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := repositories.NewMemoryStore()
	provider := auth.NewJWTProvider("secret", store)
	r := gin.New()
	RegisterDebugRoutes(r, nil, provider, true)

	rec := do(r, http.MethodPost, "/debug/token", `{"id":5,"username":"eve"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))

	identity, err := provider.Authenticate(context.Background(), body.Token)
	require.NoError(t, err)
	assert.Equal(t, 5, identity.ID)
	assert.Equal(t, "eve", identity.Username)

	assert.Equal(t, http.StatusServiceUnavailable, do(r, http.MethodGet, "/debug/audit-test", "").Code)
}
