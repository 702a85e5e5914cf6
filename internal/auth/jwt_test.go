package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-realtime/internal/errs"
	"chat-realtime/internal/models"
	"chat-realtime/internal/repositories"
)

func TestIssueAndAuthenticate(t *testing.T) {
	store := repositories.NewMemoryStore()
	p := NewJWTProvider("secret", store)
	token, err := p.Issue(models.Identity{ID: 7, Username: "alice", Avatar: "a.png"}, time.Hour)
	require.NoError(t, err)

	identity, err := p.Authenticate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, models.Identity{ID: 7, Username: "alice", Avatar: "a.png"}, identity)

	users, err := store.FindUsers(context.Background(), []int{7})
	require.NoError(t, err)
	assert.Equal(t, []models.Identity{identity}, users)
}

func TestAuthenticateRejectsBadTokens(t *testing.T) {
	p := NewJWTProvider("secret", nil)
	ctx := context.Background()

	expired, err := p.Issue(models.Identity{ID: 1, Username: "a"}, -time.Minute)
	require.NoError(t, err)
	foreign, err := NewJWTProvider("other", nil).Issue(models.Identity{ID: 1, Username: "a"}, time.Hour)
	require.NoError(t, err)
	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{Username: "a"}).SignedString([]byte("secret"))
	require.NoError(t, err)

	for name, token := range map[string]string{
		"empty":      "",
		"garbage":    "not-a-jwt",
		"expired":    expired,
		"foreign":    foreign,
		"no subject": noSubject,
	} {
		_, err := p.Authenticate(ctx, token)
		assert.True(t, errs.Is(err, errs.Unauthenticated), name)
	}
}

func TestBearerToken(t *testing.T) {
	token, err := BearerToken("Bearer abc")
	require.NoError(t, err)
	assert.Equal(t, "abc", token)

	token, err = BearerToken("bearer  xyz ")
	require.NoError(t, err)
	assert.Equal(t, "xyz", token)

	for _, header := range []string{"", "Basic abc", "Bearer", "Bearer   "} {
		_, err := BearerToken(header)
		assert.True(t, errs.Is(err, errs.Unauthenticated), header)
	}
}
