// Package auth turns connection credentials into an authenticated identity.
package auth

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"chat-realtime/internal/errs"
	"chat-realtime/internal/models"
	"chat-realtime/internal/repositories"
)

// Provider authenticates a bearer token.
type Provider interface {
	Authenticate(ctx context.Context, token string) (models.Identity, error)
}

// Claims are the token claims. The subject carries the numeric user id.
type Claims struct {
	Username string `json:"username"`
	Avatar   string `json:"avatar,omitempty"`
	jwt.RegisteredClaims
}

// JWTProvider validates HS256 tokens issued by the account service.
type JWTProvider struct {
	secret []byte
	users  repositories.UserRepository
}

// NewJWTProvider builds a provider. When users is non-nil, every authenticated
// identity is recorded so messages can be rendered with sender display data.
func NewJWTProvider(secret string, users repositories.UserRepository) *JWTProvider {
	return &JWTProvider{secret: []byte(secret), users: users}
}

// Authenticate validates token and returns its identity.
func (p *JWTProvider) Authenticate(ctx context.Context, token string) (models.Identity, error) {
	if token == "" {
		return models.Identity{}, errs.New(errs.Unauthenticated, "auth", "missing token")
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return p.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return models.Identity{}, errs.New(errs.Unauthenticated, "auth", "invalid token")
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return models.Identity{}, errs.New(errs.Unauthenticated, "auth", "invalid token")
	}
	id, err := strconv.Atoi(claims.Subject)
	if err != nil || id <= 0 {
		return models.Identity{}, errs.New(errs.Unauthenticated, "auth", "invalid subject")
	}

	identity := models.Identity{ID: id, Username: claims.Username, Avatar: claims.Avatar}
	if identity.Username == "" {
		identity.Username = "user" + claims.Subject
	}
	if p.users != nil {
		if err := p.users.UpsertUser(ctx, identity); err != nil {
			return models.Identity{}, errs.Wrap(errs.Unavailable, "auth", err)
		}
	}
	return identity, nil
}

// Issue signs a token for identity. The chat service only verifies tokens; Issue
// backs the debug routes and tests.
func (p *JWTProvider) Issue(identity models.Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Username: identity.Username,
		Avatar:   identity.Avatar,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.Itoa(identity.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, error) {
	if header == "" {
		return "", errs.New(errs.Unauthenticated, "auth", "missing authorization")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", errs.New(errs.Unauthenticated, "auth", "invalid authorization header")
	}
	return strings.TrimSpace(parts[1]), nil
}
