// Package auth provides ready-made session and authorization functions for
// endpoints: bearer-token JWT sessions, role checks over them, and bcrypt
// helpers for API-key schemes.
package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Togather-Foundation/conduit/endpoint"
)

var (
	ErrMissingToken = errors.New("auth: missing token")
	ErrInvalidToken = errors.New("auth: invalid token")
)

// Claims are the JWT claims conduit sessions carry.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Session is the derived session value handlers and authorizers see.
type Session struct {
	Subject string
	Role    string
	Claims  *Claims
}

// JWTManager signs and validates HS256 session tokens.
type JWTManager struct {
	secret []byte
	expiry time.Duration
	issuer string
}

// NewJWTManager returns a manager for HS256 tokens.
func NewJWTManager(secret string, expiry time.Duration, issuer string) *JWTManager {
	return &JWTManager{
		secret: []byte(secret),
		expiry: expiry,
		issuer: issuer,
	}
}

// Generate issues a token for subject with role.
func (m *JWTManager) Generate(subject, role string) (string, error) {
	if subject == "" || role == "" {
		return "", ErrInvalidToken
	}

	now := time.Now()
	claims := &Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.expiry)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// Validate parses and verifies a token.
func (m *JWTManager) Validate(tokenString string) (*Claims, error) {
	if strings.TrimSpace(tokenString) == "" {
		return nil, ErrMissingToken
	}

	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// JWTSessions returns a session function reading "Authorization: Bearer"
// and yielding a *Session. An absent or invalid token yields a nil
// session, leaving the decision to the authorizer.
func JWTSessions(manager *JWTManager) endpoint.SessionFunc {
	return func(ctx context.Context, r *endpoint.Request) (any, error) {
		raw, ok := r.Header.Get("authorization")
		if !ok {
			return nil, nil
		}
		token, found := strings.CutPrefix(raw, "Bearer ")
		if !found {
			return nil, nil
		}
		claims, err := manager.Validate(token)
		if err != nil {
			return nil, nil
		}
		return &Session{Subject: claims.Subject, Role: claims.Role, Claims: claims}, nil
	}
}

// RequireRole returns an authorizer granting only sessions with role.
func RequireRole(role string) endpoint.AuthorizeFunc {
	return func(ctx context.Context, r *endpoint.Request) (bool, error) {
		session, ok := r.Session.(*Session)
		return ok && session.Role == role, nil
	}
}
