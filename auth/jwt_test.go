package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Togather-Foundation/conduit/accessor"
	"github.com/Togather-Foundation/conduit/endpoint"
)

func TestGenerateAndValidate(t *testing.T) {
	manager := NewJWTManager("test-secret", time.Hour, "conduit-test")

	token, err := manager.Generate("user-1", "admin")
	require.NoError(t, err)

	claims, err := manager.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "admin", claims.Role)
	assert.Equal(t, "conduit-test", claims.Issuer)
}

func TestValidateRejectsBadInput(t *testing.T) {
	manager := NewJWTManager("test-secret", time.Hour, "conduit-test")

	_, err := manager.Validate("")
	assert.ErrorIs(t, err, ErrMissingToken)

	_, err = manager.Validate("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	other := NewJWTManager("other-secret", time.Hour, "conduit-test")
	token, err := other.Generate("user-1", "admin")
	require.NoError(t, err)
	_, err = manager.Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestExpiredTokenRejected(t *testing.T) {
	manager := NewJWTManager("test-secret", -time.Minute, "conduit-test")
	token, err := manager.Generate("user-1", "admin")
	require.NoError(t, err)

	_, err = manager.Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTSessionsAndRequireRole(t *testing.T) {
	manager := NewJWTManager("test-secret", time.Hour, "conduit-test")
	token, err := manager.Generate("user-1", "admin")
	require.NoError(t, err)

	sessionFn := JWTSessions(manager)
	authorize := RequireRole("admin")

	request := func(header map[string]string) *endpoint.Request {
		return &endpoint.Request{Header: accessor.FromMap(header)}
	}

	// Valid bearer token derives a session the authorizer accepts.
	r := request(map[string]string{"Authorization": "Bearer " + token})
	session, err := sessionFn(context.Background(), r)
	require.NoError(t, err)
	require.NotNil(t, session)
	r.Session = session
	granted, err := authorize(context.Background(), r)
	require.NoError(t, err)
	assert.True(t, granted)

	// Missing header: nil session, denied.
	r = request(nil)
	session, err = sessionFn(context.Background(), r)
	require.NoError(t, err)
	assert.Nil(t, session)
	granted, err = authorize(context.Background(), r)
	require.NoError(t, err)
	assert.False(t, granted)

	// Wrong role: denied.
	viewer, err := manager.Generate("user-2", "viewer")
	require.NoError(t, err)
	r = request(map[string]string{"Authorization": "Bearer " + viewer})
	r.Session, err = sessionFn(context.Background(), r)
	require.NoError(t, err)
	granted, err = authorize(context.Background(), r)
	require.NoError(t, err)
	assert.False(t, granted)
}

func TestAPIKeyHashing(t *testing.T) {
	hash, err := HashAPIKey("sk-live-abc123")
	require.NoError(t, err)
	assert.True(t, VerifyAPIKey(hash, "sk-live-abc123"))
	assert.False(t, VerifyAPIKey(hash, "sk-live-wrong"))
}
