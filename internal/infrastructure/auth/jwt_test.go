package auth

import (
	"testing"
	"time"

	"github.com/erp/backoffice/internal/infrastructure/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-that-is-at-least-32-chars"

func newClaims(ttl time.Duration, permissions ...string) *Claims {
	now := time.Now()
	return &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		UserID:      "user-1",
		Username:    "admin",
		Permissions: permissions,
		TokenType:   TokenTypeAccess,
	}
}

func TestVerifier_SignedTokens(t *testing.T) {
	v := NewVerifier(config.JWTConfig{Secret: testSecret, Issuer: "erp-backend"})

	t.Run("valid token", func(t *testing.T) {
		token, err := v.Sign(newClaims(time.Hour, "branches:read"))
		require.NoError(t, err)

		claims, err := v.Verify(token)
		require.NoError(t, err)
		assert.Equal(t, "user-1", claims.UserID)
		assert.Equal(t, "erp-backend", claims.Issuer)
		assert.True(t, claims.HasPermission("branches:read"))
	})

	t.Run("expired token", func(t *testing.T) {
		token, err := v.Sign(newClaims(-time.Minute))
		require.NoError(t, err)
		_, err = v.Verify(token)
		assert.ErrorIs(t, err, ErrExpiredToken)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := NewVerifier(config.JWTConfig{Secret: "another-secret-key-that-is-32-chars-long"})
		token, err := other.Sign(newClaims(time.Hour))
		require.NoError(t, err)
		_, err = v.Verify(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		other := NewVerifier(config.JWTConfig{Secret: testSecret, Issuer: "someone-else"})
		token, err := other.Sign(newClaims(time.Hour))
		require.NoError(t, err)
		_, err = v.Verify(token)
		assert.ErrorIs(t, err, ErrInvalidClaims)
	})

	t.Run("refresh token rejected", func(t *testing.T) {
		claims := newClaims(time.Hour)
		claims.TokenType = TokenTypeRefresh
		token, err := v.Sign(claims)
		require.NoError(t, err)
		_, err = v.Verify(token)
		assert.ErrorIs(t, err, ErrInvalidTokenType)
	})

	t.Run("empty token", func(t *testing.T) {
		_, err := v.Verify("  ")
		assert.ErrorIs(t, err, ErrMissingToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := v.Verify("not.a.token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestVerifier_UnverifiedTokens(t *testing.T) {
	signer := NewVerifier(config.JWTConfig{Secret: testSecret})
	v := NewVerifier(config.JWTConfig{})
	assert.False(t, v.VerifiesSignature())

	t.Run("decodes claims without a secret", func(t *testing.T) {
		claims := newClaims(time.Hour, "employee-custodies:write")
		claims.UserID = ""
		token, err := signer.Sign(claims)
		require.NoError(t, err)

		got, err := v.Verify(token)
		require.NoError(t, err)
		assert.Equal(t, "user-1", got.UserID, "falls back to subject")
		assert.True(t, got.HasAnyPermission("roles:write", "employee-custodies:write"))
	})

	t.Run("still rejects expired tokens", func(t *testing.T) {
		token, err := signer.Sign(newClaims(-time.Minute))
		require.NoError(t, err)
		_, err = v.Verify(token)
		assert.ErrorIs(t, err, ErrExpiredToken)
	})

	t.Run("cannot sign", func(t *testing.T) {
		_, err := v.Sign(newClaims(time.Hour))
		assert.Error(t, err)
	})
}

func TestClaims_Permissions(t *testing.T) {
	c := &Claims{Permissions: []string{"branches:read", "branches:write"}}
	assert.True(t, c.HasPermission("branches:write"))
	assert.False(t, c.HasPermission("roles:read"))
	assert.True(t, c.HasAnyPermission("roles:read", "branches:read"))
	assert.False(t, c.HasAnyPermission())

	admin := &Claims{Permissions: []string{"*"}}
	assert.True(t, admin.HasPermission("anything:write"))
	assert.True(t, (&Claims{}).GetExpiresAtTime().IsZero())
}
