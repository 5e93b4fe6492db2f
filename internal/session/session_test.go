package session

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeowl/platform/internal/common/errors"
)

func TestVerifier(t *testing.T) {
	v := NewVerifier("secret", "codeowl-auth")

	token, err := v.Sign("user-1", "ada", time.Hour)
	require.NoError(t, err)

	claims, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "ada", claims.Username)

	t.Run("wrong secret", func(t *testing.T) {
		_, err := NewVerifier("other", "codeowl-auth").Verify(token)
		assert.True(t, errors.HasCode(err, errors.CodeUnauthorized))
	})

	t.Run("wrong issuer", func(t *testing.T) {
		_, err := NewVerifier("secret", "someone-else").Verify(token)
		assert.Error(t, err)
	})

	t.Run("expired", func(t *testing.T) {
		old, err := v.Sign("user-1", "ada", -time.Minute)
		require.NoError(t, err)
		_, err = v.Verify(old)
		assert.Error(t, err)
	})

	t.Run("rejects none algorithm", func(t *testing.T) {
		unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "user-1"})
		raw, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = v.Verify(raw)
		assert.Error(t, err)
	})

	t.Run("missing subject", func(t *testing.T) {
		raw, err := v.Sign("", "ada", time.Hour)
		require.NoError(t, err)
		_, err = v.Verify(raw)
		assert.Error(t, err)
	})
}

func TestManagerLifecycle(t *testing.T) {
	v := NewVerifier("secret", "")
	m := NewManager(v, time.Hour)

	var ended []string
	m.OnEnd(func(_ context.Context, s *Session) { ended = append(ended, s.ID) })

	token, err := v.Sign("user-1", "ada", time.Hour)
	require.NoError(t, err)

	s, err := m.Login(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", s.UserID)
	assert.Equal(t, 1, m.Count())

	got, err := m.Get(s.ID)
	require.NoError(t, err)
	assert.Same(t, s, got)

	require.NoError(t, m.Logout(context.Background(), s.ID))
	assert.Equal(t, []string{s.ID}, ended)

	_, err = m.Get(s.ID)
	assert.True(t, errors.HasCode(err, errors.CodeUnauthorized))
	assert.True(t, errors.HasCode(m.Logout(context.Background(), s.ID), errors.CodeNotFound))
}

func TestManagerSweep(t *testing.T) {
	v := NewVerifier("secret", "")
	m := NewManager(v, time.Minute)
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	var ended int
	m.OnEnd(func(context.Context, *Session) { ended++ })

	token, _ := v.Sign("user-1", "", time.Hour)
	s, err := m.Login(token)
	require.NoError(t, err)

	assert.Equal(t, 0, m.Sweep(context.Background()))

	now = now.Add(2 * time.Minute)
	_, err = m.Get(s.ID)
	assert.Error(t, err)
	assert.Equal(t, 1, m.Sweep(context.Background()))
	assert.Equal(t, 1, ended)
	assert.Equal(t, 0, m.Count())
}

func TestContextRoundTrip(t *testing.T) {
	_, err := FromContext(context.Background())
	assert.Error(t, err)

	s := &Session{ID: "s1", UserID: "u1"}
	got, err := FromContext(WithSession(context.Background(), s))
	require.NoError(t, err)
	assert.Same(t, s, got)
}
