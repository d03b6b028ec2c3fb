package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_RoundTrip(t *testing.T) {
	s := New("secret", time.Hour)

	token, err := s.GenerateToken(42, "client")
	require.NoError(t, err)

	claims, err := s.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.UserID)
	assert.Equal(t, "client", claims.Role)
}

func TestService_Rejects(t *testing.T) {
	s := New("secret", time.Hour)
	token, err := s.GenerateToken(42, "client")
	require.NoError(t, err)

	_, err = New("other-secret", time.Hour).ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired := New("secret", time.Hour)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, err := expired.GenerateToken(42, "client")
	require.NoError(t, err)
	_, err = s.ValidateToken(old)
	assert.ErrorIs(t, err, ErrInvalidToken)

	anonymous, err := s.GenerateToken(0, "client")
	require.NoError(t, err)
	_, err = s.ValidateToken(anonymous)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
