package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	m := NewManager("test-secret")

	token, err := m.CreateToken(42, "alice")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	userID, username, err := m.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), userID)
	assert.Equal(t, "alice", username)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	token, err := NewManager("secret-a").CreateToken(1, "alice")
	require.NoError(t, err)

	_, _, err = NewManager("secret-b").VerifyToken(token)
	assert.Error(t, err)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	_, _, err := NewManager("test-secret").VerifyToken("not.a.token")
	assert.Error(t, err)
}
