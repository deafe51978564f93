package users

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndAuthenticate(t *testing.T) {
	m := NewManager([]byte("test-secret"), time.Hour)
	_, err := m.CreateUser("Alice", "hunter2", false)
	require.NoError(t, err)

	token, err := m.Authenticate("alice", "hunter2")
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	claims, err := m.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Username)
	assert.False(t, claims.IsAdmin)
}

func TestAuthenticateRejectsWrongPassword(t *testing.T) {
	m := NewManager([]byte("test-secret"), time.Hour)
	_, err := m.CreateUser("bob", "correct-horse", true)
	require.NoError(t, err)

	_, err = m.Authenticate("bob", "wrong")
	require.Error(t, err)
}

func TestCreateUserRejectsDuplicate(t *testing.T) {
	m := NewManager([]byte("test-secret"), time.Hour)
	_, err := m.CreateUser("carol", "pw", false)
	require.NoError(t, err)
	_, err = m.CreateUser("carol", "pw2", false)
	require.Error(t, err)
}

func TestChangePassword(t *testing.T) {
	m := NewManager([]byte("test-secret"), time.Hour)
	_, err := m.CreateUser("dave", "old-pw", false)
	require.NoError(t, err)

	require.NoError(t, m.ChangePassword("dave", "old-pw", "new-pw"))
	_, err = m.Authenticate("dave", "old-pw")
	require.Error(t, err)
	_, err = m.Authenticate("dave", "new-pw")
	require.NoError(t, err)
}

func TestDeleteUser(t *testing.T) {
	m := NewManager([]byte("test-secret"), time.Hour)
	_, err := m.CreateUser("erin", "pw", false)
	require.NoError(t, err)
	require.NoError(t, m.DeleteUser("erin"))
	_, err = m.Authenticate("erin", "pw")
	require.Error(t, err)
}
