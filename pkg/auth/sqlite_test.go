package auth

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := OpenSQLiteStore(filepath.Join(t.TempDir(), "users.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateUser(ctx, "alice", "hunter2"))

	s, err := store.FindByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", s.Username)
	assert.False(t, s.LoggedIn)
	assert.True(t, VerifyPassword("hunter2", s.Salt, s.PasswordHash))

	s.LoggedIn = true
	s.LoggedInAt = 1234567890
	s.BoundConnID = 42
	require.NoError(t, store.Persist(ctx, s))

	reloaded, err := store.FindByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, reloaded.LoggedIn)
	assert.Equal(t, int64(1234567890), reloaded.LoggedInAt)
	assert.Equal(t, uint64(42), reloaded.BoundConnID)
}

func TestSQLiteStoreErrors(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := store.FindByUsername(ctx, "ghost")
	assert.ErrorIs(t, err, ErrUserNotFound)

	err = store.Persist(ctx, &Session{Username: "ghost"})
	assert.ErrorIs(t, err, ErrUserNotFound)

	require.NoError(t, store.CreateUser(ctx, "alice", "pw"))
	err = store.CreateUser(ctx, "alice", "pw")
	assert.ErrorIs(t, err, ErrUserExists)
}

func TestAuthenticatorOverSQLite(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreateUser(ctx, "alice", "hunter2"))

	a := NewAuthenticator(store, quietLogger())

	s, err := a.Login(ctx, "alice", "hunter2", 1)
	require.NoError(t, err)
	assert.True(t, s.LoggedIn)

	stored, err := store.FindByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, stored.LoggedIn)

	require.NoError(t, a.Logout(ctx, "alice", 1))
	stored, err = store.FindByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, stored.LoggedIn)
}
