package auth

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func newTestAuth(t *testing.T) (*Authenticator, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	require.NoError(t, store.CreateUser("alice", "hunter2"))
	require.NoError(t, store.CreateUser("bob", "swordfish"))
	return NewAuthenticator(store, quietLogger()), store
}

func TestLoginLogout(t *testing.T) {
	a, store := newTestAuth(t)
	ctx := context.Background()

	s, err := a.Login(ctx, "alice", "hunter2", 7)
	require.NoError(t, err)
	assert.True(t, s.LoggedIn)
	assert.Equal(t, uint64(7), s.BoundConnID)
	assert.NotZero(t, s.LoggedInAt)

	// Persisted state reflects the login.
	stored, err := store.FindByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, stored.LoggedIn)

	require.NoError(t, a.Logout(ctx, "alice", 7))

	stored, err = store.FindByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, stored.LoggedIn)
	assert.Zero(t, stored.BoundConnID)
}

func TestLoginErrors(t *testing.T) {
	a, _ := newTestAuth(t)
	ctx := context.Background()

	_, err := a.Login(ctx, "mallory", "x", 1)
	assert.ErrorIs(t, err, ErrUserNotFound)

	_, err = a.Login(ctx, "alice", "wrong", 1)
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = a.Login(ctx, "alice", "hunter2", 1)
	require.NoError(t, err)

	_, err = a.Login(ctx, "alice", "hunter2", 2)
	assert.ErrorIs(t, err, ErrAlreadyLoggedIn)
}

func TestLogoutErrors(t *testing.T) {
	a, _ := newTestAuth(t)
	ctx := context.Background()

	err := a.Logout(ctx, "alice", 1)
	assert.ErrorIs(t, err, ErrNotLoggedIn)

	_, err = a.Login(ctx, "alice", "hunter2", 1)
	require.NoError(t, err)

	// Only the bound connection may log the session out.
	err = a.Logout(ctx, "alice", 2)
	assert.ErrorIs(t, err, ErrSessionNotOwned)

	require.NoError(t, a.Logout(ctx, "alice", 1))
}

func TestConcurrentLoginSingleWinner(t *testing.T) {
	a, _ := newTestAuth(t)

	const n = 32
	var wg sync.WaitGroup
	wg.Add(n)

	results := make(chan error, n)
	for i := 0; i < n; i++ {
		connID := uint64(i + 1)
		go func() {
			defer wg.Done()
			_, err := a.Login(context.Background(), "alice", "hunter2", connID)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	success := 0
	rejected := 0
	for err := range results {
		if err == nil {
			success++
			continue
		}
		if errors.Is(err, ErrAlreadyLoggedIn) {
			rejected++
			continue
		}
		t.Fatalf("unexpected login error: %v", err)
	}

	if success != 1 {
		t.Fatalf("expected exactly one login success, got %d", success)
	}
	if rejected != n-1 {
		t.Fatalf("expected %d rejections, got %d", n-1, rejected)
	}
}

func TestReleaseConnection(t *testing.T) {
	a, store := newTestAuth(t)
	ctx := context.Background()

	_, err := a.Login(ctx, "alice", "hunter2", 3)
	require.NoError(t, err)
	_, err = a.Login(ctx, "bob", "swordfish", 3)
	require.NoError(t, err)

	released, err := a.ReleaseConnection(ctx, 3)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alice", "bob"}, released)

	// Both identities can log in again from new connections.
	_, err = a.Login(ctx, "alice", "hunter2", 4)
	assert.NoError(t, err)
	_, err = a.Login(ctx, "bob", "swordfish", 5)
	assert.NoError(t, err)

	stored, err := store.FindByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(4), stored.BoundConnID)
}

func TestReleaseConnectionNoSessions(t *testing.T) {
	a, _ := newTestAuth(t)
	released, err := a.ReleaseConnection(context.Background(), 99)
	require.NoError(t, err)
	assert.Empty(t, released)
}

func TestPasswordHashing(t *testing.T) {
	salt, err := NewSalt()
	require.NoError(t, err)

	hash := HashPassword("secret", salt)
	assert.True(t, VerifyPassword("secret", salt, hash))
	assert.False(t, VerifyPassword("Secret", salt, hash))

	other, err := NewSalt()
	require.NoError(t, err)
	assert.NotEqual(t, hash, HashPassword("secret", other))
}
