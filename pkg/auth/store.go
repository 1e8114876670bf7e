package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrUserExists   = errors.New("user already exists")
)

// UserStore loads and persists sessions. The core never issues SQL; it
// only talks to this interface.
type UserStore interface {
	FindByUsername(ctx context.Context, username string) (*Session, error)
	Persist(ctx context.Context, s *Session) error
}

// MemoryStore is an in-process UserStore for tests and demos.
type MemoryStore struct {
	mu    sync.Mutex
	users map[string]*Session
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[string]*Session)}
}

// CreateUser registers a new identity with a salted password hash.
func (m *MemoryStore) CreateUser(username, password string) error {
	salt, err := NewSalt()
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[username]; ok {
		return fmt.Errorf("%w: %q", ErrUserExists, username)
	}
	m.users[username] = &Session{
		Username:     username,
		PasswordHash: HashPassword(password, salt),
		Salt:         salt,
	}
	return nil
}

// FindByUsername returns a copy of the stored session.
func (m *MemoryStore) FindByUsername(ctx context.Context, username string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.users[username]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUserNotFound, username)
	}
	return s.Clone(), nil
}

// Persist writes the session back.
func (m *MemoryStore) Persist(ctx context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[s.Username]; !ok {
		return fmt.Errorf("%w: %q", ErrUserNotFound, s.Username)
	}
	m.users[s.Username] = s.Clone()
	return nil
}
