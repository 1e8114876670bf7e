package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	ErrAlreadyLoggedIn    = errors.New("already logged in")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotLoggedIn        = errors.New("not logged in")
	ErrSessionNotOwned    = errors.New("session bound to another connection")
)

// Authenticator is the login/logout state machine. One mutex guards the
// whole session table; the single-session invariant — at most one
// session logged in per identity at any instant — is its critical
// section, so concurrent logins for the same identity race on the lock
// and exactly one wins.
type Authenticator struct {
	mu     sync.Mutex
	store  UserStore
	active map[string]*Session // logged-in sessions by username
	log    logrus.FieldLogger
}

// NewAuthenticator creates an authenticator over a user store.
func NewAuthenticator(store UserStore, log logrus.FieldLogger) *Authenticator {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Authenticator{
		store:  store,
		active: make(map[string]*Session),
		log:    log,
	}
}

// Login authenticates an identity and binds it to a connection.
// Concurrent logins for the same identity are rejected, never queued.
// Bad credentials are an explicit ErrInvalidCredentials.
func (a *Authenticator) Login(ctx context.Context, username, password string, connID uint64) (*Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if s, ok := a.active[username]; ok && s.LoggedIn {
		return nil, fmt.Errorf("%w: %q", ErrAlreadyLoggedIn, username)
	}

	s, err := a.store.FindByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if s.LoggedIn {
		// The store says logged in but we have no live record: treat as
		// active. A crash-recovery sweep can clear it out of band.
		return nil, fmt.Errorf("%w: %q", ErrAlreadyLoggedIn, username)
	}

	if !VerifyPassword(password, s.Salt, s.PasswordHash) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCredentials, username)
	}

	s.LoggedIn = true
	s.LoggedInAt = time.Now().UnixMilli()
	s.BoundConnID = connID
	if err := a.store.Persist(ctx, s); err != nil {
		return nil, err
	}
	a.active[username] = s

	a.log.WithFields(logrus.Fields{"user": username, "conn": connID}).Info("login")
	return s.Clone(), nil
}

// Logout ends the session of an identity. The request must come from
// the connection the session is bound to.
func (a *Authenticator) Logout(ctx context.Context, username string, connID uint64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	s, ok := a.active[username]
	if !ok || !s.LoggedIn {
		return fmt.Errorf("%w: %q", ErrNotLoggedIn, username)
	}
	if s.BoundConnID != connID {
		return fmt.Errorf("%w: %q", ErrSessionNotOwned, username)
	}
	return a.release(ctx, s)
}

// ReleaseConnection force-logs-out every session bound to a dead
// connection and returns the affected usernames. Called by the server's
// tick sweep after an unclean disconnect.
func (a *Authenticator) ReleaseConnection(ctx context.Context, connID uint64) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var released []string
	var firstErr error
	for _, s := range a.active {
		if s.BoundConnID != connID {
			continue
		}
		if err := a.release(ctx, s); err != nil && firstErr == nil {
			firstErr = err
			continue
		}
		released = append(released, s.Username)
	}
	return released, firstErr
}

// release clears the flags and persists. Caller holds the lock.
func (a *Authenticator) release(ctx context.Context, s *Session) error {
	s.LoggedIn = false
	s.BoundConnID = 0
	if err := a.store.Persist(ctx, s); err != nil {
		return err
	}
	delete(a.active, s.Username)
	a.log.WithField("user", s.Username).Info("logout")
	return nil
}

// SessionFor returns a copy of the active session for username, if any.
func (a *Authenticator) SessionFor(username string) (*Session, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.active[username]
	if !ok {
		return nil, false
	}
	return s.Clone(), true
}

// ActiveSessions returns copies of every logged-in session.
func (a *Authenticator) ActiveSessions() []*Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]*Session, 0, len(a.active))
	for _, s := range a.active {
		out = append(out, s.Clone())
	}
	return out
}
