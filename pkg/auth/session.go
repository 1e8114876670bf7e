// Package auth implements the Kestrel login state machine: a session
// table enforcing at most one active session per identity, backed by a
// pluggable user store.
package auth

// Session is the authentication record for one identity. The LoggedIn,
// LoggedInAt, and BoundConnID fields are mutated by the Authenticator
// only, under its table lock, and persisted back through the UserStore.
type Session struct {
	Username     string
	PasswordHash []byte
	Salt         []byte
	LoggedIn     bool
	LoggedInAt   int64 // unix millis
	BoundConnID  uint64
}

// Clone returns a copy safe to hand outside the table lock.
func (s *Session) Clone() *Session {
	out := *s
	out.PasswordHash = append([]byte(nil), s.PasswordHash...)
	out.Salt = append([]byte(nil), s.Salt...)
	return &out
}
