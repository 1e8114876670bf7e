package auth

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// SQLiteStore is the durable UserStore used by the daemon.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (creating if needed) the user database.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "open user database failed")
	}

	// WAL mode for concurrent reads while the authenticator persists.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "enable WAL mode failed")
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		username      TEXT PRIMARY KEY,
		password_hash BLOB NOT NULL,
		salt          BLOB NOT NULL,
		logged_in     INTEGER NOT NULL DEFAULT 0,
		logged_in_at  INTEGER NOT NULL DEFAULT 0,
		bound_conn    INTEGER NOT NULL DEFAULT 0
	);
	`
	_, err := s.db.Exec(schema)
	return errors.Wrap(err, "init user schema failed")
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateUser inserts a new identity with a salted password hash.
func (s *SQLiteStore) CreateUser(ctx context.Context, username, password string) error {
	salt, err := NewSalt()
	if err != nil {
		return err
	}
	hash := HashPassword(password, salt)

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO users (username, password_hash, salt) VALUES (?, ?, ?)`,
		username, hash, salt)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrUserExists, username)
	}
	return nil
}

// FindByUsername loads a session row.
func (s *SQLiteStore) FindByUsername(ctx context.Context, username string) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT username, password_hash, salt, logged_in, logged_in_at, bound_conn
		 FROM users WHERE username = ?`, username)

	var sess Session
	var loggedIn int
	err := row.Scan(&sess.Username, &sess.PasswordHash, &sess.Salt,
		&loggedIn, &sess.LoggedInAt, &sess.BoundConnID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %q", ErrUserNotFound, username)
	}
	if err != nil {
		return nil, errors.Wrap(err, "load user failed")
	}
	sess.LoggedIn = loggedIn != 0
	return &sess, nil
}

// Persist writes the mutable session fields back.
func (s *SQLiteStore) Persist(ctx context.Context, sess *Session) error {
	loggedIn := 0
	if sess.LoggedIn {
		loggedIn = 1
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET logged_in = ?, logged_in_at = ?, bound_conn = ? WHERE username = ?`,
		loggedIn, sess.LoggedInAt, sess.BoundConnID, sess.Username)
	if err != nil {
		return errors.Wrap(err, "persist session failed")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "persist session failed")
	}
	if n == 0 {
		return fmt.Errorf("%w: %q", ErrUserNotFound, sess.Username)
	}
	return nil
}
