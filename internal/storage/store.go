package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/soundloader/core/logger"
)

// Store hands out per-worker database sessions over a shared pool.
type Store struct {
	db *sqlx.DB
}

// New wraps an open database pool.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Session checks out a dedicated connection for the lifetime of one worker.
// The caller must Close it.
func (s *Store) Session(ctx context.Context) (*Session, error) {
	conn, err := s.db.Connx(ctx)
	if err != nil {
		return nil, fmt.Errorf("storage: checkout connection: %w", err)
	}
	return &Session{conn: conn}, nil
}

// Session is a single-connection view of the store. It is not safe for
// concurrent use; each worker owns exactly one.
type Session struct {
	conn *sqlx.Conn
}

// Close returns the connection to the pool.
func (s *Session) Close() error {
	return s.conn.Close()
}

// GetUser loads a user by id. Returns (nil, nil) when the user is unknown.
func (s *Session) GetUser(ctx context.Context, userID int64) (*User, error) {
	var u User
	err := s.conn.GetContext(ctx, &u,
		`SELECT user_id, first_name, last_name, username, language FROM users WHERE user_id = $1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: get user %d: %w", userID, err)
	}
	return &u, nil
}

// CreateUser inserts a new user record.
func (s *Session) CreateUser(ctx context.Context, u *User) error {
	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO users (user_id, first_name, last_name, username, language)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (user_id) DO NOTHING`,
		u.UserID, u.FirstName, u.LastName, u.Username, u.Language)
	if err != nil {
		return fmt.Errorf("storage: create user %d: %w", u.UserID, err)
	}
	logger.STORE.LogAttrs(ctx, slog.LevelInfo, "user.created",
		slog.Int64("user_id", u.UserID),
		slog.String("name", u.DisplayName()),
	)
	return nil
}

// GetAdmin loads an admin record. Returns (nil, nil) when the user is not
// an admin.
func (s *Session) GetAdmin(ctx context.Context, userID int64) (*Admin, error) {
	var a Admin
	err := s.conn.GetContext(ctx, &a,
		`SELECT user_id, is_owner FROM admins WHERE user_id = $1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: get admin %d: %w", userID, err)
	}
	return &a, nil
}

// HasAdmins reports whether any admin exists yet.
func (s *Session) HasAdmins(ctx context.Context) (bool, error) {
	var n int
	if err := s.conn.GetContext(ctx, &n, `SELECT COUNT(*) FROM admins`); err != nil {
		return false, fmt.Errorf("storage: count admins: %w", err)
	}
	return n > 0, nil
}

// ListAdmins returns all admin records.
func (s *Session) ListAdmins(ctx context.Context) ([]Admin, error) {
	var admins []Admin
	if err := s.conn.SelectContext(ctx, &admins, `SELECT user_id, is_owner FROM admins ORDER BY user_id`); err != nil {
		return nil, fmt.Errorf("storage: list admins: %w", err)
	}
	return admins, nil
}

// CountUsers returns the total number of registered users.
func (s *Session) CountUsers(ctx context.Context) (int, error) {
	var n int
	if err := s.conn.GetContext(ctx, &n, `SELECT COUNT(*) FROM users`); err != nil {
		return 0, fmt.Errorf("storage: count users: %w", err)
	}
	return n, nil
}

// PromoteAdmin grants admin rights to an existing user.
func (s *Session) PromoteAdmin(ctx context.Context, userID int64, isOwner bool) error {
	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO admins (user_id, is_owner) VALUES ($1, $2)
		 ON CONFLICT (user_id) DO UPDATE SET is_owner = EXCLUDED.is_owner`,
		userID, isOwner)
	if err != nil {
		return fmt.Errorf("storage: promote admin %d: %w", userID, err)
	}
	logger.STORE.LogAttrs(ctx, slog.LevelInfo, "admin.promoted",
		slog.Int64("user_id", userID),
		slog.Bool("is_owner", isOwner),
	)
	return nil
}
