// Package storage persists bot users and admins in Postgres.
package storage

import (
	"database/sql"
	"fmt"
	"strings"
)

// User is one registered bot user.
type User struct {
	UserID    int64          `db:"user_id"`
	FirstName string         `db:"first_name"`
	LastName  sql.NullString `db:"last_name"`
	Username  sql.NullString `db:"username"`
	Language  string         `db:"language"`
}

// DisplayName returns the best human-readable name for the user: the
// username when present, otherwise the full name.
func (u *User) DisplayName() string {
	if u.Username.Valid && u.Username.String != "" {
		return "@" + u.Username.String
	}
	return u.FullName()
}

// FullName joins first and last name.
func (u *User) FullName() string {
	if u.LastName.Valid && u.LastName.String != "" {
		return strings.TrimSpace(u.FirstName + " " + u.LastName.String)
	}
	return u.FirstName
}

// Label returns a log-friendly identifier carrying both id and name.
func (u *User) Label() string {
	return fmt.Sprintf("user_%d (%s)", u.UserID, u.DisplayName())
}

// Admin is one administrator record.
type Admin struct {
	UserID  int64 `db:"user_id"`
	IsOwner bool  `db:"is_owner"`
}
