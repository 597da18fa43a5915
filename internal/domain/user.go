// Package domain contains entity without logic, just meta-data
package domain

import (
	"time"
)

const (
	MinUsernameLen = 3
	MaxUsernameLen = 36
)

type UserID string

// Identity is the authenticated user reference attached to a connection.
// It never changes once a connection holds it.
type Identity struct {
	ID       UserID `json:"id"`
	Username string `json:"username"`
}

// User is the persisted account record.
type User struct {
	ID           UserID    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"passwordHash"`
	CreatedAt    time.Time `json:"createdAt"`
	LastLogin    time.Time `json:"lastLogin,omitempty"`
}

func (u *User) Identity() Identity {
	return Identity{ID: u.ID, Username: u.Username}
}
