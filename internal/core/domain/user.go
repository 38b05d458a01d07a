package domain

import "time"

// User models a registered account. The username is unique in the directory
// and is the display name other users address messages to.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Identity returns the authenticated identity this account resolves to.
func (u *User) Identity() Identity {
	return Identity{ID: u.ID, DisplayName: u.Username}
}

// Identity is the authenticated subject of a connection. It is derived from a
// verified credential and never changes for the lifetime of a session.
type Identity struct {
	ID          string `json:"id"`
	DisplayName string `json:"username"`
}
