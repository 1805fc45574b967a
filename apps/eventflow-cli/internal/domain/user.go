package domain

import (
	"strings"
	"time"
)

// Role represents user role
type Role string

const (
	RoleUser      Role = "USER"
	RoleOrganizer Role = "ORGANIZER"
	RoleAdmin     Role = "ADMIN"
)

// ParseRole normalizes a role string. Unknown values map to RoleUser.
func ParseRole(s string) Role {
	switch Role(strings.ToUpper(strings.TrimSpace(s))) {
	case RoleOrganizer:
		return RoleOrganizer
	case RoleAdmin:
		return RoleAdmin
	default:
		return RoleUser
	}
}

// Identity is the authenticated user as known to the client
type Identity struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     Role   `json:"role"`
}

// Session is the identity plus token currently trusted by the client
type Session struct {
	Identity  Identity  `json:"identity"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IsValidAt reports whether the session has not expired at t
func (s *Session) IsValidAt(t time.Time) bool {
	return s != nil && s.Token != "" && s.ExpiresAt.After(t)
}

// StoredSession is the durable session tuple. It is written and cleared as a whole.
type StoredSession struct {
	Token    string `json:"token"`
	ID       string `json:"id,omitempty"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     Role   `json:"role"`
}

// Complete reports whether every required field of the tuple is present
func (s *StoredSession) Complete() bool {
	return s != nil && s.Token != "" && s.Username != "" && s.Role != ""
}

// Claims are the unverified fields decoded from a token payload
type Claims struct {
	Subject   string    `json:"sub"`
	UserID    string    `json:"user_id"`
	Email     string    `json:"email,omitempty"`
	Role      Role      `json:"role,omitempty"`
	ExpiresAt time.Time `json:"exp"`
}
