package dto

import (
	"net/mail"
	"strings"

	"github.com/Z4phxr/eventflow-client/apps/eventflow-cli/internal/domain"
)

// LoginRequest represents login request
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Validate checks required fields
func (r *LoginRequest) Validate() (bool, string) {
	if strings.TrimSpace(r.Username) == "" {
		return false, "Username is required"
	}
	if r.Password == "" {
		return false, "Password is required"
	}
	return true, ""
}

// RegisterRequest represents registration request
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty"`
}

// Validate checks the registration fields the server would reject
func (r *RegisterRequest) Validate() (bool, string) {
	if ok, msg := r.ValidateAccount(); !ok {
		return ok, msg
	}
	if len(r.Password) < 6 {
		return false, "Password must be at least 6 characters"
	}
	return true, ""
}

// ValidateAccount checks every field except the password, so a prompt for it
// can be skipped when the rest is already wrong
func (r *RegisterRequest) ValidateAccount() (bool, string) {
	if len(strings.TrimSpace(r.Username)) < 3 {
		return false, "Username must be at least 3 characters"
	}
	if _, err := mail.ParseAddress(r.Email); err != nil {
		return false, "Email must be a valid address"
	}
	if r.Role != "" {
		switch domain.Role(strings.ToUpper(r.Role)) {
		case domain.RoleUser, domain.RoleOrganizer:
		default:
			return false, "Role must be USER or ORGANIZER"
		}
	}
	return true, ""
}

// AuthResponse represents the login and registration response
type AuthResponse struct {
	Token    string `json:"token"`
	ID       string `json:"id,omitempty"`
	UserID   string `json:"userId,omitempty"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

// Identity returns the identity carried by the response.
// The id falls back to userId, then to the token's claims at the caller.
func (r *AuthResponse) Identity() domain.Identity {
	id := r.ID
	if id == "" {
		id = r.UserID
	}
	return domain.Identity{
		ID:       id,
		Username: r.Username,
		Email:    r.Email,
		Role:     domain.ParseRole(r.Role),
	}
}
