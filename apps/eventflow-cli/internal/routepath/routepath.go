// Package routepath names the client-facing destinations and the navigator
// that moves between them.
package routepath

import (
	"net/url"
	"strings"
	"sync"
)

// Client-facing routes
const (
	Home          = "/"
	EventDetail   = "/events/:id"
	Login         = "/login"
	Register      = "/register"
	Organizer     = "/organizer"
	Notifications = "/notifications"
	Demo          = "/demo"
	InviteAccept  = "/invite/accept"
	InviteDecline = "/invite/decline"
)

// Event returns the detail route of an event
func Event(id string) string {
	return strings.Replace(EventDetail, ":id", url.PathEscape(id), 1)
}

// LoginExpired is the login entry point after a session was invalidated
func LoginExpired() string {
	return Login + "?session=expired"
}

// AcceptLink returns the invitation acceptance route for token
func AcceptLink(token string) string {
	return InviteAccept + "?token=" + url.QueryEscape(token)
}

// DeclineLink returns the invitation decline route for token
func DeclineLink(token string) string {
	return InviteDecline + "?token=" + url.QueryEscape(token)
}

// InviteToken extracts an invitation token from a raw token or from a link
// such as https://host/invite/accept?token=abc. It returns "" when the link
// carries no token.
func InviteToken(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if !strings.Contains(s, "?") && !strings.Contains(s, "/") {
		return s
	}
	u, err := url.Parse(s)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(u.Query().Get("token"))
}

// Navigator moves the user to a client route
type Navigator interface {
	Navigate(to string)
}

// NavigatorFunc adapts a function to Navigator
type NavigatorFunc func(to string)

// Navigate calls f(to)
func (f NavigatorFunc) Navigate(to string) {
	f(to)
}

// Recorder is a Navigator that remembers every destination
type Recorder struct {
	mu    sync.Mutex
	stack []string
}

// Navigate records to
func (r *Recorder) Navigate(to string) {
	r.mu.Lock()
	r.stack = append(r.stack, to)
	r.mu.Unlock()
}

// Last returns the most recent destination, or ""
func (r *Recorder) Last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.stack) == 0 {
		return ""
	}
	return r.stack[len(r.stack)-1]
}

// All returns every destination in order
func (r *Recorder) All() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.stack...)
}
