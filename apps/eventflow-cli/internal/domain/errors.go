package domain

import (
	"errors"
	"net/http"
	"strings"
)

// Domain errors
var (
	// Transport errors
	ErrTransport = errors.New("could not reach the server, please try again")

	// Session errors
	ErrAuthenticationInvalid = errors.New("session is invalid or has expired")
	ErrAuthorizationDenied   = errors.New("you do not have permission to perform this action")
	ErrNotAuthenticated      = errors.New("not authenticated")
	ErrDecodeFailure         = errors.New("token claims could not be decoded")

	// Invitation errors
	ErrInvitationExpired = errors.New("invitation has expired")
	ErrInvitationInvalid = errors.New("invitation is invalid")
	ErrIdentityMismatch  = errors.New("invitation was sent to a different email address")
	ErrAlreadyRegistered = errors.New("already registered to this event")
	ErrCapacityExceeded  = errors.New("event is full")
	ErrEventUnavailable  = errors.New("event is cancelled or finished")

	// Generic request errors
	ErrNotFound   = errors.New("resource not found")
	ErrValidation = errors.New("invalid request")
	ErrConflict   = errors.New("request conflicts with current state")
	ErrServer     = errors.New("server error")
)

// RequestError is returned for every failed API call.
// Kind is one of the sentinel errors above.
type RequestError struct {
	Status  int
	Code    string
	Message string
	Kind    error
}

func (e *RequestError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Kind != nil {
		return e.Kind.Error()
	}
	return http.StatusText(e.Status)
}

func (e *RequestError) Unwrap() error {
	return e.Kind
}

// ServerMessage returns the message the server sent with a failed request, if any
func ServerMessage(err error) string {
	var re *RequestError
	if errors.As(err, &re) {
		return re.Message
	}
	return ""
}

// Classify maps an HTTP status and the server's message to a sentinel error.
// Known server messages take precedence over the status.
func Classify(status int, message string) error {
	m := strings.ToLower(message)
	switch {
	case strings.Contains(m, "already registered"):
		return ErrAlreadyRegistered
	case strings.Contains(m, "event is full") || strings.Contains(m, "no available spots"):
		return ErrCapacityExceeded
	case strings.Contains(m, "cancelled or finished"):
		return ErrEventUnavailable
	case strings.Contains(m, "log in with that email"):
		return ErrIdentityMismatch
	case strings.Contains(m, "invitation") && strings.Contains(m, "expired"):
		return ErrInvitationExpired
	case strings.Contains(m, "invalid invitation") || strings.Contains(m, "not in pending state"):
		return ErrInvitationInvalid
	}

	switch {
	case status == http.StatusUnauthorized:
		return ErrAuthenticationInvalid
	case status == http.StatusForbidden:
		return ErrAuthorizationDenied
	case status == http.StatusNotFound:
		return ErrNotFound
	case status == http.StatusConflict:
		return ErrConflict
	case status >= 500:
		return ErrServer
	default:
		return ErrValidation
	}
}

// IsSessionError checks if the error invalidates or requires a session
func IsSessionError(err error) bool {
	return errors.Is(err, ErrAuthenticationInvalid) ||
		errors.Is(err, ErrNotAuthenticated) ||
		errors.Is(err, ErrDecodeFailure)
}

// IsInvitationTerminal checks if the invitation itself can no longer be used
func IsInvitationTerminal(err error) bool {
	return errors.Is(err, ErrInvitationExpired) ||
		errors.Is(err, ErrInvitationInvalid)
}

// IsAvailabilityError checks if the event cannot take the registration
func IsAvailabilityError(err error) bool {
	return errors.Is(err, ErrCapacityExceeded) ||
		errors.Is(err, ErrEventUnavailable)
}

// IsRetryable checks if the same request may succeed if repeated
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransport) || errors.Is(err, ErrServer)
}
