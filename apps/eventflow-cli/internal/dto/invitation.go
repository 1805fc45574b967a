package dto

import (
	"strings"

	"github.com/Z4phxr/eventflow-client/apps/eventflow-cli/internal/domain"
)

// InvitationRequest is the create invitation payload
type InvitationRequest struct {
	InviteeEmail string `json:"inviteeEmail"`
}

// InvitationResponse is an invitation as listed for an event
type InvitationResponse struct {
	ID           string    `json:"id"`
	EventID      string    `json:"eventId"`
	InviteeEmail string    `json:"inviteeEmail"`
	Status       string    `json:"status"`
	CreatedAt    Timestamp `json:"createdAt"`
	ExpiresAt    Timestamp `json:"expiresAt"`
}

// ToDomain converts the payload to a domain invitation
func (r *InvitationResponse) ToDomain() *domain.Invitation {
	return &domain.Invitation{
		ID:           r.ID,
		EventID:      r.EventID,
		InviteeEmail: r.InviteeEmail,
		Status:       domain.InvitationStatus(strings.ToUpper(r.Status)),
		CreatedAt:    r.CreatedAt.Time,
		ExpiresAt:    r.ExpiresAt.Time,
	}
}

// VerifyInvitationResponse is the result of verifying an invitation token.
// eventStatus and availableSpots are optional.
type VerifyInvitationResponse struct {
	EventID          string     `json:"eventId"`
	EventTitle       string     `json:"eventTitle"`
	EventDescription string     `json:"eventDescription"`
	EventAddress     string     `json:"eventAddress"`
	EventDate        *Timestamp `json:"eventDate"`
	EventStatus      string     `json:"eventStatus,omitempty"`
	AvailableSpots   *int       `json:"availableSpots,omitempty"`
	InviteeEmail     string     `json:"inviteeEmail"`
	UserExists       bool       `json:"userExists"`
}

// ToDomain converts the payload to an invitation context for token
func (r *VerifyInvitationResponse) ToDomain(token string) *domain.InvitationContext {
	ctx := &domain.InvitationContext{
		Token:            token,
		InviteeEmail:     r.InviteeEmail,
		EventID:          r.EventID,
		EventTitle:       r.EventTitle,
		EventDescription: r.EventDescription,
		EventAddress:     r.EventAddress,
		EventStatus:      domain.EventStatus(strings.ToUpper(r.EventStatus)),
		AvailableSpots:   r.AvailableSpots,
		UserExists:       r.UserExists,
	}
	if r.EventDate != nil && !r.EventDate.IsZero() {
		t := r.EventDate.Time
		ctx.EventDate = &t
	}
	return ctx
}

// AcceptRegisterResponse is the result of accepting an invitation and registering
type AcceptRegisterResponse struct {
	Message    string `json:"message"`
	EventID    string `json:"eventId"`
	EventTitle string `json:"eventTitle"`
	Registered bool   `json:"registered"`
}

// AlreadyRegistered reports whether the server says the user was registered before
func (r *AcceptRegisterResponse) AlreadyRegistered() bool {
	return strings.Contains(strings.ToLower(r.Message), "already registered")
}

// DeclineInvitationResponse is the result of declining an invitation
type DeclineInvitationResponse struct {
	Message         string `json:"message"`
	Declined        bool   `json:"declined"`
	AlreadyDeclined bool   `json:"alreadyDeclined"`
	AlreadyAccepted bool   `json:"alreadyAccepted"`
	Expired         bool   `json:"expired"`
}

// ToDomain converts the payload to a decline outcome
func (r *DeclineInvitationResponse) ToDomain() *domain.DeclineOutcome {
	kind := domain.DeclineDeclined
	switch {
	case r.AlreadyDeclined:
		kind = domain.DeclineAlreadyDeclined
	case r.AlreadyAccepted:
		kind = domain.DeclineAlreadyAccepted
	case r.Expired:
		kind = domain.DeclineExpired
	}
	return &domain.DeclineOutcome{Kind: kind, Message: r.Message}
}
