package apiclient

import (
	"context"
	"net/http"
	"net/url"

	"github.com/Z4phxr/eventflow-client/apps/eventflow-cli/internal/domain"
	"github.com/Z4phxr/eventflow-client/apps/eventflow-cli/internal/dto"
)

// CreateInvitation invites an email address to an event
func (c *Client) CreateInvitation(ctx context.Context, eventID, email string) (*domain.Invitation, error) {
	var resp dto.InvitationResponse
	err := c.do(ctx, http.MethodPost, "/events/"+eventID+"/invitations", &resp,
		withBody(&dto.InvitationRequest{InviteeEmail: email}))
	if err != nil {
		return nil, err
	}
	return resp.ToDomain(), nil
}

// ListInvitations returns the invitations of an event
func (c *Client) ListInvitations(ctx context.Context, eventID string) ([]*domain.Invitation, error) {
	var resp []dto.InvitationResponse
	if err := c.do(ctx, http.MethodGet, "/events/"+eventID+"/invitations", &resp); err != nil {
		return nil, err
	}
	invitations := make([]*domain.Invitation, 0, len(resp))
	for i := range resp {
		invitations = append(invitations, resp[i].ToDomain())
	}
	return invitations, nil
}

// VerifyInvitation resolves an invitation token without accepting it
func (c *Client) VerifyInvitation(ctx context.Context, token string) (*domain.InvitationContext, error) {
	var resp dto.VerifyInvitationResponse
	if err := c.do(ctx, http.MethodGet, "/invitations/verify", &resp, withQuery(tokenQuery(token))); err != nil {
		return nil, err
	}
	return resp.ToDomain(token), nil
}

// AcceptInvitation accepts an invitation without registering
func (c *Client) AcceptInvitation(ctx context.Context, token string) (*domain.InvitationContext, error) {
	var resp dto.VerifyInvitationResponse
	if err := c.do(ctx, http.MethodPost, "/invitations/accept", &resp, withQuery(tokenQuery(token))); err != nil {
		return nil, err
	}
	return resp.ToDomain(token), nil
}

// AcceptAndRegister accepts an invitation and registers the current user.
// The idempotency key lets the server recognize a repeated submission.
func (c *Client) AcceptAndRegister(ctx context.Context, token, idempotencyKey string) (*dto.AcceptRegisterResponse, error) {
	opts := []requestOption{withQuery(tokenQuery(token))}
	if idempotencyKey != "" {
		opts = append(opts, withHeader(IdempotencyKeyHeader, idempotencyKey))
	}

	var resp dto.AcceptRegisterResponse
	if err := c.do(ctx, http.MethodPost, "/invitations/accept-register", &resp, opts...); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DeclineInvitation declines an invitation
func (c *Client) DeclineInvitation(ctx context.Context, token string) (*domain.DeclineOutcome, error) {
	var resp dto.DeclineInvitationResponse
	if err := c.do(ctx, http.MethodPost, "/invitations/decline", &resp, withQuery(tokenQuery(token))); err != nil {
		return nil, err
	}
	return resp.ToDomain(), nil
}

func tokenQuery(token string) url.Values {
	return url.Values{"token": []string{token}}
}
