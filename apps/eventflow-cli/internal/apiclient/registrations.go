package apiclient

import (
	"context"
	"net/http"

	"github.com/Z4phxr/eventflow-client/apps/eventflow-cli/internal/domain"
	"github.com/Z4phxr/eventflow-client/apps/eventflow-cli/internal/dto"
)

// RegisterForEvent registers the current user to an event
func (c *Client) RegisterForEvent(ctx context.Context, eventID string) (*domain.Registration, error) {
	var resp dto.RegistrationResponse
	if err := c.do(ctx, http.MethodPost, "/events/"+eventID+"/registrations", &resp); err != nil {
		return nil, err
	}
	return resp.ToDomain(), nil
}

// UnregisterFromEvent cancels the current user's registration
func (c *Client) UnregisterFromEvent(ctx context.Context, eventID string) error {
	return c.do(ctx, http.MethodDelete, "/events/"+eventID+"/registrations/me", nil)
}

// IsRegistered reports whether the current user is registered to an event
func (c *Client) IsRegistered(ctx context.Context, eventID string) (bool, error) {
	var registered bool
	if err := c.do(ctx, http.MethodGet, "/events/"+eventID+"/registrations/me", &registered); err != nil {
		return false, err
	}
	return registered, nil
}

// ListRegistrations returns the attendees of an event
func (c *Client) ListRegistrations(ctx context.Context, eventID string) ([]*domain.Registration, error) {
	var resp []dto.RegistrationResponse
	if err := c.do(ctx, http.MethodGet, "/events/"+eventID+"/registrations", &resp); err != nil {
		return nil, err
	}
	regs := make([]*domain.Registration, 0, len(resp))
	for i := range resp {
		regs = append(regs, resp[i].ToDomain())
	}
	return regs, nil
}
