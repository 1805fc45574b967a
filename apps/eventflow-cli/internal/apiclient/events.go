package apiclient

import (
	"context"
	"net/http"

	"github.com/Z4phxr/eventflow-client/apps/eventflow-cli/internal/domain"
	"github.com/Z4phxr/eventflow-client/apps/eventflow-cli/internal/dto"
)

// ListEvents returns events matching filter
func (c *Client) ListEvents(ctx context.Context, filter *dto.EventFilter) ([]*domain.Event, error) {
	var resp []dto.EventResponse
	if err := c.do(ctx, http.MethodGet, "/events", &resp, withQuery(filter.Query())); err != nil {
		return nil, err
	}
	return toEvents(resp), nil
}

// MyEvents returns the events organized by the current user
func (c *Client) MyEvents(ctx context.Context) ([]*domain.Event, error) {
	var resp []dto.EventResponse
	if err := c.do(ctx, http.MethodGet, "/events/my", &resp); err != nil {
		return nil, err
	}
	return toEvents(resp), nil
}

// GetEvent returns one event
func (c *Client) GetEvent(ctx context.Context, id string) (*domain.Event, error) {
	var resp dto.EventResponse
	if err := c.do(ctx, http.MethodGet, "/events/"+id, &resp); err != nil {
		return nil, err
	}
	return resp.ToDomain(), nil
}

// CreateEvent creates an event
func (c *Client) CreateEvent(ctx context.Context, req *dto.EventRequest) (*domain.Event, error) {
	var resp dto.EventResponse
	if err := c.do(ctx, http.MethodPost, "/events", &resp, withBody(req)); err != nil {
		return nil, err
	}
	return resp.ToDomain(), nil
}

// UpdateEvent replaces an event
func (c *Client) UpdateEvent(ctx context.Context, id string, req *dto.EventRequest) (*domain.Event, error) {
	var resp dto.EventResponse
	if err := c.do(ctx, http.MethodPut, "/events/"+id, &resp, withBody(req)); err != nil {
		return nil, err
	}
	return resp.ToDomain(), nil
}

// DeleteEvent deletes an event
func (c *Client) DeleteEvent(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/events/"+id, nil)
}

// EventWeather returns the weather forecast for an event
func (c *Client) EventWeather(ctx context.Context, id string) (*domain.Weather, error) {
	var resp dto.WeatherResponse
	if err := c.do(ctx, http.MethodGet, "/events/"+id+"/weather", &resp); err != nil {
		return nil, err
	}
	return resp.ToDomain(), nil
}

func toEvents(resp []dto.EventResponse) []*domain.Event {
	events := make([]*domain.Event, 0, len(resp))
	for i := range resp {
		events = append(events, resp[i].ToDomain())
	}
	return events
}
