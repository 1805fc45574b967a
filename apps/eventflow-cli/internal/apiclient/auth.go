package apiclient

import (
	"context"
	"net/http"

	"github.com/Z4phxr/eventflow-client/apps/eventflow-cli/internal/dto"
)

// Login exchanges credentials for a token
func (c *Client) Login(ctx context.Context, req *dto.LoginRequest) (*dto.AuthResponse, error) {
	var resp dto.AuthResponse
	if err := c.do(ctx, http.MethodPost, "/auth/login", &resp, withBody(req)); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Register creates an account and returns its token
func (c *Client) Register(ctx context.Context, req *dto.RegisterRequest) (*dto.AuthResponse, error) {
	var resp dto.AuthResponse
	if err := c.do(ctx, http.MethodPost, "/auth/register", &resp, withBody(req)); err != nil {
		return nil, err
	}
	return &resp, nil
}
