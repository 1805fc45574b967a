// Package apiclient is the gateway to the EventFlow REST API. It attaches the
// bearer token according to the route table and invalidates the session when
// the server rejects it.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Z4phxr/eventflow-client/apps/eventflow-cli/internal/domain"
	"github.com/Z4phxr/eventflow-client/apps/eventflow-cli/internal/routepath"
	"github.com/Z4phxr/eventflow-client/pkg/logger"
	"github.com/Z4phxr/eventflow-client/pkg/response"
	"github.com/Z4phxr/eventflow-client/pkg/retry"
)

const maxBodySize = 4 << 20

// Session is the part of the session manager the client needs
type Session interface {
	ActiveToken(ctx context.Context) (string, bool)
	Logout(ctx context.Context) error
}

// Config holds configuration for the API client
type Config struct {
	// BaseURL is the API root, e.g. http://localhost:8080/api
	BaseURL string
	// Timeout bounds one-shot requests; streams are not bounded
	Timeout time.Duration
	// Retry applies to idempotent GET requests
	Retry *retry.Config
	// Transport overrides the base round tripper
	Transport http.RoundTripper
	// UserAgent is sent with every request
	UserAgent string
}

// Client calls the EventFlow API
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	stream    *http.Client
	session   Session
	navigator routepath.Navigator
	routes    *RouteTable
	retry     *retry.Config
	userAgent string
	log       *logger.Logger
}

// New creates a Client
func New(cfg *Config, session Session, navigator routepath.Navigator, log *logger.Logger) (*Client, error) {
	if cfg == nil || cfg.BaseURL == "" {
		return nil, errors.New("api base url is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid api base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid api base url scheme %q", base.Scheme)
	}
	if log == nil {
		log = logger.NewNop()
	}
	if navigator == nil {
		navigator = routepath.NavigatorFunc(func(string) {})
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	retryCfg := retry.DefaultConfig()
	if cfg.Retry != nil {
		c := *cfg.Retry
		retryCfg = &c
	}
	retryCfg.ShouldRetry = isRetryable

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = "eventflow-cli"
	}

	transport := newTransport(cfg.Transport, log.Named("http"))
	return &Client{
		baseURL:   base,
		http:      &http.Client{Transport: transport, Timeout: timeout},
		stream:    &http.Client{Transport: transport},
		session:   session,
		navigator: navigator,
		routes:    NewRouteTable(DefaultRoutes()),
		retry:     retryCfg,
		userAgent: userAgent,
		log:       log.Named("api"),
	}, nil
}

// BaseURL returns the API root
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Routes returns the route table
func (c *Client) Routes() *RouteTable {
	return c.routes
}

// request describes one API call
type request struct {
	method  string
	path    string
	query   url.Values
	body    any
	headers map[string]string
}

type requestOption func(*request)

func withQuery(q url.Values) requestOption {
	return func(r *request) { r.query = q }
}

func withBody(body any) requestOption {
	return func(r *request) { r.body = body }
}

func withHeader(key, value string) requestOption {
	return func(r *request) {
		if r.headers == nil {
			r.headers = make(map[string]string)
		}
		r.headers[key] = value
	}
}

// do performs a request and decodes a successful body into out.
// GET requests are retried on transport errors and gateway failures.
func (c *Client) do(ctx context.Context, method, path string, out any, opts ...requestOption) error {
	req := &request{method: method, path: path}
	for _, opt := range opts {
		opt(req)
	}

	var payload []byte
	if req.body != nil {
		b, err := json.Marshal(req.body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		payload = b
	}

	attempt := func(ctx context.Context) error {
		body, err := c.send(ctx, c.http, req, payload)
		if err != nil {
			return err
		}
		return decodeBody(body, out)
	}

	if method != http.MethodGet {
		return attempt(ctx)
	}

	result := retry.New(c.retry).DoWithCallback(ctx, attempt, func(n int, err error, wait time.Duration) {
		c.log.Debug("Retrying request",
			zap.String("path", path),
			zap.Int("attempt", n),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	})
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return result.Err
}

// send performs one round trip and returns the body of a 2xx response
func (c *Client) send(ctx context.Context, hc *http.Client, req *request, payload []byte) ([]byte, error) {
	resp, carriedToken, err := c.open(ctx, hc, req, payload)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &domain.RequestError{Status: resp.StatusCode, Message: domain.ErrTransport.Error(), Kind: domain.ErrTransport}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return body, nil
	}
	return nil, c.failure(ctx, req, resp.StatusCode, body, carriedToken)
}

// open sends the request and returns the response with its body unread.
// Non-2xx responses are returned as is; the caller owns the body.
func (c *Client) open(ctx context.Context, hc *http.Client, req *request, payload []byte) (*http.Response, bool, error) {
	route := c.routes.Find(req.path)

	var token string
	if route.AttachToken() && c.session != nil {
		token, _ = c.session.ActiveToken(ctx)
	}
	if route.RequireAuth && token == "" {
		return nil, false, &domain.RequestError{
			Status:  http.StatusUnauthorized,
			Message: "You need to sign in first",
			Kind:    domain.ErrNotAuthenticated,
		}
	}

	u := *c.baseURL
	u.Path = c.baseURL.Path + req.path
	if len(req.query) > 0 {
		u.RawQuery = req.query.Encode()
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, u.String(), body)
	if err != nil {
		return nil, false, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.userAgent)
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, v := range req.headers {
		httpReq.Header.Set(k, v)
	}
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := hc.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		c.log.Debug("Transport failure", zap.String("path", req.path), zap.Error(err))
		return nil, false, &domain.RequestError{Message: domain.ErrTransport.Error(), Kind: domain.ErrTransport}
	}
	return resp, token != "", nil
}

// failure turns a non-2xx response into a RequestError and applies the
// session side effects of a rejected token
func (c *Client) failure(ctx context.Context, req *request, status int, body []byte, carriedToken bool) error {
	code, message := response.ParseError(body)

	var kind error
	switch status {
	case http.StatusUnauthorized:
		kind = domain.ErrAuthenticationInvalid
	case http.StatusForbidden:
		kind = domain.ErrAuthorizationDenied
		// accept-register may refuse a different signed-in identity with 403
		if errors.Is(domain.Classify(status, message), domain.ErrIdentityMismatch) {
			kind = domain.ErrIdentityMismatch
		}
	default:
		kind = domain.Classify(status, message)
	}

	if status == http.StatusUnauthorized && carriedToken && !c.routes.Find(req.path).AuthEndpoint {
		c.log.Info("Session rejected by server, signing out", zap.String("path", req.path))
		if err := c.session.Logout(ctx); err != nil {
			c.log.Warn("Failed to clear rejected session", zap.Error(err))
		}
		c.navigator.Navigate(routepath.LoginExpired())
	}

	if message == "" {
		message = kind.Error()
	}
	return &domain.RequestError{Status: status, Code: code, Message: message, Kind: kind}
}

func decodeBody(body []byte, out any) error {
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(response.Unwrap(body), out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func isRetryable(err error) bool {
	var re *domain.RequestError
	if !errors.As(err, &re) {
		return false
	}
	if errors.Is(re.Kind, domain.ErrTransport) {
		return true
	}
	switch re.Status {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}
