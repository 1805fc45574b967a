package apiclient

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/Z4phxr/eventflow-client/apps/eventflow-cli/internal/dto"
)

// ListNotifications returns one page of the current user's notifications
func (c *Client) ListNotifications(ctx context.Context, page, size int) (*dto.NotificationPage, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("size", strconv.Itoa(size))

	var resp dto.NotificationPage
	if err := c.do(ctx, http.MethodGet, "/notifications", &resp, withQuery(q)); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UnreadCount returns the number of unread notifications
func (c *Client) UnreadCount(ctx context.Context) (int, error) {
	var resp dto.UnreadCountResponse
	if err := c.do(ctx, http.MethodGet, "/notifications/unread-count", &resp); err != nil {
		return 0, err
	}
	return resp.Count, nil
}

// MarkNotificationRead marks one notification read
func (c *Client) MarkNotificationRead(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPut, "/notifications/"+id+"/read", nil)
}

// MarkAllNotificationsRead marks every notification read and returns how many changed
func (c *Client) MarkAllNotificationsRead(ctx context.Context) (int, error) {
	var resp dto.ReadAllResponse
	if err := c.do(ctx, http.MethodPut, "/notifications/read-all", &resp); err != nil {
		return 0, err
	}
	return resp.Updated, nil
}

// OpenNotificationStream opens the server-push stream for userID. The caller
// must close the returned body; cancelling ctx also ends the stream.
func (c *Client) OpenNotificationStream(ctx context.Context, userID string) (io.ReadCloser, error) {
	req := &request{
		method:  http.MethodGet,
		path:    "/notifications/stream",
		query:   url.Values{"userId": []string{userID}},
		headers: map[string]string{"Accept": "text/event-stream", "Cache-Control": "no-cache"},
	}

	resp, carriedToken, err := c.open(ctx, c.stream, req, nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
		return nil, c.failure(ctx, req, resp.StatusCode, body, carriedToken)
	}
	return resp.Body, nil
}
