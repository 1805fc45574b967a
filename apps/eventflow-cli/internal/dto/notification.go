package dto

import (
	"strings"

	"github.com/Z4phxr/eventflow-client/apps/eventflow-cli/internal/domain"
)

// NotificationResponse is a single notification payload
type NotificationResponse struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	EventID   *string   `json:"eventId"`
	UserID    *string   `json:"userId"`
	Read      bool      `json:"read"`
	CreatedAt Timestamp `json:"createdAt"`
}

// ToDomain converts the payload to a notification event
func (r *NotificationResponse) ToDomain() domain.NotificationEvent {
	return domain.NotificationEvent{
		ID:        r.ID,
		Type:      domain.NotificationType(strings.ToUpper(r.Type)),
		Message:   r.Message,
		EventID:   nonEmpty(r.EventID),
		UserID:    nonEmpty(r.UserID),
		CreatedAt: r.CreatedAt.Time,
		Read:      r.Read,
	}
}

// NotificationPage is one page of the notification listing
type NotificationPage struct {
	Content       []NotificationResponse `json:"content"`
	TotalElements int64                  `json:"totalElements"`
	TotalPages    int                    `json:"totalPages"`
	Number        int                    `json:"number"`
	Size          int                    `json:"size"`
}

// Items converts the page content to notification events
func (p *NotificationPage) Items() []domain.NotificationEvent {
	items := make([]domain.NotificationEvent, 0, len(p.Content))
	for i := range p.Content {
		items = append(items, p.Content[i].ToDomain())
	}
	return items
}

// UnreadCountResponse is the unread notification count
type UnreadCountResponse struct {
	Count int `json:"count"`
}

// ReadAllResponse is the number of notifications marked read
type ReadAllResponse struct {
	Updated int `json:"updated"`
}

func nonEmpty(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}
