package domain

import "time"

// NotificationType represents the kind of a notification
type NotificationType string

const (
	NotificationEventCreated          NotificationType = "EVENT_CREATED"
	NotificationEventUpdated          NotificationType = "EVENT_UPDATED"
	NotificationEventDeleted          NotificationType = "EVENT_DELETED"
	NotificationRegistrationConfirmed NotificationType = "REGISTRATION_CONFIRMED"
	NotificationRegistrationCancelled NotificationType = "REGISTRATION_CANCELLED"
	NotificationInvitationReceived    NotificationType = "INVITATION_RECEIVED"
)

// NotificationEvent is a single notification shown in the live feed
type NotificationEvent struct {
	ID        string           `json:"id"`
	Type      NotificationType `json:"type"`
	Message   string           `json:"message"`
	EventID   *string          `json:"event_id,omitempty"`
	UserID    *string          `json:"user_id,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	Read      bool             `json:"read"`
}

// FeedMode is the delivery mode of the notification feed
type FeedMode string

const (
	FeedModeOff     FeedMode = "off"
	FeedModePolling FeedMode = "polling"
	FeedModePushing FeedMode = "pushing"
)
