package domain

import "time"

// EventStatus represents the lifecycle status of an event
type EventStatus string

const (
	EventStatusPlanned   EventStatus = "PLANNED"
	EventStatusOngoing   EventStatus = "ONGOING"
	EventStatusFinished  EventStatus = "FINISHED"
	EventStatusCancelled EventStatus = "CANCELLED"
)

// IsClosed reports whether the event no longer accepts registrations
func (s EventStatus) IsClosed() bool {
	return s == EventStatusFinished || s == EventStatusCancelled
}

// Event represents an event
type Event struct {
	ID             string      `json:"id"`
	Title          string      `json:"title"`
	Description    string      `json:"description"`
	StartAt        time.Time   `json:"start_at"`
	EndAt          time.Time   `json:"end_at"`
	Address        string      `json:"address"`
	City           string      `json:"city"`
	Latitude       *float64    `json:"latitude,omitempty"`
	Longitude      *float64    `json:"longitude,omitempty"`
	Capacity       int         `json:"capacity"`
	AvailableSpots int         `json:"available_spots"`
	Status         EventStatus `json:"status"`
	OrganizerID    string      `json:"organizer_id"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// Registration represents a user's registration to an event
type Registration struct {
	ID        string    `json:"id"`
	EventID   string    `json:"event_id"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username,omitempty"`
	Email     string    `json:"email,omitempty"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// InvitationStatus represents invitation status
type InvitationStatus string

const (
	InvitationStatusPending  InvitationStatus = "PENDING"
	InvitationStatusAccepted InvitationStatus = "ACCEPTED"
	InvitationStatusDeclined InvitationStatus = "DECLINED"
	InvitationStatusExpired  InvitationStatus = "EXPIRED"
)

// Invitation is an organizer-issued invitation as listed for an event
type Invitation struct {
	ID           string           `json:"id"`
	EventID      string           `json:"event_id"`
	InviteeEmail string           `json:"invitee_email"`
	Status       InvitationStatus `json:"status"`
	CreatedAt    time.Time        `json:"created_at"`
	ExpiresAt    time.Time        `json:"expires_at"`
}

// InvitationContext is the verified view of an invitation token.
// It is read-only once fetched.
type InvitationContext struct {
	Token            string      `json:"token"`
	InviteeEmail     string      `json:"invitee_email"`
	EventID          string      `json:"event_id"`
	EventTitle       string      `json:"event_title"`
	EventDescription string      `json:"event_description,omitempty"`
	EventAddress     string      `json:"event_address,omitempty"`
	EventDate        *time.Time  `json:"event_date,omitempty"`
	EventStatus      EventStatus `json:"event_status,omitempty"`
	AvailableSpots   *int        `json:"available_spots,omitempty"`
	UserExists       bool        `json:"user_exists"`
}

// IsFull reports whether the event is known to have no remaining capacity
func (c *InvitationContext) IsFull() bool {
	return c.AvailableSpots != nil && *c.AvailableSpots <= 0
}

// IsClosed reports whether the event is cancelled or finished
func (c *InvitationContext) IsClosed() bool {
	return c.EventStatus.IsClosed()
}

// OutcomeKind is the terminal result of accepting an invitation
type OutcomeKind string

const (
	OutcomeRegistered        OutcomeKind = "registered"
	OutcomeAlreadyRegistered OutcomeKind = "already_registered"
	OutcomeFailed            OutcomeKind = "failed"
)

// InvitationOutcome is the terminal state of an invitation acceptance
type InvitationOutcome struct {
	Kind    OutcomeKind `json:"kind"`
	EventID string      `json:"event_id,omitempty"`
	Reason  string      `json:"reason,omitempty"`
}

// DeclineKind is the result of declining an invitation
type DeclineKind string

const (
	DeclineDeclined        DeclineKind = "declined"
	DeclineAlreadyDeclined DeclineKind = "already_declined"
	DeclineAlreadyAccepted DeclineKind = "already_accepted"
	DeclineExpired         DeclineKind = "expired"
)

// DeclineOutcome is the result of declining an invitation
type DeclineOutcome struct {
	Kind    DeclineKind `json:"kind"`
	Message string      `json:"message"`
}

// Weather is the forecast for an event's location and date
type Weather struct {
	Temperature    *float64 `json:"temperature,omitempty"`
	TemperatureMax *float64 `json:"temperature_max,omitempty"`
	TemperatureMin *float64 `json:"temperature_min,omitempty"`
	Condition      string   `json:"condition"`
	WindSpeed      *float64 `json:"wind_speed,omitempty"`
	Humidity       *int     `json:"humidity,omitempty"`
	Precipitation  *float64 `json:"precipitation,omitempty"`
	Forecast       bool     `json:"forecast"`
	WeatherCode    *int     `json:"weather_code,omitempty"`
}
