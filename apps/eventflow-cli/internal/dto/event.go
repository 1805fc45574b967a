package dto

import (
	"net/url"
	"strings"
	"time"

	"github.com/Z4phxr/eventflow-client/apps/eventflow-cli/internal/domain"
)

// EventResponse is the event payload
type EventResponse struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	StartAt        Timestamp `json:"startAt"`
	EndAt          Timestamp `json:"endAt"`
	Address        string    `json:"address"`
	City           string    `json:"city"`
	Latitude       *float64  `json:"latitude"`
	Longitude      *float64  `json:"longitude"`
	Capacity       int       `json:"capacity"`
	AvailableSpots int       `json:"availableSpots"`
	Status         string    `json:"status"`
	OrganizerID    string    `json:"organizerId"`
	CreatedAt      Timestamp `json:"createdAt"`
	UpdatedAt      Timestamp `json:"updatedAt"`
}

// ToDomain converts the payload to a domain event
func (r *EventResponse) ToDomain() *domain.Event {
	return &domain.Event{
		ID:             r.ID,
		Title:          r.Title,
		Description:    r.Description,
		StartAt:        r.StartAt.Time,
		EndAt:          r.EndAt.Time,
		Address:        r.Address,
		City:           r.City,
		Latitude:       r.Latitude,
		Longitude:      r.Longitude,
		Capacity:       r.Capacity,
		AvailableSpots: r.AvailableSpots,
		Status:         domain.EventStatus(strings.ToUpper(r.Status)),
		OrganizerID:    r.OrganizerID,
		CreatedAt:      r.CreatedAt.Time,
		UpdatedAt:      r.UpdatedAt.Time,
	}
}

// EventRequest is the create and update payload
type EventRequest struct {
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	StartAt     Timestamp `json:"startAt"`
	EndAt       Timestamp `json:"endAt"`
	Address     string    `json:"address"`
	City        string    `json:"city,omitempty"`
	Capacity    int       `json:"capacity"`
	Status      string    `json:"status,omitempty"`
}

// Validate checks the event fields
func (r *EventRequest) Validate() (bool, string) {
	if strings.TrimSpace(r.Title) == "" {
		return false, "Title is required"
	}
	if strings.TrimSpace(r.Address) == "" {
		return false, "Address is required"
	}
	if r.StartAt.IsZero() || r.EndAt.IsZero() {
		return false, "Start and end time are required"
	}
	if !r.EndAt.After(r.StartAt.Time) {
		return false, "End time must be after start time"
	}
	if r.Capacity < 1 {
		return false, "Capacity must be at least 1"
	}
	return true, ""
}

// EventFilter holds the optional event listing filters
type EventFilter struct {
	DateFrom *time.Time
	DateTo   *time.Time
	City     string
	Status   domain.EventStatus
}

// Query encodes the filter as query parameters
func (f *EventFilter) Query() url.Values {
	q := url.Values{}
	if f == nil {
		return q
	}
	if f.DateFrom != nil {
		q.Set("dateFrom", f.DateFrom.Format(time.RFC3339))
	}
	if f.DateTo != nil {
		q.Set("dateTo", f.DateTo.Format(time.RFC3339))
	}
	if f.City != "" {
		q.Set("city", f.City)
	}
	if f.Status != "" {
		q.Set("status", string(f.Status))
	}
	return q
}

// RegistrationResponse is the registration payload
type RegistrationResponse struct {
	ID        string    `json:"id"`
	EventID   string    `json:"eventId"`
	UserID    string    `json:"userId"`
	Username  string    `json:"username,omitempty"`
	Email     string    `json:"email,omitempty"`
	Status    string    `json:"status"`
	CreatedAt Timestamp `json:"createdAt"`
}

// ToDomain converts the payload to a domain registration
func (r *RegistrationResponse) ToDomain() *domain.Registration {
	return &domain.Registration{
		ID:        r.ID,
		EventID:   r.EventID,
		UserID:    r.UserID,
		Username:  r.Username,
		Email:     r.Email,
		Status:    r.Status,
		CreatedAt: r.CreatedAt.Time,
	}
}

// WeatherResponse is the weather forecast payload
type WeatherResponse struct {
	Temperature    *float64 `json:"temperature"`
	TemperatureMax *float64 `json:"temperatureMax"`
	TemperatureMin *float64 `json:"temperatureMin"`
	Condition      string   `json:"condition"`
	WindSpeed      *float64 `json:"windSpeed"`
	Humidity       *int     `json:"humidity"`
	Precipitation  *float64 `json:"precipitation"`
	Forecast       bool     `json:"forecast"`
	WeatherCode    *int     `json:"weatherCode"`
}

// ToDomain converts the payload to domain weather
func (r *WeatherResponse) ToDomain() *domain.Weather {
	return &domain.Weather{
		Temperature:    r.Temperature,
		TemperatureMax: r.TemperatureMax,
		TemperatureMin: r.TemperatureMin,
		Condition:      r.Condition,
		WindSpeed:      r.WindSpeed,
		Humidity:       r.Humidity,
		Precipitation:  r.Precipitation,
		Forecast:       r.Forecast,
		WeatherCode:    r.WeatherCode,
	}
}
