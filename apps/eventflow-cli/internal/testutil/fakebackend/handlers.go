package fakebackend

import (
	"io"
	"net/http"
	"net/mail"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/Z4phxr/eventflow-client/apps/eventflow-cli/internal/dto"
	"github.com/Z4phxr/eventflow-client/pkg/middleware"
	"github.com/Z4phxr/eventflow-client/pkg/telemetry"
)

const userKey = "user"

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), telemetry.ServerMiddleware("fake-eventflow"), s.record(), s.stubbed())

	api := r.Group("/api")
	api.POST("/auth/register", s.register)
	api.POST("/auth/login", s.login)

	api.GET("/events", s.listEvents)
	api.GET("/events/my", s.auth(), s.myEvents)
	api.GET("/events/:id", s.getEvent)
	api.POST("/events", s.auth(), s.createEvent)
	api.PUT("/events/:id", s.auth(), s.updateEvent)
	api.DELETE("/events/:id", s.auth(), s.deleteEvent)
	api.GET("/events/:id/weather", s.weather)

	api.POST("/events/:id/registrations", s.auth(), s.registerAttendee)
	api.DELETE("/events/:id/registrations/me", s.auth(), s.unregisterAttendee)
	api.GET("/events/:id/registrations/me", s.auth(), s.isRegistered)
	api.GET("/events/:id/registrations", s.auth(), s.listRegistrations)

	api.POST("/events/:id/invitations", s.auth(), s.createInvitation)
	api.GET("/events/:id/invitations", s.auth(), s.listInvitations)
	api.GET("/invitations/verify", s.verifyInvitation)
	api.POST("/invitations/accept", s.verifyInvitation)
	api.POST("/invitations/accept-register", s.auth(), middleware.Idempotency(middleware.IdempotencyOptions{
		Store: s.idem,
		Scope: func(c *gin.Context) string { return currentUser(c).ID },
	}), s.acceptRegister)
	api.POST("/invitations/decline", s.declineInvitation)

	api.GET("/notifications", s.auth(), s.listNotifications)
	api.GET("/notifications/unread-count", s.auth(), s.unreadCount)
	api.PUT("/notifications/read-all", s.auth(), s.readAll)
	api.PUT("/notifications/:id/read", s.auth(), s.markRead)
	api.GET("/notifications/stream", s.stream)

	return r
}

// record stores every request before it is handled
func (s *Server) record() gin.HandlerFunc {
	return func(c *gin.Context) {
		s.mu.Lock()
		s.requests = append(s.requests, RecordedRequest{
			Method:        c.Request.Method,
			Path:          c.Request.URL.Path,
			Query:         c.Request.URL.Query(),
			Authorization: c.GetHeader("Authorization"),
			Header:        c.Request.Header.Clone(),
			TraceID:       telemetry.RemoteTraceID(c),
		})
		s.mu.Unlock()
		c.Next()
	}
}

// stubbed answers with the first matching stub
func (s *Server) stubbed() gin.HandlerFunc {
	return func(c *gin.Context) {
		s.mu.Lock()
		var hit *Stub
		for i, st := range s.stubs {
			if st.Method == c.Request.Method && "/api"+st.Path == c.Request.URL.Path {
				hit = st
				if st.Times > 0 {
					st.Times--
					if st.Times == 0 {
						s.stubs = append(s.stubs[:i], s.stubs[i+1:]...)
					}
				}
				break
			}
		}
		s.mu.Unlock()

		if hit == nil {
			c.Next()
			return
		}
		if hit.Delay > 0 {
			select {
			case <-time.After(hit.Delay):
			case <-c.Request.Context().Done():
				c.Abort()
				return
			}
		}
		switch body := hit.Body.(type) {
		case nil:
			c.AbortWithStatus(hit.Status)
		case string:
			c.Abort()
			c.String(hit.Status, body)
		default:
			c.AbortWithStatusJSON(hit.Status, body)
		}
	}
}

func (s *Server) auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		u := s.authenticate(c)
		if u == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.Set(userKey, u)
		c.Next()
	}
}

func (s *Server) authenticate(c *gin.Context) *user {
	header := c.GetHeader("Authorization")
	raw := strings.TrimPrefix(header, "Bearer ")
	if raw == "" || raw == header {
		return nil
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return []byte(signingKey), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil
	}
	sub, _ := claims.GetSubject()

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[sub]
}

func currentUser(c *gin.Context) *user {
	return c.MustGet(userKey).(*user)
}

func fail(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": message})
}

func isManager(u *user, e *event) bool {
	return u.Role == "ADMIN" || e.OrganizerID == u.ID
}

// Auth

func (s *Server) register(c *gin.Context) {
	var req dto.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if ok, msg := req.Validate(); !ok {
		fail(c, http.StatusBadRequest, msg)
		return
	}

	s.mu.Lock()
	if _, exists := s.users[req.Username]; exists {
		s.mu.Unlock()
		fail(c, http.StatusConflict, "Username already exists")
		return
	}
	u := s.addUserLocked(req.Username, req.Email, req.Password, req.Role)
	token := s.mintLocked(u)
	s.mu.Unlock()

	c.JSON(http.StatusCreated, dto.AuthResponse{Token: token, Username: u.Username, Email: u.Email, Role: u.Role})
}

func (s *Server) login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	s.mu.Lock()
	u := s.users[req.Username]
	if u == nil || bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(req.Password)) != nil {
		s.mu.Unlock()
		fail(c, http.StatusUnauthorized, "Invalid username or password")
		return
	}
	token := s.mintLocked(u)
	s.mu.Unlock()

	c.JSON(http.StatusOK, dto.AuthResponse{Token: token, Username: u.Username, Email: u.Email, Role: u.Role})
}

// Events

func (s *Server) listEvents(c *gin.Context) {
	city := c.Query("city")
	status := strings.ToUpper(c.Query("status"))

	s.mu.Lock()
	out := make([]dto.EventResponse, 0, len(s.events))
	for _, e := range s.events {
		if city != "" && !strings.EqualFold(e.City, city) {
			continue
		}
		if status != "" && e.Status != status {
			continue
		}
		out = append(out, e.EventResponse)
	}
	s.mu.Unlock()

	sortEvents(out)
	c.JSON(http.StatusOK, out)
}

func (s *Server) myEvents(c *gin.Context) {
	u := currentUser(c)

	s.mu.Lock()
	out := make([]dto.EventResponse, 0)
	for _, e := range s.events {
		if e.OrganizerID == u.ID {
			out = append(out, e.EventResponse)
		}
	}
	s.mu.Unlock()

	sortEvents(out)
	c.JSON(http.StatusOK, out)
}

func sortEvents(events []dto.EventResponse) {
	sort.Slice(events, func(i, j int) bool {
		return events[i].StartAt.Before(events[j].StartAt.Time)
	})
}

func (s *Server) getEvent(c *gin.Context) {
	s.mu.Lock()
	e := s.events[c.Param("id")]
	var resp dto.EventResponse
	if e != nil {
		resp = e.EventResponse
	}
	s.mu.Unlock()

	if e == nil {
		fail(c, http.StatusNotFound, "Event not found")
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) createEvent(c *gin.Context) {
	u := currentUser(c)
	if u.Role != "ORGANIZER" && u.Role != "ADMIN" {
		fail(c, http.StatusForbidden, "Access denied")
		return
	}

	var req dto.EventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if ok, msg := req.Validate(); !ok {
		fail(c, http.StatusBadRequest, msg)
		return
	}

	id := s.AddEvent(dto.EventResponse{
		Title:       req.Title,
		Description: req.Description,
		StartAt:     req.StartAt,
		EndAt:       req.EndAt,
		Address:     req.Address,
		City:        req.City,
		Capacity:    req.Capacity,
		OrganizerID: u.ID,
	})

	s.mu.Lock()
	resp := s.events[id].EventResponse
	s.mu.Unlock()
	c.JSON(http.StatusCreated, resp)
}

func (s *Server) updateEvent(c *gin.Context) {
	u := currentUser(c)

	var req dto.EventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	s.mu.Lock()
	e := s.events[c.Param("id")]
	switch {
	case e == nil:
		s.mu.Unlock()
		fail(c, http.StatusNotFound, "Event not found")
		return
	case !isManager(u, e):
		s.mu.Unlock()
		fail(c, http.StatusForbidden, "Access denied")
		return
	}
	if req.Title != "" {
		e.Title = req.Title
	}
	if req.Description != "" {
		e.Description = req.Description
	}
	if req.Address != "" {
		e.Address = req.Address
	}
	if req.City != "" {
		e.City = req.City
	}
	if !req.StartAt.IsZero() {
		e.StartAt = req.StartAt
	}
	if !req.EndAt.IsZero() {
		e.EndAt = req.EndAt
	}
	if req.Capacity > 0 {
		e.Capacity = req.Capacity
		e.AvailableSpots = e.Capacity - len(e.Attendees)
	}
	if req.Status != "" {
		e.Status = strings.ToUpper(req.Status)
	}
	e.UpdatedAt = dto.NewTimestamp(time.Now().UTC())
	resp := e.EventResponse
	attendees := attendeeIDs(e)
	s.mu.Unlock()

	for _, id := range attendees {
		s.Publish(id, dto.NotificationResponse{Type: "EVENT_UPDATED", Message: "Event \"" + resp.Title + "\" was updated", EventID: &resp.ID})
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) deleteEvent(c *gin.Context) {
	u := currentUser(c)

	s.mu.Lock()
	e := s.events[c.Param("id")]
	switch {
	case e == nil:
		s.mu.Unlock()
		fail(c, http.StatusNotFound, "Event not found")
		return
	case !isManager(u, e):
		s.mu.Unlock()
		fail(c, http.StatusForbidden, "Access denied")
		return
	}
	delete(s.events, e.ID)
	title := e.Title
	attendees := attendeeIDs(e)
	s.mu.Unlock()

	for _, id := range attendees {
		s.Publish(id, dto.NotificationResponse{Type: "EVENT_DELETED", Message: "Event \"" + title + "\" was cancelled"})
	}
	c.Status(http.StatusNoContent)
}

func attendeeIDs(e *event) []string {
	ids := make([]string, 0, len(e.Attendees))
	for id := range e.Attendees {
		ids = append(ids, id)
	}
	return ids
}

func (s *Server) weather(c *gin.Context) {
	s.mu.Lock()
	_, ok := s.events[c.Param("id")]
	s.mu.Unlock()
	if !ok {
		fail(c, http.StatusNotFound, "Event not found")
		return
	}

	temp, high, low, wind, precip := 18.5, 21.0, 12.0, 9.5, 0.4
	humidity, code := 60, 2
	c.JSON(http.StatusOK, dto.WeatherResponse{
		Temperature:    &temp,
		TemperatureMax: &high,
		TemperatureMin: &low,
		Condition:      "Partly cloudy",
		WindSpeed:      &wind,
		Humidity:       &humidity,
		Precipitation:  &precip,
		Forecast:       true,
		WeatherCode:    &code,
	})
}

// Registrations

func (s *Server) registerAttendee(c *gin.Context) {
	u := currentUser(c)

	s.mu.Lock()
	e := s.events[c.Param("id")]
	var msg string
	status := http.StatusConflict
	switch {
	case e == nil:
		msg, status = "Event not found", http.StatusNotFound
	case e.Status == "CANCELLED" || e.Status == "FINISHED":
		msg = "Cannot register to cancelled or finished event"
	case e.OrganizerID == u.ID:
		msg = "Organizer cannot register as attendee to their own event"
	default:
		if _, ok := e.Attendees[u.ID]; ok {
			msg = "Already registered to this event"
		} else if len(e.Attendees) >= e.Capacity {
			msg = "Event is full"
		}
	}
	if msg != "" {
		s.mu.Unlock()
		fail(c, status, msg)
		return
	}
	now := time.Now().UTC()
	e.Attendees[u.ID] = now
	e.AvailableSpots = e.Capacity - len(e.Attendees)
	eventID, title := e.ID, e.Title
	s.mu.Unlock()

	s.Publish(u.ID, dto.NotificationResponse{Type: "REGISTRATION_CONFIRMED", Message: "You are registered for \"" + title + "\"", EventID: &eventID})
	c.JSON(http.StatusCreated, dto.RegistrationResponse{
		ID:        uuid.New().String(),
		EventID:   eventID,
		UserID:    u.ID,
		Status:    "REGISTERED",
		CreatedAt: dto.NewTimestamp(now),
	})
}

func (s *Server) unregisterAttendee(c *gin.Context) {
	u := currentUser(c)

	s.mu.Lock()
	e := s.events[c.Param("id")]
	if e == nil {
		s.mu.Unlock()
		fail(c, http.StatusNotFound, "Event not found")
		return
	}
	if _, ok := e.Attendees[u.ID]; !ok {
		s.mu.Unlock()
		fail(c, http.StatusNotFound, "Registration not found")
		return
	}
	delete(e.Attendees, u.ID)
	e.AvailableSpots = e.Capacity - len(e.Attendees)
	eventID, title := e.ID, e.Title
	s.mu.Unlock()

	s.Publish(u.ID, dto.NotificationResponse{Type: "REGISTRATION_CANCELLED", Message: "Your registration for \"" + title + "\" was cancelled", EventID: &eventID})
	c.Status(http.StatusNoContent)
}

func (s *Server) isRegistered(c *gin.Context) {
	u := currentUser(c)

	s.mu.Lock()
	e := s.events[c.Param("id")]
	registered := false
	if e != nil {
		_, registered = e.Attendees[u.ID]
	}
	s.mu.Unlock()

	if e == nil {
		fail(c, http.StatusNotFound, "Event not found")
		return
	}
	c.JSON(http.StatusOK, registered)
}

func (s *Server) listRegistrations(c *gin.Context) {
	u := currentUser(c)

	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.events[c.Param("id")]
	if e == nil {
		fail(c, http.StatusNotFound, "Event not found")
		return
	}
	if !isManager(u, e) {
		fail(c, http.StatusForbidden, "Access denied")
		return
	}

	out := make([]dto.RegistrationResponse, 0, len(e.Attendees))
	for id, at := range e.Attendees {
		reg := dto.RegistrationResponse{ID: id + ":" + e.ID, EventID: e.ID, UserID: id, Status: "REGISTERED", CreatedAt: dto.NewTimestamp(at)}
		for _, usr := range s.users {
			if usr.ID == id {
				reg.Username, reg.Email = usr.Username, usr.Email
			}
		}
		out = append(out, reg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt.Time) })
	c.JSON(http.StatusOK, out)
}

// Invitations

func (s *Server) createInvitation(c *gin.Context) {
	var req dto.InvitationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if _, err := mail.ParseAddress(req.InviteeEmail); err != nil {
		fail(c, http.StatusBadRequest, "Invalid email address")
		return
	}

	s.mu.Lock()
	e := s.events[c.Param("id")]
	if e == nil {
		s.mu.Unlock()
		fail(c, http.StatusNotFound, "Event not found")
		return
	}
	inv := s.addInvitationLocked(e.ID, req.InviteeEmail, 0)
	resp := inv.InvitationResponse
	s.mu.Unlock()

	c.JSON(http.StatusCreated, resp)
}

func (s *Server) listInvitations(c *gin.Context) {
	eventID := c.Param("id")

	s.mu.Lock()
	out := make([]dto.InvitationResponse, 0)
	for _, inv := range s.invitations {
		if inv.EventID == eventID {
			out = append(out, inv.InvitationResponse)
		}
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt.Time) })
	c.JSON(http.StatusOK, out)
}

// pendingInvitation loads the invitation behind the token query parameter
// and checks that it can still be used. The caller must hold s.mu.
func (s *Server) pendingInvitationLocked(c *gin.Context) (*invitation, *event, string) {
	token := c.Query("token")
	if token == "" {
		return nil, nil, "Required parameter 'token' is not present."
	}
	inv := s.invitations[token]
	if inv == nil {
		return nil, nil, "Invalid invitation token"
	}
	if inv.Status != "PENDING" {
		return nil, nil, "Invitation is not in pending state"
	}
	if time.Now().After(inv.ExpiresAt.Time) {
		inv.Status = "EXPIRED"
		return nil, nil, "Invitation has expired"
	}
	e := s.events[inv.EventID]
	if e == nil {
		return nil, nil, "Event not found"
	}
	return inv, e, ""
}

func (s *Server) verifyInvitation(c *gin.Context) {
	s.mu.Lock()
	inv, e, msg := s.pendingInvitationLocked(c)
	if msg != "" {
		s.mu.Unlock()
		fail(c, http.StatusBadRequest, msg)
		return
	}

	exists := false
	for _, u := range s.users {
		if strings.EqualFold(u.Email, inv.InviteeEmail) {
			exists = true
		}
	}
	spots := e.AvailableSpots
	date := e.StartAt
	resp := dto.VerifyInvitationResponse{
		EventID:          e.ID,
		EventTitle:       e.Title,
		EventDescription: e.Description,
		EventAddress:     e.Address,
		EventDate:        &date,
		EventStatus:      e.Status,
		AvailableSpots:   &spots,
		InviteeEmail:     inv.InviteeEmail,
		UserExists:       exists,
	}
	s.mu.Unlock()

	c.JSON(http.StatusOK, resp)
}

func (s *Server) acceptRegister(c *gin.Context) {
	u := currentUser(c)

	s.mu.Lock()
	inv, e, msg := s.pendingInvitationLocked(c)
	if msg != "" {
		s.mu.Unlock()
		fail(c, http.StatusBadRequest, msg)
		return
	}
	if !strings.EqualFold(inv.InviteeEmail, u.Email) {
		s.mu.Unlock()
		fail(c, http.StatusBadRequest, "This invitation was sent to "+inv.InviteeEmail+". Please log in with that email address.")
		return
	}

	msg = ""
	switch {
	case e.Status == "CANCELLED" || e.Status == "FINISHED":
		msg = "Cannot register to cancelled or finished event"
	case e.OrganizerID == u.ID:
		msg = "Organizer cannot register as attendee to their own event"
	}
	_, already := e.Attendees[u.ID]
	if msg == "" && !already && len(e.Attendees) >= e.Capacity {
		msg = "Event is full"
	}
	if msg != "" {
		s.mu.Unlock()
		fail(c, http.StatusConflict, msg)
		return
	}

	if !already {
		e.Attendees[u.ID] = time.Now().UTC()
		e.AvailableSpots = e.Capacity - len(e.Attendees)
	}
	inv.Status = "ACCEPTED"
	eventID, title := e.ID, e.Title
	s.mu.Unlock()

	message := "Successfully registered for the event!"
	if already {
		message = "You were already registered for this event!"
	} else {
		s.Publish(u.ID, dto.NotificationResponse{Type: "REGISTRATION_CONFIRMED", Message: "You are registered for \"" + title + "\"", EventID: &eventID})
	}
	c.JSON(http.StatusOK, dto.AcceptRegisterResponse{Message: message, EventID: eventID, EventTitle: title, Registered: true})
}

func (s *Server) declineInvitation(c *gin.Context) {
	s.mu.Lock()
	inv := s.invitations[c.Query("token")]
	if inv == nil {
		s.mu.Unlock()
		fail(c, http.StatusBadRequest, "Invalid invitation token")
		return
	}

	var resp dto.DeclineInvitationResponse
	switch inv.Status {
	case "DECLINED":
		resp = dto.DeclineInvitationResponse{Message: "This invitation was already declined", AlreadyDeclined: true}
	case "ACCEPTED":
		resp = dto.DeclineInvitationResponse{Message: "This invitation was already accepted. Declining won't affect your registration.", AlreadyAccepted: true}
	case "EXPIRED":
		resp = dto.DeclineInvitationResponse{Message: "This invitation has expired", Expired: true}
	default:
		inv.Status = "DECLINED"
		resp = dto.DeclineInvitationResponse{Message: "Invitation declined successfully", Declined: true}
	}
	s.mu.Unlock()

	c.JSON(http.StatusOK, resp)
}

// Notifications

func (s *Server) listNotifications(c *gin.Context) {
	u := currentUser(c)
	page, _ := strconv.Atoi(c.DefaultQuery("page", "0"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))
	if size <= 0 {
		size = 20
	}
	if page < 0 {
		page = 0
	}

	s.mu.Lock()
	all := append([]dto.NotificationResponse(nil), s.notifications[u.ID]...)
	s.mu.Unlock()

	sort.SliceStable(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt.Time) })

	start := page * size
	if start > len(all) {
		start = len(all)
	}
	end := start + size
	if end > len(all) {
		end = len(all)
	}

	c.JSON(http.StatusOK, dto.NotificationPage{
		Content:       all[start:end],
		TotalElements: int64(len(all)),
		TotalPages:    (len(all) + size - 1) / size,
		Number:        page,
		Size:          size,
	})
}

func (s *Server) unreadCount(c *gin.Context) {
	u := currentUser(c)

	s.mu.Lock()
	n := 0
	for _, item := range s.notifications[u.ID] {
		if !item.Read {
			n++
		}
	}
	s.mu.Unlock()

	c.JSON(http.StatusOK, dto.UnreadCountResponse{Count: n})
}

func (s *Server) markRead(c *gin.Context) {
	u := currentUser(c)
	id := c.Param("id")

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.notifications[u.ID] {
		if s.notifications[u.ID][i].ID == id {
			s.notifications[u.ID][i].Read = true
			c.JSON(http.StatusOK, s.notifications[u.ID][i])
			return
		}
	}
	fail(c, http.StatusNotFound, "Notification not found")
}

func (s *Server) readAll(c *gin.Context) {
	u := currentUser(c)

	s.mu.Lock()
	n := 0
	for i := range s.notifications[u.ID] {
		if !s.notifications[u.ID][i].Read {
			s.notifications[u.ID][i].Read = true
			n++
		}
	}
	s.mu.Unlock()

	c.JSON(http.StatusOK, dto.ReadAllResponse{Updated: n})
}

func (s *Server) stream(c *gin.Context) {
	userID := c.Query("userId")
	if userID == "" {
		fail(c, http.StatusBadRequest, "User ID is required either in header or query parameter")
		return
	}

	st := &stream{ch: make(chan dto.NotificationResponse, 16), done: make(chan struct{})}
	s.mu.Lock()
	s.streams[userID] = append(s.streams[userID], st)
	s.mu.Unlock()
	defer s.removeStream(userID, st)

	c.Header("Cache-Control", "no-cache")
	c.SSEvent("connected", "ok")
	c.Writer.Flush()

	c.Stream(func(io.Writer) bool {
		select {
		case n := <-st.ch:
			c.SSEvent("notification", n)
			return true
		case <-st.done:
			return false
		case <-s.streamDone:
			return false
		case <-c.Request.Context().Done():
			return false
		}
	})
}

func (s *Server) removeStream(userID string, st *stream) {
	s.mu.Lock()
	defer s.mu.Unlock()
	streams := s.streams[userID]
	for i, other := range streams {
		if other == st {
			s.streams[userID] = append(streams[:i], streams[i+1:]...)
			break
		}
	}
	if len(s.streams[userID]) == 0 {
		delete(s.streams, userID)
	}
}
