// Package fakebackend serves an in-memory EventFlow API for tests.
package fakebackend

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/Z4phxr/eventflow-client/apps/eventflow-cli/internal/dto"
)

const signingKey = "fake-backend-signing-key"

// RecordedRequest is a request as seen by the server
type RecordedRequest struct {
	Method        string
	Path          string
	Query         url.Values
	Authorization string
	Header        http.Header
	// TraceID is the trace propagated by the client, if any
	TraceID string
}

// Stub replaces the response of matching requests
type Stub struct {
	Method string
	Path   string
	Status int
	Body   any
	// Times limits how often the stub fires; 0 means always
	Times int
	// Delay is applied before the response
	Delay time.Duration
}

type user struct {
	ID           string
	Username     string
	Email        string
	PasswordHash []byte
	Role         string
}

type event struct {
	dto.EventResponse
	Attendees map[string]time.Time
}

type stream struct {
	ch   chan dto.NotificationResponse
	done chan struct{}
}

type invitation struct {
	dto.InvitationResponse
	Token string
}

// Server is an in-memory EventFlow backend
type Server struct {
	srv    *httptest.Server
	engine *gin.Engine
	// idempotency records of accept-register, as the real gateway keeps them
	idem *goredis.Client

	mu            sync.Mutex
	users         map[string]*user
	events        map[string]*event
	invitations   map[string]*invitation
	notifications map[string][]dto.NotificationResponse
	streams       map[string][]*stream
	requests      []RecordedRequest
	stubs         []*Stub
	tokenTTL      time.Duration
	streamDone    chan struct{}
}

// New starts a server that is closed when t finishes
func New(t testing.TB) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s := &Server{
		users:         make(map[string]*user),
		events:        make(map[string]*event),
		invitations:   make(map[string]*invitation),
		notifications: make(map[string][]dto.NotificationResponse),
		streams:       make(map[string][]*stream),
		tokenTTL:      time.Hour,
		streamDone:    make(chan struct{}),
	}
	mr := miniredis.RunT(t)
	s.idem = goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	s.engine = s.routes()
	s.srv = httptest.NewServer(s.engine)
	t.Cleanup(s.Close)
	return s
}

// URL returns the API base URL
func (s *Server) URL() string {
	return s.srv.URL + "/api"
}

// Close stops the server and ends open streams
func (s *Server) Close() {
	s.mu.Lock()
	select {
	case <-s.streamDone:
	default:
		close(s.streamDone)
	}
	s.mu.Unlock()
	s.srv.CloseClientConnections()
	s.srv.Close()
	s.idem.Close()
}

// SetTokenTTL changes the lifetime of minted tokens
func (s *Server) SetTokenTTL(ttl time.Duration) {
	s.mu.Lock()
	s.tokenTTL = ttl
	s.mu.Unlock()
}

// AddStub installs a response override
func (s *Server) AddStub(stub Stub) {
	s.mu.Lock()
	s.stubs = append(s.stubs, &stub)
	s.mu.Unlock()
}

// Requests returns every request received so far
func (s *Server) Requests() []RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]RecordedRequest(nil), s.requests...)
}

// Count returns how many requests hit method and path
func (s *Server) Count(method, path string) int {
	n := 0
	for _, r := range s.Requests() {
		if r.Method == method && r.Path == "/api"+path {
			n++
		}
	}
	return n
}

// LastRequest returns the most recent request to method and path
func (s *Server) LastRequest(method, path string) (RecordedRequest, bool) {
	reqs := s.Requests()
	for i := len(reqs) - 1; i >= 0; i-- {
		if reqs[i].Method == method && reqs[i].Path == "/api"+path {
			return reqs[i], true
		}
	}
	return RecordedRequest{}, false
}

// AddUser creates an account and returns its id
func (s *Server) AddUser(username, email, password, role string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addUserLocked(username, email, password, role).ID
}

func (s *Server) addUserLocked(username, email, password, role string) *user {
	if role == "" {
		role = "USER"
	}
	// lowest cost keeps test logins fast
	hash, _ := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	u := &user{
		ID:           uuid.New().String(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         strings.ToUpper(role),
	}
	s.users[username] = u
	return u
}

// TokenFor mints a valid token for an existing user
func (s *Server) TokenFor(username string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.users[username]
	if u == nil {
		return ""
	}
	return s.mintLocked(u)
}

func (s *Server) mintLocked(u *user) string {
	claims := jwt.MapClaims{
		"sub":    u.Username,
		"userId": u.ID,
		"role":   u.Role,
		"email":  u.Email,
		"iat":    time.Now().Unix(),
		"exp":    time.Now().Add(s.tokenTTL).Unix(),
	}
	token, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(signingKey))
	return token
}

// AddEvent stores an event and returns its id. Zero values get defaults.
func (s *Server) AddEvent(ev dto.EventResponse) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.Status == "" {
		ev.Status = "PLANNED"
	}
	if ev.Capacity == 0 {
		ev.Capacity = 10
	}
	if ev.StartAt.IsZero() {
		ev.StartAt = dto.NewTimestamp(time.Now().Add(72 * time.Hour).UTC())
		ev.EndAt = dto.NewTimestamp(ev.StartAt.Add(2 * time.Hour))
	}
	ev.CreatedAt = dto.NewTimestamp(time.Now().UTC())
	ev.UpdatedAt = ev.CreatedAt
	e := &event{EventResponse: ev, Attendees: make(map[string]time.Time)}
	e.AvailableSpots = e.Capacity
	s.events[ev.ID] = e
	return ev.ID
}

// SetEventStatus changes an event's status
func (s *Server) SetEventStatus(id, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e := s.events[id]; e != nil {
		e.Status = status
	}
}

// RegisterAttendee registers userID to an event directly
func (s *Server) RegisterAttendee(eventID, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e := s.events[eventID]; e != nil {
		e.Attendees[userID] = time.Now()
		e.AvailableSpots = e.Capacity - len(e.Attendees)
	}
}

// Attendees returns the user ids registered to an event
func (s *Server) Attendees(eventID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.events[eventID]
	if e == nil {
		return nil
	}
	ids := make([]string, 0, len(e.Attendees))
	for id := range e.Attendees {
		ids = append(ids, id)
	}
	return ids
}

// AddInvitation creates a pending invitation and returns its token
func (s *Server) AddInvitation(eventID, email string, expiresIn time.Duration) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addInvitationLocked(eventID, email, expiresIn).Token
}

func (s *Server) addInvitationLocked(eventID, email string, expiresIn time.Duration) *invitation {
	if expiresIn == 0 {
		expiresIn = 7 * 24 * time.Hour
	}
	now := time.Now().UTC()
	inv := &invitation{
		InvitationResponse: dto.InvitationResponse{
			ID:           uuid.New().String(),
			EventID:      eventID,
			InviteeEmail: email,
			Status:       "PENDING",
			CreatedAt:    dto.NewTimestamp(now),
			ExpiresAt:    dto.NewTimestamp(now.Add(expiresIn)),
		},
		Token: strings.ReplaceAll(uuid.New().String(), "-", ""),
	}
	s.invitations[inv.Token] = inv
	return inv
}

// InvitationStatus returns the status of the invitation behind token
func (s *Server) InvitationStatus(token string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if inv := s.invitations[token]; inv != nil {
		return inv.Status
	}
	return ""
}

// AddNotification stores a notification for userID without pushing it
func (s *Server) AddNotification(userID string, n dto.NotificationResponse) dto.NotificationResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addNotificationLocked(userID, n)
}

func (s *Server) addNotificationLocked(userID string, n dto.NotificationResponse) dto.NotificationResponse {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = dto.NewTimestamp(time.Now().UTC())
	}
	if n.Type == "" {
		n.Type = "EVENT_UPDATED"
	}
	uid := userID
	n.UserID = &uid
	s.notifications[userID] = append(s.notifications[userID], n)
	return n
}

// Publish stores a notification and pushes it to the user's open streams
func (s *Server) Publish(userID string, n dto.NotificationResponse) dto.NotificationResponse {
	s.mu.Lock()
	n = s.addNotificationLocked(userID, n)
	streams := append([]*stream(nil), s.streams[userID]...)
	s.mu.Unlock()

	for _, st := range streams {
		select {
		case st.ch <- n:
		case <-st.done:
		case <-time.After(time.Second):
		}
	}
	return n
}

// StreamCount returns the number of open streams for userID
func (s *Server) StreamCount(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.streams[userID])
}

// DropStreams closes every open stream from the server side
func (s *Server) DropStreams() {
	s.mu.Lock()
	all := s.streams
	s.streams = make(map[string][]*stream)
	s.mu.Unlock()

	for _, streams := range all {
		for _, st := range streams {
			close(st.done)
		}
	}
}
