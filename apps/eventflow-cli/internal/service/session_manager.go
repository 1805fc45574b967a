package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Z4phxr/eventflow-client/apps/eventflow-cli/internal/domain"
	"github.com/Z4phxr/eventflow-client/apps/eventflow-cli/internal/dto"
	"github.com/Z4phxr/eventflow-client/apps/eventflow-cli/internal/repository"
	"github.com/Z4phxr/eventflow-client/pkg/logger"
)

// TokenDecoder extracts unverified claims from a token
type TokenDecoder interface {
	Decode(token string) (*domain.Claims, error)
}

// SessionEventKind describes why the session changed
type SessionEventKind string

const (
	SessionRestored  SessionEventKind = "restored"
	SessionLoggedIn  SessionEventKind = "logged_in"
	SessionLoggedOut SessionEventKind = "logged_out"
	SessionExpired   SessionEventKind = "expired"
)

// SessionEvent is delivered to subscribers after every session change.
// Session is nil when the client is unauthenticated.
type SessionEvent struct {
	Kind    SessionEventKind
	Session *domain.Session
}

// SessionManager owns the authenticated session of the client
type SessionManager interface {
	// Restore rehydrates the session from storage. It never fails: any problem
	// with the stored tuple resolves to unauthenticated and purges storage.
	Restore(ctx context.Context)
	// Login persists the session carried by a login response
	Login(ctx context.Context, resp *dto.AuthResponse) (*domain.Session, error)
	// Register persists the session carried by a registration response
	Register(ctx context.Context, resp *dto.AuthResponse) (*domain.Session, error)
	// Logout purges the session unconditionally. It returns once storage and
	// memory are both cleared.
	Logout(ctx context.Context) error
	// IsAuthenticated reports whether a session is present
	IsAuthenticated() bool
	// HasRole reports whether the session role is one of roles
	HasRole(roles ...domain.Role) bool
	// Current returns a copy of the session, or nil
	Current() *domain.Session
	// ActiveToken returns the token to attach to a request. An expired session
	// is purged and yields no token.
	ActiveToken(ctx context.Context) (string, bool)
	// Subscribe registers fn for session changes and returns its cancel func
	Subscribe(fn func(SessionEvent)) func()
	// Ready is closed once Restore has completed
	Ready() <-chan struct{}
	// Loading reports whether Restore is still pending
	Loading() bool
}

// SessionManagerConfig holds configuration for the session manager
type SessionManagerConfig struct {
	// Now overrides the clock
	Now func() time.Time
}

type sessionManager struct {
	repo    repository.SessionRepository
	decoder TokenDecoder
	log     *logger.Logger
	now     func() time.Time

	mu      sync.RWMutex
	session *domain.Session

	subMu   sync.Mutex
	subs    map[int]func(SessionEvent)
	nextSub int

	ready     chan struct{}
	readyOnce sync.Once
}

// NewSessionManager creates a new SessionManager
func NewSessionManager(
	repo repository.SessionRepository,
	decoder TokenDecoder,
	log *logger.Logger,
	config *SessionManagerConfig,
) SessionManager {
	if log == nil {
		log = logger.NewNop()
	}
	now := time.Now
	if config != nil && config.Now != nil {
		now = config.Now
	}
	return &sessionManager{
		repo:    repo,
		decoder: decoder,
		log:     log.Named("session"),
		now:     now,
		subs:    make(map[int]func(SessionEvent)),
		ready:   make(chan struct{}),
	}
}

func (m *sessionManager) Restore(ctx context.Context) {
	defer m.readyOnce.Do(func() { close(m.ready) })

	session := m.loadStored(ctx)

	m.mu.Lock()
	m.session = session
	m.mu.Unlock()

	m.publish(SessionEvent{Kind: SessionRestored, Session: copySession(session)})
}

// loadStored returns a valid session from storage or purges it
func (m *sessionManager) loadStored(ctx context.Context) *domain.Session {
	stored, err := m.repo.Load(ctx)
	if err != nil {
		m.log.Warn("Failed to read stored session", zap.Error(err))
		m.purge(ctx)
		return nil
	}
	if stored == nil {
		return nil
	}
	if !stored.Complete() {
		m.log.Warn("Stored session is incomplete")
		m.purge(ctx)
		return nil
	}

	claims, err := m.decoder.Decode(stored.Token)
	if err != nil {
		m.log.Debug("Stored token could not be decoded", zap.Error(err))
		m.purge(ctx)
		return nil
	}
	if !claims.ExpiresAt.After(m.now()) {
		m.log.Info("Stored session has expired", zap.Time("expires_at", claims.ExpiresAt))
		m.purge(ctx)
		return nil
	}

	id := stored.ID
	if id == "" {
		id = claims.UserID
	}
	return &domain.Session{
		Identity: domain.Identity{
			ID:       id,
			Username: stored.Username,
			Email:    stored.Email,
			Role:     domain.ParseRole(string(stored.Role)),
		},
		Token:     stored.Token,
		ExpiresAt: claims.ExpiresAt,
	}
}

func (m *sessionManager) purge(ctx context.Context) {
	if err := m.repo.Clear(ctx); err != nil {
		m.log.Warn("Failed to purge stored session", zap.Error(err))
	}
}

func (m *sessionManager) Login(ctx context.Context, resp *dto.AuthResponse) (*domain.Session, error) {
	if resp == nil || resp.Token == "" {
		return nil, fmt.Errorf("%w: response carries no token", domain.ErrDecodeFailure)
	}

	claims, err := m.decoder.Decode(resp.Token)
	if err != nil {
		m.log.Debug("Login token could not be decoded", zap.Error(err))
		return nil, err
	}
	if !claims.ExpiresAt.After(m.now()) {
		return nil, fmt.Errorf("%w: token already expired", domain.ErrAuthenticationInvalid)
	}

	identity := resp.Identity()
	if identity.ID == "" {
		identity.ID = claims.UserID
	}
	if identity.Username == "" {
		identity.Username = claims.Subject
	}
	if identity.Email == "" {
		identity.Email = claims.Email
	}
	if resp.Role == "" && claims.Role != "" {
		identity.Role = domain.ParseRole(string(claims.Role))
	}

	session := &domain.Session{
		Identity:  identity,
		Token:     resp.Token,
		ExpiresAt: claims.ExpiresAt,
	}

	stored := &domain.StoredSession{
		Token:    session.Token,
		ID:       identity.ID,
		Username: identity.Username,
		Email:    identity.Email,
		Role:     identity.Role,
	}
	if err := m.repo.Save(ctx, stored); err != nil {
		return nil, fmt.Errorf("failed to persist session: %w", err)
	}

	m.mu.Lock()
	m.session = session
	m.mu.Unlock()

	m.log.Info("Signed in",
		zap.String("username", identity.Username),
		zap.String("role", string(identity.Role)),
	)
	m.publish(SessionEvent{Kind: SessionLoggedIn, Session: copySession(session)})
	return copySession(session), nil
}

func (m *sessionManager) Register(ctx context.Context, resp *dto.AuthResponse) (*domain.Session, error) {
	return m.Login(ctx, resp)
}

func (m *sessionManager) Logout(ctx context.Context) error {
	return m.end(ctx, SessionLoggedOut)
}

func (m *sessionManager) end(ctx context.Context, kind SessionEventKind) error {
	err := m.repo.Clear(ctx)
	if err != nil {
		m.log.Warn("Failed to clear stored session", zap.Error(err))
		err = fmt.Errorf("failed to clear stored session: %w", err)
	}

	m.mu.Lock()
	had := m.session != nil
	m.session = nil
	m.mu.Unlock()

	if had {
		m.log.Info("Signed out", zap.String("reason", string(kind)))
		m.publish(SessionEvent{Kind: kind})
	}
	return err
}

func (m *sessionManager) IsAuthenticated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session != nil
}

func (m *sessionManager) HasRole(roles ...domain.Role) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.session == nil {
		return false
	}
	for _, r := range roles {
		if r == m.session.Identity.Role {
			return true
		}
	}
	return false
}

func (m *sessionManager) Current() *domain.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return copySession(m.session)
}

func (m *sessionManager) ActiveToken(ctx context.Context) (string, bool) {
	m.mu.RLock()
	session := m.session
	m.mu.RUnlock()

	if session == nil {
		return "", false
	}
	if !session.IsValidAt(m.now()) {
		if err := m.end(ctx, SessionExpired); err != nil && !errors.Is(err, context.Canceled) {
			m.log.Warn("Failed to purge expired session", zap.Error(err))
		}
		return "", false
	}
	return session.Token, true
}

func (m *sessionManager) Subscribe(fn func(SessionEvent)) func() {
	m.subMu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	m.subMu.Unlock()

	return func() {
		m.subMu.Lock()
		delete(m.subs, id)
		m.subMu.Unlock()
	}
}

// publish calls subscribers in registration order, outside of any lock
func (m *sessionManager) publish(ev SessionEvent) {
	m.subMu.Lock()
	ids := make([]int, 0, len(m.subs))
	for id := range m.subs {
		ids = append(ids, id)
	}
	fns := make([]func(SessionEvent), 0, len(ids))
	slices.Sort(ids)
	for _, id := range ids {
		fns = append(fns, m.subs[id])
	}
	m.subMu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

func (m *sessionManager) Ready() <-chan struct{} {
	return m.ready
}

func (m *sessionManager) Loading() bool {
	select {
	case <-m.ready:
		return false
	default:
		return true
	}
}

func copySession(s *domain.Session) *domain.Session {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}
