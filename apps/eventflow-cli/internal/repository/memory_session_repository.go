package repository

import (
	"context"
	"sync"

	"github.com/Z4phxr/eventflow-client/apps/eventflow-cli/internal/domain"
)

// MemorySessionRepository implements SessionRepository in memory.
// The session does not survive the process.
type MemorySessionRepository struct {
	session *domain.StoredSession
	mu      sync.RWMutex
}

// NewMemorySessionRepository creates a new in-memory session repository
func NewMemorySessionRepository() *MemorySessionRepository {
	return &MemorySessionRepository{}
}

// Load returns a copy of the stored tuple
func (r *MemorySessionRepository) Load(ctx context.Context) (*domain.StoredSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.session == nil {
		return nil, nil
	}
	s := *r.session
	return &s, nil
}

// Save replaces the stored tuple with a copy of session
func (r *MemorySessionRepository) Save(ctx context.Context, session *domain.StoredSession) error {
	if !session.Complete() {
		return ErrIncompleteSession
	}

	s := *session
	r.mu.Lock()
	r.session = &s
	r.mu.Unlock()
	return nil
}

// Clear removes the stored tuple
func (r *MemorySessionRepository) Clear(ctx context.Context) error {
	r.mu.Lock()
	r.session = nil
	r.mu.Unlock()
	return nil
}
