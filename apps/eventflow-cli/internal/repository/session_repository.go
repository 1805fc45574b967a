package repository

import (
	"context"
	"errors"

	"github.com/Z4phxr/eventflow-client/apps/eventflow-cli/internal/domain"
)

// ErrIncompleteSession is returned when a tuple missing required fields is saved
var ErrIncompleteSession = errors.New("session tuple is incomplete")

// SessionRepository is the durable store for the session tuple.
// Implementations write and clear the whole tuple atomically.
type SessionRepository interface {
	// Load returns the stored tuple, or nil when nothing is stored
	Load(ctx context.Context) (*domain.StoredSession, error)
	// Save replaces the stored tuple
	Save(ctx context.Context, session *domain.StoredSession) error
	// Clear removes the stored tuple; clearing an empty store is not an error
	Clear(ctx context.Context) error
}
