package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/Z4phxr/eventflow-client/apps/eventflow-cli/internal/domain"
)

// FileSessionRepository implements SessionRepository as a JSON file.
// Writes go to a temp file in the same directory which is then renamed over
// the target, so readers see either the old tuple or the new one.
type FileSessionRepository struct {
	path string
	mu   sync.Mutex
}

// NewFileSessionRepository creates a repository backed by path
func NewFileSessionRepository(path string) *FileSessionRepository {
	return &FileSessionRepository{path: path}
}

// Path returns the session file path
func (r *FileSessionRepository) Path() string {
	return r.path
}

// Load reads the session file. A missing file means no session.
func (r *FileSessionRepository) Load(ctx context.Context) (*domain.StoredSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	var s domain.StoredSession
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode session file: %w", err)
	}
	return &s, nil
}

// Save writes the tuple atomically with owner-only permissions
func (r *FileSessionRepository) Save(ctx context.Context, session *domain.StoredSession) error {
	if !session.Complete() {
		return ErrIncompleteSession
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".session-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp session file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set session file mode: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close session file: %w", err)
	}

	if err := os.Rename(tmpName, r.path); err != nil {
		return fmt.Errorf("failed to replace session file: %w", err)
	}
	return nil
}

// Clear removes the session file
func (r *FileSessionRepository) Clear(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.Remove(r.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove session file: %w", err)
	}
	return nil
}
