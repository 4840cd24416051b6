// Package memory holds process-local repository implementations used by tests
// and single-instance deployments.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/upb/sessionauth/models"
	"github.com/upb/sessionauth/repositories"
)

var _ repositories.SessionRepository = (*SessionRepository)(nil)

type clientKey struct {
	userID    int64
	userAgent string
}

// SessionRepository keeps sessions in maps guarded by one mutex, which makes
// every method atomic with respect to the others.
type SessionRepository struct {
	mu       sync.Mutex
	sessions map[string]*models.Session
	active   map[clientKey]string
}

// NewSessionRepository creates an empty store
func NewSessionRepository() *SessionRepository {
	return &SessionRepository{
		sessions: make(map[string]*models.Session),
		active:   make(map[clientKey]string),
	}
}

func keyOf(s *models.Session) clientKey {
	return clientKey{userID: s.UserID, userAgent: s.UserAgent}
}

// Create stores a copy of the session
func (r *SessionRepository) Create(_ context.Context, session *models.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.insertLocked(session)
}

func (r *SessionRepository) insertLocked(session *models.Session) error {
	if _, exists := r.sessions[session.ID]; exists {
		return fmt.Errorf("session id %s already used", session.ID)
	}
	if session.IsActive {
		if _, taken := r.active[keyOf(session)]; taken {
			return fmt.Errorf("%w: user %d", repositories.ErrDuplicateSession, session.UserID)
		}
		r.active[keyOf(session)] = session.ID
	}
	cp := *session
	r.sessions[session.ID] = &cp
	return nil
}

// GetByID returns a copy of the session
func (r *SessionRepository) GetByID(_ context.Context, id string) (*models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: session %s", repositories.ErrNotFound, id)
	}
	cp := *s
	return &cp, nil
}

// FindActive returns the active session for the client
func (r *SessionRepository) FindActive(_ context.Context, userID int64, userAgent string) (*models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.active[clientKey{userID: userID, userAgent: userAgent}]
	if !ok {
		return nil, fmt.Errorf("%w: no active session", repositories.ErrNotFound)
	}
	cp := *r.sessions[id]
	return &cp, nil
}

// Rotate revokes oldID and stores next under the same lock
func (r *SessionRepository) Rotate(_ context.Context, oldID string, next *models.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	old, ok := r.sessions[oldID]
	if !ok || !old.IsActive {
		return fmt.Errorf("%w: %s", repositories.ErrStaleSession, oldID)
	}
	if _, exists := r.sessions[next.ID]; exists {
		return fmt.Errorf("session id %s already used", next.ID)
	}

	r.deactivateLocked(old)
	if err := r.insertLocked(next); err != nil {
		// undo so a failed rotation leaves nothing written
		old.IsActive = true
		r.active[keyOf(old)] = old.ID
		return err
	}
	return nil
}

// Revoke deactivates the session if active
func (r *SessionRepository) Revoke(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok || !s.IsActive {
		return false, nil
	}
	r.deactivateLocked(s)
	return true, nil
}

// RevokeAllForUser deactivates every active session of the user
func (r *SessionRepository) RevokeAllForUser(_ context.Context, userID int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, s := range r.sessions {
		if s.UserID == userID && s.IsActive {
			r.deactivateLocked(s)
			n++
		}
	}
	return n, nil
}

func (r *SessionRepository) deactivateLocked(s *models.Session) {
	s.IsActive = false
	if r.active[keyOf(s)] == s.ID {
		delete(r.active, keyOf(s))
	}
}
