package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/Rrens/onboarding-sync/internal/domain"
)

// SessionRepository is an in-process session store for development and tests.
// Records are cloned on the way in and out so callers never share memory with the store.
type SessionRepository struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session
}

func NewSessionRepository() *SessionRepository {
	return &SessionRepository{sessions: make(map[string]*domain.Session)}
}

func (r *SessionRepository) Create(_ context.Context, s *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[s.ID]; ok {
		return fmt.Errorf("%w: %s", domain.ErrSessionExists, s.ID)
	}
	r.sessions[s.ID] = s.Clone()
	return nil
}

func (r *SessionRepository) Get(_ context.Context, id string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return s.Clone(), nil
}

func (r *SessionRepository) Save(_ context.Context, s *domain.Session, expect domain.Expectation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.sessions[s.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if current.Version != expect.Version || current.Status != expect.Status || current.ArtifactStatus != expect.ArtifactStatus {
		return fmt.Errorf("%w: session %s changed since version %d", domain.ErrVersionConflict, s.ID, expect.Version)
	}
	r.sessions[s.ID] = s.Clone()
	return nil
}

func (r *SessionRepository) Ping(context.Context) error {
	return nil
}
