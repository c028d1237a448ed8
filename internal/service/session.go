package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Rrens/onboarding-sync/internal/domain"
)

// statusRetries bounds how often a lifecycle change is reapplied after
// losing the conditional save to a concurrent writer
const statusRetries = 3

// SessionService handles session lifecycle operations
type SessionService struct {
	repo     domain.SessionRepository
	catalog  *domain.Catalog
	cache    SessionCache
	triggers TriggerQueue
	ttl      time.Duration
	now      func() time.Time
}

// NewSessionService creates a new session service. cache and triggers may be nil.
func NewSessionService(
	repo domain.SessionRepository,
	catalog *domain.Catalog,
	cache SessionCache,
	triggers TriggerQueue,
	ttl time.Duration,
) *SessionService {
	return &SessionService{
		repo:     repo,
		catalog:  catalog,
		cache:    cache,
		triggers: triggers,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Catalog returns the stage catalog the service runs on
func (s *SessionService) Catalog() *domain.Catalog {
	return s.catalog
}

// Create starts a new session. A client-generated id that already names a
// live session of the same caller returns that session (created=false).
func (s *SessionService) Create(ctx context.Context, userID, sessionID string) (*domain.Session, bool, error) {
	if userID == "" {
		return nil, false, domain.ErrUnauthorized
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	session := domain.NewSession(sessionID, userID, s.now().UTC(), s.ttl)
	err := s.repo.Create(ctx, session)
	if err == nil {
		log.Info().Str("session_id", sessionID).Str("user_id", userID).Msg("Session created")
		return session, true, nil
	}
	if !errors.Is(err, domain.ErrSessionExists) {
		return nil, false, fmt.Errorf("failed to create session: %w", err)
	}

	existing, err := s.repo.Get(ctx, sessionID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load existing session: %w", err)
	}
	if !existing.OwnedBy(userID) {
		log.Warn().Str("session_id", sessionID).Str("user_id", userID).Msg("Create collided with another user's session")
		return nil, false, domain.ErrForbidden
	}
	if existing.Status == domain.StatusAbandoned || existing.Expired(s.now()) {
		return nil, false, domain.ErrSessionExists
	}
	return existing, false, nil
}

// Get returns a live session owned by userID
func (s *SessionService) Get(ctx context.Context, userID, sessionID string) (*domain.Session, error) {
	return loadOwned(ctx, s.repo, userID, sessionID, s.now())
}

// View returns the authoritative client view of a session
func (s *SessionService) View(ctx context.Context, userID, sessionID string) (domain.SessionView, error) {
	session, err := s.Get(ctx, userID, sessionID)
	if err != nil {
		return domain.SessionView{}, err
	}
	return domain.NewSessionView(session, s.catalog), nil
}

// Pause moves an active session to paused
func (s *SessionService) Pause(ctx context.Context, userID, sessionID string) (*domain.Session, error) {
	return s.transition(ctx, userID, sessionID, "pause", func(session *domain.Session, now time.Time) error {
		return session.Pause(now)
	})
}

// Resume moves a paused session back to active
func (s *SessionService) Resume(ctx context.Context, userID, sessionID string) (*domain.Session, error) {
	return s.transition(ctx, userID, sessionID, "resume", func(session *domain.Session, now time.Time) error {
		return session.Resume(now)
	})
}

// Abandon terminates a session; it then behaves as not found
func (s *SessionService) Abandon(ctx context.Context, userID, sessionID string) (*domain.Session, error) {
	return s.transition(ctx, userID, sessionID, "abandon", func(session *domain.Session, now time.Time) error {
		return session.Abandon(now)
	})
}

// Revise reopens a completed session whose downstream artifact has not
// started, and withdraws the queued analysis trigger.
func (s *SessionService) Revise(ctx context.Context, userID, sessionID string) (*domain.Session, error) {
	session, err := s.transition(ctx, userID, sessionID, "revise", func(session *domain.Session, now time.Time) error {
		return session.ReviseForRevision(s.catalog, now)
	})
	if err != nil {
		return nil, err
	}

	if s.triggers != nil {
		if err := s.triggers.Remove(ctx, sessionID); err != nil {
			// The worker re-checks artifact status before processing.
			log.Warn().Err(err).Str("session_id", sessionID).Msg("Failed to withdraw analysis trigger")
		}
	}
	return session, nil
}

// transition applies fn and saves with the conditional predicate. Lifecycle
// changes carry no client version, so a lost race is retried on fresh state.
// They do not bump version, which counts commits only.
func (s *SessionService) transition(ctx context.Context, userID, sessionID, action string, fn func(*domain.Session, time.Time) error) (*domain.Session, error) {
	for attempt := 0; ; attempt++ {
		now := s.now().UTC()
		current, err := loadOwned(ctx, s.repo, userID, sessionID, now)
		if err != nil {
			return nil, err
		}

		next := current.Clone()
		if err := fn(next, now); err != nil {
			return nil, err
		}
		if next.Status == current.Status && next.ArtifactStatus == current.ArtifactStatus {
			return current, nil
		}

		err = s.repo.Save(ctx, next, domain.ExpectationOf(current))
		if err == nil {
			s.invalidate(ctx, sessionID)
			log.Info().
				Str("session_id", sessionID).
				Str("action", action).
				Str("status", string(next.Status)).
				Msg("Session status changed")
			return next, nil
		}
		if !errors.Is(err, domain.ErrVersionConflict) || attempt+1 >= statusRetries {
			return nil, fmt.Errorf("failed to %s session: %w", action, err)
		}
	}
}

func (s *SessionService) invalidate(ctx context.Context, sessionID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, sessionID); err != nil {
		log.Warn().Err(err).Str("session_id", sessionID).Msg("Failed to invalidate session cache")
	}
}

// loadOwned reads a session and applies the visibility and ownership rules
// shared by every caller-facing operation.
func loadOwned(ctx context.Context, repo domain.SessionRepository, userID, sessionID string, now time.Time) (*domain.Session, error) {
	if userID == "" {
		return nil, domain.ErrUnauthorized
	}
	session, err := repo.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return checkVisible(session, userID, now)
}

func checkVisible(session *domain.Session, userID string, now time.Time) (*domain.Session, error) {
	if session.Status == domain.StatusAbandoned || session.Expired(now) {
		return nil, domain.ErrNotFound
	}
	if !session.OwnedBy(userID) {
		log.Warn().
			Str("session_id", session.ID).
			Str("user_id", userID).
			Msg("Session ownership mismatch, possible tampering")
		return nil, domain.ErrForbidden
	}
	return session, nil
}
