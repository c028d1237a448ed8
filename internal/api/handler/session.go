package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/Rrens/onboarding-sync/internal/api/middleware"
	"github.com/Rrens/onboarding-sync/internal/api/response"
	"github.com/Rrens/onboarding-sync/internal/domain"
	"github.com/Rrens/onboarding-sync/internal/service"
)

// SessionHandler handles session lifecycle endpoints
type SessionHandler struct {
	sessions *service.SessionService
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(sessions *service.SessionService) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// Create starts a session, or returns the caller's existing one for a reused id
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w)
		return
	}

	var input domain.SessionCreate
	if !decode(w, r, &input, true) {
		return
	}

	session, created, err := h.sessions.Create(r.Context(), userID, input.SessionID)
	if err != nil {
		fail(w, r, err)
		return
	}

	view := domain.NewSessionView(session, h.sessions.Catalog())
	if created {
		response.Created(w, view)
		return
	}
	response.OK(w, view)
}

// Get returns the authoritative session view
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, sessionID, ok := caller(w, r)
	if !ok {
		return
	}

	view, err := h.sessions.View(r.Context(), userID, sessionID)
	if err != nil {
		fail(w, r, err)
		return
	}
	response.OK(w, view)
}

// Pause pauses an active session
func (h *SessionHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.sessions.Pause)
}

// Resume resumes a paused session
func (h *SessionHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.sessions.Resume)
}

// Abandon terminates a session
func (h *SessionHandler) Abandon(w http.ResponseWriter, r *http.Request) {
	userID, sessionID, ok := caller(w, r)
	if !ok {
		return
	}
	if _, err := h.sessions.Abandon(r.Context(), userID, sessionID); err != nil {
		fail(w, r, err)
		return
	}
	response.NoContent(w)
}

type transitionFunc func(ctx context.Context, userID, sessionID string) (*domain.Session, error)

func (h *SessionHandler) transition(w http.ResponseWriter, r *http.Request, fn transitionFunc) {
	userID, sessionID, ok := caller(w, r)
	if !ok {
		return
	}

	session, err := fn(r.Context(), userID, sessionID)
	if err != nil {
		fail(w, r, err)
		return
	}
	response.OK(w, domain.NewSessionView(session, h.sessions.Catalog()))
}

// Revise reopens a completed session
func (h *SessionHandler) Revise(w http.ResponseWriter, r *http.Request) {
	userID, sessionID, ok := caller(w, r)
	if !ok {
		return
	}

	session, err := h.sessions.Revise(r.Context(), userID, sessionID)
	if err != nil {
		body := domain.NewErrorBody(err)
		status := domain.ReviseError
		if errors.Is(err, domain.ErrCannotRevise) {
			status = domain.ReviseCannotRevise
		} else if response.StatusFor(err) >= http.StatusInternalServerError {
			log.Error().Err(err).Str("session_id", sessionID).Msg("Revise failed")
		}
		response.Flat(w, response.StatusFor(err), domain.ReviseResponse{Status: status, Error: &body})
		return
	}

	view := domain.NewSessionView(session, h.sessions.Catalog())
	response.Flat(w, http.StatusOK, domain.ReviseResponse{Status: domain.ReviseReset, Session: &view})
}
