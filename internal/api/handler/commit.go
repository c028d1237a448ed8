package handler

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/Rrens/onboarding-sync/internal/api/response"
	"github.com/Rrens/onboarding-sync/internal/domain"
	"github.com/Rrens/onboarding-sync/internal/service"
)

// CommitHandler handles the commit endpoint
type CommitHandler struct {
	commits *service.CommitService
}

// NewCommitHandler creates a new commit handler
func NewCommitHandler(commits *service.CommitService) *CommitHandler {
	return &CommitHandler{commits: commits}
}

// Commit persists one exchange. The body is flat: success, status and either
// the new state or the failure, including both versions on a conflict.
func (h *CommitHandler) Commit(w http.ResponseWriter, r *http.Request) {
	userID, sessionID, ok := caller(w, r)
	if !ok {
		return
	}

	var input domain.CommitInput
	if !decode(w, r, &input, false) {
		return
	}

	result, err := h.commits.Commit(r.Context(), domain.CommitRequest{
		SessionID:        sessionID,
		UserID:           userID,
		MessageID:        input.MessageID,
		UserMessage:      input.UserMessage,
		AssistantMessage: input.AssistantMessage,
		ExpectedVersion:  input.ExpectedVersion,
	})
	if err != nil {
		status := response.StatusFor(err)
		if status >= http.StatusInternalServerError && !errors.Is(err, domain.ErrProcessing) {
			log.Error().Err(err).Str("session_id", sessionID).Msg("Commit failed")
		}
		response.Flat(w, status, domain.NewCommitErrorResponse(err))
		return
	}

	response.Flat(w, http.StatusOK, domain.NewCommitResponse(result))
}
