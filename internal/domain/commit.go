package domain

import "errors"

// CommitStatus is the outcome reported for a commit call
type CommitStatus string

const (
	CommitCommitted       CommitStatus = "committed"
	CommitDuplicate       CommitStatus = "duplicate"
	CommitVersionConflict CommitStatus = "version_conflict"
	CommitError           CommitStatus = "error"
)

// CommitInput is the body of the commit endpoint
type CommitInput struct {
	MessageID        string `json:"messageId" validate:"required,max=128"`
	UserMessage      string `json:"userMessage" validate:"required,max=20000"`
	AssistantMessage string `json:"assistantMessage" validate:"required,max=40000"`
	ExpectedVersion  *int64 `json:"expectedVersion,omitempty" validate:"omitempty,min=0"`
}

// CommitRequest is a commit bound to a session and caller
type CommitRequest struct {
	SessionID        string
	UserID           string
	MessageID        string
	UserMessage      string
	AssistantMessage string
	ExpectedVersion  *int64
}

// CommitResult is the outcome of an accepted (or replayed) commit
type CommitResult struct {
	Status          CommitStatus `json:"status"`
	Version         int64        `json:"version"`
	CurrentStage    int          `json:"currentStage"`
	OverallProgress int          `json:"overallProgress"`
	StageProgress   int          `json:"stageProgress"`
	StageAdvanced   bool         `json:"stageAdvanced"`
	Completed       bool         `json:"completed"`
}

// ChatMessage is one message of the stream request
type ChatMessage struct {
	Role    string `json:"role" validate:"required,oneof=user assistant"`
	Content string `json:"content" validate:"required,max=20000"`
}

// StreamInput is the body of the stream endpoint
type StreamInput struct {
	Messages []ChatMessage `json:"messages" validate:"required,min=1,max=100,dive"`
}

// SessionCreate is the body of the create endpoint
type SessionCreate struct {
	SessionID string `json:"sessionId,omitempty" validate:"omitempty,max=128"`
}

// ProgressIndicator is the accessible progress summary of a session
type ProgressIndicator struct {
	Current    int    `json:"current"`
	Total      int    `json:"total"`
	Percentage int    `json:"percentage"`
	Text       string `json:"text"`
}

// SessionView is the authoritative state returned to clients
type SessionView struct {
	SessionID       string            `json:"sessionId"`
	CurrentStage    int               `json:"currentStage"`
	StageName       string            `json:"stageName"`
	Status          SessionStatus     `json:"status"`
	Version         int64             `json:"version"`
	StageProgress   int               `json:"stageProgress"`
	OverallProgress int               `json:"overallProgress"`
	IsComplete      bool              `json:"isComplete"`
	ArtifactStatus  ArtifactStatus    `json:"artifactStatus"`
	ExtractedData   ExtractedData     `json:"extractedData"`
	TurnCount       int               `json:"turnCount"`
	Progress        ProgressIndicator `json:"progress"`
}

// CommitResponse is the flat wire body of the commit endpoint
type CommitResponse struct {
	Success         bool         `json:"success"`
	Status          CommitStatus `json:"status"`
	Version         int64        `json:"version,omitempty"`
	CurrentStage    int          `json:"currentStage,omitempty"`
	OverallProgress int          `json:"overallProgress,omitempty"`
	StageProgress   int          `json:"stageProgress,omitempty"`
	StageAdvanced   bool         `json:"stageAdvanced,omitempty"`
	Completed       bool         `json:"completed,omitempty"`
	CurrentVersion  *int64       `json:"currentVersion,omitempty"`
	ExpectedVersion *int64       `json:"expectedVersion,omitempty"`
	Error           *ErrorBody   `json:"error,omitempty"`
}

// NewCommitResponse wraps an accepted or replayed result
func NewCommitResponse(r *CommitResult) CommitResponse {
	return CommitResponse{
		Success:         true,
		Status:          r.Status,
		Version:         r.Version,
		CurrentStage:    r.CurrentStage,
		OverallProgress: r.OverallProgress,
		StageProgress:   r.StageProgress,
		StageAdvanced:   r.StageAdvanced,
		Completed:       r.Completed,
	}
}

// Result converts a successful response back into a CommitResult
func (r CommitResponse) Result() *CommitResult {
	return &CommitResult{
		Status:          r.Status,
		Version:         r.Version,
		CurrentStage:    r.CurrentStage,
		OverallProgress: r.OverallProgress,
		StageProgress:   r.StageProgress,
		StageAdvanced:   r.StageAdvanced,
		Completed:       r.Completed,
	}
}

// NewCommitErrorResponse describes a rejected commit
func NewCommitErrorResponse(err error) CommitResponse {
	body := NewErrorBody(err)
	resp := CommitResponse{Status: CommitError, Error: &body}

	var conflict *VersionConflictError
	if errors.As(err, &conflict) {
		current := conflict.Current
		resp.Status = CommitVersionConflict
		resp.CurrentVersion = &current
		resp.ExpectedVersion = conflict.Expected
	}
	return resp
}

// ReviseStatus is the outcome reported by the revise endpoint
type ReviseStatus string

const (
	ReviseReset        ReviseStatus = "reset"
	ReviseCannotRevise ReviseStatus = "cannot_revise"
	ReviseError        ReviseStatus = "error"
)

// ReviseResponse is the flat wire body of the revise endpoint
type ReviseResponse struct {
	Status  ReviseStatus `json:"status"`
	Session *SessionView `json:"session,omitempty"`
	Error   *ErrorBody   `json:"error,omitempty"`
}
