package domain

import (
	"context"
	"math"
	"time"
)

// SessionStatus is the authoritative lifecycle state of a session
type SessionStatus string

const (
	StatusActive    SessionStatus = "active"
	StatusPaused    SessionStatus = "paused"
	StatusCompleted SessionStatus = "completed"
	StatusAbandoned SessionStatus = "abandoned"
)

// ArtifactStatus tracks the downstream analysis triggered by completion
type ArtifactStatus string

const (
	ArtifactNone       ArtifactStatus = "none"
	ArtifactQueued     ArtifactStatus = "queued"
	ArtifactProcessing ArtifactStatus = "processing"
	ArtifactCompleted  ArtifactStatus = "completed"
	ArtifactVoided     ArtifactStatus = "voided"
)

// Started reports whether downstream processing has begun
func (a ArtifactStatus) Started() bool {
	return a == ArtifactProcessing || a == ArtifactCompleted
}

// Turn is one committed user/assistant exchange
type Turn struct {
	MessageID        string       `json:"messageId"`
	UserMessage      string       `json:"userMessage"`
	AssistantMessage string       `json:"assistantMessage"`
	Stage            int          `json:"stage"`
	Timestamp        time.Time    `json:"timestamp"`
	Result           CommitResult `json:"result"`
}

// Session is the durable record of one user's onboarding progress
type Session struct {
	ID                  string         `json:"sessionId"`
	UserID              string         `json:"userId"`
	CurrentStage        int            `json:"currentStage"`
	Status              SessionStatus  `json:"status"`
	Version             int64          `json:"version"`
	ExtractedData       ExtractedData  `json:"extractedData"`
	ConversationHistory []Turn         `json:"conversationHistory"`
	StageSummaries      map[int]string `json:"stageSummaries,omitempty"`
	StageTopics         []string       `json:"stageTopics"`
	StageTurnCount      int            `json:"stageTurnCount"`
	StageProgress       int            `json:"stageProgress"`
	OverallProgress     int            `json:"overallProgress"`
	ArtifactStatus      ArtifactStatus `json:"artifactStatus"`
	LastActivity        time.Time      `json:"lastActivity"`
	ExpiresAt           time.Time      `json:"expiresAt"`
	CreatedAt           time.Time      `json:"createdAt"`
	UpdatedAt           time.Time      `json:"updatedAt"`
	CompletedAt         *time.Time     `json:"completedAt,omitempty"`
}

// NewSession creates a session at stage 1, version 0
func NewSession(id, userID string, now time.Time, ttl time.Duration) *Session {
	return &Session{
		ID:             id,
		UserID:         userID,
		CurrentStage:   1,
		Status:         StatusActive,
		Version:        0,
		ExtractedData:  ExtractedData{},
		StageSummaries: map[int]string{},
		StageTopics:    []string{},
		ArtifactStatus: ArtifactNone,
		LastActivity:   now,
		ExpiresAt:      now.Add(ttl),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// IsComplete is derived from status only, never from progress
func (s *Session) IsComplete() bool {
	return s.Status == StatusCompleted
}

// IsTerminal reports whether the session accepts no further commits
func (s *Session) IsTerminal() bool {
	return s.Status == StatusCompleted || s.Status == StatusAbandoned
}

// Expired reports whether the sliding expiry has passed
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// OwnedBy reports whether userID owns the session
func (s *Session) OwnedBy(userID string) bool {
	return userID != "" && s.UserID == userID
}

// FindTurn returns the committed turn with the given message id
func (s *Session) FindTurn(messageID string) (Turn, bool) {
	for _, t := range s.ConversationHistory {
		if t.MessageID == messageID {
			return t, true
		}
	}
	return Turn{}, false
}

// StageTurns returns up to limit most recent turns recorded in the current stage
func (s *Session) StageTurns(limit int) []Turn {
	var turns []Turn
	for i := len(s.ConversationHistory) - 1; i >= 0; i-- {
		t := s.ConversationHistory[i]
		if t.Stage != s.CurrentStage {
			break
		}
		turns = append(turns, t)
		if limit > 0 && len(turns) == limit {
			break
		}
	}
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns
}

// Touch extends the sliding expiry
func (s *Session) Touch(now time.Time, ttl time.Duration) {
	s.LastActivity = now
	s.UpdatedAt = now
	s.ExpiresAt = now.Add(ttl)
}

// Clone returns a deep copy
func (s *Session) Clone() *Session {
	out := *s
	out.ExtractedData = s.ExtractedData.Clone()
	out.ConversationHistory = append([]Turn(nil), s.ConversationHistory...)
	out.StageTopics = append([]string(nil), s.StageTopics...)
	out.StageSummaries = make(map[int]string, len(s.StageSummaries))
	for k, v := range s.StageSummaries {
		out.StageSummaries[k] = v
	}
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		out.CompletedAt = &t
	}
	return &out
}

// ComputeOverallProgress converts stage position into a 0-100 figure.
// Only a completed session reports 100.
func ComputeOverallProgress(stages, currentStage int, stageRatio float64, completed bool) int {
	if completed {
		return 100
	}
	if stages <= 0 {
		return 0
	}
	ratio := math.Max(0, math.Min(1, stageRatio))
	pct := int(math.Round((float64(currentStage-1) + ratio) / float64(stages) * 100))
	if pct > 99 {
		pct = 99
	}
	if pct < 0 {
		pct = 0
	}
	return pct
}

// Expectation is the predicate of a conditional save. Artifact transitions
// leave version and status alone, so the artifact status is part of it too.
type Expectation struct {
	Version        int64
	Status         SessionStatus
	ArtifactStatus ArtifactStatus
}

// ExpectationOf captures the predicate for a session as loaded
func ExpectationOf(s *Session) Expectation {
	return Expectation{Version: s.Version, Status: s.Status, ArtifactStatus: s.ArtifactStatus}
}

// SessionRepository defines the interface for session storage.
// Save must apply the whole record only if the stored version, status and
// artifact status still match expect, returning ErrVersionConflict otherwise.
type SessionRepository interface {
	Create(ctx context.Context, session *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, session *Session, expect Expectation) error
	Ping(ctx context.Context) error
}
