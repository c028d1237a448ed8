package domain

import (
	"fmt"
	"time"
)

// RecordTurn appends a committed exchange to the current stage
func (s *Session) RecordTurn(t Turn) {
	t.Stage = s.CurrentStage
	s.ConversationHistory = append(s.ConversationHistory, t)
	s.StageTurnCount++
}

// CoverTopics unions covered into the current stage's covered topics,
// keeping only topics the stage requires.
func (s *Session) CoverTopics(def StageDefinition, covered []string) {
	seen := make(map[string]bool, len(s.StageTopics))
	for _, k := range s.StageTopics {
		seen[k] = true
	}
	for _, k := range covered {
		if !seen[k] && def.Requires(k) {
			seen[k] = true
			s.StageTopics = append(s.StageTopics, k)
		}
	}
}

// AdvanceStage moves to newStage, which must be exactly one past the current stage.
// The delta is merged with the certain-over-uncertain rule and stage-local counters reset.
func (s *Session) AdvanceStage(catalog *Catalog, newStage int, summary string, delta ExtractedData) ([]string, error) {
	if s.IsTerminal() {
		return nil, fmt.Errorf("%w: advance from %s session", ErrInvalidTransition, s.Status)
	}
	if newStage != s.CurrentStage+1 || newStage > catalog.Len() {
		return nil, fmt.Errorf("%w: stage %d -> %d", ErrInvalidTransition, s.CurrentStage, newStage)
	}
	rejected := s.MergeExtracted(catalog, delta)
	s.SummarizeStage(summary)
	s.CurrentStage = newStage
	s.StageTopics = []string{}
	s.StageTurnCount = 0
	s.StageProgress = 0
	s.OverallProgress = ComputeOverallProgress(catalog.Len(), s.CurrentStage, 0, false)
	return rejected, nil
}

// MergeExtracted folds delta into the cumulative extracted data and
// returns the keys that were rejected
func (s *Session) MergeExtracted(catalog *Catalog, delta ExtractedData) []string {
	if s.ExtractedData == nil {
		s.ExtractedData = ExtractedData{}
	}
	return s.ExtractedData.Merge(delta, catalog)
}

// SummarizeStage records the summary of the current stage
func (s *Session) SummarizeStage(summary string) {
	if summary == "" {
		return
	}
	if s.StageSummaries == nil {
		s.StageSummaries = map[int]string{}
	}
	s.StageSummaries[s.CurrentStage] = summary
}

// Complete marks the session completed and queues the downstream artifact.
// Completing an already completed session is a no-op.
func (s *Session) Complete(now time.Time) error {
	if s.Status == StatusCompleted {
		return nil
	}
	if s.Status == StatusAbandoned {
		return fmt.Errorf("%w: complete abandoned session", ErrInvalidTransition)
	}
	s.Status = StatusCompleted
	s.OverallProgress = 100
	s.StageProgress = 100
	s.CompletedAt = &now
	s.ArtifactStatus = ArtifactQueued
	s.UpdatedAt = now
	return nil
}

// ReviseForRevision reopens a completed session whose artifact has not started.
// The stage is kept and any queued artifact is voided.
func (s *Session) ReviseForRevision(catalog *Catalog, now time.Time) error {
	if s.Status != StatusCompleted {
		return fmt.Errorf("%w: status is %s", ErrCannotRevise, s.Status)
	}
	if s.ArtifactStatus.Started() {
		return fmt.Errorf("%w: artifact is %s", ErrCannotRevise, s.ArtifactStatus)
	}
	s.Status = StatusActive
	s.CompletedAt = nil
	if s.ArtifactStatus == ArtifactQueued {
		s.ArtifactStatus = ArtifactVoided
	}
	s.RefreshProgress(catalog)
	s.UpdatedAt = now
	return nil
}

// Pause moves an active session to paused
func (s *Session) Pause(now time.Time) error {
	switch s.Status {
	case StatusPaused:
		return nil
	case StatusActive:
		s.Status = StatusPaused
		s.UpdatedAt = now
		return nil
	}
	return fmt.Errorf("%w: pause %s session", ErrInvalidTransition, s.Status)
}

// Resume moves a paused session back to active
func (s *Session) Resume(now time.Time) error {
	switch s.Status {
	case StatusActive:
		return nil
	case StatusPaused:
		s.Status = StatusActive
		s.UpdatedAt = now
		return nil
	}
	return fmt.Errorf("%w: resume %s session", ErrInvalidTransition, s.Status)
}

// Abandon terminates an unfinished session
func (s *Session) Abandon(now time.Time) error {
	switch s.Status {
	case StatusAbandoned:
		return nil
	case StatusActive, StatusPaused:
		s.Status = StatusAbandoned
		s.UpdatedAt = now
		return nil
	}
	return fmt.Errorf("%w: abandon %s session", ErrInvalidTransition, s.Status)
}

// ClaimArtifact marks a queued artifact as processing
func (s *Session) ClaimArtifact(now time.Time) error {
	if s.Status != StatusCompleted || s.ArtifactStatus != ArtifactQueued {
		return fmt.Errorf("%w: claim artifact %s on %s session", ErrInvalidTransition, s.ArtifactStatus, s.Status)
	}
	s.ArtifactStatus = ArtifactProcessing
	s.UpdatedAt = now
	return nil
}

// FinishArtifact marks a processing artifact as completed
func (s *Session) FinishArtifact(now time.Time) error {
	if s.ArtifactStatus != ArtifactProcessing {
		return fmt.Errorf("%w: finish artifact %s", ErrInvalidTransition, s.ArtifactStatus)
	}
	s.ArtifactStatus = ArtifactCompleted
	s.UpdatedAt = now
	return nil
}

// ReleaseArtifact returns a processing artifact to the queue after a failed run
func (s *Session) ReleaseArtifact(now time.Time) error {
	if s.ArtifactStatus != ArtifactProcessing {
		return fmt.Errorf("%w: release artifact %s", ErrInvalidTransition, s.ArtifactStatus)
	}
	s.ArtifactStatus = ArtifactQueued
	s.UpdatedAt = now
	return nil
}

// RefreshProgress recomputes stage and overall progress from the covered topics
func (s *Session) RefreshProgress(catalog *Catalog) {
	if s.IsComplete() {
		s.StageProgress = 100
		s.OverallProgress = 100
		return
	}
	def, _ := catalog.Stage(s.CurrentStage)
	s.StageProgress = stageRatioPercent(def, s.StageTopics)
	s.OverallProgress = ComputeOverallProgress(catalog.Len(), s.CurrentStage, float64(s.StageProgress)/100, false)
}

func stageRatioPercent(def StageDefinition, covered []string) int {
	if len(def.RequiredTopics) == 0 {
		return 0
	}
	n := 0
	for _, k := range covered {
		if def.Requires(k) {
			n++
		}
	}
	return n * 100 / len(def.RequiredTopics)
}
