package domain

import "fmt"

// NewSessionView builds the client-facing view of s
func NewSessionView(s *Session, catalog *Catalog) SessionView {
	def, _ := catalog.Stage(s.CurrentStage)
	return SessionView{
		SessionID:       s.ID,
		CurrentStage:    s.CurrentStage,
		StageName:       def.Name,
		Status:          s.Status,
		Version:         s.Version,
		StageProgress:   s.StageProgress,
		OverallProgress: s.OverallProgress,
		IsComplete:      s.IsComplete(),
		ArtifactStatus:  s.ArtifactStatus,
		ExtractedData:   s.ExtractedData,
		TurnCount:       len(s.ConversationHistory),
		Progress: ProgressIndicator{
			Current:    s.CurrentStage,
			Total:      catalog.Len(),
			Percentage: s.OverallProgress,
			Text:       fmt.Sprintf("Step %d of %d", s.CurrentStage, catalog.Len()),
		},
	}
}
