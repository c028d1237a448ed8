package quality

import (
	"context"

	"github.com/Rrens/onboarding-sync/internal/domain"
)

// Input is what an assessor sees for one stage
type Input struct {
	Stage     domain.StageDefinition
	Turns     []domain.Turn
	Extracted domain.ExtractedData
}

// Assessment is a topic-coverage judgment for the current stage
type Assessment struct {
	TopicsCovered []string          `json:"topicsCovered"`
	ExtractedData map[string]string `json:"extractedData"`
	Coverage      float64           `json:"coverage"`
	Summary       string            `json:"summary"`
}

// Assessor judges which stage topics a conversation has covered.
// Implementations are swapped by configuration; the commit path is the same for all.
type Assessor interface {
	Name() string
	Assess(ctx context.Context, in Input) (*Assessment, error)
}

func clampCoverage(c float64) float64 {
	switch {
	case c < 0:
		return 0
	case c > 1:
		return 1
	}
	return c
}
