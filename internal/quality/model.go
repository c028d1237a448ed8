package quality

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Rrens/onboarding-sync/internal/domain"
	"github.com/Rrens/onboarding-sync/internal/llm"
)

// ModelAssessor asks a language model to judge coverage
type ModelAssessor struct {
	provider llm.Provider
	model    string
}

// NewModelAssessor creates an assessor backed by provider
func NewModelAssessor(provider llm.Provider, model string) *ModelAssessor {
	return &ModelAssessor{provider: provider, model: model}
}

// Name returns the strategy identifier
func (a *ModelAssessor) Name() string {
	return "model:" + a.provider.Name()
}

// Assess runs the assessment prompt and parses the JSON verdict
func (a *ModelAssessor) Assess(ctx context.Context, in Input) (*Assessment, error) {
	resp, err := llm.Complete(ctx, a.provider, llm.Request{
		Messages: []llm.Message{{
			Role:    "user",
			Content: llm.BuildAssessmentPrompt(in.Stage, in.Turns, in.Extracted),
		}},
		Temperature: 0,
		MaxTokens:   800,
	}, a.model)
	if err != nil {
		return nil, fmt.Errorf("assessment failed: %w", err)
	}

	var out Assessment
	if err := json.Unmarshal([]byte(llm.ExtractJSON(resp.Content)), &out); err != nil {
		return nil, fmt.Errorf("%w: unparseable assessment: %v", domain.ErrProcessing, err)
	}

	// The model may name topics that belong to other stages; keep only this stage's.
	covered := out.TopicsCovered[:0]
	for _, k := range out.TopicsCovered {
		if in.Stage.Requires(k) {
			covered = append(covered, k)
		}
	}
	out.TopicsCovered = covered
	out.Coverage = clampCoverage(out.Coverage)
	return &out, nil
}
