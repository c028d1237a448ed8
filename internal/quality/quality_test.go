package quality

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Rrens/onboarding-sync/internal/domain"
	"github.com/Rrens/onboarding-sync/internal/llm"
)

func TestGate_Evaluate(t *testing.T) {
	catalog := domain.DefaultCatalog()
	gate := NewGate(catalog)
	stage1, _ := catalog.Stage(1)
	final, _ := catalog.Stage(catalog.Len())

	tests := []struct {
		name       string
		def        domain.StageDefinition
		covered    []string
		coverage   float64
		turns      int
		complete   bool
		onboarding bool
		rule       Rule
	}{
		{
			name:    "half the topics",
			def:     stage1,
			covered: []string{"business_concept", "inspiration"},
			turns:   2,
		},
		{
			name:     "threshold reached exactly",
			def:      stage1,
			covered:  []string{"business_concept", "inspiration", "current_stage"},
			turns:    1,
			complete: true,
			rule:     RuleTopics,
		},
		{
			name:    "topics from other stages do not count",
			def:     stage1,
			covered: []string{"business_concept", "target_customers", "competitors", "budget_range"},
			turns:   1,
		},
		{
			name:    "duplicates do not count twice",
			def:     stage1,
			covered: []string{"business_concept", "business_concept", "inspiration", "inspiration"},
			turns:   1,
		},
		{
			name:     "fallback after enough turns",
			def:      stage1,
			covered:  []string{"business_concept"},
			coverage: 0.6,
			turns:    FallbackMinTurns,
			complete: true,
			rule:     RuleFallback,
		},
		{
			name:     "fallback needs coverage",
			def:      stage1,
			covered:  []string{"business_concept"},
			coverage: 0.59,
			turns:    10,
		},
		{
			name:     "fallback needs turns",
			def:      stage1,
			coverage: 0.9,
			turns:    FallbackMinTurns - 1,
		},
		{
			name:       "final stage completes onboarding",
			def:        final,
			covered:    final.TopicKeys(),
			turns:      1,
			complete:   true,
			onboarding: true,
			rule:       RuleTopics,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := gate.Evaluate(tt.def, tt.covered, tt.coverage, tt.turns)

			assert.Equal(t, tt.complete, d.StageComplete)
			assert.Equal(t, tt.onboarding, d.OnboardingComplete)
			assert.Equal(t, tt.rule, d.Rule)
		})
	}
}

func TestKeywordAssessor_Assess(t *testing.T) {
	stage, _ := domain.DefaultCatalog().Stage(1)
	a := NewKeywordAssessor()

	out, err := a.Assess(context.Background(), Input{
		Stage: stage,
		Turns: []domain.Turn{
			{UserMessage: "I'm building an app because I noticed bakeries waste bread"},
			{UserMessage: "maybe a prototype"},
		},
	})

	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"business_concept", "inspiration", "current_stage"}, out.TopicsCovered)
	assert.Equal(t, "uncertain: maybe a prototype", out.ExtractedData["current_stage"])
	assert.Equal(t, "I'm building an app because I noticed bakeries waste bread", out.ExtractedData["business_concept"])
	assert.True(t, domain.ParseValue(out.ExtractedData["current_stage"]).IsUncertain())
	assert.Contains(t, out.Summary, "Welcome & Introduction")
	assert.InDelta(t, 0.5*0.75+0.5*((10.0/20+3.0/20)/2), out.Coverage, 0.0001)
}

func TestKeywordAssessor_NoTurns(t *testing.T) {
	stage, _ := domain.DefaultCatalog().Stage(2)

	out, err := NewKeywordAssessor().Assess(context.Background(), Input{Stage: stage})

	require.NoError(t, err)
	assert.Empty(t, out.TopicsCovered)
	assert.Zero(t, out.Coverage)
	assert.Empty(t, out.Summary)
}

func TestExtractValue_TruncatesOnRuneBoundary(t *testing.T) {
	v := extractValue(strings.Repeat("é", maxValueLen+10))

	assert.True(t, utf8.ValidString(v))
	assert.Equal(t, maxValueLen, utf8.RuneCountInString(v))
}

type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) Name() string              { return "mock" }
func (m *MockProvider) AvailableModels() []string { return []string{"m"} }
func (m *MockProvider) DefaultModel() string      { return "m" }
func (m *MockProvider) IsConfigured() bool        { return true }

func (m *MockProvider) Stream(ctx context.Context, req llm.Request, model string, onDelta llm.DeltaFunc) (*llm.Response, error) {
	args := m.Called(ctx, req, model)
	if text := args.String(0); text != "" {
		if err := onDelta(text); err != nil {
			return nil, err
		}
	}
	if args.Get(1) != nil {
		return nil, args.Error(1)
	}
	return &llm.Response{Content: args.String(0), Model: model}, nil
}

func TestModelAssessor_Assess(t *testing.T) {
	stage, _ := domain.DefaultCatalog().Stage(2)
	provider := new(MockProvider)
	provider.On("Stream", mock.Anything, mock.Anything, "judge").Return(
		"Sure:\n```json\n{\"topicsCovered\":[\"target_customers\",\"competitors\"],\"extractedData\":{\"target_customers\":\"dentists\"},\"coverage\":1.4,\"summary\":\"Sells to dentists.\"}\n```",
		nil,
	)

	out, err := NewModelAssessor(provider, "judge").Assess(context.Background(), Input{
		Stage: stage,
		Turns: []domain.Turn{{UserMessage: "dentists", AssistantMessage: "Who buys?"}},
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"target_customers"}, out.TopicsCovered)
	assert.Equal(t, "dentists", out.ExtractedData["target_customers"])
	assert.Equal(t, 1.0, out.Coverage)
	assert.Equal(t, "model:mock", NewModelAssessor(provider, "judge").Name())
	provider.AssertExpectations(t)
}

func TestModelAssessor_Errors(t *testing.T) {
	stage, _ := domain.DefaultCatalog().Stage(1)

	t.Run("garbage output", func(t *testing.T) {
		provider := new(MockProvider)
		provider.On("Stream", mock.Anything, mock.Anything, "").Return("I cannot help with that", nil)

		_, err := NewModelAssessor(provider, "").Assess(context.Background(), Input{Stage: stage})

		assert.ErrorIs(t, err, domain.ErrProcessing)
	})

	t.Run("rate limited provider", func(t *testing.T) {
		provider := new(MockProvider)
		provider.On("Stream", mock.Anything, mock.Anything, "").Return("", domain.ErrRateLimited)

		_, err := NewModelAssessor(provider, "").Assess(context.Background(), Input{Stage: stage})

		assert.ErrorIs(t, err, domain.ErrRateLimited)
		assert.True(t, domain.Retryable(err))
	})
}
