package llm_test

import (
	"strings"
	"testing"

	"github.com/Rrens/onboarding-sync/internal/domain"
	"github.com/Rrens/onboarding-sync/internal/llm"
)

func TestBuildSystemPrompt(t *testing.T) {
	catalog := domain.DefaultCatalog()
	stage, _ := catalog.Stage(1)

	prompt := llm.BuildSystemPrompt(llm.PromptContext{
		Stage:         stage,
		TotalStages:   catalog.Len(),
		Extracted:     domain.ExtractedData{"business_concept": {Text: "maybe bakeries", Certainty: domain.Uncertain}},
		CoveredTopics: []string{"business_concept"},
	})

	mustContain := []string{
		"Stage 1 of 7",
		"Welcome & Introduction",
		"Inspiration",
		"uncertain: maybe bakeries",
	}
	for _, s := range mustContain {
		if !strings.Contains(prompt, s) {
			t.Errorf("prompt should contain %q", s)
		}
	}

	if strings.Contains(prompt, "- Business concept") {
		t.Error("covered topic should not be listed as missing")
	}
}

func TestBuildAssessmentPrompt(t *testing.T) {
	stage, _ := domain.DefaultCatalog().Stage(2)
	turns := []domain.Turn{{UserMessage: "We sell to dentists", AssistantMessage: "Who are your customers?"}}

	prompt := llm.BuildAssessmentPrompt(stage, turns, nil)

	for _, s := range []string{"target_customers", "Founder: We sell to dentists", "topicsCovered", "(nothing yet)"} {
		if !strings.Contains(prompt, s) {
			t.Errorf("prompt should contain %q", s)
		}
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "json code block",
			input:    "```json\n{\"coverage\": 0.5}\n```",
			expected: `{"coverage": 0.5}`,
		},
		{
			name:     "generic code block",
			input:    "```\n{\"coverage\": 1}\n```",
			expected: `{"coverage": 1}`,
		},
		{
			name:     "surrounding prose",
			input:    `Here you go: {"coverage": 0.2} hope that helps`,
			expected: `{"coverage": 0.2}`,
		},
		{
			name:     "bare",
			input:    `  {"a": {"b": 1}}  `,
			expected: `{"a": {"b": 1}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := llm.ExtractJSON(tt.input); got != tt.expected {
				t.Errorf("ExtractJSON() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestReadSSE(t *testing.T) {
	body := ": comment\nevent: delta\ndata: one\n\ndata: two\ndata: lines\n\nevent: done\ndata: {}\n"

	var events, datas []string
	err := llm.ReadSSE(strings.NewReader(body), func(event, data string) error {
		events = append(events, event)
		datas = append(datas, data)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if events[0] != "delta" || datas[0] != "one" {
		t.Errorf("unexpected first event %q %q", events[0], datas[0])
	}
	if events[1] != "" || datas[1] != "two\nlines" {
		t.Errorf("unexpected second event %q %q", events[1], datas[1])
	}
	if events[2] != "done" || datas[2] != "{}" {
		t.Errorf("unexpected trailing event %q %q", events[2], datas[2])
	}
}
