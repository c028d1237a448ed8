package llm

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Rrens/onboarding-sync/internal/domain"
)

// PromptContext is the read-only session context a prompt is built from
type PromptContext struct {
	Stage         domain.StageDefinition
	TotalStages   int
	Extracted     domain.ExtractedData
	CoveredTopics []string
}

// BuildSystemPrompt creates the interviewer instructions for the current stage
func BuildSystemPrompt(pc PromptContext) string {
	covered := make(map[string]bool, len(pc.CoveredTopics))
	for _, k := range pc.CoveredTopics {
		covered[k] = true
	}

	var missing []string
	for _, t := range pc.Stage.RequiredTopics {
		if !covered[t.Key] {
			missing = append(missing, "- "+t.Label)
		}
	}
	if len(missing) == 0 {
		missing = append(missing, "- (all topics covered, confirm and summarize)")
	}

	return fmt.Sprintf(`You are a warm, professional onboarding consultant interviewing a founder.

Stage %d of %d: %s
Objective: %s

Topics still to cover:
%s

Known so far:
%s
Rules:
1. Ask one focused question at a time
2. Acknowledge what the founder just said before asking
3. If the founder is unsure, accept it and move on; do not press
4. Never ask again about topics already known`,
		pc.Stage.Stage, pc.TotalStages, pc.Stage.Title, pc.Stage.Objective,
		strings.Join(missing, "\n"), formatExtracted(pc.Extracted))
}

// BuildAssessmentPrompt asks the model to judge topic coverage for a stage
func BuildAssessmentPrompt(stage domain.StageDefinition, turns []domain.Turn, extracted domain.ExtractedData) string {
	var topics []string
	for _, t := range stage.RequiredTopics {
		topics = append(topics, fmt.Sprintf("- %s: %s", t.Key, t.Label))
	}

	var transcript strings.Builder
	for _, t := range turns {
		fmt.Fprintf(&transcript, "Consultant: %s\nFounder: %s\n", t.AssistantMessage, t.UserMessage)
	}

	return fmt.Sprintf(`Assess an onboarding interview stage.

Stage: %s
Required topics:
%s

Already extracted:
%s
Transcript:
%s
Respond with ONLY a JSON object:
{"topicsCovered": ["<topic key>"], "extractedData": {"<topic key>": "<value>"}, "coverage": <0..1>, "summary": "<one sentence>"}

A topic is covered even if the founder was unsure; record such values as "uncertain: <their words>".`,
		stage.Title, strings.Join(topics, "\n"), formatExtracted(extracted), transcript.String())
}

func formatExtracted(data domain.ExtractedData) string {
	if len(data) == 0 {
		return "(nothing yet)\n"
	}
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&sb, "- %s: %s\n", k, data[k].String())
	}
	return sb.String()
}

// ExtractJSON extracts a JSON object from an LLM response
func ExtractJSON(content string) string {
	if block := extractFromCodeBlock(content, "```json", "```"); block != "" {
		return block
	}
	if block := extractFromCodeBlock(content, "```", "```"); block != "" {
		return block
	}

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start == -1 || end <= start {
		return strings.TrimSpace(content)
	}
	return content[start : end+1]
}

func extractFromCodeBlock(content, startMarker, endMarker string) string {
	startIdx := strings.Index(content, startMarker)
	if startIdx == -1 {
		return ""
	}

	contentStart := startIdx + len(startMarker)
	if contentStart < len(content) && content[contentStart] == '\n' {
		contentStart++
	}

	endIdx := strings.Index(content[contentStart:], endMarker)
	if endIdx == -1 {
		return ""
	}

	return strings.TrimSpace(content[contentStart : contentStart+endIdx])
}
