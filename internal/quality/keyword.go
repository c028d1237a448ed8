package quality

import (
	"context"
	"fmt"
	"strings"

	"github.com/Rrens/onboarding-sync/internal/domain"
)

const (
	maxValueLen    = 280
	completeAtWord = 20
)

var hedges = []string{
	"maybe",
	"not sure",
	"unsure",
	"i think",
	"probably",
	"don't know",
	"dont know",
	"no idea",
	"haven't decided",
}

// KeywordAssessor is a deterministic, offline assessor driven by the
// catalog's keyword hints. A topic is covered when any of its keywords
// appears in the founder's answers.
type KeywordAssessor struct{}

// NewKeywordAssessor creates a keyword assessor
func NewKeywordAssessor() *KeywordAssessor {
	return &KeywordAssessor{}
}

// Name returns the strategy identifier
func (a *KeywordAssessor) Name() string {
	return "keyword"
}

// Assess scans the stage turns, newest first, for topic keywords
func (a *KeywordAssessor) Assess(_ context.Context, in Input) (*Assessment, error) {
	out := &Assessment{ExtractedData: map[string]string{}}

	var labels []string
	for _, topic := range in.Stage.RequiredTopics {
		for i := len(in.Turns) - 1; i >= 0; i-- {
			answer := in.Turns[i].UserMessage
			if !mentions(answer, topic.Keywords) {
				continue
			}
			out.TopicsCovered = append(out.TopicsCovered, topic.Key)
			out.ExtractedData[topic.Key] = extractValue(answer)
			labels = append(labels, topic.Label)
			break
		}
	}

	ratio := TopicRatio(in.Stage, out.TopicsCovered)
	out.Coverage = clampCoverage(0.5*ratio + 0.5*answerCompleteness(in.Turns))
	if len(labels) > 0 {
		out.Summary = fmt.Sprintf("%s: discussed %s.", in.Stage.Title, strings.Join(labels, ", "))
	}
	return out, nil
}

func mentions(text string, keywords []string) bool {
	lower := strings.ToLower(text)
	for _, kw := range keywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

func extractValue(answer string) string {
	v := strings.TrimSpace(answer)
	if r := []rune(v); len(r) > maxValueLen {
		v = strings.TrimSpace(string(r[:maxValueLen]))
	}
	if mentions(v, hedges) {
		return "uncertain: " + v
	}
	return v
}

// answerCompleteness averages min(words/20, 1) over the founder's answers
func answerCompleteness(turns []domain.Turn) float64 {
	if len(turns) == 0 {
		return 0
	}
	total := 0.0
	for _, t := range turns {
		words := float64(len(strings.Fields(t.UserMessage)))
		total += min(words/completeAtWord, 1)
	}
	return total / float64(len(turns))
}
