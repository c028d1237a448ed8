package quality

import (
	"github.com/Rrens/onboarding-sync/internal/domain"
)

// Fallback floor: a stage that has dragged on this long with reasonable
// coverage is advanced even if the topic judgment is strict.
const (
	FallbackMinTurns    = 6
	FallbackMinCoverage = 0.6
)

// Rule names which condition completed a stage
type Rule string

const (
	RuleNone     Rule = ""
	RuleTopics   Rule = "topics"
	RuleFallback Rule = "fallback"
)

// Decision is the outcome of evaluating a stage
type Decision struct {
	StageComplete      bool    `json:"stageComplete"`
	OnboardingComplete bool    `json:"onboardingComplete"`
	Rule               Rule    `json:"rule,omitempty"`
	TopicRatio         float64 `json:"topicRatio"`
}

// Gate decides stage and onboarding completion. It holds no state.
type Gate struct {
	catalog     *domain.Catalog
	minTurns    int
	minCoverage float64
}

// NewGate creates a gate over catalog with the standard fallback floor
func NewGate(catalog *domain.Catalog) *Gate {
	return &Gate{
		catalog:     catalog,
		minTurns:    FallbackMinTurns,
		minCoverage: FallbackMinCoverage,
	}
}

// TopicRatio returns |covered ∩ required| / |required|
func TopicRatio(def domain.StageDefinition, covered []string) float64 {
	if len(def.RequiredTopics) == 0 {
		return 0
	}
	seen := make(map[string]bool, len(covered))
	n := 0
	for _, k := range covered {
		if seen[k] || !def.Requires(k) {
			continue
		}
		seen[k] = true
		n++
	}
	return float64(n) / float64(len(def.RequiredTopics))
}

// Evaluate applies the topic rule, then the fallback rule.
// stageTurns counts the turns recorded in the current stage, including the one being committed.
func (g *Gate) Evaluate(def domain.StageDefinition, covered []string, coverage float64, stageTurns int) Decision {
	d := Decision{TopicRatio: TopicRatio(def, covered)}

	switch {
	case len(def.RequiredTopics) > 0 && d.TopicRatio >= def.CompletionThreshold:
		d.Rule = RuleTopics
	case stageTurns >= g.minTurns && coverage >= g.minCoverage:
		d.Rule = RuleFallback
	default:
		return d
	}

	d.StageComplete = true
	d.OnboardingComplete = g.catalog.IsFinal(def.Stage)
	return d
}
