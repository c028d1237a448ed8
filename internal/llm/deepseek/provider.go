package deepseek

import (
	"github.com/Rrens/onboarding-sync/internal/llm"
	"github.com/Rrens/onboarding-sync/internal/llm/openai"
)

// NewProvider creates a new DeepSeek provider.
// DeepSeek speaks the OpenAI chat-completions protocol.
func NewProvider(apiKey, defaultModel string) llm.Provider {
	if defaultModel == "" {
		defaultModel = "deepseek-chat"
	}
	return openai.NewCompatibleProvider("deepseek", "https://api.deepseek.com/v1", apiKey, defaultModel, []string{
		"deepseek-chat",
		"deepseek-reasoner",
	})
}
