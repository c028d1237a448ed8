package llm

import (
	"context"
	"strings"
)

// Message is one chat message sent to a provider
type Message struct {
	Role    string
	Content string
}

// Request contains conversational generation parameters
type Request struct {
	System      string
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// Response contains the result of a generation
type Response struct {
	Content    string
	Model      string
	TokensUsed int
	LatencyMs  int64
}

// DeltaFunc receives streamed text fragments in order.
// Returning an error aborts the stream.
type DeltaFunc func(text string) error

// Provider defines the interface for LLM providers
type Provider interface {
	// Name returns the provider identifier
	Name() string

	// AvailableModels returns list of supported models
	AvailableModels() []string

	// DefaultModel returns the default model
	DefaultModel() string

	// IsConfigured checks if provider has valid credentials
	IsConfigured() bool

	// Stream generates a reply, delivering fragments to onDelta as they arrive
	Stream(ctx context.Context, req Request, model string, onDelta DeltaFunc) (*Response, error)
}

// Complete runs a streamed generation and returns the concatenated text
func Complete(ctx context.Context, p Provider, req Request, model string) (*Response, error) {
	var sb strings.Builder
	resp, err := p.Stream(ctx, req, model, func(text string) error {
		sb.WriteString(text)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if resp.Content == "" {
		resp.Content = sb.String()
	}
	return resp, nil
}
