package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Rrens/onboarding-sync/internal/domain"
	"github.com/Rrens/onboarding-sync/internal/llm"
)

// ExchangeResult is the outcome of one question/answer round
type ExchangeResult struct {
	Reply  string
	Result *domain.CommitResult
	// Pending is set when the commit failed in a retryable way. The exchange
	// is in the durability queue and will be replayed by Recover.
	Pending bool
	Err     error
	// Earlier reports the replay of queued exchanges that ran before this one.
	// Its Conflicted and Exhausted drafts still need the user's attention.
	Earlier RecoveryReport
}

// Conversation drives one session from the client side: stream, queue, commit
type Conversation struct {
	api       *APIClient
	queue     *Queue
	sessionID string

	mu      sync.Mutex
	version int64
	stage   int
	history []domain.ChatMessage

	newID func() string
}

// NewConversation continues the session described by view
func NewConversation(api *APIClient, queue *Queue, view *domain.SessionView) *Conversation {
	return &Conversation{
		api:       api,
		queue:     queue,
		sessionID: view.SessionID,
		version:   view.Version,
		stage:     view.CurrentStage,
		newID:     uuid.NewString,
	}
}

// SessionID returns the session the conversation writes to
func (c *Conversation) SessionID() string {
	return c.sessionID
}

// Version returns the last version confirmed by the server
func (c *Conversation) Version() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version
}

// Stage returns the last stage confirmed by the server
func (c *Conversation) Stage() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stage
}

// Send streams the reply to answer and commits the exchange. Stream failures
// return an error and leave nothing queued; the caller keeps the draft.
func (c *Conversation) Send(ctx context.Context, answer string, onDelta llm.DeltaFunc) (*ExchangeResult, error) {
	if strings.TrimSpace(answer) == "" {
		return nil, fmt.Errorf("%w: empty answer", domain.ErrInvalidInput)
	}

	pending, err := c.queue.HasPending(ctx, c.sessionID)
	if err != nil {
		return nil, err
	}
	var earlier RecoveryReport
	if pending {
		earlier, err = c.Recover(ctx, nil)
		if err != nil {
			return nil, err
		}
		if earlier.Retrying > 0 {
			log.Warn().Err(earlier.LastError).Str("session_id", c.sessionID).Msg("Earlier exchanges are still pending")
		}
	}

	c.mu.Lock()
	messages := append(append([]domain.ChatMessage(nil), c.history...), domain.ChatMessage{Role: "user", Content: answer})
	expected := c.version
	c.mu.Unlock()

	var reply strings.Builder
	_, err = c.api.Stream(ctx, c.sessionID, messages, func(text string) error {
		reply.WriteString(text)
		if onDelta != nil {
			return onDelta(text)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	p := PendingCommit{
		SessionID:        c.sessionID,
		MessageID:        c.newID(),
		UserMessage:      answer,
		AssistantMessage: reply.String(),
		ExpectedVersion:  &expected,
	}
	if err := c.queue.SavePending(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to queue exchange: %w", err)
	}

	out := &ExchangeResult{Reply: p.AssistantMessage, Earlier: earlier}
	result, err := c.api.Commit(ctx, c.sessionID, domain.CommitInput{
		MessageID:        p.MessageID,
		UserMessage:      p.UserMessage,
		AssistantMessage: p.AssistantMessage,
		ExpectedVersion:  p.ExpectedVersion,
	})
	switch {
	case err == nil:
		if err := c.queue.Remove(ctx, p.MessageID); err != nil {
			log.Warn().Err(err).Str("message_id", p.MessageID).Msg("Failed to remove committed exchange")
		}
		c.accept(messages, p.AssistantMessage, result)
		out.Result = result
		return out, nil

	case errors.Is(err, domain.ErrVersionConflict):
		if rmErr := c.queue.Remove(ctx, p.MessageID); rmErr != nil {
			log.Warn().Err(rmErr).Str("message_id", p.MessageID).Msg("Failed to remove stale exchange")
		}
		if refreshErr := c.Refresh(ctx); refreshErr != nil {
			log.Warn().Err(refreshErr).Str("session_id", c.sessionID).Msg("Failed to reload session after conflict")
		}
		return out, err

	case domain.Retryable(err):
		log.Warn().Err(err).Str("session_id", c.sessionID).Str("message_id", p.MessageID).Msg("Commit failed, exchange kept for retry")
		c.mu.Lock()
		c.history = append(messages, domain.ChatMessage{Role: "assistant", Content: p.AssistantMessage})
		c.mu.Unlock()
		out.Pending = true
		out.Err = err
		return out, nil

	default:
		if rmErr := c.queue.Remove(ctx, p.MessageID); rmErr != nil {
			log.Warn().Err(rmErr).Str("message_id", p.MessageID).Msg("Failed to remove rejected exchange")
		}
		return out, err
	}
}

// Recover replays the queued exchanges of this session
func (c *Conversation) Recover(ctx context.Context, onRecovered RecoveredFunc) (RecoveryReport, error) {
	report, err := c.queue.RecoverPending(ctx, c.sessionID, func(p PendingCommit, result *domain.CommitResult) {
		c.observe(result)
		if onRecovered != nil {
			onRecovered(p, result)
		}
	})
	if err != nil {
		return report, err
	}

	if len(report.Conflicted) > 0 {
		if err := c.Refresh(ctx); err != nil {
			return report, err
		}
	}
	return report, nil
}

// Refresh reloads the authoritative version and stage
func (c *Conversation) Refresh(ctx context.Context) error {
	view, err := c.api.GetSession(ctx, c.sessionID)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.version = view.Version
	c.stage = view.CurrentStage
	c.mu.Unlock()
	return nil
}

func (c *Conversation) accept(messages []domain.ChatMessage, reply string, result *domain.CommitResult) {
	c.mu.Lock()
	c.history = append(messages, domain.ChatMessage{Role: "assistant", Content: reply})
	c.mu.Unlock()
	c.observe(result)
}

// observe moves the local view forward; replayed duplicates may carry an older version
func (c *Conversation) observe(result *domain.CommitResult) {
	if result == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if result.Version >= c.version {
		c.version = result.Version
		c.stage = result.CurrentStage
	}
}
