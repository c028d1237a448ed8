package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Rrens/onboarding-sync/internal/domain"
	"github.com/Rrens/onboarding-sync/internal/llm"
)

// StreamOptions tunes reply generation
type StreamOptions struct {
	Provider     string
	Model        string
	Temperature  float64
	MaxTokens    int
	Timeout      time.Duration
	HistoryLimit int
}

// StreamResult describes a finished reply. The reply is not persisted;
// the client commits it separately.
type StreamResult struct {
	Stage    int    `json:"stage"`
	Version  int64  `json:"version"`
	Content  string `json:"-"`
	Provider string `json:"-"`
	Tokens   int    `json:"-"`
}

// StreamService generates assistant replies from a read-only view of the session
type StreamService struct {
	repo    domain.SessionRepository
	catalog *domain.Catalog
	router  *llm.Router
	cache   SessionCache
	opts    StreamOptions
	now     func() time.Time
}

// NewStreamService creates a new stream service. cache may be nil.
func NewStreamService(
	repo domain.SessionRepository,
	catalog *domain.Catalog,
	router *llm.Router,
	cache SessionCache,
	opts StreamOptions,
) *StreamService {
	return &StreamService{
		repo:    repo,
		catalog: catalog,
		router:  router,
		cache:   cache,
		opts:    opts,
		now:     time.Now,
	}
}

// Stream generates a reply for messages, delivering fragments to onDelta.
// It never writes session state.
func (s *StreamService) Stream(ctx context.Context, userID, sessionID string, messages []domain.ChatMessage, onDelta llm.DeltaFunc) (*StreamResult, error) {
	session, err := s.load(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.IsComplete() {
		return nil, domain.ErrAlreadyCompleted
	}

	def, ok := s.catalog.Stage(session.CurrentStage)
	if !ok {
		return nil, fmt.Errorf("session %s is at unknown stage %d", session.ID, session.CurrentStage)
	}

	provider, err := s.router.GetProvider(s.opts.Provider)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrProcessing, err)
	}

	req := llm.Request{
		System: llm.BuildSystemPrompt(llm.PromptContext{
			Stage:         def,
			TotalStages:   s.catalog.Len(),
			Extracted:     session.ExtractedData,
			CoveredTopics: session.StageTopics,
		}),
		Messages:    toLLMMessages(messages, s.opts.HistoryLimit),
		Temperature: s.opts.Temperature,
		MaxTokens:   s.opts.MaxTokens,
	}

	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	resp, err := provider.Stream(ctx, req, s.opts.Model, onDelta)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: reply timed out", domain.ErrProcessing)
		}
		log.Warn().Err(err).Str("session_id", session.ID).Str("provider", provider.Name()).Msg("Stream failed")
		return nil, err
	}

	log.Debug().
		Str("session_id", session.ID).
		Str("provider", provider.Name()).
		Int("tokens", resp.TokensUsed).
		Int64("latency_ms", resp.LatencyMs).
		Msg("Stream finished")

	return &StreamResult{
		Stage:    session.CurrentStage,
		Version:  session.Version,
		Content:  resp.Content,
		Provider: provider.Name(),
		Tokens:   resp.TokensUsed,
	}, nil
}

// load reads through the cache. A cached copy may be slightly stale, which
// only affects prompt context; commits always read the store.
func (s *StreamService) load(ctx context.Context, userID, sessionID string) (*domain.Session, error) {
	if userID == "" {
		return nil, domain.ErrUnauthorized
	}
	now := s.now().UTC()

	if s.cache != nil {
		cached, err := s.cache.Get(ctx, sessionID)
		if err != nil {
			log.Warn().Err(err).Str("session_id", sessionID).Msg("Session cache read failed")
		} else if cached != nil {
			return checkVisible(cached, userID, now)
		}
	}

	session, err := loadOwned(ctx, s.repo, userID, sessionID, now)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, session); err != nil {
			log.Warn().Err(err).Str("session_id", sessionID).Msg("Session cache write failed")
		}
	}
	return session, nil
}

func toLLMMessages(messages []domain.ChatMessage, limit int) []llm.Message {
	if limit > 0 && len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}
	out := make([]llm.Message, 0, len(messages))
	for _, m := range messages {
		out = append(out, llm.Message{Role: m.Role, Content: m.Content})
	}
	return out
}
