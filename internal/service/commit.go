package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Rrens/onboarding-sync/internal/domain"
	"github.com/Rrens/onboarding-sync/internal/quality"
)

const defaultTurnWindow = 10

// CommitService is the persistence coordinator: it applies one conversational
// turn to a session atomically. All cross-request coordination goes through
// the store's conditional save; the service holds no locks.
type CommitService struct {
	repo       domain.SessionRepository
	catalog    *domain.Catalog
	gate       *quality.Gate
	assessor   quality.Assessor
	cache      SessionCache
	triggers   TriggerQueue
	ttl        time.Duration
	turnWindow int
	now        func() time.Time
}

// NewCommitService creates a new commit service. cache and triggers may be nil.
func NewCommitService(
	repo domain.SessionRepository,
	catalog *domain.Catalog,
	assessor quality.Assessor,
	cache SessionCache,
	triggers TriggerQueue,
	ttl time.Duration,
	turnWindow int,
) *CommitService {
	if turnWindow <= 0 {
		turnWindow = defaultTurnWindow
	}
	return &CommitService{
		repo:       repo,
		catalog:    catalog,
		gate:       quality.NewGate(catalog),
		assessor:   assessor,
		cache:      cache,
		triggers:   triggers,
		ttl:        ttl,
		turnWindow: turnWindow,
		now:        time.Now,
	}
}

// Commit persists one exchange. A replayed messageId answers the stored
// result with status duplicate; a stale expectedVersion answers
// *domain.VersionConflictError without mutating anything.
func (c *CommitService) Commit(ctx context.Context, req domain.CommitRequest) (*domain.CommitResult, error) {
	now := c.now().UTC()

	session, err := loadOwned(ctx, c.repo, req.UserID, req.SessionID, now)
	if err != nil {
		return nil, err
	}

	// Replays are answered before the completed check so that retrying the
	// commit that finished onboarding still looks like a success.
	if turn, ok := session.FindTurn(req.MessageID); ok {
		return duplicateOf(turn), nil
	}
	if session.Status == domain.StatusCompleted {
		return nil, domain.ErrAlreadyCompleted
	}
	if err := checkVersion(session, req.ExpectedVersion); err != nil {
		log.Info().
			Str("session_id", session.ID).
			Int64("current_version", session.Version).
			Msg("Commit rejected on stale version")
		return nil, err
	}

	next, result, err := c.apply(ctx, session, req, now)
	if err != nil {
		return nil, err
	}

	err = c.repo.Save(ctx, next, domain.ExpectationOf(session))
	if err != nil {
		return c.resolveLostSave(ctx, req, err)
	}

	c.afterCommit(ctx, next, result)
	return result, nil
}

// apply computes the next session state on a copy of session
func (c *CommitService) apply(ctx context.Context, session *domain.Session, req domain.CommitRequest, now time.Time) (*domain.Session, *domain.CommitResult, error) {
	next := session.Clone()
	if next.Status == domain.StatusPaused {
		if err := next.Resume(now); err != nil {
			return nil, nil, err
		}
	}

	next.RecordTurn(domain.Turn{
		MessageID:        req.MessageID,
		UserMessage:      req.UserMessage,
		AssistantMessage: req.AssistantMessage,
		Timestamp:        now,
	})

	stage := next.CurrentStage
	def, ok := c.catalog.Stage(stage)
	if !ok {
		return nil, nil, fmt.Errorf("session %s is at unknown stage %d", next.ID, stage)
	}

	assessment, err := c.assessor.Assess(ctx, quality.Input{
		Stage:     def,
		Turns:     next.StageTurns(c.turnWindow),
		Extracted: next.ExtractedData,
	})
	if err != nil {
		if !errors.Is(err, domain.ErrProcessing) && !errors.Is(err, domain.ErrRateLimited) {
			err = fmt.Errorf("%w: %w", domain.ErrProcessing, err)
		}
		return nil, nil, err
	}

	next.CoverTopics(def, assessment.TopicsCovered)
	decision := c.gate.Evaluate(def, next.StageTopics, assessment.Coverage, next.StageTurnCount)
	delta := domain.ParseExtracted(assessment.ExtractedData)

	var rejected []string
	result := &domain.CommitResult{Status: domain.CommitCommitted}
	switch {
	case decision.OnboardingComplete:
		rejected = next.MergeExtracted(c.catalog, delta)
		next.SummarizeStage(assessment.Summary)
		if err := next.Complete(now); err != nil {
			return nil, nil, err
		}
		result.Completed = true
	case decision.StageComplete:
		rejected, err = next.AdvanceStage(c.catalog, stage+1, assessment.Summary, delta)
		if err != nil {
			return nil, nil, err
		}
		result.StageAdvanced = true
	default:
		rejected = next.MergeExtracted(c.catalog, delta)
		next.RefreshProgress(c.catalog)
	}

	if len(rejected) > 0 {
		log.Debug().Str("session_id", next.ID).Strs("keys", rejected).Msg("Assessor values rejected")
	}
	if decision.StageComplete {
		log.Info().
			Str("session_id", next.ID).
			Int("stage", stage).
			Str("rule", string(decision.Rule)).
			Float64("topic_ratio", decision.TopicRatio).
			Msg("Stage complete")
	}

	next.Version = session.Version + 1
	next.Touch(now, c.ttl)

	result.Version = next.Version
	result.CurrentStage = next.CurrentStage
	result.OverallProgress = next.OverallProgress
	result.StageProgress = next.StageProgress
	next.ConversationHistory[len(next.ConversationHistory)-1].Result = *result

	return next, result, nil
}

// resolveLostSave runs when the conditional save did not apply. If the
// winner carried the same messageId this request is a replay after all.
func (c *CommitService) resolveLostSave(ctx context.Context, req domain.CommitRequest, saveErr error) (*domain.CommitResult, error) {
	if !errors.Is(saveErr, domain.ErrVersionConflict) {
		if errors.Is(saveErr, domain.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to save session: %w", saveErr)
	}

	latest, err := c.repo.Get(ctx, req.SessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload session after conflict: %w", err)
	}
	if turn, ok := latest.FindTurn(req.MessageID); ok {
		return duplicateOf(turn), nil
	}

	log.Info().
		Str("session_id", req.SessionID).
		Int64("current_version", latest.Version).
		Msg("Commit lost the race")
	return nil, &domain.VersionConflictError{Current: latest.Version, Expected: req.ExpectedVersion}
}

func (c *CommitService) afterCommit(ctx context.Context, next *domain.Session, result *domain.CommitResult) {
	if c.cache != nil {
		if err := c.cache.Invalidate(ctx, next.ID); err != nil {
			log.Warn().Err(err).Str("session_id", next.ID).Msg("Failed to invalidate session cache")
		}
	}
	if result.Completed && c.triggers != nil {
		if err := c.triggers.Enqueue(ctx, next.ID); err != nil {
			log.Error().Err(err).Str("session_id", next.ID).Msg("Failed to enqueue analysis trigger")
		}
	}

	log.Info().
		Str("session_id", next.ID).
		Int64("version", result.Version).
		Int("stage", result.CurrentStage).
		Bool("stage_advanced", result.StageAdvanced).
		Bool("completed", result.Completed).
		Msg("Commit accepted")
}

// checkVersion enforces the optimistic check. An absent expected version is
// only accepted for a session that has never been committed to.
func checkVersion(session *domain.Session, expected *int64) error {
	if expected == nil {
		if session.Version == 0 {
			return nil
		}
		return &domain.VersionConflictError{Current: session.Version}
	}
	if *expected != session.Version {
		return &domain.VersionConflictError{Current: session.Version, Expected: expected}
	}
	return nil
}

func duplicateOf(turn domain.Turn) *domain.CommitResult {
	result := turn.Result
	result.Status = domain.CommitDuplicate
	return &result
}
