package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Rrens/onboarding-sync/internal/domain"
)

// Queue is the trigger list the worker consumes
type Queue interface {
	Enqueue(ctx context.Context, sessionID string) error
	Dequeue(ctx context.Context, timeout time.Duration) (string, bool, error)
}

// AnalysisFunc runs the downstream analysis of a completed session
type AnalysisFunc func(ctx context.Context, s *domain.Session) error

// Outcome is what happened to one dequeued trigger
type Outcome string

const (
	OutcomeIdle      Outcome = "idle"
	OutcomeProcessed Outcome = "processed"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeRequeued  Outcome = "requeued"
)

const defaultRetryDelay = 2 * time.Second

// AnalysisWorker consumes analysis triggers. Every state change goes through
// the conditional save, so a revise racing the claim wins or loses cleanly.
type AnalysisWorker struct {
	repo        domain.SessionRepository
	queue       Queue
	analyze     AnalysisFunc
	pollTimeout time.Duration
	retryDelay  time.Duration
	now         func() time.Time
}

// NewAnalysisWorker creates a new analysis worker
func NewAnalysisWorker(repo domain.SessionRepository, queue Queue, analyze AnalysisFunc, pollTimeout time.Duration) *AnalysisWorker {
	if pollTimeout <= 0 {
		pollTimeout = 5 * time.Second
	}
	return &AnalysisWorker{
		repo:        repo,
		queue:       queue,
		analyze:     analyze,
		pollTimeout: pollTimeout,
		retryDelay:  defaultRetryDelay,
		now:         time.Now,
	}
}

// Run processes triggers until ctx is cancelled
func (w *AnalysisWorker) Run(ctx context.Context) {
	log.Info().Dur("poll_timeout", w.pollTimeout).Msg("Analysis worker started")
	for {
		if ctx.Err() != nil {
			log.Info().Msg("Analysis worker shutting down")
			return
		}

		outcome, err := w.ProcessNext(ctx)
		if err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("Analysis worker iteration failed")
		}
		if err != nil || outcome == OutcomeRequeued {
			select {
			case <-ctx.Done():
			case <-time.After(w.retryDelay):
			}
		}
	}
}

// ProcessNext waits for one trigger and handles it
func (w *AnalysisWorker) ProcessNext(ctx context.Context) (Outcome, error) {
	sessionID, ok, err := w.queue.Dequeue(ctx, w.pollTimeout)
	if err != nil {
		return OutcomeIdle, err
	}
	if !ok {
		return OutcomeIdle, nil
	}
	return w.Process(ctx, sessionID)
}

// Process claims, analyzes and finishes one session
func (w *AnalysisWorker) Process(ctx context.Context, sessionID string) (Outcome, error) {
	claimed, err := w.claim(ctx, sessionID)
	if err != nil || claimed == nil {
		return OutcomeSkipped, err
	}

	if err := w.analyze(ctx, claimed); err != nil {
		log.Warn().Err(err).Str("session_id", sessionID).Msg("Analysis failed, requeueing")
		if err := w.release(ctx, claimed); err != nil {
			return OutcomeSkipped, err
		}
		return OutcomeRequeued, nil
	}

	finished := claimed.Clone()
	if err := finished.FinishArtifact(w.now().UTC()); err != nil {
		return OutcomeSkipped, err
	}
	if err := w.repo.Save(ctx, finished, domain.ExpectationOf(claimed)); err != nil {
		return OutcomeSkipped, fmt.Errorf("failed to finish artifact for %s: %w", sessionID, err)
	}

	log.Info().Str("session_id", sessionID).Msg("Analysis completed")
	return OutcomeProcessed, nil
}

// claim moves the artifact from queued to processing. It returns nil when
// the trigger is stale: the session was revised, removed or already claimed.
func (w *AnalysisWorker) claim(ctx context.Context, sessionID string) (*domain.Session, error) {
	session, err := w.repo.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			log.Warn().Str("session_id", sessionID).Msg("Dropping trigger for missing session")
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}

	next := session.Clone()
	if err := next.ClaimArtifact(w.now().UTC()); err != nil {
		log.Info().
			Str("session_id", sessionID).
			Str("status", string(session.Status)).
			Str("artifact_status", string(session.ArtifactStatus)).
			Msg("Dropping stale trigger")
		return nil, nil
	}

	if err := w.repo.Save(ctx, next, domain.ExpectationOf(session)); err != nil {
		if errors.Is(err, domain.ErrVersionConflict) {
			log.Info().Str("session_id", sessionID).Msg("Lost claim race, dropping trigger")
			return nil, nil
		}
		return nil, fmt.Errorf("failed to claim session %s: %w", sessionID, err)
	}
	return next, nil
}

func (w *AnalysisWorker) release(ctx context.Context, claimed *domain.Session) error {
	released := claimed.Clone()
	if err := released.ReleaseArtifact(w.now().UTC()); err != nil {
		return err
	}
	if err := w.repo.Save(ctx, released, domain.ExpectationOf(claimed)); err != nil {
		return fmt.Errorf("failed to release artifact for %s: %w", claimed.ID, err)
	}
	return w.queue.Enqueue(ctx, claimed.ID)
}

// LogProfile is the built-in analysis: it records the compiled founder
// profile in the log for pickup by the reporting pipeline.
func LogProfile(_ context.Context, s *domain.Session) error {
	uncertain := 0
	for _, v := range s.ExtractedData {
		if v.IsUncertain() {
			uncertain++
		}
	}
	log.Info().
		Str("session_id", s.ID).
		Str("user_id", s.UserID).
		Int("fields", len(s.ExtractedData)).
		Int("uncertain_fields", uncertain).
		Int("stage_summaries", len(s.StageSummaries)).
		Int("turns", len(s.ConversationHistory)).
		Msg("Founder profile ready")
	return nil
}
