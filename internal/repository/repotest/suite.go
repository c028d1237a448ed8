// Package repotest is a conformance suite run against every session store.
package repotest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rrens/onboarding-sync/internal/domain"
)

// Run exercises repo against the SessionRepository contract
func Run(t *testing.T, repo domain.SessionRepository) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	newSession := func() *domain.Session {
		return domain.NewSession(uuid.NewString(), "user-1", now, time.Hour)
	}

	t.Run("create and get round trip", func(t *testing.T) {
		s := newSession()
		s.ExtractedData["business_concept"] = domain.Value{Text: "Bakery waste marketplace", Certainty: domain.Certain}
		s.ExtractedData["current_stage"] = domain.Value{Text: "prototype", Certainty: domain.Uncertain}
		s.StageSummaries[1] = "Founder has a bakery idea."
		s.StageTopics = []string{"business_concept"}
		s.RecordTurn(domain.Turn{
			MessageID:        "m-1",
			UserMessage:      "hello",
			AssistantMessage: "hi",
			Timestamp:        now,
			Result:           domain.CommitResult{Status: domain.CommitCommitted, Version: 1, CurrentStage: 1},
		})

		require.NoError(t, repo.Create(ctx, s))

		got, err := repo.Get(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, s.ID, got.ID)
		assert.Equal(t, "user-1", got.UserID)
		assert.Equal(t, 1, got.CurrentStage)
		assert.Equal(t, domain.StatusActive, got.Status)
		assert.Equal(t, int64(0), got.Version)
		assert.Equal(t, s.ExtractedData, got.ExtractedData)
		assert.Equal(t, "Founder has a bakery idea.", got.StageSummaries[1])
		assert.Equal(t, []string{"business_concept"}, got.StageTopics)
		assert.Equal(t, 1, got.StageTurnCount)
		require.Len(t, got.ConversationHistory, 1)
		assert.Equal(t, "m-1", got.ConversationHistory[0].MessageID)
		assert.Equal(t, int64(1), got.ConversationHistory[0].Result.Version)
		assert.True(t, got.ExpiresAt.Equal(s.ExpiresAt))
		assert.Nil(t, got.CompletedAt)
	})

	t.Run("create twice", func(t *testing.T) {
		s := newSession()
		require.NoError(t, repo.Create(ctx, s))
		assert.ErrorIs(t, repo.Create(ctx, s), domain.ErrSessionExists)
	})

	t.Run("get missing", func(t *testing.T) {
		_, err := repo.Get(ctx, uuid.NewString())
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("conditional save", func(t *testing.T) {
		s := newSession()
		require.NoError(t, repo.Create(ctx, s))

		loaded, err := repo.Get(ctx, s.ID)
		require.NoError(t, err)
		expect := domain.ExpectationOf(loaded)
		loaded.Version++
		loaded.CurrentStage = 2
		completedAt := now
		loaded.CompletedAt = &completedAt
		require.NoError(t, repo.Save(ctx, loaded, expect))

		got, err := repo.Get(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), got.Version)
		assert.Equal(t, 2, got.CurrentStage)
		require.NotNil(t, got.CompletedAt)

		// the stale writer loses
		stale := s.Clone()
		stale.Version = 1
		err = repo.Save(ctx, stale, domain.Expectation{Version: 0, Status: domain.StatusActive, ArtifactStatus: domain.ArtifactNone})
		assert.ErrorIs(t, err, domain.ErrVersionConflict)

		got, err = repo.Get(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, got.CurrentStage)
	})

	t.Run("status is part of the predicate", func(t *testing.T) {
		s := newSession()
		require.NoError(t, repo.Create(ctx, s))

		paused := s.Clone()
		require.NoError(t, paused.Pause(now))
		require.NoError(t, repo.Save(ctx, paused, domain.ExpectationOf(s)))

		commit := s.Clone()
		commit.Version++
		err := repo.Save(ctx, commit, domain.ExpectationOf(s))
		assert.ErrorIs(t, err, domain.ErrVersionConflict)
	})

	t.Run("artifact status is part of the predicate", func(t *testing.T) {
		s := newSession()
		require.NoError(t, s.Complete(now))
		require.NoError(t, repo.Create(ctx, s))

		// A reviser loads the session while the artifact is still queued.
		loaded, err := repo.Get(ctx, s.ID)
		require.NoError(t, err)

		claimed := loaded.Clone()
		require.NoError(t, claimed.ClaimArtifact(now))
		require.NoError(t, repo.Save(ctx, claimed, domain.ExpectationOf(loaded)))

		revised := loaded.Clone()
		require.NoError(t, revised.ReviseForRevision(domain.DefaultCatalog(), now))
		err = repo.Save(ctx, revised, domain.ExpectationOf(loaded))
		assert.ErrorIs(t, err, domain.ErrVersionConflict)

		got, err := repo.Get(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusCompleted, got.Status)
		assert.Equal(t, domain.ArtifactProcessing, got.ArtifactStatus)
	})

	t.Run("save missing", func(t *testing.T) {
		s := newSession()
		err := repo.Save(ctx, s, domain.ExpectationOf(s))
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("concurrent saves on one version", func(t *testing.T) {
		s := newSession()
		require.NoError(t, repo.Create(ctx, s))

		const writers = 8
		var wg sync.WaitGroup
		errs := make(chan error, writers)
		start := make(chan struct{})
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				next := s.Clone()
				next.Version++
				<-start
				errs <- repo.Save(ctx, next, domain.ExpectationOf(s))
			}()
		}
		close(start)
		wg.Wait()
		close(errs)

		ok, conflicts := 0, 0
		for err := range errs {
			switch {
			case err == nil:
				ok++
			case assert.ErrorIs(t, err, domain.ErrVersionConflict):
				conflicts++
			}
		}
		assert.Equal(t, 1, ok)
		assert.Equal(t, writers-1, conflicts)
	})

	t.Run("ping", func(t *testing.T) {
		assert.NoError(t, repo.Ping(ctx))
	})
}
