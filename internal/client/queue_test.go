package client

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rrens/onboarding-sync/internal/domain"
)

type commitFunc func(sessionID string, in domain.CommitInput) (*domain.CommitResult, error)

type fakeCommitter struct {
	mu    sync.Mutex
	fn    commitFunc
	calls []string
}

func (f *fakeCommitter) Commit(_ context.Context, sessionID string, in domain.CommitInput) (*domain.CommitResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, in.MessageID)
	f.mu.Unlock()
	return f.fn(sessionID, in)
}

func (f *fakeCommitter) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func committed(version int64) commitFunc {
	return func(string, domain.CommitInput) (*domain.CommitResult, error) {
		return &domain.CommitResult{Status: domain.CommitCommitted, Version: version, CurrentStage: 1}, nil
	}
}

var queueEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestQueue(t *testing.T, fn commitFunc, opts QueueOptions) (*Queue, *fakeCommitter, *time.Time) {
	t.Helper()
	committer := &fakeCommitter{fn: fn}
	q := NewQueue(NewMemoryStore(), committer, opts)
	now := queueEpoch
	q.now = func() time.Time { return now }
	return q, committer, &now
}

func pending(sessionID, messageID string, created time.Time) PendingCommit {
	v := int64(0)
	return PendingCommit{
		SessionID:        sessionID,
		MessageID:        messageID,
		UserMessage:      "answer " + messageID,
		AssistantMessage: "reply " + messageID,
		ExpectedVersion:  &v,
		CreatedAt:        created,
	}
}

func TestQueue_SessionIsolation(t *testing.T) {
	ctx := context.Background()
	q, committer, _ := newTestQueue(t, committed(1), QueueOptions{})

	require.NoError(t, q.SavePending(ctx, pending("s1", "m1", queueEpoch)))

	has, err := q.HasPending(ctx, "s2")
	require.NoError(t, err)
	assert.False(t, has)

	report, err := q.RecoverPending(ctx, "s2", nil)
	require.NoError(t, err)
	assert.Zero(t, report.Recovered)
	assert.Empty(t, committer.Calls())

	has, err = q.HasPending(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, has)
}

func TestQueue_SaveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	q, _, _ := newTestQueue(t, committed(1), QueueOptions{})

	p := pending("s1", "m1", queueEpoch)
	require.NoError(t, q.SavePending(ctx, p))
	p.UserMessage = "changed"
	require.NoError(t, q.SavePending(ctx, p))

	entries, err := q.Pending(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "answer m1", entries[0].UserMessage)
}

func TestQueue_SaveRequiresIDs(t *testing.T) {
	q, _, _ := newTestQueue(t, committed(1), QueueOptions{})
	err := q.SavePending(context.Background(), PendingCommit{SessionID: "s1"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestQueue_ExpiredEntriesAreDropped(t *testing.T) {
	ctx := context.Background()
	q, committer, now := newTestQueue(t, committed(1), QueueOptions{})

	require.NoError(t, q.SavePending(ctx, pending("s1", "m1", queueEpoch)))
	*now = queueEpoch.Add(25 * time.Hour)

	has, err := q.HasPending(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, has)

	report, err := q.RecoverPending(ctx, "s1", nil)
	require.NoError(t, err)
	assert.Zero(t, report.Recovered)
	assert.Empty(t, committer.Calls())
}

func TestQueue_RecoverReplaysInOrder(t *testing.T) {
	ctx := context.Background()
	version := int64(0)
	q, committer, _ := newTestQueue(t, func(_ string, in domain.CommitInput) (*domain.CommitResult, error) {
		version++
		return &domain.CommitResult{Status: domain.CommitCommitted, Version: version, CurrentStage: 1}, nil
	}, QueueOptions{})

	require.NoError(t, q.SavePending(ctx, pending("s1", "m2", queueEpoch.Add(time.Second))))
	require.NoError(t, q.SavePending(ctx, pending("s1", "m1", queueEpoch)))

	var recovered []string
	report, err := q.RecoverPending(ctx, "s1", func(p PendingCommit, r *domain.CommitResult) {
		recovered = append(recovered, fmt.Sprintf("%s@%d", p.MessageID, r.Version))
	})
	require.NoError(t, err)

	assert.Equal(t, 2, report.Recovered)
	assert.Equal(t, []string{"m1", "m2"}, committer.Calls())
	assert.Equal(t, []string{"m1@1", "m2@2"}, recovered)

	has, err := q.HasPending(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestQueue_DuplicateCountsAsRecovered(t *testing.T) {
	ctx := context.Background()
	q, _, _ := newTestQueue(t, func(string, domain.CommitInput) (*domain.CommitResult, error) {
		return &domain.CommitResult{Status: domain.CommitDuplicate, Version: 3}, nil
	}, QueueOptions{})

	require.NoError(t, q.SavePending(ctx, pending("s1", "m1", queueEpoch)))

	calls := 0
	report, err := q.RecoverPending(ctx, "s1", func(PendingCommit, *domain.CommitResult) { calls++ })
	require.NoError(t, err)
	assert.Equal(t, 1, report.Recovered)
	assert.Equal(t, 1, calls)

	// A second pass has nothing left to replay.
	report, err = q.RecoverPending(ctx, "s1", func(PendingCommit, *domain.CommitResult) { calls++ })
	require.NoError(t, err)
	assert.Zero(t, report.Recovered)
	assert.Equal(t, 1, calls)
}

func TestQueue_ConflictDiscardsEntry(t *testing.T) {
	ctx := context.Background()
	q, _, _ := newTestQueue(t, func(string, domain.CommitInput) (*domain.CommitResult, error) {
		return nil, &domain.VersionConflictError{Current: 4}
	}, QueueOptions{})

	require.NoError(t, q.SavePending(ctx, pending("s1", "m1", queueEpoch)))

	report, err := q.RecoverPending(ctx, "s1", nil)
	require.NoError(t, err)
	require.Len(t, report.Conflicted, 1)
	assert.Equal(t, "answer m1", report.Conflicted[0].UserMessage)

	has, err := q.HasPending(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestQueue_AttemptCeiling(t *testing.T) {
	ctx := context.Background()
	q, committer, _ := newTestQueue(t, func(string, domain.CommitInput) (*domain.CommitResult, error) {
		return nil, domain.ErrProcessing
	}, QueueOptions{MaxAttempts: 2})

	require.NoError(t, q.SavePending(ctx, pending("s1", "m1", queueEpoch)))

	for i := 0; i < 2; i++ {
		report, err := q.RecoverPending(ctx, "s1", nil)
		require.NoError(t, err)
		assert.Equal(t, 1, report.Retrying)
		assert.ErrorIs(t, report.LastError, domain.ErrProcessing)
	}

	has, err := q.HasPending(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, has, "exhausted entries are no longer replayable")

	report, err := q.RecoverPending(ctx, "s1", nil)
	require.NoError(t, err)
	require.Len(t, report.Exhausted, 1)
	assert.Equal(t, "answer m1", report.Exhausted[0].UserMessage)
	assert.Len(t, committer.Calls(), 2)

	entries, err := q.Pending(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestQueue_RecoverStopsOnCancel(t *testing.T) {
	q, committer, _ := newTestQueue(t, committed(1), QueueOptions{})
	require.NoError(t, q.SavePending(context.Background(), pending("s1", "m1", queueEpoch)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := q.RecoverPending(ctx, "s1", nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, committer.Calls())
}

// versionedServer accepts a commit only when its expected version matches.
type versionedServer struct {
	version int64
}

func (s *versionedServer) commit(_ string, in domain.CommitInput) (*domain.CommitResult, error) {
	if in.ExpectedVersion != nil && *in.ExpectedVersion != s.version {
		return nil, &domain.VersionConflictError{Current: s.version}
	}
	s.version++
	return &domain.CommitResult{Status: domain.CommitCommitted, Version: s.version, CurrentStage: 1}, nil
}

func TestQueue_RecoverChainsVersions(t *testing.T) {
	ctx := context.Background()
	server := &versionedServer{}
	q, committer, _ := newTestQueue(t, server.commit, QueueOptions{})

	// Both answers were captured while the server was unreachable, at version 0.
	require.NoError(t, q.SavePending(ctx, pending("s1", "m1", queueEpoch)))
	require.NoError(t, q.SavePending(ctx, pending("s1", "m2", queueEpoch.Add(time.Second))))

	report, err := q.RecoverPending(ctx, "s1", nil)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Recovered)
	assert.Empty(t, report.Conflicted)
	assert.Equal(t, int64(2), server.version)
	assert.Equal(t, []string{"m1", "m2"}, committer.Calls())
}

func TestQueue_RebaseSurvivesRetry(t *testing.T) {
	ctx := context.Background()
	server := &versionedServer{}
	down := false
	q, _, _ := newTestQueue(t, func(sessionID string, in domain.CommitInput) (*domain.CommitResult, error) {
		if in.MessageID == "m2" && down {
			return nil, domain.ErrProcessing
		}
		return server.commit(sessionID, in)
	}, QueueOptions{})

	require.NoError(t, q.SavePending(ctx, pending("s1", "m1", queueEpoch)))
	require.NoError(t, q.SavePending(ctx, pending("s1", "m2", queueEpoch.Add(time.Second))))

	down = true
	report, err := q.RecoverPending(ctx, "s1", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Recovered)
	assert.Equal(t, 1, report.Retrying)

	entries, err := q.Pending(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.NotNil(t, entries[0].ExpectedVersion)
	assert.Equal(t, int64(1), *entries[0].ExpectedVersion)

	down = false
	report, err = q.RecoverPending(ctx, "s1", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Recovered)
	assert.Empty(t, report.Conflicted)
	assert.Equal(t, int64(2), server.version)
}

func TestQueue_RetryStopsLaterEntries(t *testing.T) {
	ctx := context.Background()
	q, committer, _ := newTestQueue(t, func(string, domain.CommitInput) (*domain.CommitResult, error) {
		return nil, domain.ErrProcessing
	}, QueueOptions{})

	require.NoError(t, q.SavePending(ctx, pending("s1", "m1", queueEpoch)))
	require.NoError(t, q.SavePending(ctx, pending("s1", "m2", queueEpoch.Add(time.Second))))

	report, err := q.RecoverPending(ctx, "s1", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Retrying)
	assert.Equal(t, []string{"m1"}, committer.Calls())
}

func TestQueue_ConflictAfterExternalWriteReturnsDrafts(t *testing.T) {
	ctx := context.Background()
	server := &versionedServer{version: 3}
	q, _, _ := newTestQueue(t, server.commit, QueueOptions{})

	require.NoError(t, q.SavePending(ctx, pending("s1", "m1", queueEpoch)))
	require.NoError(t, q.SavePending(ctx, pending("s1", "m2", queueEpoch.Add(time.Second))))

	report, err := q.RecoverPending(ctx, "s1", nil)
	require.NoError(t, err)
	assert.Zero(t, report.Recovered)
	require.Len(t, report.Conflicted, 2)
	assert.Equal(t, "answer m1", report.Conflicted[0].UserMessage)
	assert.Equal(t, "answer m2", report.Conflicted[1].UserMessage)
	assert.Equal(t, int64(3), server.version)
}
