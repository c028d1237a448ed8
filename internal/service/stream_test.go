package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Rrens/onboarding-sync/internal/domain"
	"github.com/Rrens/onboarding-sync/internal/llm"
)

func newStreamService(f *fixture, p *fakeProvider, cache SessionCache, opts StreamOptions) *StreamService {
	router := llm.NewRouter("fake")
	router.RegisterProvider(p)
	svc := NewStreamService(f.repo, f.catalog, router, cache, opts)
	svc.now = func() time.Time { return testClock }
	return svc
}

func TestStream_DeliversDeltasWithoutWriting(t *testing.T) {
	f := newFixture(t, &topicAssessor{})
	f.create(t, "u1", "s1")
	p := &fakeProvider{chunks: []string{"What ", "are you ", "building?"}}
	svc := newStreamService(f, p, nil, StreamOptions{HistoryLimit: 2})

	var got []string
	res, err := svc.Stream(context.Background(), "u1", "s1", []domain.ChatMessage{
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
		{Role: "user", Content: "I want to build an app"},
	}, func(text string) error {
		got = append(got, text)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"What ", "are you ", "building?"}, got)
	assert.Equal(t, "What are you building?", res.Content)
	assert.Equal(t, 1, res.Stage)
	assert.Equal(t, int64(0), res.Version)

	require.Len(t, p.received.Messages, 2)
	assert.Equal(t, "hello", p.received.Messages[0].Content)
	assert.Contains(t, p.received.System, "Stage 1 of 7")

	stored := f.stored(t, "s1")
	assert.Equal(t, int64(0), stored.Version)
	assert.Empty(t, stored.ConversationHistory)
}

func TestStream_RejectsCompletedSession(t *testing.T) {
	f := newFixture(t, &topicAssessor{topics: map[string][]string{
		"last": {"business_stage", "three_month_goals", "success_criteria", "key_metrics"},
	}})
	completeSession(t, f, "u1", "s1")
	svc := newStreamService(f, &fakeProvider{}, nil, StreamOptions{})

	_, err := svc.Stream(context.Background(), "u1", "s1", []domain.ChatMessage{{Role: "user", Content: "hi"}}, func(string) error { return nil })
	assert.ErrorIs(t, err, domain.ErrAlreadyCompleted)
}

func TestStream_ProviderErrors(t *testing.T) {
	f := newFixture(t, &topicAssessor{})
	f.create(t, "u1", "s1")
	msgs := []domain.ChatMessage{{Role: "user", Content: "hi"}}

	t.Run("rate limited", func(t *testing.T) {
		p := &fakeProvider{err: llm.StatusError("fake", 429, []byte("slow down"))}
		svc := newStreamService(f, p, nil, StreamOptions{})
		_, err := svc.Stream(context.Background(), "u1", "s1", msgs, func(string) error { return nil })
		assert.ErrorIs(t, err, domain.ErrRateLimited)
	})

	t.Run("timeout", func(t *testing.T) {
		p := &fakeProvider{block: true}
		svc := newStreamService(f, p, nil, StreamOptions{Timeout: 20 * time.Millisecond})
		_, err := svc.Stream(context.Background(), "u1", "s1", msgs, func(string) error { return nil })
		assert.ErrorIs(t, err, domain.ErrProcessing)
	})

	t.Run("delta callback aborts", func(t *testing.T) {
		p := &fakeProvider{chunks: []string{"a", "b"}}
		svc := newStreamService(f, p, nil, StreamOptions{})
		stop := errors.New("client gone")
		_, err := svc.Stream(context.Background(), "u1", "s1", msgs, func(string) error { return stop })
		assert.ErrorIs(t, err, stop)
	})
}

func TestStream_ReadsThroughCache(t *testing.T) {
	f := newFixture(t, &topicAssessor{})
	ctx := context.Background()
	msgs := []domain.ChatMessage{{Role: "user", Content: "hi"}}

	t.Run("hit skips the store", func(t *testing.T) {
		cache := new(MockSessionCache)
		cached := domain.NewSession("cached", "u1", testClock, testTTL)
		cache.On("Get", mock.Anything, "cached").Return(cached, nil)

		svc := newStreamService(f, &fakeProvider{chunks: []string{"ok"}}, cache, StreamOptions{})
		res, err := svc.Stream(ctx, "u1", "cached", msgs, func(string) error { return nil })
		require.NoError(t, err)
		assert.Equal(t, "ok", res.Content)
		cache.AssertExpectations(t)
		cache.AssertNotCalled(t, "Set", mock.Anything, mock.Anything)
	})

	t.Run("miss fills the cache", func(t *testing.T) {
		f.create(t, "u1", "s2")
		cache := new(MockSessionCache)
		cache.On("Get", mock.Anything, "s2").Return(nil, nil)
		cache.On("Set", mock.Anything, mock.MatchedBy(func(s *domain.Session) bool { return s.ID == "s2" })).Return(nil)

		svc := newStreamService(f, &fakeProvider{chunks: []string{"ok"}}, cache, StreamOptions{})
		_, err := svc.Stream(ctx, "u1", "s2", msgs, func(string) error { return nil })
		require.NoError(t, err)
		cache.AssertExpectations(t)
	})

	t.Run("cached copy still enforces ownership", func(t *testing.T) {
		cache := new(MockSessionCache)
		cache.On("Get", mock.Anything, "cached").Return(domain.NewSession("cached", "u1", testClock, testTTL), nil)

		svc := newStreamService(f, &fakeProvider{}, cache, StreamOptions{})
		_, err := svc.Stream(ctx, "u2", "cached", msgs, func(string) error { return nil })
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})
}
