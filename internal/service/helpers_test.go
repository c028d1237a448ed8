package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Rrens/onboarding-sync/internal/domain"
	"github.com/Rrens/onboarding-sync/internal/llm"
	"github.com/Rrens/onboarding-sync/internal/quality"
	"github.com/Rrens/onboarding-sync/internal/repository/memory"
)

var testClock = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

const testTTL = 30 * 24 * time.Hour

// topicAssessor answers with the topics scripted for the newest turn's message id
type topicAssessor struct {
	mu       sync.Mutex
	topics   map[string][]string
	coverage float64
	err      error
	calls    int
}

func (a *topicAssessor) Name() string { return "scripted" }

func (a *topicAssessor) Assess(_ context.Context, in quality.Input) (*quality.Assessment, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	if a.err != nil {
		return nil, a.err
	}

	last := in.Turns[len(in.Turns)-1]
	out := &quality.Assessment{
		ExtractedData: map[string]string{},
		Coverage:      a.coverage,
		Summary:       in.Stage.Title + " summary",
	}
	for _, k := range a.topics[last.MessageID] {
		out.TopicsCovered = append(out.TopicsCovered, k)
		out.ExtractedData[k] = "value for " + k
	}
	return out, nil
}

func (a *topicAssessor) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

// barrierAssessor holds every caller until n of them have arrived, so all
// of them have read the same session version before any can save.
type barrierAssessor struct {
	arrived sync.WaitGroup
}

func newBarrierAssessor(n int) *barrierAssessor {
	b := &barrierAssessor{}
	b.arrived.Add(n)
	return b
}

func (b *barrierAssessor) Name() string { return "barrier" }

func (b *barrierAssessor) Assess(_ context.Context, in quality.Input) (*quality.Assessment, error) {
	b.arrived.Done()
	b.arrived.Wait()
	return &quality.Assessment{TopicsCovered: []string{in.Stage.RequiredTopics[0].Key}, Coverage: 0.3}, nil
}

// recordingQueue is an in-memory TriggerQueue
type recordingQueue struct {
	mu      sync.Mutex
	queued  []string
	removed []string
}

func (q *recordingQueue) Enqueue(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.queued = append(q.queued, id)
	return nil
}

func (q *recordingQueue) Remove(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.removed = append(q.removed, id)
	return nil
}

// MockSessionCache mocks the SessionCache interface
type MockSessionCache struct {
	mock.Mock
}

func (m *MockSessionCache) Get(ctx context.Context, id string) (*domain.Session, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Session), args.Error(1)
}

func (m *MockSessionCache) Set(ctx context.Context, s *domain.Session) error {
	args := m.Called(ctx, s)
	return args.Error(0)
}

func (m *MockSessionCache) Invalidate(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// fakeProvider streams its reply in fixed fragments
type fakeProvider struct {
	chunks   []string
	err      error
	block    bool
	received llm.Request
}

func (p *fakeProvider) Name() string              { return "fake" }
func (p *fakeProvider) AvailableModels() []string { return []string{"fake-1"} }
func (p *fakeProvider) DefaultModel() string      { return "fake-1" }
func (p *fakeProvider) IsConfigured() bool        { return true }

func (p *fakeProvider) Stream(ctx context.Context, req llm.Request, model string, onDelta llm.DeltaFunc) (*llm.Response, error) {
	p.received = req
	if p.block {
		<-ctx.Done()
		return nil, llm.TransportError(p.Name(), ctx.Err())
	}
	if p.err != nil {
		return nil, p.err
	}
	for _, c := range p.chunks {
		if err := onDelta(c); err != nil {
			return nil, err
		}
	}
	return &llm.Response{Content: strings.Join(p.chunks, ""), Model: model, TokensUsed: 12}, nil
}

type fixture struct {
	repo     *memory.SessionRepository
	catalog  *domain.Catalog
	sessions *SessionService
	commits  *CommitService
	queue    *recordingQueue
}

func newFixture(t *testing.T, assessor quality.Assessor) *fixture {
	t.Helper()
	f := &fixture{
		repo:    memory.NewSessionRepository(),
		catalog: domain.DefaultCatalog(),
		queue:   &recordingQueue{},
	}
	f.sessions = NewSessionService(f.repo, f.catalog, nil, f.queue, testTTL)
	f.sessions.now = func() time.Time { return testClock }
	f.commits = NewCommitService(f.repo, f.catalog, assessor, nil, f.queue, testTTL, 10)
	f.commits.now = func() time.Time { return testClock.Add(time.Minute) }
	return f
}

func (f *fixture) create(t *testing.T, userID, sessionID string) *domain.Session {
	t.Helper()
	s, created, err := f.sessions.Create(context.Background(), userID, sessionID)
	require.NoError(t, err)
	require.True(t, created)
	return s
}

// seedAtStage stores a fresh session positioned at stage
func (f *fixture) seedAtStage(t *testing.T, userID, sessionID string, stage int) {
	t.Helper()
	s := domain.NewSession(sessionID, userID, testClock, testTTL)
	s.CurrentStage = stage
	require.NoError(t, f.repo.Create(context.Background(), s))
}

func (f *fixture) stored(t *testing.T, sessionID string) *domain.Session {
	t.Helper()
	s, err := f.repo.Get(context.Background(), sessionID)
	require.NoError(t, err)
	return s
}

func commitReq(userID, sessionID, messageID string, expected *int64) domain.CommitRequest {
	return domain.CommitRequest{
		SessionID:        sessionID,
		UserID:           userID,
		MessageID:        messageID,
		UserMessage:      "answer " + messageID,
		AssistantMessage: "question after " + messageID,
		ExpectedVersion:  expected,
	}
}

func version(v int64) *int64 {
	return &v
}
