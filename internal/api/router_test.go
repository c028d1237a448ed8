package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rrens/onboarding-sync/internal/api"
	"github.com/Rrens/onboarding-sync/internal/config"
	"github.com/Rrens/onboarding-sync/internal/domain"
	"github.com/Rrens/onboarding-sync/internal/llm"
	"github.com/Rrens/onboarding-sync/internal/quality"
	"github.com/Rrens/onboarding-sync/internal/repository/memory"
	"github.com/Rrens/onboarding-sync/internal/security"
	"github.com/Rrens/onboarding-sync/internal/service"
)

type scriptedProvider struct {
	chunks []string
	failAt int
}

func (p *scriptedProvider) Name() string              { return "scripted" }
func (p *scriptedProvider) AvailableModels() []string { return nil }
func (p *scriptedProvider) DefaultModel() string      { return "" }
func (p *scriptedProvider) IsConfigured() bool        { return true }

func (p *scriptedProvider) Stream(_ context.Context, _ llm.Request, _ string, onDelta llm.DeltaFunc) (*llm.Response, error) {
	for i, c := range p.chunks {
		if p.failAt > 0 && i == p.failAt {
			return nil, llm.TransportError(p.Name(), errors.New("connection reset"))
		}
		if err := onDelta(c); err != nil {
			return nil, err
		}
	}
	return &llm.Response{Content: strings.Join(p.chunks, "")}, nil
}

type testServer struct {
	handler  http.Handler
	repo     *memory.SessionRepository
	jwt      *security.JWTManager
	provider *scriptedProvider
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg := &config.Config{Server: config.ServerConfig{
		MiddlewareTimeout: 5 * time.Second,
		AllowedOrigins:    []string{"*"},
	}}

	repo := memory.NewSessionRepository()
	catalog := domain.DefaultCatalog()
	provider := &scriptedProvider{chunks: []string{"Hel", "lo"}}
	router := llm.NewRouter(provider.Name())
	router.RegisterProvider(provider)
	jwtManager := security.NewJWTManager("router-test-secret", time.Hour)

	h := api.NewRouter(cfg, api.Dependencies{
		Sessions: service.NewSessionService(repo, catalog, nil, nil, time.Hour),
		Commits:  service.NewCommitService(repo, catalog, quality.NewKeywordAssessor(), nil, nil, time.Hour, 10),
		Streams:  service.NewStreamService(repo, catalog, router, nil, service.StreamOptions{Timeout: 5 * time.Second}),
		JWT:      jwtManager,
		Store:    repo,
	})
	return &testServer{handler: h, repo: repo, jwt: jwtManager, provider: provider}
}

func (s *testServer) do(t *testing.T, userID, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		token, err := s.jwt.GenerateAccessToken(userID, userID+"@example.com")
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func commitBody(messageID, answer string, expected *int64) map[string]any {
	body := map[string]any{
		"messageId":        messageID,
		"userMessage":      answer,
		"assistantMessage": "Tell me more.",
	}
	if expected != nil {
		body["expectedVersion"] = *expected
	}
	return body
}

func decodeCommit(t *testing.T, rec *httptest.ResponseRecorder) domain.CommitResponse {
	t.Helper()
	var out domain.CommitResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func ptr(v int64) *int64 { return &v }

func TestAPI_CommitFlow(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, "u1", http.MethodPost, "/api/v1/sessions", map[string]string{"sessionId": "s1"})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = s.do(t, "u1", http.MethodPost, "/api/v1/sessions", map[string]string{"sessionId": "s1"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, "u1", http.MethodPost, "/api/v1/sessions/s1/commit",
		commitBody("m1", "I want to build an app because I noticed a gap", ptr(0)))
	require.Equal(t, http.StatusOK, rec.Code)
	first := decodeCommit(t, rec)
	assert.True(t, first.Success)
	assert.Equal(t, domain.CommitCommitted, first.Status)
	assert.Equal(t, int64(1), first.Version)
	assert.False(t, first.StageAdvanced)

	rec = s.do(t, "u1", http.MethodPost, "/api/v1/sessions/s1/commit",
		commitBody("m1", "I want to build an app because I noticed a gap", ptr(0)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.CommitDuplicate, decodeCommit(t, rec).Status)

	rec = s.do(t, "u1", http.MethodPost, "/api/v1/sessions/s1/commit", commitBody("m-stale", "hello", ptr(0)))
	require.Equal(t, http.StatusConflict, rec.Code)
	conflict := decodeCommit(t, rec)
	assert.False(t, conflict.Success)
	assert.Equal(t, domain.CommitVersionConflict, conflict.Status)
	require.NotNil(t, conflict.CurrentVersion)
	require.NotNil(t, conflict.ExpectedVersion)
	assert.Equal(t, int64(1), *conflict.CurrentVersion)
	assert.Equal(t, int64(0), *conflict.ExpectedVersion)
	assert.Equal(t, domain.CodeVersionConflict, conflict.Error.Code)

	rec = s.do(t, "u1", http.MethodPost, "/api/v1/sessions/s1/commit",
		commitBody("m2", "We have a prototype and I worked ten years in retail", ptr(1)))
	require.Equal(t, http.StatusOK, rec.Code)
	second := decodeCommit(t, rec)
	assert.True(t, second.StageAdvanced)
	assert.Equal(t, 2, second.CurrentStage)
	assert.Equal(t, int64(2), second.Version)

	rec = s.do(t, "u1", http.MethodGet, "/api/v1/sessions/s1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var view struct {
		Data domain.SessionView `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&view))
	assert.Equal(t, int64(2), view.Data.Version)
	assert.Equal(t, 2, view.Data.CurrentStage)
	assert.Equal(t, "customer_discovery", view.Data.StageName)
	assert.False(t, view.Data.IsComplete)
}

func TestAPI_AccessControl(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusCreated, s.do(t, "u1", http.MethodPost, "/api/v1/sessions", map[string]string{"sessionId": "s1"}).Code)

	assert.Equal(t, http.StatusUnauthorized, s.do(t, "", http.MethodGet, "/api/v1/sessions/s1", nil).Code)
	assert.Equal(t, http.StatusForbidden, s.do(t, "u2", http.MethodGet, "/api/v1/sessions/s1", nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, "u1", http.MethodGet, "/api/v1/sessions/missing", nil).Code)

	rec := s.do(t, "u2", http.MethodPost, "/api/v1/sessions/s1/commit", commitBody("m1", "hi", ptr(0)))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, domain.CodeForbidden, decodeCommit(t, rec).Error.Code)

	rec = s.do(t, "u1", http.MethodPost, "/api/v1/sessions/s1/commit", map[string]any{"userMessage": "hi"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "MessageID")
}

func TestAPI_Lifecycle(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusCreated, s.do(t, "u1", http.MethodPost, "/api/v1/sessions", map[string]string{"sessionId": "s1"}).Code)

	rec := s.do(t, "u1", http.MethodPost, "/api/v1/sessions/s1/pause", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"paused"`)

	rec = s.do(t, "u1", http.MethodPost, "/api/v1/sessions/s1/resume", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"active"`)

	assert.Equal(t, http.StatusNoContent, s.do(t, "u1", http.MethodDelete, "/api/v1/sessions/s1", nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, "u1", http.MethodGet, "/api/v1/sessions/s1", nil).Code)
}

func TestAPI_Revise(t *testing.T) {
	s := newTestServer(t)
	seeded := domain.NewSession("s1", "u1", time.Now(), time.Hour)
	seeded.CurrentStage = 7
	require.NoError(t, s.repo.Create(context.Background(), seeded))

	rec := s.do(t, "u1", http.MethodPost, "/api/v1/sessions/s1/revise", nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"cannot_revise"`)

	rec = s.do(t, "u1", http.MethodPost, "/api/v1/sessions/s1/commit", commitBody("last",
		"We want to launch in three months, success means a milestone of 100 users, and our key metric is retention", ptr(0)))
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, decodeCommit(t, rec).Completed)

	rec = s.do(t, "u1", http.MethodPost, "/api/v1/sessions/s1/revise", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var revised domain.ReviseResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&revised))
	assert.Equal(t, domain.ReviseReset, revised.Status)
	require.NotNil(t, revised.Session)
	assert.Equal(t, domain.StatusActive, revised.Session.Status)
	assert.False(t, revised.Session.IsComplete)
}

func TestAPI_Stream(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusCreated, s.do(t, "u1", http.MethodPost, "/api/v1/sessions", map[string]string{"sessionId": "s1"}).Code)
	body := map[string]any{"messages": []map[string]string{{"role": "user", "content": "hi"}}}

	rec := s.do(t, "u1", http.MethodPost, "/api/v1/sessions/s1/stream", body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	var events []string
	err := llm.ReadSSE(rec.Body, func(event, data string) error {
		events = append(events, event+" "+data)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		`delta {"text":"Hel"}`,
		`delta {"text":"lo"}`,
		`done {"stage":1,"version":0}`,
	}, events)

	stored, err := s.repo.Get(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), stored.Version)
	assert.Empty(t, stored.ConversationHistory)

	assert.Equal(t, http.StatusForbidden, s.do(t, "u2", http.MethodPost, "/api/v1/sessions/s1/stream", body).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, "u1", http.MethodPost, "/api/v1/sessions/s1/stream", map[string]any{}).Code)
}

func TestAPI_StreamFailsMidway(t *testing.T) {
	s := newTestServer(t)
	s.provider.chunks = []string{"Hel", "lo"}
	s.provider.failAt = 1
	require.Equal(t, http.StatusCreated, s.do(t, "u1", http.MethodPost, "/api/v1/sessions", map[string]string{"sessionId": "s1"}).Code)

	rec := s.do(t, "u1", http.MethodPost, "/api/v1/sessions/s1/stream",
		map[string]any{"messages": []map[string]string{{"role": "user", "content": "hi"}}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "event: delta")
	assert.Contains(t, rec.Body.String(), "event: error")
	assert.Contains(t, rec.Body.String(), domain.CodeProcessing)
	assert.NotContains(t, rec.Body.String(), "event: done")
}

func TestAPI_PublicEndpoints(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, "", http.MethodGet, "/api/v1/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, "", http.MethodGet, "/api/v1/ready", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, "", http.MethodGet, "/api/v1/stages", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var out struct {
		Data struct {
			Stages []domain.StageDefinition `json:"stages"`
			Total  int                      `json:"total"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	assert.Equal(t, 7, out.Data.Total)
	assert.Equal(t, "welcome_intro", out.Data.Stages[0].Name)
}
