package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Rrens/onboarding-sync/internal/domain"
	"github.com/Rrens/onboarding-sync/internal/llm"
)

// APIClient talks to the onboarding HTTP API
type APIClient struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewAPIClient creates a client for baseURL, e.g. http://localhost:8080/api/v1.
// A nil httpClient uses a client without an overall timeout so streams can run.
func NewAPIClient(baseURL, token string, httpClient *http.Client) *APIClient {
	if httpClient == nil {
		httpClient = &http.Client{Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			ResponseHeaderTimeout: 90 * time.Second,
		}}
	}
	return &APIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    httpClient,
	}
}

type envelope struct {
	Success bool              `json:"success"`
	Data    json.RawMessage   `json:"data"`
	Error   *domain.ErrorBody `json:"error"`
}

// StreamDone is the trailing event of a stream
type StreamDone struct {
	Stage   int   `json:"stage"`
	Version int64 `json:"version"`
}

// CreateSession starts a session, reusing sessionID when it is set
func (c *APIClient) CreateSession(ctx context.Context, sessionID string) (*domain.SessionView, error) {
	var view domain.SessionView
	if err := c.call(ctx, http.MethodPost, "/sessions", domain.SessionCreate{SessionID: sessionID}, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// GetSession returns the authoritative session state
func (c *APIClient) GetSession(ctx context.Context, sessionID string) (*domain.SessionView, error) {
	var view domain.SessionView
	if err := c.call(ctx, http.MethodGet, c.sessionPath(sessionID, ""), nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// Stream asks for the next assistant reply. Fragments are passed to onDelta
// as they arrive; nothing is persisted by the server.
func (c *APIClient) Stream(ctx context.Context, sessionID string, messages []domain.ChatMessage, onDelta llm.DeltaFunc) (*StreamDone, error) {
	req, err := c.newRequest(ctx, http.MethodPost, c.sessionPath(sessionID, "/stream"), domain.StreamInput{Messages: messages})
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrProcessing, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeFailure(resp)
	}

	var done *StreamDone
	err = llm.ReadSSE(resp.Body, func(event, data string) error {
		switch event {
		case "delta":
			var payload struct {
				Text string `json:"text"`
			}
			if err := json.Unmarshal([]byte(data), &payload); err != nil {
				return fmt.Errorf("failed to decode delta: %w", err)
			}
			return onDelta(payload.Text)
		case "done":
			done = &StreamDone{}
			return json.Unmarshal([]byte(data), done)
		case "error":
			var body domain.ErrorBody
			if err := json.Unmarshal([]byte(data), &body); err != nil {
				return fmt.Errorf("%w: malformed error event", domain.ErrProcessing)
			}
			return fmt.Errorf("%w: %s", domain.ErrorFromCode(body.Code), body.Message)
		}
		return nil
	})
	if err != nil {
		if domain.ErrorCode(err) != domain.CodeInternal || ctx.Err() != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrProcessing, err)
	}
	if done == nil {
		return nil, fmt.Errorf("%w: stream ended without completion", domain.ErrProcessing)
	}
	return done, nil
}

// Commit sends one exchange. A version conflict is returned as a
// *domain.VersionConflictError carrying both versions.
func (c *APIClient) Commit(ctx context.Context, sessionID string, in domain.CommitInput) (*domain.CommitResult, error) {
	req, err := c.newRequest(ctx, http.MethodPost, c.sessionPath(sessionID, "/commit"), in)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrProcessing, err)
	}
	defer resp.Body.Close()

	var body domain.CommitResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: failed to decode commit response (status %d)", domain.ErrProcessing, resp.StatusCode)
	}

	if body.Success {
		return body.Result(), nil
	}
	if body.Status == domain.CommitVersionConflict && body.CurrentVersion != nil {
		return nil, &domain.VersionConflictError{Current: *body.CurrentVersion, Expected: body.ExpectedVersion}
	}
	if body.Error != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrorFromCode(body.Error.Code), body.Error.Message)
	}
	return nil, fmt.Errorf("%w: unexpected commit status %d", domain.ErrProcessing, resp.StatusCode)
}

// Revise reopens a completed session
func (c *APIClient) Revise(ctx context.Context, sessionID string) (*domain.SessionView, error) {
	req, err := c.newRequest(ctx, http.MethodPost, c.sessionPath(sessionID, "/revise"), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrProcessing, err)
	}
	defer resp.Body.Close()

	var body domain.ReviseResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: failed to decode revise response (status %d)", domain.ErrProcessing, resp.StatusCode)
	}
	switch {
	case body.Status == domain.ReviseReset && body.Session != nil:
		return body.Session, nil
	case body.Error != nil:
		return nil, fmt.Errorf("%w: %s", domain.ErrorFromCode(body.Error.Code), body.Error.Message)
	case body.Status == domain.ReviseCannotRevise:
		return nil, domain.ErrCannotRevise
	}
	return nil, fmt.Errorf("%w: unexpected revise status %d", domain.ErrProcessing, resp.StatusCode)
}

func (c *APIClient) sessionPath(sessionID, suffix string) string {
	return "/sessions/" + url.PathEscape(sessionID) + suffix
}

func (c *APIClient) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// call performs an enveloped request and decodes data into dst
func (c *APIClient) call(ctx context.Context, method, path string, body, dst any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrProcessing, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeFailure(resp)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("%w: failed to decode response: %w", domain.ErrProcessing, err)
	}
	if dst == nil || len(env.Data) == 0 {
		return nil
	}
	return json.Unmarshal(env.Data, dst)
}

// decodeFailure turns an error response into its domain error
func decodeFailure(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var env envelope
	if err := json.Unmarshal(data, &env); err == nil && env.Error != nil && env.Error.Code != "" {
		return fmt.Errorf("%w: %s", domain.ErrorFromCode(env.Error.Code), env.Error.Message)
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return domain.ErrUnauthorized
	case http.StatusTooManyRequests:
		return domain.ErrRateLimited
	}
	return fmt.Errorf("%w: unexpected status %d", domain.ErrProcessing, resp.StatusCode)
}
