// ABOUTME: HTTP client for the hosted assistant service (threads, messages, runs)
// ABOUTME: Stateless request/response wrapper; retry and poll policy belong to the caller

package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Client errors. Callers branch with errors.Is; everything else is a wrapped
// generic failure.
var (
	// ErrUnavailable indicates the service could not be reached or answered
	// with a server-side failure.
	ErrUnavailable = errors.New("assistant service unavailable")

	// ErrInvalidThread indicates the remote side does not know the thread id.
	ErrInvalidThread = errors.New("unknown thread")
)

// RunStatus is the normalized lifecycle state of a run.
type RunStatus string

const (
	RunStatusQueued     RunStatus = "queued"
	RunStatusInProgress RunStatus = "in_progress"
	RunStatusCompleted  RunStatus = "completed"
	RunStatusFailed     RunStatus = "failed"
)

// Terminal reports whether the status ends a run.
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// Run is one asynchronous processing pass of a thread. It exists only for the
// duration of a single conversation turn and is never persisted.
type Run struct {
	ID     string
	Status RunStatus
}

// Roles accepted by AddMessage.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Client talks to an OpenAI-Assistants-shaped HTTP API. It holds no
// conversational state of its own.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a client for the service at baseURL (no trailing slash),
// authenticating every request with the given API key.
func NewClient(baseURL, apiKey string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: logger.With("component", "assistant"),
	}
}

type threadResponse struct {
	ID string `json:"id"`
}

type runResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type messageContent struct {
	Type string `json:"type"`
	Text struct {
		Value string `json:"value"`
	} `json:"text"`
}

type messageItem struct {
	Role    string           `json:"role"`
	Content []messageContent `json:"content"`
}

type messageListResponse struct {
	Data []messageItem `json:"data"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// CreateThread creates a new remote conversation context and returns its id.
func (c *Client) CreateThread(ctx context.Context) (string, error) {
	var resp threadResponse
	if err := c.do(ctx, http.MethodPost, "/threads", map[string]any{}, &resp); err != nil {
		return "", fmt.Errorf("creating thread: %w", err)
	}
	c.logger.Debug("thread created", "thread_id", resp.ID)
	return resp.ID, nil
}

// AddMessage appends a message to the remote thread.
func (c *Client) AddMessage(ctx context.Context, threadID, role, content string) error {
	body := map[string]any{
		"role":    role,
		"content": content,
	}
	path := fmt.Sprintf("/threads/%s/messages", threadID)
	if err := c.do(ctx, http.MethodPost, path, body, nil); err != nil {
		return fmt.Errorf("adding message to thread %s: %w", threadID, err)
	}
	return nil
}

// StartRun begins asynchronous processing of the thread's unprocessed messages
// against the given assistant configuration. The returned run is typically
// queued or in progress; it is never terminal on a healthy service.
func (c *Client) StartRun(ctx context.Context, threadID, assistantID string) (*Run, error) {
	body := map[string]any{
		"assistant_id": assistantID,
	}
	var resp runResponse
	path := fmt.Sprintf("/threads/%s/runs", threadID)
	if err := c.do(ctx, http.MethodPost, path, body, &resp); err != nil {
		return nil, fmt.Errorf("starting run on thread %s: %w", threadID, err)
	}
	run := &Run{ID: resp.ID, Status: normalizeStatus(resp.Status)}
	c.logger.Debug("run started", "thread_id", threadID, "run_id", run.ID, "status", run.Status)
	return run, nil
}

// GetRun returns the current status of a run. It neither blocks nor retries;
// the caller re-invokes it until a terminal status is observed.
func (c *Client) GetRun(ctx context.Context, threadID, runID string) (*Run, error) {
	var resp runResponse
	path := fmt.Sprintf("/threads/%s/runs/%s", threadID, runID)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("fetching run %s: %w", runID, err)
	}
	return &Run{ID: resp.ID, Status: normalizeStatus(resp.Status)}, nil
}

// LatestAssistantMessage returns the text of the most recent message authored
// by the assistant role, or "" when the thread has no assistant message yet.
func (c *Client) LatestAssistantMessage(ctx context.Context, threadID string) (string, error) {
	var resp messageListResponse
	path := fmt.Sprintf("/threads/%s/messages?order=desc&limit=20", threadID)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return "", fmt.Errorf("listing messages on thread %s: %w", threadID, err)
	}

	// Newest first; take the first assistant-authored text block.
	for _, msg := range resp.Data {
		if msg.Role != RoleAssistant {
			continue
		}
		for _, part := range msg.Content {
			if part.Type == "text" {
				return part.Text.Value, nil
			}
		}
	}
	return "", nil
}

// normalizeStatus maps remote run states onto the four states the controller
// understands. Any terminal state that is not "completed" counts as failed;
// any unknown non-terminal state counts as in progress.
func normalizeStatus(s string) RunStatus {
	switch s {
	case "queued":
		return RunStatusQueued
	case "completed":
		return RunStatusCompleted
	case "failed", "cancelled", "expired", "incomplete":
		return RunStatusFailed
	default:
		return RunStatusInProgress
	}
}

// do performs one JSON request against the service and decodes the response
// into out (when non-nil). Transport failures and 5xx map to ErrUnavailable,
// a 404 maps to ErrInvalidThread.
func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("OpenAI-Beta", "assistants=v2")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrInvalidThread, path)
	}
	if resp.StatusCode >= 400 {
		var apiErr apiError
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("assistant API error (status %d): %s", resp.StatusCode, apiErr.Error.Message)
		}
		return fmt.Errorf("assistant API error: status %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
