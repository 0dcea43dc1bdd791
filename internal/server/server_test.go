// ABOUTME: Tests for the JSON API and server assembly
// ABOUTME: Runs the full stack against a fake hosted assistant backend

package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okapi-labs/assist-gateway/internal/config"
)

const testPassword = "letmein"

// fakeAssistantBackend emulates just enough of the hosted assistants API for
// a full turn: create thread, add message, start run, poll, list messages.
func fakeAssistantBackend(t *testing.T, reply string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/threads":
			json.NewEncoder(w).Encode(map[string]string{"id": "thread_abc"})
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/messages"):
			json.NewEncoder(w).Encode(map[string]string{"id": "msg_1"})
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/runs"):
			json.NewEncoder(w).Encode(map[string]string{"id": "run_1", "status": "queued"})
		case r.Method == http.MethodGet && strings.Contains(r.URL.Path, "/runs/"):
			json.NewEncoder(w).Encode(map[string]string{"id": "run_1", "status": "completed"})
		case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/messages"):
			json.NewEncoder(w).Encode(map[string]any{
				"data": []map[string]any{
					{
						"role": "assistant",
						"content": []map[string]any{
							{"type": "text", "text": map[string]string{"value": reply}},
						},
					},
				},
			})
		default:
			http.NotFound(w, r)
		}
	}))
}

func newTestServer(t *testing.T, assistantURL string) *Server {
	t.Helper()

	cfg := &config.Config{}
	cfg.Server.HTTPAddr = "127.0.0.1:0"
	cfg.Assistant.BaseURL = assistantURL
	cfg.Assistant.APIKey = "sk-test"
	cfg.Assistant.AssistantID = "asst_test"
	cfg.Assistant.PollInterval = time.Millisecond
	cfg.Assistant.RunTimeout = time.Second
	cfg.Auth.Password = testPassword
	cfg.Auth.JWTSecret = "test-secret-test-secret-test-1234"
	cfg.Auth.TokenTTL = time.Hour

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := New(cfg, logger)
	t.Cleanup(func() { s.sessions.Close() })
	return s
}

func doJSON(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func login(t *testing.T, s *Server) string {
	t.Helper()

	rec := doJSON(t, s.Handler(), http.MethodPost, "/api/login", "", LoginRequest{Password: testPassword})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp LoginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func TestHealthz(t *testing.T) {
	backend := fakeAssistantBackend(t, "hi")
	defer backend.Close()
	s := newTestServer(t, backend.URL)

	rec := doJSON(t, s.Handler(), http.MethodGet, "/healthz", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestAPILoginWrongPassword(t *testing.T) {
	backend := fakeAssistantBackend(t, "hi")
	defer backend.Close()
	s := newTestServer(t, backend.URL)

	rec := doJSON(t, s.Handler(), http.MethodPost, "/api/login", "", LoginRequest{Password: "nope"})

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "incorrect password")
}

func TestAPIChatFullTurn(t *testing.T) {
	backend := fakeAssistantBackend(t, "The filing deadline is Friday.")
	defer backend.Close()
	s := newTestServer(t, backend.URL)
	token := login(t, s)

	rec := doJSON(t, s.Handler(), http.MethodPost, "/api/chat", token, ChatRequest{Message: "When is the deadline?"})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp ChatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Messages, 2)
	assert.Equal(t, "user", resp.Messages[0].Role)
	assert.Equal(t, "When is the deadline?", resp.Messages[0].Content)
	assert.Equal(t, "assistant", resp.Messages[1].Role)
	assert.Equal(t, "The filing deadline is Friday.", resp.Messages[1].Content)
}

func TestAPIChatBlankMessageIsNoOp(t *testing.T) {
	backend := fakeAssistantBackend(t, "hi")
	defer backend.Close()
	s := newTestServer(t, backend.URL)
	token := login(t, s)

	rec := doJSON(t, s.Handler(), http.MethodPost, "/api/chat", token, ChatRequest{Message: "   "})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, s.Handler(), http.MethodGet, "/api/history", token, nil)
	var resp ChatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, resp.Messages)
}

func TestAPIChatRequiresToken(t *testing.T) {
	backend := fakeAssistantBackend(t, "hi")
	defer backend.Close()
	s := newTestServer(t, backend.URL)

	rec := doJSON(t, s.Handler(), http.MethodPost, "/api/chat", "", ChatRequest{Message: "hi"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, s.Handler(), http.MethodPost, "/api/chat", "garbage-token", ChatRequest{Message: "hi"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPIChatUpstreamDown(t *testing.T) {
	backend := fakeAssistantBackend(t, "hi")
	s := newTestServer(t, backend.URL)
	token := login(t, s)
	backend.Close()

	rec := doJSON(t, s.Handler(), http.MethodPost, "/api/chat", token, ChatRequest{Message: "hi"})

	require.Equal(t, http.StatusBadGateway, rec.Code)

	// The user message was recorded before the remote call failed.
	rec = doJSON(t, s.Handler(), http.MethodGet, "/api/history", token, nil)
	var resp ChatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Messages, 1)
	assert.Equal(t, "user", resp.Messages[0].Role)
}

func TestAPIExport(t *testing.T) {
	backend := fakeAssistantBackend(t, "Hello")
	defer backend.Close()
	s := newTestServer(t, backend.URL)
	token := login(t, s)

	doJSON(t, s.Handler(), http.MethodPost, "/api/chat", token, ChatRequest{Message: "Hi"})
	rec := doJSON(t, s.Handler(), http.MethodGet, "/api/export", token, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp ExportResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "User: Hi\nAssistant: Hello", resp.Transcript)
}

func TestAPIReset(t *testing.T) {
	backend := fakeAssistantBackend(t, "Hello")
	defer backend.Close()
	s := newTestServer(t, backend.URL)
	token := login(t, s)

	doJSON(t, s.Handler(), http.MethodPost, "/api/chat", token, ChatRequest{Message: "Hi"})
	rec := doJSON(t, s.Handler(), http.MethodPost, "/api/reset", token, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	// Reset clears authentication, so the old token no longer works.
	rec = doJSON(t, s.Handler(), http.MethodGet, "/api/history", token, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPIDocumentsNotConfigured(t *testing.T) {
	backend := fakeAssistantBackend(t, "hi")
	defer backend.Close()
	s := newTestServer(t, backend.URL)
	token := login(t, s)

	rec := doJSON(t, s.Handler(), http.MethodGet, "/api/documents", token, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPIDocuments(t *testing.T) {
	docsBackend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/files":
			json.NewEncoder(w).Encode(map[string]any{
				"files": []map[string]string{{"name": "rules.md"}},
			})
		case "/files/rules.md":
			w.Write([]byte("# Rules"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer docsBackend.Close()

	backend := fakeAssistantBackend(t, "hi")
	defer backend.Close()

	cfg := &config.Config{}
	cfg.Server.HTTPAddr = "127.0.0.1:0"
	cfg.Assistant.BaseURL = backend.URL
	cfg.Assistant.APIKey = "sk-test"
	cfg.Assistant.AssistantID = "asst_test"
	cfg.Assistant.PollInterval = time.Millisecond
	cfg.Assistant.RunTimeout = time.Second
	cfg.Auth.Password = testPassword
	cfg.Auth.JWTSecret = "test-secret-test-secret-test-1234"
	cfg.Auth.TokenTTL = time.Hour
	cfg.Docs.BaseURL = docsBackend.URL

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := New(cfg, logger)
	t.Cleanup(func() { s.sessions.Close() })
	token := login(t, s)

	rec := doJSON(t, s.Handler(), http.MethodGet, "/api/documents", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list DocumentsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, []string{"rules.md"}, list.Documents)

	rec = doJSON(t, s.Handler(), http.MethodGet, "/api/documents?name=rules.md", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var doc DocumentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, "# Rules", doc.Content)
}
