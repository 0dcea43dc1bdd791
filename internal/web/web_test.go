// ABOUTME: Tests for the browser front end
// ABOUTME: Exercises the login gate, chat turns, reset, export, and the docs browser

package web

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okapi-labs/assist-gateway/internal/assistant"
	"github.com/okapi-labs/assist-gateway/internal/auth"
	"github.com/okapi-labs/assist-gateway/internal/conversation"
	"github.com/okapi-labs/assist-gateway/internal/docs"
	"github.com/okapi-labs/assist-gateway/internal/session"
)

const testPassword = "open-sesame"

// scriptedAssistant replies with a fixed string and completes immediately.
type scriptedAssistant struct {
	reply string
}

func (a *scriptedAssistant) CreateThread(ctx context.Context) (string, error) {
	return "thread-1", nil
}

func (a *scriptedAssistant) AddMessage(ctx context.Context, threadID, role, content string) error {
	return nil
}

func (a *scriptedAssistant) StartRun(ctx context.Context, threadID, assistantID string) (*assistant.Run, error) {
	return &assistant.Run{ID: "run-1", Status: assistant.RunStatusCompleted}, nil
}

func (a *scriptedAssistant) GetRun(ctx context.Context, threadID, runID string) (*assistant.Run, error) {
	return &assistant.Run{ID: runID, Status: assistant.RunStatusCompleted}, nil
}

func (a *scriptedAssistant) LatestAssistantMessage(ctx context.Context, threadID string) (string, error) {
	return a.reply, nil
}

type testEnv struct {
	handler *Handler
	store   *session.Store
	mux     *http.ServeMux
}

func newTestEnv(t *testing.T, docsClient *docs.Client) *testEnv {
	t.Helper()

	store := session.NewStore(time.Hour)
	t.Cleanup(store.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	conv := conversation.New(store, &scriptedAssistant{reply: "Hello **there**"}, "asst_test",
		time.Millisecond, time.Second, logger)
	gate := auth.NewGate(testPassword, "")

	handler := New(store, conv, gate, docsClient, logger)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	return &testEnv{handler: handler, store: store, mux: mux}
}

// browser carries cookies between requests like a real browser would.
type browser struct {
	t       *testing.T
	mux     *http.ServeMux
	cookies map[string]string
}

func newBrowser(t *testing.T, env *testEnv) *browser {
	return &browser{t: t, mux: env.mux, cookies: make(map[string]string)}
}

func (b *browser) do(method, path string, form url.Values) *httptest.ResponseRecorder {
	b.t.Helper()

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req := httptest.NewRequest(method, path, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	for name, value := range b.cookies {
		req.AddCookie(&http.Cookie{Name: name, Value: value})
	}

	rec := httptest.NewRecorder()
	b.mux.ServeHTTP(rec, req)

	for _, c := range rec.Result().Cookies() {
		if c.MaxAge < 0 {
			delete(b.cookies, c.Name)
		} else {
			b.cookies[c.Name] = c.Value
		}
	}
	return rec
}

func (b *browser) login(password string) *httptest.ResponseRecorder {
	b.t.Helper()

	// First GET sets session and CSRF cookies.
	b.do(http.MethodGet, "/", nil)
	form := url.Values{}
	form.Set("password", password)
	form.Set("csrf_token", b.cookies[csrfCookieName])
	return b.do(http.MethodPost, "/login", form)
}

func (b *browser) chat(message string) *httptest.ResponseRecorder {
	b.t.Helper()

	form := url.Values{}
	form.Set("message", message)
	form.Set("csrf_token", b.cookies[csrfCookieName])
	return b.do(http.MethodPost, "/chat", form)
}

func TestHomeShowsLoginWhenUnauthenticated(t *testing.T) {
	env := newTestEnv(t, nil)
	b := newBrowser(t, env)

	rec := b.do(http.MethodGet, "/", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `name="password"`)
	assert.NotEmpty(t, b.cookies[sessionCookieName])
	assert.NotEmpty(t, b.cookies[csrfCookieName])
}

func TestLoginWithCorrectPassword(t *testing.T) {
	env := newTestEnv(t, nil)
	b := newBrowser(t, env)

	rec := b.login(testPassword)

	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))

	rec = b.do(http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `name="message"`)
}

func TestLoginWithWrongPassword(t *testing.T) {
	env := newTestEnv(t, nil)
	b := newBrowser(t, env)

	rec := b.login("wrong")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Incorrect password")

	rec = b.do(http.MethodGet, "/", nil)
	assert.Contains(t, rec.Body.String(), `name="password"`)
}

func TestLoginRequiresCSRFToken(t *testing.T) {
	env := newTestEnv(t, nil)
	b := newBrowser(t, env)

	b.do(http.MethodGet, "/", nil)
	form := url.Values{}
	form.Set("password", testPassword)
	rec := b.do(http.MethodPost, "/login", form)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid request")
}

func TestChatTurnRendersReply(t *testing.T) {
	env := newTestEnv(t, nil)
	b := newBrowser(t, env)
	b.login(testPassword)

	rec := b.chat("Hi")

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Hi")
	// Assistant Markdown is rendered to HTML.
	assert.Contains(t, body, "<strong>there</strong>")
}

func TestChatFormFieldMatchesHandler(t *testing.T) {
	env := newTestEnv(t, nil)
	b := newBrowser(t, env)
	b.login(testPassword)

	rec := b.do(http.MethodGet, "/", nil)

	// Submit using the field name from the rendered form, the way a browser
	// does. If the template and handler disagree the turn silently becomes
	// a blank no-op.
	m := regexp.MustCompile(`<input type="text" name="([^"]+)"`).FindStringSubmatch(rec.Body.String())
	require.NotNil(t, m, "chat page has no text input")

	form := url.Values{}
	form.Set(m[1], "Hi")
	form.Set("csrf_token", b.cookies[csrfCookieName])
	rec = b.do(http.MethodPost, "/chat", form)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `<div class="role">`)
}

func TestChatEscapesUserText(t *testing.T) {
	env := newTestEnv(t, nil)
	b := newBrowser(t, env)
	b.login(testPassword)

	rec := b.chat("<script>alert(1)</script>")

	body := rec.Body.String()
	assert.NotContains(t, body, "<script>alert(1)</script>")
	assert.Contains(t, body, "&lt;script&gt;")
}

func TestChatRequiresLogin(t *testing.T) {
	env := newTestEnv(t, nil)
	b := newBrowser(t, env)

	b.do(http.MethodGet, "/", nil)
	rec := b.chat("Hi")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `name="password"`)
}

func TestResetSendsBackToLogin(t *testing.T) {
	env := newTestEnv(t, nil)
	b := newBrowser(t, env)
	b.login(testPassword)
	b.chat("Hi")

	form := url.Values{}
	form.Set("csrf_token", b.cookies[csrfCookieName])
	rec := b.do(http.MethodPost, "/reset", form)

	require.Equal(t, http.StatusSeeOther, rec.Code)

	// Reset clears authentication along with the log.
	rec = b.do(http.MethodGet, "/", nil)
	assert.Contains(t, rec.Body.String(), `name="password"`)
}

func TestExportDownloadsTranscript(t *testing.T) {
	env := newTestEnv(t, nil)
	b := newBrowser(t, env)
	b.login(testPassword)
	b.chat("Hi")

	rec := b.do(http.MethodGet, "/export", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "chat_history.txt")
	assert.Equal(t, "User: Hi\nAssistant: Hello **there**", rec.Body.String())
}

func TestLogoutDeletesSession(t *testing.T) {
	env := newTestEnv(t, nil)
	b := newBrowser(t, env)
	b.login(testPassword)

	form := url.Values{}
	form.Set("csrf_token", b.cookies[csrfCookieName])
	rec := b.do(http.MethodPost, "/logout", form)

	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, 0, env.store.Len())
}

func TestDocsDisabledWithoutClient(t *testing.T) {
	env := newTestEnv(t, nil)
	b := newBrowser(t, env)
	b.login(testPassword)

	rec := b.do(http.MethodGet, "/docs", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = b.do(http.MethodGet, "/", nil)
	assert.NotContains(t, rec.Body.String(), `href="/docs"`)
}

func TestDocsBrowser(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/files":
			json.NewEncoder(w).Encode(map[string]any{
				"files": []map[string]string{{"name": "guidance.md"}},
			})
		case "/files/guidance.md":
			w.Write([]byte("# Guidance\n\nRead *carefully*."))
		default:
			http.NotFound(w, r)
		}
	}))
	defer backend.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	env := newTestEnv(t, docs.NewClient(backend.URL, "test-key", logger))
	b := newBrowser(t, env)
	b.login(testPassword)

	rec := b.do(http.MethodGet, "/docs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "guidance.md")

	rec = b.do(http.MethodGet, "/docs?doc=guidance.md", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<em>carefully</em>")

	rec = b.do(http.MethodGet, "/docs?doc=missing.md", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "could not be found")
}

func TestBlankMessageLeavesLogUnchanged(t *testing.T) {
	env := newTestEnv(t, nil)
	b := newBrowser(t, env)
	b.login(testPassword)

	rec := b.chat("   ")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), `<div class="role">`)
}