// ABOUTME: Browser front end for the assistant gateway
// ABOUTME: Serves the login gate, chat view, export download, and document browser

package web

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/okapi-labs/assist-gateway/internal/assistant"
	"github.com/okapi-labs/assist-gateway/internal/auth"
	"github.com/okapi-labs/assist-gateway/internal/conversation"
	"github.com/okapi-labs/assist-gateway/internal/docs"
	"github.com/okapi-labs/assist-gateway/internal/session"
)

const (
	sessionCookieName = "assist_session"
	csrfCookieName    = "assist_csrf"
)

// Handler serves the browser UI. Document browsing is optional; when docsClient
// is nil the Documents tab is hidden and /docs returns 404.
type Handler struct {
	sessions *session.Store
	conv     *conversation.Service
	gate     *auth.Gate
	docs     *docs.Client
	logger   *slog.Logger
}

// New creates a web handler. docsClient may be nil.
func New(sessions *session.Store, conv *conversation.Service, gate *auth.Gate, docsClient *docs.Client, logger *slog.Logger) *Handler {
	return &Handler{
		sessions: sessions,
		conv:     conv,
		gate:     gate,
		docs:     docsClient,
		logger:   logger.With("component", "web"),
	}
}

// RegisterRoutes mounts the web UI routes on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/", h.handleHome)
	mux.HandleFunc("/login", h.handleLogin)
	mux.HandleFunc("/logout", h.handleLogout)
	mux.HandleFunc("/chat", h.handleChat)
	mux.HandleFunc("/reset", h.handleReset)
	mux.HandleFunc("/export", h.handleExport)
	mux.HandleFunc("/docs", h.handleDocs)
}

// ensureSession returns the browser's session, creating one (and setting the
// cookie) when the cookie is missing or stale.
func (h *Handler) ensureSession(w http.ResponseWriter, r *http.Request) *session.Session {
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		if sess, err := h.sessions.Get(r.Context(), cookie.Value); err == nil {
			return sess
		}
	}

	sess := h.sessions.Create(r.Context())
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    sess.ID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return sess
}

// ensureCSRFToken returns the CSRF token for this browser, creating the
// cookie if needed.
func (h *Handler) ensureCSRFToken(w http.ResponseWriter, r *http.Request) string {
	if cookie, err := r.Cookie(csrfCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	token, err := generateSecureToken(32)
	if err != nil {
		h.logger.Error("failed to generate CSRF token", "error", err)
		return ""
	}

	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return token
}

// validateCSRF checks the submitted form token against the cookie.
func (h *Handler) validateCSRF(r *http.Request) bool {
	cookie, err := r.Cookie(csrfCookieName)
	if err != nil || cookie.Value == "" {
		return false
	}
	formToken := r.FormValue("csrf_token")
	if formToken == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(formToken)) == 1
}

func generateSecureToken(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random token: %w", err)
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

func (h *Handler) handleHome(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sess := h.ensureSession(w, r)
	csrfToken := h.ensureCSRFToken(w, r)

	if !sess.Authenticated {
		h.renderLoginPage(w, "", csrfToken)
		return
	}

	messages, err := h.conv.History(r.Context(), sess.ID)
	if err != nil {
		h.logger.Error("failed to load history", "session_id", sess.ID, "error", err)
		messages = nil
	}
	h.renderChatPage(w, messages, "", csrfToken)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	sess := h.ensureSession(w, r)
	csrfToken := h.ensureCSRFToken(w, r)

	if !h.validateCSRF(r) {
		h.renderLoginPage(w, "Invalid request, please try again", csrfToken)
		return
	}

	password := r.FormValue("password")
	if err := h.gate.Login(password); err != nil {
		h.logger.Info("login rejected", "session_id", sess.ID)
		h.renderLoginPage(w, "Incorrect password", csrfToken)
		return
	}

	if err := h.sessions.SetAuthenticated(r.Context(), sess.ID, true); err != nil {
		h.logger.Error("failed to authenticate session", "session_id", sess.ID, "error", err)
		h.renderLoginPage(w, "Something went wrong, please try again", csrfToken)
		return
	}

	h.logger.Info("login accepted", "session_id", sess.ID)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		h.sessions.Delete(r.Context(), cookie.Value)
		h.conv.Forget(cookie.Value)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	sess := h.ensureSession(w, r)
	csrfToken := h.ensureCSRFToken(w, r)

	if !sess.Authenticated {
		h.renderLoginPage(w, "", csrfToken)
		return
	}
	if !h.validateCSRF(r) {
		messages, _ := h.conv.History(r.Context(), sess.ID)
		h.renderChatPage(w, messages, "Invalid request, please try again", csrfToken)
		return
	}

	content := r.FormValue("message")
	messages, err := h.conv.Submit(r.Context(), sess.ID, content)
	notice := ""
	if err != nil {
		notice = turnNotice(err)
		h.logger.Warn("chat turn failed", "session_id", sess.ID, "error", err)
		if messages == nil {
			messages, _ = h.conv.History(r.Context(), sess.ID)
		}
	}
	h.renderChatPage(w, messages, notice, csrfToken)
}

// turnNotice maps a failed turn to the banner shown above the chat log.
func turnNotice(err error) string {
	switch {
	case errors.Is(err, conversation.ErrBusy):
		return "A reply is still being generated, please wait for it to finish"
	case errors.Is(err, conversation.ErrRunTimeout):
		return "The assistant took too long to reply, please try again"
	case errors.Is(err, conversation.ErrRunFailed):
		return "The assistant could not complete that request, please try again"
	case errors.Is(err, assistant.ErrUnavailable):
		return "The assistant service is unavailable right now, please try again shortly"
	default:
		return "Something went wrong, please try again"
	}
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	sess := h.ensureSession(w, r)
	csrfToken := h.ensureCSRFToken(w, r)

	if !sess.Authenticated {
		h.renderLoginPage(w, "", csrfToken)
		return
	}
	if !h.validateCSRF(r) {
		messages, _ := h.conv.History(r.Context(), sess.ID)
		h.renderChatPage(w, messages, "Invalid request, please try again", csrfToken)
		return
	}

	if err := h.conv.Reset(r.Context(), sess.ID); err != nil {
		messages, _ := h.conv.History(r.Context(), sess.ID)
		h.renderChatPage(w, messages, turnNotice(err), csrfToken)
		return
	}

	h.logger.Info("session reset", "session_id", sess.ID)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sess := h.ensureSession(w, r)
	if !sess.Authenticated {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	text, err := h.conv.Export(r.Context(), sess.ID)
	if err != nil {
		http.Error(w, "Failed to export chat history", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="chat_history.txt"`)
	fmt.Fprint(w, text)
}

func (h *Handler) handleDocs(w http.ResponseWriter, r *http.Request) {
	if h.docs == nil {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sess := h.ensureSession(w, r)
	csrfToken := h.ensureCSRFToken(w, r)

	if !sess.Authenticated {
		h.renderLoginPage(w, "", csrfToken)
		return
	}

	data := docsData{}

	names, err := h.docs.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list documents", "error", err)
		data.Notice = "The document service is unavailable right now"
		h.renderDocsPage(w, data)
		return
	}
	data.Documents = names

	selected := strings.TrimSpace(r.URL.Query().Get("doc"))
	if selected != "" {
		content, err := h.docs.Fetch(r.Context(), selected)
		switch {
		case errors.Is(err, docs.ErrNotFound):
			data.Notice = "That document could not be found"
		case err != nil:
			h.logger.Error("failed to fetch document", "name", selected, "error", err)
			data.Notice = "The document service is unavailable right now"
		default:
			data.Selected = selected
			data.Summary = renderMarkdown(content)
		}
	}

	h.renderDocsPage(w, data)
}
