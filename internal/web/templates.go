// ABOUTME: Template rendering functions for the web UI
// ABOUTME: Loads templates from the embedded filesystem and renders them

package web

import (
	"bytes"
	"html/template"
	"net/http"

	"github.com/yuin/goldmark"

	"github.com/okapi-labs/assist-gateway/internal/session"
)

// Template data types
type loginData struct {
	Title     string
	Error     string
	CSRFToken string
}

type chatMessage struct {
	Role      string
	RoleLabel string
	Content   string
	HTML      template.HTML
}

type chatData struct {
	Title       string
	Messages    []chatMessage
	Notice      string
	CSRFToken   string
	DocsEnabled bool
}

type docsData struct {
	Title     string
	Documents []string
	Selected  string
	Summary   template.HTML
	Notice    string
}

// renderLoginPage renders the login page
func (h *Handler) renderLoginPage(w http.ResponseWriter, errorMsg, csrfToken string) {
	tmpl := template.Must(template.ParseFS(templateFS, "templates/base.html", "templates/login.html"))

	data := loginData{
		Title:     "Login",
		Error:     errorMsg,
		CSRFToken: csrfToken,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, data); err != nil {
		h.logger.Error("failed to render login page", "error", err)
	}
}

// renderChatPage renders the chat view with the session's message log
func (h *Handler) renderChatPage(w http.ResponseWriter, messages []session.Message, notice, csrfToken string) {
	tmpl := template.Must(template.ParseFS(templateFS, "templates/base.html", "templates/chat.html"))

	data := chatData{
		Title:       "Chat",
		Messages:    toChatMessages(messages),
		Notice:      notice,
		CSRFToken:   csrfToken,
		DocsEnabled: h.docs != nil,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, data); err != nil {
		h.logger.Error("failed to render chat page", "error", err)
	}
}

// renderDocsPage renders the document summaries view
func (h *Handler) renderDocsPage(w http.ResponseWriter, data docsData) {
	tmpl := template.Must(template.ParseFS(templateFS, "templates/base.html", "templates/docs.html"))

	data.Title = "Document Summaries"

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, data); err != nil {
		h.logger.Error("failed to render docs page", "error", err)
	}
}

// toChatMessages converts the session log for display. Assistant replies are
// rendered as Markdown; user text stays plain and gets escaped by the
// template engine.
func toChatMessages(messages []session.Message) []chatMessage {
	out := make([]chatMessage, len(messages))
	for i, msg := range messages {
		cm := chatMessage{
			Role:      string(msg.Role),
			RoleLabel: roleLabel(msg.Role),
		}
		if msg.Role == session.RoleAssistant {
			cm.HTML = renderMarkdown(msg.Content)
		} else {
			cm.Content = msg.Content
		}
		out[i] = cm
	}
	return out
}

func roleLabel(r session.Role) string {
	switch r {
	case session.RoleUser:
		return "You"
	case session.RoleAssistant:
		return "Assistant"
	default:
		return string(r)
	}
}

// renderMarkdown converts Markdown to HTML for display
func renderMarkdown(content string) template.HTML {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(content), &buf); err != nil {
		escaped := template.HTMLEscapeString(content)
		return template.HTML("<p>" + escaped + "</p>")
	}
	return template.HTML(buf.String())
}
