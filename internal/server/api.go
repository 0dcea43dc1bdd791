// ABOUTME: JSON API handlers for programmatic clients like assist-cli
// ABOUTME: Bearer-token auth, one endpoint per conversation operation

package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/okapi-labs/assist-gateway/internal/assistant"
	"github.com/okapi-labs/assist-gateway/internal/conversation"
	"github.com/okapi-labs/assist-gateway/internal/docs"
	"github.com/okapi-labs/assist-gateway/internal/session"
)

// LoginRequest is the JSON request body for POST /api/login.
type LoginRequest struct {
	Password string `json:"password"`
}

// LoginResponse is the JSON response for POST /api/login.
type LoginResponse struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expires_in"`
}

// ChatRequest is the JSON request body for POST /api/chat.
type ChatRequest struct {
	Message string `json:"message"`
}

// MessageResponse is one entry of the conversation log.
type MessageResponse struct {
	ID        string `json:"id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

// ChatResponse is the JSON response for POST /api/chat and GET /api/history.
type ChatResponse struct {
	Messages []MessageResponse `json:"messages"`
}

// ExportResponse is the JSON response for GET /api/export.
type ExportResponse struct {
	Transcript string `json:"transcript"`
}

// DocumentsResponse is the JSON response for GET /api/documents.
type DocumentsResponse struct {
	Documents []string `json:"documents"`
}

// DocumentResponse is the JSON response for GET /api/documents?name=X.
type DocumentResponse struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

func (s *Server) registerAPIRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/login", s.handleAPILogin)
	mux.HandleFunc("/api/chat", s.requireToken(s.handleAPIChat))
	mux.HandleFunc("/api/history", s.requireToken(s.handleAPIHistory))
	mux.HandleFunc("/api/export", s.requireToken(s.handleAPIExport))
	mux.HandleFunc("/api/reset", s.requireToken(s.handleAPIReset))
	mux.HandleFunc("/api/documents", s.requireToken(s.handleAPIDocuments))
}

// handleAPILogin checks the shared password and mints a bearer token bound to
// a fresh authenticated session.
func (s *Server) handleAPILogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := s.gate.Login(req.Password); err != nil {
		s.logger.Info("API login rejected", "remote_addr", r.RemoteAddr)
		s.sendJSONError(w, http.StatusUnauthorized, "incorrect password")
		return
	}

	sess := s.sessions.Create(r.Context())
	if err := s.sessions.SetAuthenticated(r.Context(), sess.ID, true); err != nil {
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	ttl := s.config.Auth.TokenTTL
	token, err := s.tokens.Issue(sess.ID, ttl)
	if err != nil {
		s.logger.Error("failed to issue token", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	s.logger.Info("API login accepted", "session_id", sess.ID)
	s.sendJSON(w, http.StatusOK, LoginResponse{
		Token:     token,
		ExpiresIn: int64(ttl.Seconds()),
	})
}

// requireToken wraps a handler with bearer-token verification. The session ID
// from the token is checked against the store so revoked or expired sessions
// are rejected even when the token itself is still valid.
func (s *Server) requireToken(next func(w http.ResponseWriter, r *http.Request, sessionID string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			s.sendJSONError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		sessionID, err := s.tokens.Verify(token)
		if err != nil {
			s.sendJSONError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		sess, err := s.sessions.Get(r.Context(), sessionID)
		if err != nil || !sess.Authenticated {
			s.sendJSONError(w, http.StatusUnauthorized, "session expired, log in again")
			return
		}

		next(w, r, sessionID)
	}
}

func (s *Server) handleAPIChat(w http.ResponseWriter, r *http.Request, sessionID string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if strings.TrimSpace(req.Message) == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	messages, err := s.conv.Submit(r.Context(), sessionID, req.Message)
	if err != nil {
		s.sendTurnError(w, err)
		return
	}

	s.sendJSON(w, http.StatusOK, ChatResponse{Messages: toMessageResponses(messages)})
}

// sendTurnError maps conversation errors onto HTTP statuses. The user message
// is already recorded by the time any of these fire, so clients refetch
// history rather than resend.
func (s *Server) sendTurnError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, conversation.ErrBusy):
		s.sendJSONError(w, http.StatusConflict, "a request is already in flight for this session")
	case errors.Is(err, conversation.ErrRunTimeout):
		s.sendJSONError(w, http.StatusGatewayTimeout, "assistant run timed out")
	case errors.Is(err, conversation.ErrRunFailed):
		s.sendJSONError(w, http.StatusBadGateway, "assistant run failed")
	case errors.Is(err, assistant.ErrUnavailable):
		s.sendJSONError(w, http.StatusBadGateway, "assistant service unavailable")
	case errors.Is(err, session.ErrNotFound):
		s.sendJSONError(w, http.StatusUnauthorized, "session expired, log in again")
	default:
		s.logger.Error("chat turn failed", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (s *Server) handleAPIHistory(w http.ResponseWriter, r *http.Request, sessionID string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	messages, err := s.conv.History(r.Context(), sessionID)
	if err != nil {
		s.sendTurnError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, ChatResponse{Messages: toMessageResponses(messages)})
}

func (s *Server) handleAPIExport(w http.ResponseWriter, r *http.Request, sessionID string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	text, err := s.conv.Export(r.Context(), sessionID)
	if err != nil {
		s.sendTurnError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, ExportResponse{Transcript: text})
}

func (s *Server) handleAPIReset(w http.ResponseWriter, r *http.Request, sessionID string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if err := s.conv.Reset(r.Context(), sessionID); err != nil {
		s.sendTurnError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleAPIDocuments lists documents, or fetches one when ?name= is given.
func (s *Server) handleAPIDocuments(w http.ResponseWriter, r *http.Request, sessionID string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.docsClient == nil {
		s.sendJSONError(w, http.StatusNotFound, "document service not configured")
		return
	}

	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name != "" {
		content, err := s.docsClient.Fetch(r.Context(), name)
		switch {
		case errors.Is(err, docs.ErrNotFound):
			s.sendJSONError(w, http.StatusNotFound, "document not found")
		case err != nil:
			s.sendJSONError(w, http.StatusBadGateway, "document service unavailable")
		default:
			s.sendJSON(w, http.StatusOK, DocumentResponse{Name: name, Content: content})
		}
		return
	}

	names, err := s.docsClient.List(r.Context())
	if err != nil {
		s.sendJSONError(w, http.StatusBadGateway, "document service unavailable")
		return
	}
	s.sendJSON(w, http.StatusOK, DocumentsResponse{Documents: names})
}

func toMessageResponses(messages []session.Message) []MessageResponse {
	out := make([]MessageResponse, 0, len(messages))
	for _, msg := range messages {
		out = append(out, MessageResponse{
			ID:        msg.ID,
			Role:      string(msg.Role),
			Content:   msg.Content,
			CreatedAt: msg.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return out
}

func (s *Server) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (s *Server) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": message}); err != nil {
		s.logger.Error("failed to encode error response", "error", err)
	}
}

