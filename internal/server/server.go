// ABOUTME: Server struct, initialization, and Run/Shutdown lifecycle
// ABOUTME: Wires the session store, conversation service, auth gate, web UI, and JSON API

package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/okapi-labs/assist-gateway/internal/assistant"
	"github.com/okapi-labs/assist-gateway/internal/auth"
	"github.com/okapi-labs/assist-gateway/internal/config"
	"github.com/okapi-labs/assist-gateway/internal/conversation"
	"github.com/okapi-labs/assist-gateway/internal/docs"
	"github.com/okapi-labs/assist-gateway/internal/session"
	"github.com/okapi-labs/assist-gateway/internal/web"
)

const sessionIdleTTL = 24 * time.Hour

// Server is the assembled gateway: one HTTP server carrying the browser UI,
// the JSON API, and the health endpoint.
type Server struct {
	config     *config.Config
	sessions   *session.Store
	conv       *conversation.Service
	gate       *auth.Gate
	tokens     *auth.TokenIssuer
	docsClient *docs.Client
	httpServer *http.Server
	logger     *slog.Logger
}

// New builds a server from configuration. The docs client is only created
// when docs.base_url is configured.
func New(cfg *config.Config, logger *slog.Logger) *Server {
	sessions := session.NewStore(sessionIdleTTL)

	assistantClient := assistant.NewClient(cfg.Assistant.BaseURL, cfg.Assistant.APIKey, logger)
	conv := conversation.New(sessions, assistantClient, cfg.Assistant.AssistantID,
		cfg.Assistant.PollInterval, cfg.Assistant.RunTimeout, logger)
	// Release turn locks when the janitor or a logout removes the session.
	sessions.OnEvict(conv.Forget)
	gate := auth.NewGate(cfg.Auth.Password, cfg.Auth.PasswordHash)
	tokens := auth.NewTokenIssuer([]byte(cfg.Auth.JWTSecret))

	var docsClient *docs.Client
	if cfg.Docs.BaseURL != "" {
		docsClient = docs.NewClient(cfg.Docs.BaseURL, cfg.Docs.APIKey, logger)
	}

	s := &Server{
		config:     cfg,
		sessions:   sessions,
		conv:       conv,
		gate:       gate,
		tokens:     tokens,
		docsClient: docsClient,
		logger:     logger.With("component", "server"),
	}

	mux := http.NewServeMux()

	// Health endpoint, no auth required
	mux.HandleFunc("/healthz", s.handleHealth)

	// JSON API for programmatic clients like assist-cli
	s.registerAPIRoutes(mux)

	// Browser UI with its own cookie-based session auth
	webHandler := web.New(sessions, conv, gate, docsClient, logger)
	webHandler.RegisterRoutes(mux)

	s.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Handler returns the assembled HTTP handler. Used by tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run starts the HTTP server and blocks until the context is canceled.
// Returns nil on graceful shutdown, or an error if the server fails.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		s.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		s.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := s.gracefulShutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown uses a fresh context since the run context is already
// canceled by the time this is called.
func (s *Server) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.Shutdown(ctx)
}

// Shutdown stops the HTTP server and the session store janitor.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.sessions.Close()
	if err != nil {
		return fmt.Errorf("HTTP shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, `{"status":"ok"}`)
}
