// ABOUTME: ConversationService drives one chat turn from user text to assistant reply
// ABOUTME: Record first, then act - the user message is appended before any remote call

package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/okapi-labs/assist-gateway/internal/assistant"
	"github.com/okapi-labs/assist-gateway/internal/session"
)

// Turn errors. Remote-call failures are wrapped and carry the assistant
// package's sentinels; these three are the service's own.
var (
	// ErrBusy is returned when a submit arrives while another one is still
	// in flight for the same session. The caller retries after the first
	// turn finishes; requests are rejected, never queued.
	ErrBusy = errors.New("a request is already in flight for this session")

	// ErrRunFailed is returned when the remote run reaches the failed state.
	ErrRunFailed = errors.New("assistant run failed")

	// ErrRunTimeout is returned when the run does not reach a terminal state
	// within the configured cap. Distinct from ErrRunFailed so the caller can
	// tell "the assistant gave up" from "we gave up waiting".
	ErrRunTimeout = errors.New("assistant run timed out")
)

// AssistantClient defines what the service needs from the remote assistant
type AssistantClient interface {
	CreateThread(ctx context.Context) (string, error)
	AddMessage(ctx context.Context, threadID, role, content string) error
	StartRun(ctx context.Context, threadID, assistantID string) (*assistant.Run, error)
	GetRun(ctx context.Context, threadID, runID string) (*assistant.Run, error)
	LatestAssistantMessage(ctx context.Context, threadID string) (string, error)
}

// SessionStore defines what the service needs from session storage
type SessionStore interface {
	Get(ctx context.Context, id string) (*session.Session, error)
	SetThreadID(ctx context.Context, id, threadID string) error
	Append(ctx context.Context, id string, msg session.Message) error
	Messages(ctx context.Context, id string) ([]session.Message, error)
	Reset(ctx context.Context, id string) error
}

// Service orchestrates one conversation turn at a time per session: append
// the user message, lazily create the remote thread, post, run, poll to a
// terminal state, and append the reply. Callers are expected to have
// authenticated the session already.
type Service struct {
	store        SessionStore
	client       AssistantClient
	assistantID  string
	pollInterval time.Duration
	runTimeout   time.Duration
	logger       *slog.Logger

	mu       sync.Mutex
	inflight map[string]*sync.Mutex // per-session turn locks
}

// New creates a conversation service. pollInterval is the fixed delay between
// run status checks; runTimeout caps the total wait for a terminal state.
func New(store SessionStore, client AssistantClient, assistantID string, pollInterval, runTimeout time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:        store,
		client:       client,
		assistantID:  assistantID,
		pollInterval: pollInterval,
		runTimeout:   runTimeout,
		logger:       logger.With("component", "conversation"),
		inflight:     make(map[string]*sync.Mutex),
	}
}

// Submit runs one full turn for the session and returns the updated log.
//
// Blank input (after trimming) is a no-op: the current log comes back
// unchanged with no remote calls made. A non-blank user message is appended
// to the log BEFORE any remote call, so the user always sees their own text
// even when the turn fails. Failed turns are never rolled back.
func (s *Service) Submit(ctx context.Context, sessionID, text string) ([]session.Message, error) {
	content := strings.TrimSpace(text)
	if content == "" {
		return s.store.Messages(ctx, sessionID)
	}

	lock := s.sessionLock(sessionID)
	if !lock.TryLock() {
		return nil, ErrBusy
	}
	defer lock.Unlock()

	userMsg := session.NewMessage(session.RoleUser, content)
	if err := s.store.Append(ctx, sessionID, userMsg); err != nil {
		return nil, fmt.Errorf("recording message: %w", err)
	}

	threadID, err := s.ensureThread(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("thread resolution failed: %w", err)
	}

	s.logger.Debug("user message recorded",
		"session_id", sessionID,
		"thread_id", threadID,
		"message_id", userMsg.ID)

	if err := s.client.AddMessage(ctx, threadID, assistant.RoleUser, content); err != nil {
		return nil, fmt.Errorf("posting message: %w", err)
	}

	run, err := s.client.StartRun(ctx, threadID, s.assistantID)
	if err != nil {
		return nil, fmt.Errorf("starting run: %w", err)
	}

	run, err = s.awaitRun(ctx, threadID, run)
	if err != nil {
		return nil, err
	}

	if run.Status == assistant.RunStatusFailed {
		s.logger.Warn("run failed", "session_id", sessionID, "thread_id", threadID, "run_id", run.ID)
		return nil, ErrRunFailed
	}

	// Empty reply is tolerated: the turn completed, the assistant just had
	// nothing to say. It still gets a log entry.
	reply, err := s.client.LatestAssistantMessage(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("fetching reply: %w", err)
	}

	assistantMsg := session.NewMessage(session.RoleAssistant, reply)
	if err := s.store.Append(ctx, sessionID, assistantMsg); err != nil {
		return nil, fmt.Errorf("recording reply: %w", err)
	}

	s.logger.Debug("turn completed",
		"session_id", sessionID,
		"run_id", run.ID,
		"reply_len", len(reply))

	return s.store.Messages(ctx, sessionID)
}

// History returns the session's ordered message log.
func (s *Service) History(ctx context.Context, sessionID string) ([]session.Message, error) {
	return s.store.Messages(ctx, sessionID)
}

// Export returns the session's log in the chat-history export format.
func (s *Service) Export(ctx context.Context, sessionID string) (string, error) {
	msgs, err := s.store.Messages(ctx, sessionID)
	if err != nil {
		return "", err
	}
	return session.ExportText(msgs), nil
}

// Reset clears the session. It takes the same turn lock as Submit so a clear
// cannot interleave with an in-flight run.
func (s *Service) Reset(ctx context.Context, sessionID string) error {
	lock := s.sessionLock(sessionID)
	if !lock.TryLock() {
		return ErrBusy
	}
	defer lock.Unlock()

	return s.store.Reset(ctx, sessionID)
}

// Forget drops the per-session turn lock. Called when a session is deleted.
func (s *Service) Forget(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, sessionID)
}

// ensureThread resolves the session's remote thread, creating it on first
// use. The thread is created at most once per session; under the turn lock
// the lazy initialization cannot race with itself.
func (s *Service) ensureThread(ctx context.Context, sessionID string) (string, error) {
	sess, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if sess.ThreadID != "" {
		return sess.ThreadID, nil
	}

	threadID, err := s.client.CreateThread(ctx)
	if err != nil {
		return "", err
	}
	if err := s.store.SetThreadID(ctx, sessionID, threadID); err != nil {
		return "", err
	}
	s.logger.Debug("thread created", "session_id", sessionID, "thread_id", threadID)
	return threadID, nil
}

// awaitRun polls the run at the fixed interval until it reaches a terminal
// status, the cap expires, or the caller's context is cancelled. Status is
// always pulled, never pushed.
func (s *Service) awaitRun(ctx context.Context, threadID string, run *assistant.Run) (*assistant.Run, error) {
	deadline := time.NewTimer(s.runTimeout)
	defer deadline.Stop()

	for !run.Status.Terminal() {
		select {
		case <-time.After(s.pollInterval):
		case <-deadline.C:
			s.logger.Warn("run timed out", "thread_id", threadID, "run_id", run.ID, "timeout", s.runTimeout)
			return nil, ErrRunTimeout
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		next, err := s.client.GetRun(ctx, threadID, run.ID)
		if err != nil {
			return nil, fmt.Errorf("polling run: %w", err)
		}
		run = next
	}
	return run, nil
}

// sessionLock returns the turn lock for a session, creating it on first use.
func (s *Service) sessionLock(sessionID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.inflight[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		s.inflight[sessionID] = lock
	}
	return lock
}
