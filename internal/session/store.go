// ABOUTME: In-memory session store keyed by session id
// ABOUTME: Thread-safe, returns copies, and expires idle sessions in the background

package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a requested session does not exist
var ErrNotFound = errors.New("session not found")

// ErrThreadExists is returned when setting a thread id on a session that
// already has one; the thread id is immutable for the life of a session.
var ErrThreadExists = errors.New("thread already set")

// sweepDivisor controls how often the janitor runs relative to the idle TTL.
const sweepDivisor = 4

// Store is an in-memory session store. Sessions live exactly as long as the
// browser session they belong to (plus the idle TTL); there is deliberately
// no durable backend behind it.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	idleTTL  time.Duration
	done     chan struct{}
	closed   bool
	onEvict  func(id string)
}

// NewStore creates a session store whose sessions expire after idleTTL
// without activity. A background goroutine reclaims expired sessions until
// Close is called.
func NewStore(idleTTL time.Duration) *Store {
	s := &Store{
		sessions: make(map[string]*Session),
		idleTTL:  idleTTL,
		done:     make(chan struct{}),
	}
	go s.janitor()
	return s
}

// Create makes a new unauthenticated session and returns a copy of it.
func (s *Store) Create(ctx context.Context) *Session {
	now := time.Now()
	sess := &Session{
		ID:        uuid.New().String(),
		CreatedAt: now,
		LastSeen:  now,
	}

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	result := *sess
	return &result
}

// Get returns a copy of the session and refreshes its idle timer.
func (s *Store) Get(ctx context.Context, id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	sess.LastSeen = time.Now()

	result := *sess
	result.Messages = append([]Message(nil), sess.Messages...)
	return &result, nil
}

// SetAuthenticated flips the authentication flag.
func (s *Store) SetAuthenticated(ctx context.Context, id string, authenticated bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}
	sess.Authenticated = authenticated
	return nil
}

// SetThreadID records the remote thread id. It may be set at most once per
// session; a second write is an ErrThreadExists, preserving the invariant
// that a session's thread never changes after lazy initialization.
func (s *Store) SetThreadID(ctx context.Context, id, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}
	if sess.ThreadID != "" {
		return ErrThreadExists
	}
	sess.ThreadID = threadID
	return nil
}

// Append adds a message to the ordered log.
func (s *Store) Append(ctx context.Context, id string, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}
	sess.Messages = append(sess.Messages, msg)
	return nil
}

// Messages returns a copy of the ordered message log.
func (s *Store) Messages(ctx context.Context, id string) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]Message(nil), sess.Messages...), nil
}

// Reset clears the authentication flag, thread id, and message log as a
// single operation. A partially reset session is never observable.
func (s *Store) Reset(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}
	sess.Authenticated = false
	sess.ThreadID = ""
	sess.Messages = nil
	return nil
}

// OnEvict registers fn to be called with the id of every session removed by
// Delete or the janitor sweep. Lets callers holding per-session state (such
// as turn locks) release it when the session goes away. Set once at wiring
// time, before the store is shared.
func (s *Store) OnEvict(fn func(id string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onEvict = fn
}

// Delete removes the session entirely.
func (s *Store) Delete(ctx context.Context, id string) {
	s.mu.Lock()
	_, existed := s.sessions[id]
	delete(s.sessions, id)
	fn := s.onEvict
	s.mu.Unlock()

	if existed && fn != nil {
		fn(id)
	}
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Close stops the janitor goroutine. Safe to call more than once.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
}

// janitor periodically removes sessions idle longer than the TTL.
func (s *Store) janitor() {
	interval := s.idleTTL / sweepDivisor
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.done:
			return
		}
	}
}

func (s *Store) sweep() {
	s.mu.Lock()
	cutoff := time.Now().Add(-s.idleTTL)
	var evicted []string
	for id, sess := range s.sessions {
		if sess.LastSeen.Before(cutoff) {
			delete(s.sessions, id)
			evicted = append(evicted, id)
		}
	}
	fn := s.onEvict
	s.mu.Unlock()

	if fn != nil {
		for _, id := range evicted {
			fn(id)
		}
	}
}
