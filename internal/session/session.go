// ABOUTME: Session and Message types for per-browser-session conversation state
// ABOUTME: Includes the plain-text export format used by "Export Chat History"

package session

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single chat utterance. Messages are immutable once appended;
// insertion order is display order is export order.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// NewMessage creates a message with a fresh id and timestamp.
func NewMessage(role Role, content string) Message {
	return Message{
		ID:        uuid.New().String(),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}
}

// Session holds everything owned by one browser session: the authentication
// flag, the lazily created remote thread id, and the ordered message log.
// A session is never shared between users.
type Session struct {
	ID            string
	Authenticated bool
	ThreadID      string
	Messages      []Message
	CreatedAt     time.Time
	LastSeen      time.Time
}

// ExportText renders the log in the export format: one "Role: content" line
// per message, joined by newlines. This exact shape is the compatibility
// contract for chat history downloads.
func ExportText(messages []Message) string {
	lines := make([]string, len(messages))
	for i, msg := range messages {
		lines[i] = titleRole(msg.Role) + ": " + msg.Content
	}
	return strings.Join(lines, "\n")
}

func titleRole(r Role) string {
	s := string(r)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
