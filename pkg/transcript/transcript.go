package transcript

import (
	"context"
	"errors"
	"regexp"
)

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ErrEmptyTranscript is returned when an assistant message is requested before one exists.
var ErrEmptyTranscript = errors.New("transcript has no assistant message")

var whitespaceRun = regexp.MustCompile(`\s+`)

// Message is a single transcript entry
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Valid reports whether the role is one the transcript accepts
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// NormalizeWhitespace collapses every whitespace run into a single space.
func NormalizeWhitespace(s string) string {
	return whitespaceRun.ReplaceAllString(s, " ")
}

// Transcript is the ordered message log of one session.
// It is not safe for concurrent use; callers serialize access per session.
type Transcript struct {
	sessionID string
	messages  []Message
}

// New creates a transcript, optionally pre-populated with messages
func New(sessionID string, messages ...Message) *Transcript {
	t := &Transcript{sessionID: sessionID}
	for _, msg := range messages {
		t.Append(msg)
	}
	return t
}

// SessionID returns the owning session id
func (t *Transcript) SessionID() string {
	return t.sessionID
}

// Append adds a message to the end of the log
func (t *Transcript) Append(msg Message) {
	msg.Content = NormalizeWhitespace(msg.Content)
	t.messages = append(t.messages, msg)
}

// Reset replaces the whole log with a copy of seed
func (t *Transcript) Reset(seed []Message) {
	t.messages = make([]Message, 0, len(seed))
	for _, msg := range seed {
		t.Append(msg)
	}
}

// Current returns a copy of the log
func (t *Transcript) Current() []Message {
	out := make([]Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// Len returns the number of messages
func (t *Transcript) Len() int {
	return len(t.messages)
}

// LastAssistantMessage returns the most recent assistant-authored message
func (t *Transcript) LastAssistantMessage() (Message, error) {
	for i := len(t.messages) - 1; i >= 0; i-- {
		if t.messages[i].Role == RoleAssistant {
			return t.messages[i], nil
		}
	}
	return Message{}, ErrEmptyTranscript
}

// Persister is the durable per-session store behind the transcript.
type Persister interface {
	// Load returns the stored transcript, or an empty one for an unknown session.
	Load(ctx context.Context, sessionID string) (*Transcript, error)

	// Save replaces the stored transcript wholesale.
	Save(ctx context.Context, sessionID string, t *Transcript) error
}
