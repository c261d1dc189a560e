package domain

import "time"

// Role identifies the author of a chat message.
type Role string

// Role constants.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Label returns the speaker label used when rendering a transcript.
func (r Role) Label() string {
	if r == RoleAssistant {
		return "Assistant"
	}
	return "User"
}

// ChatMessage is one turn in a chat session.
type ChatMessage struct {
	Role      Role      `json:"role"      db:"role"`
	Content   string    `json:"content"   db:"content"`
	Timestamp time.Time `json:"timestamp" db:"created_at"`
}

// ChatSession is the message history of one user about one repository.
// Messages are append-only; clearing empties the sequence but keeps the identity.
type ChatSession struct {
	UserID        string        `json:"user_id"        db:"user_id"`
	RepositoryURL string        `json:"repository_url" db:"repository_url"`
	Messages      []ChatMessage `json:"messages"`
	CreatedAt     time.Time     `json:"created_at"     db:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"     db:"updated_at"`
}

// Last returns at most the last n messages, oldest first.
func (s *ChatSession) Last(n int) []ChatMessage {
	if s == nil || n <= 0 {
		return nil
	}
	if len(s.Messages) <= n {
		return s.Messages
	}
	return s.Messages[len(s.Messages)-n:]
}
