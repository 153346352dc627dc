package relay

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// CitationSource identifies where a citation points.
type CitationSource string

const (
	CitationSourceKB  CitationSource = "kb"
	CitationSourceURL CitationSource = "url"
)

// Citation references source material backing part of an assistant message.
// Citations are attached only when a message is finalized, never while it
// is still streaming.
type Citation struct {
	ID        string         `json:"id"`
	Source    CitationSource `json:"source"`
	Reference string         `json:"reference"`
	Snippet   string         `json:"snippet,omitempty"`
	Page      int            `json:"page,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Message is one turn in a conversation. User messages arrive complete;
// assistant messages grow append-only while streaming and are frozen once
// finalized.
type Message struct {
	ID             string     `db:"id" json:"id"`
	ConversationID string     `db:"conversation_id" json:"conversationId"`
	Role           Role       `db:"role" json:"role"`
	Content        string     `db:"content" json:"content"`
	Citations      []Citation `db:"citations" json:"citations,omitempty"`
	Attachments    []string   `db:"attachments" json:"attachments,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"createdAt"`
}

// MaxContentChars bounds user-supplied message content.
const MaxContentChars = 10000

// NewUserMessage validates and constructs a complete user message.
func NewUserMessage(m Message) (*Message, error) {
	if m.ID == "" {
		return nil, errors.New("message id is required")
	}
	if m.ConversationID == "" {
		return nil, errors.New("conversation_id is required")
	}
	if m.Role != RoleUser {
		return nil, errors.New("role must be user")
	}
	content := strings.TrimSpace(m.Content)
	if content == "" {
		return nil, errors.New("content is required")
	}
	if utf8.RuneCountInString(m.Content) > MaxContentChars {
		return nil, errors.New("content exceeds maximum length")
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	return &m, nil
}
