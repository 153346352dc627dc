package repository

import (
	"context"

	relay "github.com/mohammednazmy/VoiceAssist-sub005/internal/pkg/relay/domain"
)

// ConversationStore is the relay's view of the external durable store.
// The relay reads ownership for authorization and appends messages; it
// never creates, renames, or deletes conversations.
type ConversationStore interface {
	// Authorize reports whether userID owns conversationID.
	Authorize(ctx context.Context, userID, conversationID string) (bool, error)

	// RecentHistory returns the newest messages for a conversation in
	// chronological order. Used by the REST history path, not the
	// realtime relay.
	RecentHistory(ctx context.Context, conversationID string, limit int) ([]relay.Message, error)

	// SaveMessage persists a message. Implementations must be
	// duplicate-safe upserts keyed by message id: persistence is
	// at-least-once and retried asynchronously.
	SaveMessage(ctx context.Context, m relay.Message) error
}
