package usecase

import (
	"context"
	"fmt"

	relay "github.com/mohammednazmy/VoiceAssist-sub005/internal/pkg/relay/domain"
	repository "github.com/mohammednazmy/VoiceAssist-sub005/internal/pkg/relay/persistence/repository/port"
)

// GetHistoryInput carries the data needed to load recent conversation history.
type GetHistoryInput struct {
	UserID         string
	ConversationID string
	Limit          int
}

// GetHistoryUseCase serves the REST history path. The realtime relay never
// reads history itself; it only appends.
type GetHistoryUseCase struct {
	Store repository.ConversationStore
}

func NewGetHistoryUseCase(store repository.ConversationStore) *GetHistoryUseCase {
	return &GetHistoryUseCase{Store: store}
}

// Execute authorizes ownership and returns the newest messages in
// chronological order.
func (uc *GetHistoryUseCase) Execute(ctx context.Context, in GetHistoryInput) ([]relay.Message, error) {
	if in.UserID == "" || in.ConversationID == "" {
		return nil, fmt.Errorf("userId and conversationId are required")
	}

	owned, err := uc.Store.Authorize(ctx, in.UserID, in.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if !owned {
		return nil, relay.ErrNotOwner
	}

	msgs, err := uc.Store.RecentHistory(ctx, in.ConversationID, in.Limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return msgs, nil
}
