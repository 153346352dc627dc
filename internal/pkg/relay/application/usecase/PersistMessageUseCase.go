package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/mohammednazmy/VoiceAssist-sub005/internal/infrastructure/metrics"
	qport "github.com/mohammednazmy/VoiceAssist-sub005/internal/infrastructure/queue/port"
	relay "github.com/mohammednazmy/VoiceAssist-sub005/internal/pkg/relay/domain"
	repository "github.com/mohammednazmy/VoiceAssist-sub005/internal/pkg/relay/persistence/repository/port"
)

// PersistMessageTaskType is the queue task name for retried message writes.
const PersistMessageTaskType = "relay:persist_message"

// PersistMessageUseCase writes a finalized message to the durable store.
// Store failures are non-fatal to the live session: the message was
// already delivered over the socket, so a failed write is handed to the
// retry queue instead of being surfaced to the client. The store upserts
// by id, which keeps at-least-once delivery duplicate-safe.
type PersistMessageUseCase struct {
	Store  repository.ConversationStore
	Queue  qport.Client
	Logger zerolog.Logger
}

func NewPersistMessageUseCase(store repository.ConversationStore, queue qport.Client, logger zerolog.Logger) *PersistMessageUseCase {
	return &PersistMessageUseCase{Store: store, Queue: queue, Logger: logger}
}

// Execute attempts the write inline and defers to the queue on failure.
// The returned error is non-nil only when both the write and the enqueue
// failed; callers still never propagate it to the client.
func (uc *PersistMessageUseCase) Execute(ctx context.Context, m relay.Message) error {
	// Persistence must survive the session that produced the message: a
	// socket closing right after delivery must not cancel the write.
	ctx = context.WithoutCancel(ctx)
	saveCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := uc.Store.SaveMessage(saveCtx, m)
	if err == nil {
		return nil
	}

	uc.Logger.Warn().
		Err(err).
		Str("message_id", m.ID).
		Str("conversation_id", m.ConversationID).
		Msg("inline persist failed, deferring to retry queue")
	metrics.PersistRetries.Inc()

	if uc.Queue == nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	_, err = uc.Queue.Enqueue(ctx, qport.Task{Type: PersistMessageTaskType, Payload: payload}, qport.EnqueueOption{
		Queue:     "relay",
		MaxRetry:  10,
		UniqueTTL: time.Hour,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return nil
}
