package task

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	qport "github.com/mohammednazmy/VoiceAssist-sub005/internal/infrastructure/queue/port"
	"github.com/mohammednazmy/VoiceAssist-sub005/internal/pkg/relay/application/usecase"
	relay "github.com/mohammednazmy/VoiceAssist-sub005/internal/pkg/relay/domain"
	repoAdapter "github.com/mohammednazmy/VoiceAssist-sub005/internal/pkg/relay/persistence/repository/adapter"
)

// RegisterPersistMessageTask binds the persist-retry handler to the
// provided server. The store upserts by id, so redelivery is harmless.
func RegisterPersistMessageTask(srv qport.Server, pool *pgxpool.Pool) {
	srv.Register(usecase.PersistMessageTaskType, func(ctx context.Context, t qport.Task) error {
		var m relay.Message
		if err := json.Unmarshal(t.Payload, &m); err != nil {
			// malformed payload: retrying will not help
			return err
		}

		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		store := repoAdapter.NewPgConversationStore(pool)
		return store.SaveMessage(ctx, m)
	})
}
