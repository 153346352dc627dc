package adapter

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"

	relay "github.com/mohammednazmy/VoiceAssist-sub005/internal/pkg/relay/domain"
)

type PgConversationStore struct {
	pool *pgxpool.Pool
}

func NewPgConversationStore(pool *pgxpool.Pool) *PgConversationStore {
	return &PgConversationStore{pool: pool}
}

func (s *PgConversationStore) Authorize(ctx context.Context, userID, conversationID string) (bool, error) {
	if s == nil || s.pool == nil {
		return false, errors.New("PgConversationStore: nil pool")
	}
	var owned bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM relay.conversation
			WHERE id = $1::uuid AND user_id = $2::uuid
		)
	`, conversationID, userID).Scan(&owned)
	return owned, err
}

func (s *PgConversationStore) RecentHistory(ctx context.Context, conversationID string, limit int) ([]relay.Message, error) {
	if s == nil || s.pool == nil {
		return nil, errors.New("PgConversationStore: nil pool")
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, conversation_id::text, role, content, citations, attachments, created_at
		FROM (
			SELECT id, conversation_id, role, content, citations, attachments, created_at
			FROM relay.message
			WHERE conversation_id = $1::uuid
			ORDER BY created_at DESC
			LIMIT $2
		) newest
		ORDER BY created_at ASC
	`, conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []relay.Message
	for rows.Next() {
		var (
			msg       relay.Message
			citations []byte
		)
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Role, &msg.Content, &citations, &msg.Attachments, &msg.CreatedAt); err != nil {
			return nil, err
		}
		if len(citations) > 0 {
			if err := json.Unmarshal(citations, &msg.Citations); err != nil {
				return nil, err
			}
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

// SaveMessage upserts by message id so at-least-once delivery from the
// retry queue never produces duplicate rows.
func (s *PgConversationStore) SaveMessage(ctx context.Context, m relay.Message) error {
	if s == nil || s.pool == nil {
		return errors.New("PgConversationStore: nil pool")
	}
	var citations []byte
	if len(m.Citations) > 0 {
		var err error
		citations, err = json.Marshal(m.Citations)
		if err != nil {
			return err
		}
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO relay.message (id, conversation_id, role, content, citations, attachments, created_at)
		VALUES ($1, $2::uuid, $3, $4, COALESCE($5::jsonb, NULL), $6, $7)
		ON CONFLICT (id) DO NOTHING
	`, m.ID, m.ConversationID, m.Role, m.Content, citations, m.Attachments, m.CreatedAt)
	return err
}
