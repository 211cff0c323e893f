package chat

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/parlayclash/backend/internal/models"
)

type PGStore struct {
	db *sqlx.DB
}

func NewPGStore(db *sqlx.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) SaveMessage(ctx context.Context, msg *models.ChatMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_messages (id, match_id, participant_id, content, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, msg.ID, msg.MatchID, msg.ParticipantID, msg.Content, msg.CreatedAt)
	return err
}

// History returns the most recent messages for a match, oldest first.
func (s *PGStore) History(ctx context.Context, matchID string, limit int) ([]models.ChatMessage, error) {
	var msgs []models.ChatMessage
	err := s.db.SelectContext(ctx, &msgs, `
		SELECT * FROM (
			SELECT id, match_id, participant_id, content, created_at
			FROM chat_messages
			WHERE match_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		) recent ORDER BY created_at ASC
	`, matchID, limit)
	return msgs, err
}
