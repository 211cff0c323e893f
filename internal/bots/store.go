package bots

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/parlayclash/backend/internal/models"
)

// PGStore persists bot identities. The user_ranks row is written alongside
// so the rank directory resolves bots like anyone else.
type PGStore struct {
	db *sqlx.DB
}

func NewPGStore(db *sqlx.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) SaveIdentity(ctx context.Context, b models.BotIdentity) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO bot_identities (user_id, display_name, avatar_id, rank_tier, rank_level, rank_points, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, b.UserID, b.DisplayName, b.AvatarID, b.RankTier, b.RankLevel, b.RankPoints, b.CreatedAt); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO user_ranks (user_id, tier, level, min_points)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO NOTHING
	`, b.UserID, b.RankTier, b.RankLevel, b.RankPoints); err != nil {
		return err
	}

	return tx.Commit()
}

// PGPropositions reads the open picks the stats ingestion keeps current.
type PGPropositions struct {
	db *sqlx.DB
}

func NewPGPropositions(db *sqlx.DB) *PGPropositions {
	return &PGPropositions{db: db}
}

func (s *PGPropositions) Open(ctx context.Context, league string) ([]models.Proposition, error) {
	var rows []struct {
		ID        string `db:"id"`
		League    string `db:"league"`
		SubjectID string `db:"subject_id"`
		Label     string `db:"label"`
		Sides     string `db:"sides"`
	}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, league, subject_id, label, sides FROM propositions WHERE league = $1
	`, league)
	if err != nil {
		return nil, err
	}

	props := make([]models.Proposition, 0, len(rows))
	for _, r := range rows {
		props = append(props, models.Proposition{
			ID:        r.ID,
			League:    r.League,
			SubjectID: r.SubjectID,
			Label:     r.Label,
			Sides:     strings.Split(r.Sides, ","),
		})
	}
	return props, nil
}
