// Package rank exposes the skill directory this subsystem reads pairing
// brackets from. The directory itself is owned by the progression service;
// only the lookup is consumed here.
package rank

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/parlayclash/backend/internal/models"
)

var ErrUnknownUser = errors.New("rank: unknown user")

// Directory resolves a user's current skill bracket.
type Directory interface {
	Lookup(ctx context.Context, userID string) (models.Rank, error)
}

// PG reads ranks from the user_ranks table the progression service keeps
// up to date.
type PG struct {
	db *sqlx.DB
}

func NewPG(db *sqlx.DB) *PG {
	return &PG{db: db}
}

func (d *PG) Lookup(ctx context.Context, userID string) (models.Rank, error) {
	var r models.Rank
	err := d.db.GetContext(ctx, &r, `
		SELECT tier, level, min_points FROM user_ranks WHERE user_id = $1
	`, userID)
	if err == sql.ErrNoRows {
		return models.Rank{}, ErrUnknownUser
	}
	if err != nil {
		return models.Rank{}, err
	}
	return r, nil
}
