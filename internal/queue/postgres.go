package queue

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/parlayclash/backend/internal/models"
)

// PG is the Postgres-backed queue. Atomicity of RemoveIfPresent comes from
// a single DELETE statement claiming the row, the same transactional-claim
// idiom used for invite codes in ClaimInvite.
type PG struct {
	db *sqlx.DB
}

func NewPG(db *sqlx.DB) *PG {
	return &PG{db: db}
}

func (q *PG) Enqueue(ctx context.Context, e models.QueueEntry) (int64, error) {
	var invite sql.NullString
	if e.InviteCode != "" {
		invite = sql.NullString{String: e.InviteCode, Valid: true}
	}
	// A restored entry keeps its original enqueue time so it resumes its
	// place in scan order.
	var at sql.NullTime
	if !e.EnqueuedAt.IsZero() {
		at = sql.NullTime{Time: e.EnqueuedAt, Valid: true}
	}
	var id int64
	err := q.db.QueryRowxContext(ctx, `
		INSERT INTO waiting_queue (user_id, league, rank_tier, rank_level, private, invite_code, enqueued_at)
		VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, NOW()))
		RETURNING id
	`, e.UserID, e.League, e.RankTier, e.RankLevel, e.Private, invite, at).Scan(&id)
	return id, err
}

func (q *PG) RemoveIfPresent(ctx context.Context, userID, league string) (bool, error) {
	// Single statement claim; the ctid subquery limits the delete to one row
	// and SKIP LOCKED keeps racing claimants from blocking each other.
	res, err := q.db.ExecContext(ctx, `
		DELETE FROM waiting_queue
		WHERE ctid IN (
			SELECT ctid FROM waiting_queue
			WHERE user_id = $1 AND league = $2 AND private = FALSE
			ORDER BY enqueued_at
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
	`, userID, league)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (q *PG) Snapshot(ctx context.Context, league string) ([]models.QueueEntry, error) {
	var entries []models.QueueEntry
	err := q.db.SelectContext(ctx, &entries, `
		SELECT id, user_id, league, rank_tier, rank_level, private,
		       COALESCE(invite_code, '') AS invite_code, enqueued_at
		FROM waiting_queue
		WHERE league = $1 AND private = FALSE
		ORDER BY enqueued_at, id
	`, league)
	return entries, err
}

func (q *PG) PurgeInvalid(ctx context.Context, league string, maxAgeMinutes int) (int64, error) {
	res, err := q.db.ExecContext(ctx, `
		DELETE FROM waiting_queue
		WHERE league = $1
		  AND (user_id = '' OR enqueued_at < NOW() - ($2 * INTERVAL '1 minute'))
	`, league, maxAgeMinutes)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (q *PG) ClaimInvite(ctx context.Context, code string) (*models.QueueEntry, error) {
	var e models.QueueEntry
	err := q.db.QueryRowxContext(ctx, `
		DELETE FROM waiting_queue
		WHERE ctid IN (
			SELECT ctid FROM waiting_queue
			WHERE invite_code = $1 AND private = TRUE
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING id, user_id, league, rank_tier, rank_level, private,
		          COALESCE(invite_code, '') AS invite_code, enqueued_at
	`, code).StructScan(&e)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (q *PG) Depths(ctx context.Context) (map[string]int, error) {
	var rows []struct {
		League string `db:"league"`
		N      int    `db:"n"`
	}
	err := q.db.SelectContext(ctx, &rows, `
		SELECT league, COUNT(*) AS n FROM waiting_queue WHERE private = FALSE GROUP BY league
	`)
	if err != nil {
		return nil, err
	}
	depths := make(map[string]int, len(rows))
	for _, r := range rows {
		depths[r.League] = r.N
	}
	return depths, nil
}
