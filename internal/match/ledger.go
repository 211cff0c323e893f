// Package match owns match and participant records. Every balance mutation
// in the system funnels through the Ledger, which pairs each mutation with
// a balance_ledger audit row inside the same transaction.
package match

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/parlayclash/backend/internal/models"
)

var (
	ErrNotFound            = errors.New("match: not found")
	ErrInsufficientBalance = errors.New("match: insufficient balance")
)

// Entrant is one side of a match being opened.
type Entrant struct {
	UserID string
	Rank   models.Rank
	Bot    bool
}

// Ledger is the Postgres store for matches, participants, wagers and legs.
type Ledger struct {
	db         *sqlx.DB
	balanceMin float64
	balanceMax float64
}

func NewLedger(db *sqlx.DB, balanceMin, balanceMax float64) *Ledger {
	return &Ledger{db: db, balanceMin: balanceMin, balanceMax: balanceMax}
}

// OpenMatch creates a match and both participant rows in one transaction.
// Both participants receive the same starting balance, drawn uniformly from
// the configured band; the draw is independent per match. Each entrant's
// current rank is snapshotted onto their participant row.
func (l *Ledger) OpenMatch(ctx context.Context, league, matchType string, home, away Entrant) (*models.Match, []models.Participant, error) {
	tx, err := l.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback()

	m := &models.Match{
		ID:        uuid.New().String(),
		League:    league,
		Type:      matchType,
		CreatedAt: time.Now(),
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO matches (id, league, match_type, resolved, created_at)
		VALUES ($1, $2, $3, FALSE, $4)
	`, m.ID, m.League, m.Type, m.CreatedAt); err != nil {
		return nil, nil, fmt.Errorf("insert match: %w", err)
	}

	starting := l.balanceMin + rand.Float64()*(l.balanceMax-l.balanceMin)
	participants := make([]models.Participant, 0, 2)
	for _, e := range []Entrant{home, away} {
		p := models.Participant{
			ID:              uuid.New().String(),
			MatchID:         m.ID,
			UserID:          e.UserID,
			Bot:             e.Bot,
			StartingBalance: starting,
			Balance:         starting,
			RankTier:        e.Rank.Tier,
			RankLevel:       e.Rank.Level,
			Status:          models.ParticipantActive,
			CreatedAt:       time.Now(),
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO participants (id, match_id, user_id, bot, starting_balance, balance, rank_tier, rank_level, status, created_at)
			VALUES ($1, $2, $3, $4, $5, $5, $6, $7, $8, $9)
		`, p.ID, p.MatchID, p.UserID, p.Bot, starting, p.RankTier, p.RankLevel, p.Status, p.CreatedAt); err != nil {
			return nil, nil, fmt.Errorf("insert participant: %w", err)
		}
		participants = append(participants, p)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}
	return m, participants, nil
}

func (l *Ledger) Match(ctx context.Context, id string) (*models.Match, error) {
	var m models.Match
	err := l.db.GetContext(ctx, &m, `
		SELECT id, league, match_type, resolved, created_at FROM matches WHERE id = $1
	`, id)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (l *Ledger) Participant(ctx context.Context, id string) (*models.Participant, error) {
	var p models.Participant
	err := l.db.GetContext(ctx, &p, `
		SELECT id, match_id, user_id, bot, starting_balance, balance, rank_tier, rank_level, status, created_at
		FROM participants WHERE id = $1
	`, id)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (l *Ledger) Participants(ctx context.Context, matchID string) ([]models.Participant, error) {
	var ps []models.Participant
	err := l.db.SelectContext(ctx, &ps, `
		SELECT id, match_id, user_id, bot, starting_balance, balance, rank_tier, rank_level, status, created_at
		FROM participants WHERE match_id = $1 ORDER BY created_at, id
	`, matchID)
	return ps, err
}

// PlaceWager debits the stake and inserts the wager with its legs in one
// transaction. The debit is a single guarded UPDATE, so a racing payout
// credit can never be lost and an overdraft can never be committed.
func (l *Ledger) PlaceWager(ctx context.Context, w *models.Wager, legs []models.Leg) error {
	tx, err := l.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE participants
		SET balance = balance - $1
		WHERE id = $2 AND status = $3 AND balance >= $1
	`, w.Stake, w.ParticipantID, models.ParticipantActive)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrInsufficientBalance
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO wagers (id, participant_id, stake, wager_type, resolved, profit, created_at)
		VALUES ($1, $2, $3, $4, FALSE, 0, $5)
	`, w.ID, w.ParticipantID, w.Stake, w.Type, w.CreatedAt); err != nil {
		return fmt.Errorf("insert wager: %w", err)
	}

	for _, leg := range legs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO legs (id, wager_id, proposition_id, subject_id, choice, status)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, leg.ID, leg.WagerID, leg.PropositionID, leg.SubjectID, leg.Choice, models.LegPending); err != nil {
			return fmt.Errorf("insert leg: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO balance_ledger (participant_id, entry_type, amount, wager_id)
		VALUES ($1, 'stake_debit', $2, $3)
	`, w.ParticipantID, w.Stake, w.ID); err != nil {
		return err
	}

	return tx.Commit()
}

func (l *Ledger) Wager(ctx context.Context, wagerID string) (*models.Wager, []models.Leg, error) {
	var w models.Wager
	err := l.db.GetContext(ctx, &w, `
		SELECT id, participant_id, stake, wager_type, resolved, profit, created_at, resolved_at
		FROM wagers WHERE id = $1
	`, wagerID)
	if err == sql.ErrNoRows {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, err
	}

	var legs []models.Leg
	if err := l.db.SelectContext(ctx, &legs, `
		SELECT id, wager_id, proposition_id, subject_id, choice, status
		FROM legs WHERE wager_id = $1 ORDER BY id
	`, wagerID); err != nil {
		return nil, nil, err
	}
	return &w, legs, nil
}

// SettleWager flips the wager to resolved and credits the payout in one
// transaction. The resolved=FALSE guard sits in the same statement batch as
// the credit, so a second settlement of the same wager is a no-op and can
// never double-pay. Returns false when the wager was already settled.
func (l *Ledger) SettleWager(ctx context.Context, wagerID, participantID string, payout, profit float64) (bool, error) {
	tx, err := l.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE wagers
		SET resolved = TRUE, profit = $1, resolved_at = NOW()
		WHERE id = $2 AND resolved = FALSE
	`, profit, wagerID)
	if err != nil {
		return false, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, nil
	}

	if payout > 0 {
		if _, err := tx.ExecContext(ctx, `
			UPDATE participants SET balance = balance + $1 WHERE id = $2
		`, payout, participantID); err != nil {
			return false, err
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO balance_ledger (participant_id, entry_type, amount, wager_id)
		VALUES ($1, 'payout_credit', $2, $3)
	`, participantID, payout, wagerID); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// ApplyLegStatus moves a pending leg to a terminal status. Terminal legs
// are never rewritten.
func (l *Ledger) ApplyLegStatus(ctx context.Context, legID, status string) (bool, error) {
	res, err := l.db.ExecContext(ctx, `
		UPDATE legs SET status = $1 WHERE id = $2 AND status = $3
	`, status, legID, models.LegPending)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ResolveMatch flips resolved exactly once; a resolved match never goes
// back. Participants are closed out in the same transaction.
func (l *Ledger) ResolveMatch(ctx context.Context, matchID string) (bool, error) {
	tx, err := l.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE matches SET resolved = TRUE WHERE id = $1 AND resolved = FALSE
	`, matchID)
	if err != nil {
		return false, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var exists bool
		if err := tx.GetContext(ctx, &exists, `SELECT TRUE FROM matches WHERE id = $1`, matchID); err != nil {
			if err == sql.ErrNoRows {
				return false, ErrNotFound
			}
			return false, err
		}
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE participants SET status = $1 WHERE match_id = $2
	`, models.ParticipantResolved, matchID); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// TotalStaked sums the stakes of every wager the participant has placed.
func (l *Ledger) TotalStaked(ctx context.Context, participantID string) (float64, error) {
	var total float64
	err := l.db.GetContext(ctx, &total, `
		SELECT COALESCE(SUM(stake), 0) FROM wagers WHERE participant_id = $1
	`, participantID)
	return total, err
}

// PickedPropositionIDs lists every proposition the participant has already
// used across their wagers.
func (l *Ledger) PickedPropositionIDs(ctx context.Context, participantID string) ([]string, error) {
	var ids []string
	err := l.db.SelectContext(ctx, &ids, `
		SELECT DISTINCT lg.proposition_id
		FROM legs lg JOIN wagers w ON w.id = lg.wager_id
		WHERE w.participant_id = $1
	`, participantID)
	return ids, err
}
