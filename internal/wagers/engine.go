// Package wagers validates new parlays and grades resolved ones. It is the
// only writer of participant balances; both human clients and synthetic
// opponents come through the same contract.
package wagers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/parlayclash/backend/internal/invalidation"
	"github.com/parlayclash/backend/internal/match"
	"github.com/parlayclash/backend/internal/metrics"
	"github.com/parlayclash/backend/internal/models"
)

// Validation and grading failures reported to callers.
var (
	ErrInvalidStake        = errors.New("wagers: stake must be positive")
	ErrInsufficientBalance = errors.New("wagers: stake exceeds balance")
	ErrInvalidLegCount     = errors.New("wagers: leg count out of range for payout mode")
	ErrInvalidType         = errors.New("wagers: unknown payout mode")
	ErrDuplicateSubject    = errors.New("wagers: two legs reference the same subject")
	ErrNotFound            = errors.New("wagers: wager not found")
	ErrParticipantInactive = errors.New("wagers: participant is not active in this match")
	ErrNotAllLegsResolved  = errors.New("wagers: legs still pending")
)

// Limits bound wager shape per payout mode.
type Limits struct {
	MaxLegs              int
	MinLegsAllOrNothing  int
	MinLegsPartialCredit int
}

// DefaultLimits matches the product rules: at most 6 legs, at least 2 for
// all-or-nothing, at least 3 for partial credit.
func DefaultLimits() Limits {
	return Limits{MaxLegs: 6, MinLegsAllOrNothing: 2, MinLegsPartialCredit: 3}
}

// LegInput is one requested pick in a placement.
type LegInput struct {
	PropositionID string `json:"proposition_id"`
	SubjectID     string `json:"subject_id"`
	Choice        string `json:"choice"`
}

// Store is the slice of the match ledger the engine writes through.
type Store interface {
	Participant(ctx context.Context, id string) (*models.Participant, error)
	PlaceWager(ctx context.Context, w *models.Wager, legs []models.Leg) error
	Wager(ctx context.Context, wagerID string) (*models.Wager, []models.Leg, error)
	SettleWager(ctx context.Context, wagerID, participantID string, payout, profit float64) (bool, error)
}

// Engine validates placements and grades settlements.
type Engine struct {
	store  Store
	bus    invalidation.Publisher
	limits Limits
	log    *zap.Logger
}

func NewEngine(store Store, bus invalidation.Publisher, limits Limits, log *zap.Logger) *Engine {
	return &Engine{store: store, bus: bus, limits: limits, log: log.Named("settlement")}
}

// Place validates and persists a new wager, debiting the stake. Validation
// failures reject synchronously with nothing mutated.
func (e *Engine) Place(ctx context.Context, participantID, matchID string, stake float64, wagerType string, legs []LegInput) (string, error) {
	if stake <= 0 {
		metrics.WagersRejected.WithLabelValues("invalid_stake").Inc()
		return "", ErrInvalidStake
	}
	if wagerType != models.WagerAllOrNothing && wagerType != models.WagerPartialCredit {
		metrics.WagersRejected.WithLabelValues("invalid_type").Inc()
		return "", ErrInvalidType
	}
	if err := e.checkLegCount(wagerType, len(legs)); err != nil {
		metrics.WagersRejected.WithLabelValues("invalid_leg_count").Inc()
		return "", err
	}
	seen := make(map[string]struct{}, len(legs))
	for _, leg := range legs {
		if _, dup := seen[leg.SubjectID]; dup {
			metrics.WagersRejected.WithLabelValues("duplicate_subject").Inc()
			return "", fmt.Errorf("%w: %s", ErrDuplicateSubject, leg.SubjectID)
		}
		seen[leg.SubjectID] = struct{}{}
	}

	p, err := e.store.Participant(ctx, participantID)
	if err != nil {
		return "", err
	}
	if p.MatchID != matchID || p.Status != models.ParticipantActive {
		return "", ErrParticipantInactive
	}
	if stake > p.Balance {
		metrics.WagersRejected.WithLabelValues("insufficient_balance").Inc()
		return "", ErrInsufficientBalance
	}

	w := &models.Wager{
		ID:            uuid.New().String(),
		ParticipantID: participantID,
		Stake:         stake,
		Type:          wagerType,
		CreatedAt:     time.Now(),
	}
	rows := make([]models.Leg, 0, len(legs))
	for _, leg := range legs {
		rows = append(rows, models.Leg{
			ID:            uuid.New().String(),
			WagerID:       w.ID,
			PropositionID: leg.PropositionID,
			SubjectID:     leg.SubjectID,
			Choice:        leg.Choice,
			Status:        models.LegPending,
		})
	}

	if err := e.store.PlaceWager(ctx, w, rows); err != nil {
		// The debit guard can still lose to a racing placement.
		if errors.Is(err, match.ErrInsufficientBalance) {
			metrics.WagersRejected.WithLabelValues("insufficient_balance").Inc()
			return "", ErrInsufficientBalance
		}
		return "", err
	}

	metrics.WagersPlaced.WithLabelValues(wagerType).Inc()
	e.bus.Publish(ctx, "participant:"+participantID)
	e.log.Info("wager placed",
		zap.String("wager_id", w.ID),
		zap.String("participant_id", participantID),
		zap.Float64("stake", stake),
		zap.String("mode", wagerType),
		zap.Int("legs", len(legs)))
	return w.ID, nil
}

func (e *Engine) checkLegCount(wagerType string, n int) error {
	if n > e.limits.MaxLegs {
		return ErrInvalidLegCount
	}
	switch wagerType {
	case models.WagerAllOrNothing:
		if n < e.limits.MinLegsAllOrNothing {
			return ErrInvalidLegCount
		}
	case models.WagerPartialCredit:
		if n < e.limits.MinLegsPartialCredit {
			return ErrInvalidLegCount
		}
	}
	return nil
}

// Grade settles a wager whose legs have all reached a terminal status.
// Settlement happens at most once: the store refuses a second flip of the
// resolved flag, so re-grading an already-settled wager is a no-op.
func (e *Engine) Grade(ctx context.Context, wagerID string) error {
	w, legs, err := e.store.Wager(ctx, wagerID)
	if err != nil {
		return err
	}
	if w.Resolved {
		return nil
	}

	effective, hits := 0, 0
	for _, leg := range legs {
		switch leg.Status {
		case models.LegPending:
			return fmt.Errorf("%w: leg %s", ErrNotAllLegsResolved, leg.ID)
		case models.LegVoid:
			// excluded from grading
		case models.LegHit:
			effective++
			hits++
		case models.LegMissed:
			effective++
		}
	}

	payout := computePayout(w.Type, w.Stake, effective, hits)
	profit := payout - w.Stake

	applied, err := e.store.SettleWager(ctx, wagerID, w.ParticipantID, payout, profit)
	if err != nil {
		return err
	}
	if !applied {
		e.log.Debug("wager already settled", zap.String("wager_id", wagerID))
		return nil
	}

	metrics.WagersGraded.WithLabelValues(w.Type).Inc()
	e.bus.Publish(ctx, "participant:"+w.ParticipantID)
	e.log.Info("wager graded",
		zap.String("wager_id", wagerID),
		zap.Int("effective_picks", effective),
		zap.Int("hits", hits),
		zap.Float64("payout", payout),
		zap.Float64("profit", profit))
	return nil
}

// computePayout is the grading function proper: a pure function of payout
// mode, stake, effective pick count and hit count.
func computePayout(wagerType string, stake float64, effective, hits int) float64 {
	// Every leg void: the wager never happened, refund the stake.
	if effective == 0 {
		return stake
	}

	switch wagerType {
	case models.WagerAllOrNothing:
		if hits == effective {
			return stake * PerfectMultiplier(effective)
		}
		return 0
	case models.WagerPartialCredit:
		return stake * FlexMultiplier(effective, hits)
	}
	return 0
}
