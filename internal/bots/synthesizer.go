// Package bots manufactures synthetic opponents. A bot is an ordinary
// client from the settlement engine's point of view: it submits wagers
// through the same validation path and gets no privileged access.
package bots

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/parlayclash/backend/internal/metrics"
	"github.com/parlayclash/backend/internal/models"
	"github.com/parlayclash/backend/internal/wagers"
)

var displayNames = []string{
	"LockOfTheDay", "FadeTheChalk", "ParlayPete", "SweatEquity", "BadBeatBobby",
	"CoverHunter", "TheMiddleMan", "JuiceRunner", "PropPhantom", "LateHammer",
	"SharpSquare", "TeaserTony", "OverOwl", "UnderDogma", "CashOutKing",
}

var avatars = []string{
	"av_visor", "av_foam_finger", "av_headset", "av_jersey", "av_rally_towel",
	"av_scorecard", "av_hotdog", "av_ref_whistle",
}

// Store persists fabricated identities.
type Store interface {
	SaveIdentity(ctx context.Context, b models.BotIdentity) error
}

// PropositionSource lists the open picks for a league.
type PropositionSource interface {
	Open(ctx context.Context, league string) ([]models.Proposition, error)
}

// Ledger is the read slice of the match ledger the bot plans against.
type Ledger interface {
	Participant(ctx context.Context, id string) (*models.Participant, error)
	Match(ctx context.Context, id string) (*models.Match, error)
	TotalStaked(ctx context.Context, participantID string) (float64, error)
	PickedPropositionIDs(ctx context.Context, participantID string) ([]string, error)
}

// Placer is the wager creation contract, identical to the one humans use.
type Placer interface {
	Place(ctx context.Context, participantID, matchID string, stake float64, wagerType string, legs []wagers.LegInput) (string, error)
}

// OpponentNotifier tells the human counterpart about bot activity.
type OpponentNotifier interface {
	OpponentWagerPlaced(userID, matchID string, stake float64, wagerType string, legCount int)
}

// Tunables bound the simulated play.
type Tunables struct {
	MinStakedFraction float64 // of starting balance the bot tries to put in play
	MinBalance        float64 // below this the bot stops wagering
	MinPropositions   int     // minimum open picks required to bother
	RankPointsJitter  int     // max offset above the target rank floor
}

// Synthesizer fabricates identities and drives their simulated wagers.
type Synthesizer struct {
	store    Store
	props    PropositionSource
	ledger   Ledger
	placer   Placer
	notifier OpponentNotifier
	tun      Tunables
	log      *zap.Logger
}

func NewSynthesizer(store Store, props PropositionSource, ledger Ledger, placer Placer, notifier OpponentNotifier, tun Tunables, log *zap.Logger) *Synthesizer {
	return &Synthesizer{
		store:    store,
		props:    props,
		ledger:   ledger,
		placer:   placer,
		notifier: notifier,
		tun:      tun,
		log:      log.Named("bots"),
	}
}

// CreateOpponent fabricates a fresh identity near the target rank. Every
// call creates a new identity; nothing is reused.
func (s *Synthesizer) CreateOpponent(ctx context.Context, target models.Rank) (*models.BotIdentity, error) {
	jitter := 0
	if s.tun.RankPointsJitter > 0 {
		jitter = rand.IntN(s.tun.RankPointsJitter)
	}
	b := models.BotIdentity{
		UserID:      "bot_" + uuid.New().String(),
		DisplayName: displayNames[rand.IntN(len(displayNames))],
		AvatarID:    avatars[rand.IntN(len(avatars))],
		RankTier:    target.Tier,
		RankLevel:   target.Level,
		RankPoints:  target.MinPoints + jitter,
		CreatedAt:   time.Now(),
	}
	if err := s.store.SaveIdentity(ctx, b); err != nil {
		return nil, err
	}
	return &b, nil
}

// ScheduleWagers arms the staged simulated submissions for one bot match:
// an early wager, a mid-match wager, and occasionally a late one. The
// timers are independent; one failed attempt never cancels the others.
func (s *Synthesizer) ScheduleWagers(botParticipantID, humanUserID, matchID string) {
	delays := []time.Duration{
		time.Duration(30+rand.IntN(61)) * time.Second,
		time.Duration(180+rand.IntN(301)) * time.Second,
	}
	if rand.Float64() < 0.35 {
		delays = append(delays, time.Duration(600+rand.IntN(301))*time.Second)
	}

	for _, d := range delays {
		time.AfterFunc(d, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			s.AttemptWager(ctx, botParticipantID, humanUserID, matchID)
		})
	}
	s.log.Info("simulated wagers scheduled",
		zap.String("bot_participant_id", botParticipantID),
		zap.String("match_id", matchID),
		zap.Int("attempts", len(delays)))
}

// AttemptWager runs one simulated submission. Every failure is swallowed:
// a bot that can't bet must never disturb the human's match.
func (s *Synthesizer) AttemptWager(ctx context.Context, botParticipantID, humanUserID, matchID string) {
	metrics.BotWagersAttempted.Inc()

	p, err := s.ledger.Participant(ctx, botParticipantID)
	if err != nil || p.Status != models.ParticipantActive {
		s.log.Debug("bot participant no longer active", zap.String("participant_id", botParticipantID), zap.Error(err))
		return
	}
	m, err := s.ledger.Match(ctx, p.MatchID)
	if err != nil || m.Resolved {
		return
	}

	available, err := s.availablePropositions(ctx, p.ID, m.League)
	if err != nil {
		s.log.Warn("proposition load failed", zap.String("match_id", matchID), zap.Error(err))
		return
	}
	if p.Balance < s.tun.MinBalance || len(available) < s.tun.MinPropositions {
		return
	}

	wagerType := models.WagerAllOrNothing
	if rand.IntN(2) == 1 {
		wagerType = models.WagerPartialCredit
	}
	count := pickCount(wagerType, len(available))
	if count == 0 {
		return
	}

	stake, err := s.pickStake(ctx, p)
	if err != nil {
		s.log.Warn("stake sizing failed", zap.Error(err))
		return
	}

	legs := buildLegs(available, count)
	if len(legs) < count {
		return
	}

	if _, err := s.placer.Place(ctx, p.ID, matchID, stake, wagerType, legs); err != nil {
		s.log.Warn("simulated wager rejected",
			zap.String("participant_id", p.ID),
			zap.Float64("stake", stake),
			zap.Error(err))
		return
	}

	s.notifier.OpponentWagerPlaced(humanUserID, matchID, stake, wagerType, len(legs))
	s.log.Info("simulated wager placed",
		zap.String("participant_id", p.ID),
		zap.String("mode", wagerType),
		zap.Float64("stake", stake),
		zap.Int("legs", len(legs)))
}

func (s *Synthesizer) availablePropositions(ctx context.Context, participantID, league string) ([]models.Proposition, error) {
	open, err := s.props.Open(ctx, league)
	if err != nil {
		return nil, err
	}
	picked, err := s.ledger.PickedPropositionIDs(ctx, participantID)
	if err != nil {
		return nil, err
	}
	used := make(map[string]struct{}, len(picked))
	for _, id := range picked {
		used[id] = struct{}{}
	}
	avail := make([]models.Proposition, 0, len(open))
	for _, pr := range open {
		if _, ok := used[pr.ID]; !ok {
			avail = append(avail, pr)
		}
	}
	return avail, nil
}

// pickStake sizes the stake toward the minimum total-staked fraction first,
// then settles into a fraction of the current balance.
func (s *Synthesizer) pickStake(ctx context.Context, p *models.Participant) (float64, error) {
	staked, err := s.ledger.TotalStaked(ctx, p.ID)
	if err != nil {
		return 0, err
	}

	var stake float64
	target := p.StartingBalance * s.tun.MinStakedFraction
	if staked < target {
		gap := target - staked
		switch roll := rand.Float64(); {
		case roll < 0.5:
			stake = gap * 0.25
		case roll < 0.85:
			stake = gap * 0.5
		default:
			stake = gap
		}
	} else {
		stake = p.Balance * (0.10 + rand.Float64()*0.15)
	}

	if stake > p.Balance {
		stake = p.Balance
	}
	if stake < 1 {
		stake = 1
	}
	return float64(int(stake)), nil
}

// pickCount chooses the leg count: all-or-nothing tickets stay short,
// partial-credit tickets run long. Returns 0 when too few picks exist.
func pickCount(wagerType string, available int) int {
	max := available
	if max > 6 {
		max = 6
	}
	switch wagerType {
	case models.WagerAllOrNothing:
		if max < 2 {
			return 0
		}
		// 2 and 3 legs dominate
		weights := []int{2, 2, 3, 3, 3, 4, 5, 6}
		return clampCount(weights[rand.IntN(len(weights))], 2, max)
	case models.WagerPartialCredit:
		if max < 3 {
			return 0
		}
		weights := []int{3, 4, 4, 5, 5, 5, 6, 6}
		return clampCount(weights[rand.IntN(len(weights))], 3, max)
	}
	return 0
}

func clampCount(n, min, max int) int {
	if n < min {
		return min
	}
	if n > max {
		return max
	}
	return n
}

// buildLegs draws count propositions without repetition, skipping subjects
// already used, choosing a side uniformly (or the only side offered).
func buildLegs(available []models.Proposition, count int) []wagers.LegInput {
	shuffled := append([]models.Proposition(nil), available...)
	rand.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	legs := make([]wagers.LegInput, 0, count)
	subjects := make(map[string]struct{}, count)
	for _, pr := range shuffled {
		if len(legs) == count {
			break
		}
		if _, dup := subjects[pr.SubjectID]; dup {
			continue
		}
		if len(pr.Sides) == 0 {
			continue
		}
		side := pr.Sides[0]
		if len(pr.Sides) > 1 {
			side = pr.Sides[rand.IntN(len(pr.Sides))]
		}
		subjects[pr.SubjectID] = struct{}{}
		legs = append(legs, wagers.LegInput{
			PropositionID: pr.ID,
			SubjectID:     pr.SubjectID,
			Choice:        side,
		})
	}
	return legs
}
