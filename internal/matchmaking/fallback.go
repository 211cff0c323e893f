package matchmaking

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/parlayclash/backend/internal/invalidation"
	"github.com/parlayclash/backend/internal/match"
	"github.com/parlayclash/backend/internal/metrics"
	"github.com/parlayclash/backend/internal/models"
	"github.com/parlayclash/backend/internal/queue"
	"github.com/parlayclash/backend/internal/rank"
)

// Deadline is one armed bot-fallback timer.
type Deadline struct {
	UserID string
	League string
}

// DeadlineStore keeps the armed fallback deadlines. ClaimDue must hand each
// due deadline to at most one caller.
type DeadlineStore interface {
	Arm(ctx context.Context, d Deadline, fireAt time.Time) error
	Cancel(ctx context.Context, userID, league string) error
	ClaimDue(ctx context.Context, now time.Time) ([]Deadline, error)
}

// BotFactory fabricates synthetic opponents and their simulated play.
type BotFactory interface {
	CreateOpponent(ctx context.Context, target models.Rank) (*models.BotIdentity, error)
	ScheduleWagers(botParticipantID, humanUserID, matchID string)
}

// FallbackScheduler arms a fixed deadline per enqueue and, when it fires
// with the user still waiting, dequeues them and opens a bot match. The
// queue claim decides the race against the matchmaker: a failed claim means
// the user was already paired and the fired deadline is a silent no-op.
type FallbackScheduler struct {
	queue     queue.Queue
	deadlines DeadlineStore
	ranks     rank.Directory
	bots      BotFactory
	opener    Opener
	notifier  Notifier
	bus       invalidation.Publisher
	log       *zap.Logger

	wait time.Duration
	poll time.Duration
}

func NewFallbackScheduler(q queue.Queue, deadlines DeadlineStore, ranks rank.Directory, bots BotFactory, opener Opener, notifier Notifier, bus invalidation.Publisher, wait time.Duration, log *zap.Logger) *FallbackScheduler {
	return &FallbackScheduler{
		queue:     q,
		deadlines: deadlines,
		ranks:     ranks,
		bots:      bots,
		opener:    opener,
		notifier:  notifier,
		bus:       bus,
		log:       log.Named("bot_fallback"),
		wait:      wait,
		poll:      time.Second,
	}
}

// Arm schedules the single-shot deadline for a freshly enqueued user.
func (s *FallbackScheduler) Arm(ctx context.Context, userID, league string) error {
	return s.deadlines.Arm(ctx, Deadline{UserID: userID, League: league}, time.Now().Add(s.wait))
}

// Cancel discards a pending deadline. Cancelling one that already fired and
// was consumed is a no-op.
func (s *FallbackScheduler) Cancel(ctx context.Context, userID, league string) error {
	return s.deadlines.Cancel(ctx, userID, league)
}

// Run polls for due deadlines until ctx is cancelled.
func (s *FallbackScheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	s.log.Info("bot fallback scheduler started", zap.Duration("wait", s.wait))
	for {
		select {
		case <-ctx.Done():
			s.log.Info("bot fallback scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.ProcessDue(ctx, time.Now())
		}
	}
}

// ProcessDue fires every deadline due at now.
func (s *FallbackScheduler) ProcessDue(ctx context.Context, now time.Time) {
	due, err := s.deadlines.ClaimDue(ctx, now)
	if err != nil {
		s.log.Error("claim due deadlines failed", zap.Error(err))
		return
	}
	for _, d := range due {
		s.fire(ctx, d)
	}
}

func (s *FallbackScheduler) fire(ctx context.Context, d Deadline) {
	removed, err := s.queue.RemoveIfPresent(ctx, d.UserID, d.League)
	if err != nil {
		s.log.Error("queue claim failed", zap.String("user_id", d.UserID), zap.Error(err))
		return
	}
	if !removed {
		// Matchmaker won the race; nothing to do.
		s.log.Debug("deadline fired after pairing", zap.String("user_id", d.UserID))
		return
	}

	userRank, err := s.ranks.Lookup(ctx, d.UserID)
	if err != nil {
		// Rank directory unreachable: restore the entry and push the
		// deadline out a few seconds rather than committing partial state.
		s.log.Warn("rank lookup failed, restoring queue entry", zap.String("user_id", d.UserID), zap.Error(err))
		s.restore(ctx, d)
		return
	}

	bot, err := s.bots.CreateOpponent(ctx, userRank)
	if err != nil {
		s.log.Error("bot synthesis failed", zap.String("user_id", d.UserID), zap.Error(err))
		s.restore(ctx, d)
		return
	}

	mt, participants, err := s.opener.OpenMatch(ctx, d.League, models.MatchCompetitive,
		match.Entrant{UserID: d.UserID, Rank: userRank},
		match.Entrant{UserID: bot.UserID, Rank: models.Rank{Tier: bot.RankTier, Level: bot.RankLevel, MinPoints: bot.RankPoints}, Bot: true},
	)
	if err != nil {
		s.log.Error("bot match open failed", zap.String("user_id", d.UserID), zap.Error(err))
		s.notifier.MatchmakingFailed(d.UserID)
		return
	}

	var botParticipantID string
	for _, p := range participants {
		if p.Bot {
			botParticipantID = p.ID
		}
	}
	s.bots.ScheduleWagers(botParticipantID, d.UserID, mt.ID)

	metrics.MatchesFormed.WithLabelValues("bot_fallback").Inc()
	s.notifier.MatchFound(d.UserID, mt.ID)
	s.bus.Publish(ctx, "queue:"+d.League)
	s.log.Info("bot match opened",
		zap.String("match_id", mt.ID),
		zap.String("user_id", d.UserID),
		zap.String("bot_id", bot.UserID),
		zap.String("league", d.League))
}

func (s *FallbackScheduler) restore(ctx context.Context, d Deadline) {
	// A deadline fires wait after the enqueue, so backdating by wait puts
	// the restored entry back at its original position in scan order.
	userRankEntry := models.QueueEntry{
		UserID:     d.UserID,
		League:     d.League,
		EnqueuedAt: time.Now().Add(-s.wait),
	}
	if snapRank, err := s.ranks.Lookup(ctx, d.UserID); err == nil {
		userRankEntry.RankTier = snapRank.Tier
		userRankEntry.RankLevel = snapRank.Level
	}
	if _, err := s.queue.Enqueue(ctx, userRankEntry); err != nil {
		s.log.Error("queue restore failed", zap.String("user_id", d.UserID), zap.Error(err))
		return
	}
	if err := s.deadlines.Arm(ctx, d, time.Now().Add(5*time.Second)); err != nil {
		s.log.Error("deadline re-arm failed", zap.String("user_id", d.UserID), zap.Error(err))
	}
}
