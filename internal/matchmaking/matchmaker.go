// Package matchmaking pairs waiting users and, when pairing takes too long,
// falls back to a synthetic opponent. Both actors race over the same
// waiting queue; RemoveIfPresent arbitrates every claim.
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

// Opener opens a match with its two participants in the ledger.
type Opener interface {
	OpenMatch(ctx context.Context, league, matchType string, home, away match.Entrant) (*models.Match, []models.Participant, error)
}

// Notifier fans matchmaking outcomes to connected clients.
type Notifier interface {
	MatchFound(userID, matchID string)
	MatchmakingFailed(userID string)
}

// Canceller discards a user's pending bot-fallback deadline.
type Canceller interface {
	Cancel(ctx context.Context, userID, league string) error
}

// Matchmaker scans league pools and pairs users with identical tier+level.
type Matchmaker struct {
	queue    queue.Queue
	ranks    rank.Directory
	opener   Opener
	notifier Notifier
	fallback Canceller
	bus      invalidation.Publisher
	log      *zap.Logger

	leagues []string
	poll    time.Duration
	kick    chan string
}

func New(q queue.Queue, ranks rank.Directory, opener Opener, notifier Notifier, fallback Canceller, bus invalidation.Publisher, leagues []string, poll time.Duration, log *zap.Logger) *Matchmaker {
	return &Matchmaker{
		queue:    q,
		ranks:    ranks,
		opener:   opener,
		notifier: notifier,
		fallback: fallback,
		bus:      bus,
		log:      log.Named("matchmaker"),
		leagues:  leagues,
		poll:     poll,
		kick:     make(chan string, 64),
	}
}

// Kick asks for an immediate scan of one league, typically after an enqueue.
func (m *Matchmaker) Kick(league string) {
	select {
	case m.kick <- league:
	default:
		// A scan is already queued up; the ticker will cover this one.
	}
}

// Run drives scans until ctx is cancelled: every league on a fixed tick,
// single leagues on demand.
func (m *Matchmaker) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.poll)
	defer ticker.Stop()

	m.log.Info("matchmaker started", zap.Duration("poll", m.poll), zap.Strings("leagues", m.leagues))
	for {
		select {
		case <-ctx.Done():
			m.log.Info("matchmaker stopped")
			return ctx.Err()
		case league := <-m.kick:
			m.ScanLeague(ctx, league)
		case <-ticker.C:
			for _, league := range m.leagues {
				m.ScanLeague(ctx, league)
			}
		}
	}
}

// ScanLeague runs one pairing pass: first-fit by scan order over a
// point-in-time snapshot, oldest entries first. A claim that fails lost the
// race to the bot fallback and is simply skipped.
func (m *Matchmaker) ScanLeague(ctx context.Context, league string) {
	snap, err := m.queue.Snapshot(ctx, league)
	if err != nil {
		m.log.Error("snapshot failed", zap.String("league", league), zap.Error(err))
		return
	}
	if len(snap) < 2 {
		return
	}

	taken := make(map[int64]bool, len(snap))
	for i := 0; i < len(snap); i++ {
		if taken[snap[i].ID] {
			continue
		}
		iClaimed := false
		for j := i + 1; j < len(snap); j++ {
			if taken[snap[j].ID] {
				continue
			}
			if snap[i].RankTier != snap[j].RankTier || snap[i].RankLevel != snap[j].RankLevel {
				continue
			}
			if snap[i].UserID == snap[j].UserID {
				continue
			}

			if !iClaimed {
				ok, err := m.queue.RemoveIfPresent(ctx, snap[i].UserID, league)
				if err != nil {
					m.log.Error("claim failed", zap.String("user_id", snap[i].UserID), zap.Error(err))
					return
				}
				if !ok {
					break // i already claimed elsewhere; next i
				}
				iClaimed = true
			}

			ok, err := m.queue.RemoveIfPresent(ctx, snap[j].UserID, league)
			if err != nil {
				m.log.Error("claim failed", zap.String("user_id", snap[j].UserID), zap.Error(err))
				m.requeue(ctx, snap[i])
				return
			}
			if !ok {
				continue // j lost to the fallback; try another partner for i
			}

			taken[snap[i].ID] = true
			taken[snap[j].ID] = true
			m.openPair(ctx, league, snap[i], snap[j])
			iClaimed = false
			break
		}
		if iClaimed {
			// Claimed i but every candidate partner was gone; put i back.
			m.requeue(ctx, snap[i])
		}
	}
}

func (m *Matchmaker) openPair(ctx context.Context, league string, a, b models.QueueEntry) {
	rankA, err := m.ranks.Lookup(ctx, a.UserID)
	if err == nil {
		var rankB models.Rank
		rankB, err = m.ranks.Lookup(ctx, b.UserID)
		if err == nil {
			m.open(ctx, league, a, b, rankA, rankB)
			return
		}
	}

	// Rank directory unreachable: abort the cycle with no partial state and
	// let the next tick retry the pair.
	m.log.Warn("rank lookup failed, requeueing pair", zap.String("league", league), zap.Error(err))
	m.requeue(ctx, a)
	m.requeue(ctx, b)
}

func (m *Matchmaker) open(ctx context.Context, league string, a, b models.QueueEntry, rankA, rankB models.Rank) {
	mt, _, err := m.opener.OpenMatch(ctx, league, models.MatchCompetitive,
		match.Entrant{UserID: a.UserID, Rank: rankA},
		match.Entrant{UserID: b.UserID, Rank: rankB},
	)
	if err != nil {
		m.log.Error("match open failed", zap.String("league", league), zap.Error(err))
		m.notifier.MatchmakingFailed(a.UserID)
		m.notifier.MatchmakingFailed(b.UserID)
		return
	}

	// Pairing won; the bot-fallback deadlines are dead letters now.
	if err := m.fallback.Cancel(ctx, a.UserID, league); err != nil {
		m.log.Warn("fallback cancel failed", zap.String("user_id", a.UserID), zap.Error(err))
	}
	if err := m.fallback.Cancel(ctx, b.UserID, league); err != nil {
		m.log.Warn("fallback cancel failed", zap.String("user_id", b.UserID), zap.Error(err))
	}

	metrics.MatchesFormed.WithLabelValues("paired").Inc()
	m.notifier.MatchFound(a.UserID, mt.ID)
	m.notifier.MatchFound(b.UserID, mt.ID)
	m.bus.Publish(ctx, "queue:"+league)
	m.log.Info("match opened",
		zap.String("match_id", mt.ID),
		zap.String("league", league),
		zap.String("user_a", a.UserID),
		zap.String("user_b", b.UserID),
		zap.Int("tier", a.RankTier),
		zap.Int("level", a.RankLevel))
}

func (m *Matchmaker) requeue(ctx context.Context, e models.QueueEntry) {
	e.ID = 0
	if _, err := m.queue.Enqueue(ctx, e); err != nil {
		m.log.Error("requeue failed", zap.String("user_id", e.UserID), zap.Error(err))
	}
}
