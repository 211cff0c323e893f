package matchmaking

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/parlayclash/backend/internal/invalidation"
	"github.com/parlayclash/backend/internal/match"
	"github.com/parlayclash/backend/internal/metrics"
	"github.com/parlayclash/backend/internal/models"
	"github.com/parlayclash/backend/internal/queue"
	"github.com/parlayclash/backend/internal/rank"
)

var (
	ErrInviteNotFound = errors.New("matchmaking: invite code not found")
	ErrSelfJoin       = errors.New("matchmaking: cannot join your own invite")
)

// FriendlyService opens invite-code matches between friends. Friendly
// matches skip rank equality and never arm the bot fallback.
type FriendlyService struct {
	queue    queue.Queue
	ranks    rank.Directory
	opener   Opener
	notifier Notifier
	bus      invalidation.Publisher
	log      *zap.Logger
}

func NewFriendlyService(q queue.Queue, ranks rank.Directory, opener Opener, notifier Notifier, bus invalidation.Publisher, log *zap.Logger) *FriendlyService {
	return &FriendlyService{queue: q, ranks: ranks, opener: opener, notifier: notifier, bus: bus, log: log.Named("friendly")}
}

// CreateInvite parks the host in a private queue entry and returns the code
// a friend joins with.
func (f *FriendlyService) CreateInvite(ctx context.Context, userID, league string) (string, error) {
	hostRank, err := f.ranks.Lookup(ctx, userID)
	if err != nil {
		return "", err
	}

	code := newInviteCode()
	_, err = f.queue.Enqueue(ctx, models.QueueEntry{
		UserID:     userID,
		League:     league,
		RankTier:   hostRank.Tier,
		RankLevel:  hostRank.Level,
		Private:    true,
		InviteCode: code,
	})
	if err != nil {
		return "", err
	}

	f.log.Info("invite created", zap.String("user_id", userID), zap.String("league", league))
	return code, nil
}

// JoinInvite claims the host's private entry and opens a friendly match.
// The claim is atomic, so a code can only ever admit one joiner.
func (f *FriendlyService) JoinInvite(ctx context.Context, userID, code string) (*models.Match, error) {
	host, err := f.queue.ClaimInvite(ctx, code)
	if err != nil {
		return nil, err
	}
	if host == nil {
		return nil, ErrInviteNotFound
	}
	if host.UserID == userID {
		// Restore the invite; self-join does not consume it.
		if _, err := f.queue.Enqueue(ctx, *host); err != nil {
			f.log.Error("invite restore failed", zap.String("code", code), zap.Error(err))
		}
		return nil, ErrSelfJoin
	}

	hostRank := models.Rank{Tier: host.RankTier, Level: host.RankLevel}
	joinerRank, err := f.ranks.Lookup(ctx, userID)
	if err != nil {
		if _, rerr := f.queue.Enqueue(ctx, *host); rerr != nil {
			f.log.Error("invite restore failed", zap.String("code", code), zap.Error(rerr))
		}
		return nil, err
	}

	m, _, err := f.opener.OpenMatch(ctx, host.League, models.MatchFriendly,
		match.Entrant{UserID: host.UserID, Rank: hostRank},
		match.Entrant{UserID: userID, Rank: joinerRank},
	)
	if err != nil {
		f.notifier.MatchmakingFailed(host.UserID)
		return nil, err
	}

	metrics.MatchesFormed.WithLabelValues("friendly").Inc()
	f.notifier.MatchFound(host.UserID, m.ID)
	f.notifier.MatchFound(userID, m.ID)
	f.bus.Publish(ctx, "queue:"+host.League)
	f.log.Info("friendly match opened",
		zap.String("match_id", m.ID),
		zap.String("host", host.UserID),
		zap.String("joiner", userID))
	return m, nil
}

func newInviteCode() string {
	b := make([]byte, 3)
	rand.Read(b)
	return strings.ToUpper(hex.EncodeToString(b))
}
