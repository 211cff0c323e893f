package matchmaking

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/parlayclash/backend/internal/match"
	"github.com/parlayclash/backend/internal/models"
	"github.com/parlayclash/backend/internal/queue"
)

type openedMatch struct {
	match        models.Match
	participants []models.Participant
}

type fakeOpener struct {
	mu     sync.Mutex
	opened []openedMatch
	fail   bool
}

func (o *fakeOpener) OpenMatch(_ context.Context, league, matchType string, home, away match.Entrant) (*models.Match, []models.Participant, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.fail {
		return nil, nil, context.DeadlineExceeded
	}
	m := models.Match{ID: "match-" + home.UserID + "-" + away.UserID, League: league, Type: matchType}
	ps := []models.Participant{
		{ID: "pa-" + home.UserID, MatchID: m.ID, UserID: home.UserID, Bot: home.Bot, RankTier: home.Rank.Tier, RankLevel: home.Rank.Level, Status: models.ParticipantActive},
		{ID: "pa-" + away.UserID, MatchID: m.ID, UserID: away.UserID, Bot: away.Bot, RankTier: away.Rank.Tier, RankLevel: away.Rank.Level, Status: models.ParticipantActive},
	}
	o.opened = append(o.opened, openedMatch{match: m, participants: ps})
	return &m, ps, nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	found  map[string]string // userID -> matchID
	failed []string
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{found: make(map[string]string)}
}

func (n *fakeNotifier) MatchFound(userID, matchID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.found[userID] = matchID
}

func (n *fakeNotifier) MatchmakingFailed(userID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failed = append(n.failed, userID)
}

type fakeRanks struct {
	ranks map[string]models.Rank
	err   error
}

func (r *fakeRanks) Lookup(_ context.Context, userID string) (models.Rank, error) {
	if r.err != nil {
		return models.Rank{}, r.err
	}
	return r.ranks[userID], nil
}

type fakeDeadlines struct {
	mu    sync.Mutex
	armed map[string]time.Time
}

func newFakeDeadlines() *fakeDeadlines {
	return &fakeDeadlines{armed: make(map[string]time.Time)}
}

func (d *fakeDeadlines) Arm(_ context.Context, dl Deadline, fireAt time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.armed[member(dl.UserID, dl.League)] = fireAt
	return nil
}

func (d *fakeDeadlines) Cancel(_ context.Context, userID, league string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.armed, member(userID, league))
	return nil
}

func (d *fakeDeadlines) ClaimDue(_ context.Context, now time.Time) ([]Deadline, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var due []Deadline
	for m, at := range d.armed {
		if !at.After(now) {
			userID, league, ok := parseMember(m)
			if ok {
				due = append(due, Deadline{UserID: userID, League: league})
			}
			delete(d.armed, m)
		}
	}
	return due, nil
}

type fakeBots struct {
	mu        sync.Mutex
	created   []models.Rank
	scheduled []string // bot participant ids
	err       error
}

func (b *fakeBots) CreateOpponent(_ context.Context, target models.Rank) (*models.BotIdentity, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return nil, b.err
	}
	b.created = append(b.created, target)
	return &models.BotIdentity{
		UserID:     "bot-1",
		RankTier:   target.Tier,
		RankLevel:  target.Level,
		RankPoints: target.MinPoints + 10,
	}, nil
}

func (b *fakeBots) ScheduleWagers(botParticipantID, humanUserID, matchID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.scheduled = append(b.scheduled, botParticipantID)
}

type nopBus struct{}

func (nopBus) Publish(context.Context, string) {}

func enqueue(t *testing.T, q queue.Queue, userID, league string, tier, level int) {
	t.Helper()
	_, err := q.Enqueue(context.Background(), models.QueueEntry{
		UserID:     userID,
		League:     league,
		RankTier:   tier,
		RankLevel:  level,
		EnqueuedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("enqueue %s: %v", userID, err)
	}
}

func newTestMatchmaker(q queue.Queue, ranks *fakeRanks, opener *fakeOpener, notifier *fakeNotifier, deadlines *fakeDeadlines) *Matchmaker {
	return New(q, ranks, opener, notifier, deadlines, nopBus{}, []string{"nba"}, time.Second, zap.NewNop())
}

func TestScanPairsIdenticalRanks(t *testing.T) {
	ctx := context.Background()
	q := queue.NewMemory()
	ranks := &fakeRanks{ranks: map[string]models.Rank{
		"u1": {Tier: 2, Level: 3},
		"u2": {Tier: 2, Level: 3},
	}}
	opener := &fakeOpener{}
	notifier := newFakeNotifier()
	deadlines := newFakeDeadlines()
	mm := newTestMatchmaker(q, ranks, opener, notifier, deadlines)

	enqueue(t, q, "u1", "nba", 2, 3)
	enqueue(t, q, "u2", "nba", 2, 3)
	deadlines.Arm(ctx, Deadline{UserID: "u1", League: "nba"}, time.Now().Add(time.Minute))
	deadlines.Arm(ctx, Deadline{UserID: "u2", League: "nba"}, time.Now().Add(time.Minute))

	mm.ScanLeague(ctx, "nba")

	if len(opener.opened) != 1 {
		t.Fatalf("expected 1 match, got %d", len(opener.opened))
	}
	snap, _ := q.Snapshot(ctx, "nba")
	if len(snap) != 0 {
		t.Errorf("queue not empty after pairing: %+v", snap)
	}
	if notifier.found["u1"] == "" || notifier.found["u2"] == "" {
		t.Errorf("match-found not sent to both: %+v", notifier.found)
	}
	if len(deadlines.armed) != 0 {
		t.Errorf("fallback deadlines not cancelled after pairing")
	}
}

func TestScanSkipsMismatchedRanks(t *testing.T) {
	ctx := context.Background()
	q := queue.NewMemory()
	ranks := &fakeRanks{ranks: map[string]models.Rank{}}
	opener := &fakeOpener{}
	mm := newTestMatchmaker(q, ranks, opener, newFakeNotifier(), newFakeDeadlines())

	enqueue(t, q, "u1", "nba", 1, 1)
	enqueue(t, q, "u2", "nba", 1, 2) // same tier, different level
	enqueue(t, q, "u3", "nba", 2, 1) // different tier

	mm.ScanLeague(ctx, "nba")

	if len(opener.opened) != 0 {
		t.Errorf("paired mismatched ranks: %+v", opener.opened)
	}
	snap, _ := q.Snapshot(ctx, "nba")
	if len(snap) != 3 {
		t.Errorf("queue disturbed without a pairing: %d entries", len(snap))
	}
}

func TestScanIsFirstFitInInsertionOrder(t *testing.T) {
	ctx := context.Background()
	q := queue.NewMemory()
	ranks := &fakeRanks{ranks: map[string]models.Rank{
		"u1": {Tier: 1, Level: 1}, "u2": {Tier: 9, Level: 9}, "u3": {Tier: 1, Level: 1}, "u4": {Tier: 1, Level: 1},
	}}
	opener := &fakeOpener{}
	mm := newTestMatchmaker(q, ranks, opener, newFakeNotifier(), newFakeDeadlines())

	enqueue(t, q, "u1", "nba", 1, 1)
	enqueue(t, q, "u2", "nba", 9, 9)
	enqueue(t, q, "u3", "nba", 1, 1)
	enqueue(t, q, "u4", "nba", 1, 1)

	mm.ScanLeague(ctx, "nba")

	if len(opener.opened) != 1 {
		t.Fatalf("expected 1 match, got %d", len(opener.opened))
	}
	got := opener.opened[0]
	if got.participants[0].UserID != "u1" || got.participants[1].UserID != "u3" {
		t.Errorf("expected oldest eligible pair u1+u3, got %s+%s",
			got.participants[0].UserID, got.participants[1].UserID)
	}
	// u2 (no partner) and u4 (partner consumed) stay queued
	snap, _ := q.Snapshot(ctx, "nba")
	if len(snap) != 2 {
		t.Errorf("expected 2 leftovers, got %d", len(snap))
	}
}

func TestScanAbortsCycleWhenRankDirectoryDown(t *testing.T) {
	ctx := context.Background()
	q := queue.NewMemory()
	ranks := &fakeRanks{err: context.DeadlineExceeded}
	opener := &fakeOpener{}
	mm := newTestMatchmaker(q, ranks, opener, newFakeNotifier(), newFakeDeadlines())

	enqueue(t, q, "u1", "nba", 1, 1)
	enqueue(t, q, "u2", "nba", 1, 1)

	mm.ScanLeague(ctx, "nba")

	if len(opener.opened) != 0 {
		t.Errorf("opened a match with rank directory down")
	}
	// Both users restored for the next cycle
	snap, _ := q.Snapshot(ctx, "nba")
	if len(snap) != 2 {
		t.Errorf("expected both users requeued, got %d", len(snap))
	}
}

func TestScanEmitsFailureWhenOpenFails(t *testing.T) {
	ctx := context.Background()
	q := queue.NewMemory()
	ranks := &fakeRanks{ranks: map[string]models.Rank{
		"u1": {Tier: 1, Level: 1}, "u2": {Tier: 1, Level: 1},
	}}
	opener := &fakeOpener{fail: true}
	notifier := newFakeNotifier()
	mm := newTestMatchmaker(q, ranks, opener, notifier, newFakeDeadlines())

	enqueue(t, q, "u1", "nba", 1, 1)
	enqueue(t, q, "u2", "nba", 1, 1)

	mm.ScanLeague(ctx, "nba")

	if len(notifier.failed) != 2 {
		t.Errorf("expected matchmaking-failed for both users, got %v", notifier.failed)
	}
}

func newTestFallback(q queue.Queue, deadlines *fakeDeadlines, ranks *fakeRanks, bots *fakeBots, opener *fakeOpener, notifier *fakeNotifier) *FallbackScheduler {
	return NewFallbackScheduler(q, deadlines, ranks, bots, opener, notifier, nopBus{}, 45*time.Second, zap.NewNop())
}

func TestFallbackOpensBotMatchForStillWaitingUser(t *testing.T) {
	ctx := context.Background()
	q := queue.NewMemory()
	ranks := &fakeRanks{ranks: map[string]models.Rank{"u1": {Tier: 3, Level: 2, MinPoints: 400}}}
	opener := &fakeOpener{}
	notifier := newFakeNotifier()
	deadlines := newFakeDeadlines()
	bots := &fakeBots{}
	fs := newTestFallback(q, deadlines, ranks, bots, opener, notifier)

	enqueue(t, q, "u1", "nba", 3, 2)
	if err := fs.Arm(ctx, "u1", "nba"); err != nil {
		t.Fatalf("arm: %v", err)
	}

	fs.ProcessDue(ctx, time.Now().Add(time.Minute))

	if len(opener.opened) != 1 {
		t.Fatalf("expected 1 bot match, got %d", len(opener.opened))
	}
	opened := opener.opened[0]
	if !opened.participants[1].Bot {
		t.Errorf("second participant is not a bot: %+v", opened.participants[1])
	}
	if len(bots.created) != 1 || bots.created[0].Tier != 3 || bots.created[0].Level != 2 {
		t.Errorf("bot not created at user rank: %+v", bots.created)
	}
	if len(bots.scheduled) != 1 || bots.scheduled[0] != "pa-bot-1" {
		t.Errorf("simulated wagers not scheduled for bot participant: %v", bots.scheduled)
	}
	if notifier.found["u1"] == "" {
		t.Errorf("match-found not sent to the waiting user")
	}
	snap, _ := q.Snapshot(ctx, "nba")
	if len(snap) != 0 {
		t.Errorf("user still queued after fallback")
	}
}

func TestFallbackNoopWhenUserAlreadyPaired(t *testing.T) {
	ctx := context.Background()
	q := queue.NewMemory()
	ranks := &fakeRanks{ranks: map[string]models.Rank{"u1": {Tier: 1, Level: 1}}}
	opener := &fakeOpener{}
	bots := &fakeBots{}
	deadlines := newFakeDeadlines()
	fs := newTestFallback(q, deadlines, ranks, bots, opener, newFakeNotifier())

	// Deadline armed but the user is no longer in the queue
	fs.Arm(ctx, "u1", "nba")

	fs.ProcessDue(ctx, time.Now().Add(time.Minute))

	if len(opener.opened) != 0 {
		t.Errorf("fallback opened a match for an already-paired user")
	}
	if len(bots.created) != 0 {
		t.Errorf("fallback created a bot for an already-paired user")
	}
}

func TestFallbackRestoreKeepsQueuePosition(t *testing.T) {
	ctx := context.Background()
	q := queue.NewMemory()
	ranks := &fakeRanks{ranks: map[string]models.Rank{"u1": {Tier: 2, Level: 2}}}
	opener := &fakeOpener{}
	deadlines := newFakeDeadlines()
	bots := &fakeBots{err: context.DeadlineExceeded}
	fs := newTestFallback(q, deadlines, ranks, bots, opener, newFakeNotifier())

	enqueue(t, q, "u1", "nba", 2, 2)
	fs.Arm(ctx, "u1", "nba")

	fs.ProcessDue(ctx, time.Now().Add(time.Minute))

	// Synthesis failed, so the user is requeued at their original position
	// rather than at the tail.
	snap, _ := q.Snapshot(ctx, "nba")
	if len(snap) != 1 {
		t.Fatalf("expected restored entry, got %d", len(snap))
	}
	if age := time.Since(snap[0].EnqueuedAt); age < 40*time.Second {
		t.Errorf("restored entry lost its enqueue time: age %v", age)
	}
	if len(deadlines.armed) != 1 {
		t.Errorf("deadline not re-armed after restore")
	}
}

func TestPairingAndFallbackNeverBothWin(t *testing.T) {
	ctx := context.Background()
	q := queue.NewMemory()
	ranks := &fakeRanks{ranks: map[string]models.Rank{
		"u1": {Tier: 1, Level: 1}, "u2": {Tier: 1, Level: 1},
	}}
	opener := &fakeOpener{}
	notifier := newFakeNotifier()
	deadlines := newFakeDeadlines()
	bots := &fakeBots{}
	mm := newTestMatchmaker(q, ranks, opener, notifier, deadlines)
	fs := newTestFallback(q, deadlines, ranks, bots, opener, notifier)

	enqueue(t, q, "u1", "nba", 1, 1)
	enqueue(t, q, "u2", "nba", 1, 1)
	fs.Arm(ctx, "u1", "nba")
	fs.Arm(ctx, "u2", "nba")

	// Deadline fires and the matchmaker scans in the same window
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		mm.ScanLeague(ctx, "nba")
	}()
	go func() {
		defer wg.Done()
		fs.ProcessDue(ctx, time.Now().Add(time.Minute))
	}()
	wg.Wait()

	// Exactly one of {pairing, fallback} may win any given user: no user
	// lands in more than one match, and a user in a match is not also
	// still queued. (A user who lost their partner to the fallback may
	// legitimately end up requeued with no match.)
	seen := make(map[string]int)
	for _, om := range opener.opened {
		for _, p := range om.participants {
			if !p.Bot {
				seen[p.UserID]++
			}
		}
	}
	snap, _ := q.Snapshot(ctx, "nba")
	queued := make(map[string]bool)
	for _, e := range snap {
		queued[e.UserID] = true
	}
	for _, u := range []string{"u1", "u2"} {
		if seen[u] > 1 {
			t.Errorf("user %s placed in %d matches", u, seen[u])
		}
		if seen[u] == 1 && queued[u] {
			t.Errorf("user %s is matched and still queued", u)
		}
	}
}

func TestFriendlyInviteFlow(t *testing.T) {
	ctx := context.Background()
	q := queue.NewMemory()
	ranks := &fakeRanks{ranks: map[string]models.Rank{
		"host": {Tier: 4, Level: 1}, "guest": {Tier: 1, Level: 1},
	}}
	opener := &fakeOpener{}
	notifier := newFakeNotifier()
	fs := NewFriendlyService(q, ranks, opener, notifier, nopBus{}, zap.NewNop())

	code, err := fs.CreateInvite(ctx, "host", "nba")
	if err != nil {
		t.Fatalf("create invite: %v", err)
	}
	if code == "" {
		t.Fatalf("empty invite code")
	}

	if _, err := fs.JoinInvite(ctx, "host", code); err != ErrSelfJoin {
		t.Errorf("self join: got %v, want %v", err, ErrSelfJoin)
	}

	m, err := fs.JoinInvite(ctx, "guest", code)
	if err != nil {
		t.Fatalf("join invite: %v", err)
	}
	if m.Type != models.MatchFriendly {
		t.Errorf("match type = %s, want %s", m.Type, models.MatchFriendly)
	}
	// Ranks differ; friendly matches don't require equality
	if len(opener.opened) != 1 {
		t.Fatalf("expected 1 friendly match")
	}

	if _, err := fs.JoinInvite(ctx, "guest", code); err != ErrInviteNotFound {
		t.Errorf("reused invite: got %v, want %v", err, ErrInviteNotFound)
	}
}
