package bots

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/parlayclash/backend/internal/models"
	"github.com/parlayclash/backend/internal/wagers"
)

type fakeStore struct {
	mu    sync.Mutex
	saved []models.BotIdentity
}

func (s *fakeStore) SaveIdentity(_ context.Context, b models.BotIdentity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, b)
	return nil
}

type fakeProps struct {
	props []models.Proposition
	err   error
}

func (p *fakeProps) Open(context.Context, string) ([]models.Proposition, error) {
	return p.props, p.err
}

type fakeLedger struct {
	participant *models.Participant
	match       *models.Match
	staked      float64
	picked      []string
}

func (l *fakeLedger) Participant(context.Context, string) (*models.Participant, error) {
	if l.participant == nil {
		return nil, errors.New("not found")
	}
	cp := *l.participant
	return &cp, nil
}

func (l *fakeLedger) Match(context.Context, string) (*models.Match, error) {
	cp := *l.match
	return &cp, nil
}

func (l *fakeLedger) TotalStaked(context.Context, string) (float64, error) {
	return l.staked, nil
}

func (l *fakeLedger) PickedPropositionIDs(context.Context, string) ([]string, error) {
	return l.picked, nil
}

type placedWager struct {
	participantID string
	stake         float64
	wagerType     string
	legs          []wagers.LegInput
}

type fakePlacer struct {
	mu     sync.Mutex
	placed []placedWager
	err    error
}

func (p *fakePlacer) Place(_ context.Context, participantID, matchID string, stake float64, wagerType string, legs []wagers.LegInput) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.placed = append(p.placed, placedWager{participantID: participantID, stake: stake, wagerType: wagerType, legs: legs})
	return "w1", nil
}

type fakeOppNotifier struct {
	mu    sync.Mutex
	calls int
}

func (n *fakeOppNotifier) OpponentWagerPlaced(string, string, float64, string, int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++
}

func props(n int) []models.Proposition {
	out := make([]models.Proposition, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, models.Proposition{
			ID:        "prop" + string(rune('a'+i)),
			League:    "nba",
			SubjectID: "subj" + string(rune('a'+i)),
			Sides:     []string{"over", "under"},
		})
	}
	return out
}

func testTunables() Tunables {
	return Tunables{MinStakedFraction: 0.5, MinBalance: 25, MinPropositions: 3, RankPointsJitter: 40}
}

func activeFixture(balance float64) *fakeLedger {
	return &fakeLedger{
		participant: &models.Participant{
			ID:              "bp1",
			MatchID:         "m1",
			UserID:          "bot_x",
			Bot:             true,
			StartingBalance: 1000,
			Balance:         balance,
			Status:          models.ParticipantActive,
		},
		match: &models.Match{ID: "m1", League: "nba", Type: models.MatchCompetitive},
	}
}

func newTestSynthesizer(store *fakeStore, pr *fakeProps, ledger *fakeLedger, placer *fakePlacer, notifier *fakeOppNotifier) *Synthesizer {
	return NewSynthesizer(store, pr, ledger, placer, notifier, testTunables(), zap.NewNop())
}

func TestCreateOpponentFabricatesFreshIdentityNearRank(t *testing.T) {
	ctx := context.Background()
	store := &fakeStore{}
	s := newTestSynthesizer(store, &fakeProps{}, activeFixture(1000), &fakePlacer{}, &fakeOppNotifier{})

	target := models.Rank{Tier: 3, Level: 2, MinPoints: 400}
	b1, err := s.CreateOpponent(ctx, target)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	b2, _ := s.CreateOpponent(ctx, target)

	if b1.UserID == b2.UserID {
		t.Errorf("identities reused: %s", b1.UserID)
	}
	for _, b := range []*models.BotIdentity{b1, b2} {
		if b.RankTier != 3 || b.RankLevel != 2 {
			t.Errorf("bot rank = %d/%d, want 3/2", b.RankTier, b.RankLevel)
		}
		if b.RankPoints < 400 || b.RankPoints >= 440 {
			t.Errorf("bot points %d outside [400,440)", b.RankPoints)
		}
		if b.DisplayName == "" || b.AvatarID == "" {
			t.Errorf("missing presentation: %+v", b)
		}
	}
	if len(store.saved) != 2 {
		t.Errorf("identities not persisted: %d", len(store.saved))
	}
}

func TestAttemptWagerPlacesValidWager(t *testing.T) {
	ctx := context.Background()
	ledger := activeFixture(1000)
	placer := &fakePlacer{}
	notifier := &fakeOppNotifier{}
	s := newTestSynthesizer(&fakeStore{}, &fakeProps{props: props(8)}, ledger, placer, notifier)

	s.AttemptWager(ctx, "bp1", "human1", "m1")

	if len(placer.placed) != 1 {
		t.Fatalf("expected 1 placement, got %d", len(placer.placed))
	}
	w := placer.placed[0]
	if w.stake <= 0 || w.stake > 1000 {
		t.Errorf("stake %v out of range", w.stake)
	}
	if len(w.legs) < 2 || len(w.legs) > 6 {
		t.Errorf("leg count %d out of range", len(w.legs))
	}
	subjects := make(map[string]bool)
	propIDs := make(map[string]bool)
	for _, leg := range w.legs {
		if subjects[leg.SubjectID] {
			t.Errorf("duplicate subject %s", leg.SubjectID)
		}
		if propIDs[leg.PropositionID] {
			t.Errorf("repeated proposition %s", leg.PropositionID)
		}
		subjects[leg.SubjectID] = true
		propIDs[leg.PropositionID] = true
		if leg.Choice != "over" && leg.Choice != "under" {
			t.Errorf("unexpected side %q", leg.Choice)
		}
	}
	if notifier.calls != 1 {
		t.Errorf("human counterpart not notified")
	}
}

func TestAttemptWagerAbortsWhenParticipantInactive(t *testing.T) {
	ctx := context.Background()
	ledger := activeFixture(1000)
	ledger.participant.Status = models.ParticipantResolved
	placer := &fakePlacer{}
	s := newTestSynthesizer(&fakeStore{}, &fakeProps{props: props(8)}, ledger, placer, &fakeOppNotifier{})

	s.AttemptWager(ctx, "bp1", "human1", "m1")

	if len(placer.placed) != 0 {
		t.Errorf("bot wagered into an ended match")
	}
}

func TestAttemptWagerAbortsWhenMatchResolved(t *testing.T) {
	ctx := context.Background()
	ledger := activeFixture(1000)
	ledger.match.Resolved = true
	placer := &fakePlacer{}
	s := newTestSynthesizer(&fakeStore{}, &fakeProps{props: props(8)}, ledger, placer, &fakeOppNotifier{})

	s.AttemptWager(ctx, "bp1", "human1", "m1")

	if len(placer.placed) != 0 {
		t.Errorf("bot wagered into a resolved match")
	}
}

func TestAttemptWagerRespectsThresholds(t *testing.T) {
	ctx := context.Background()

	// Balance below floor
	placer := &fakePlacer{}
	s := newTestSynthesizer(&fakeStore{}, &fakeProps{props: props(8)}, activeFixture(10), placer, &fakeOppNotifier{})
	s.AttemptWager(ctx, "bp1", "human1", "m1")
	if len(placer.placed) != 0 {
		t.Errorf("bot wagered below balance floor")
	}

	// Too few open propositions
	placer = &fakePlacer{}
	s = newTestSynthesizer(&fakeStore{}, &fakeProps{props: props(2)}, activeFixture(1000), placer, &fakeOppNotifier{})
	s.AttemptWager(ctx, "bp1", "human1", "m1")
	if len(placer.placed) != 0 {
		t.Errorf("bot wagered with too few propositions")
	}
}

func TestAttemptWagerSkipsAlreadyPickedPropositions(t *testing.T) {
	ctx := context.Background()
	ledger := activeFixture(1000)
	all := props(8)
	ledger.picked = []string{all[0].ID, all[1].ID}
	placer := &fakePlacer{}
	s := newTestSynthesizer(&fakeStore{}, &fakeProps{props: all}, ledger, placer, &fakeOppNotifier{})

	s.AttemptWager(ctx, "bp1", "human1", "m1")

	if len(placer.placed) != 1 {
		t.Fatalf("expected a placement")
	}
	for _, leg := range placer.placed[0].legs {
		if leg.PropositionID == all[0].ID || leg.PropositionID == all[1].ID {
			t.Errorf("bot reused already-picked proposition %s", leg.PropositionID)
		}
	}
}

func TestAttemptWagerSwallowsPlacementFailure(t *testing.T) {
	ctx := context.Background()
	placer := &fakePlacer{err: wagers.ErrInsufficientBalance}
	notifier := &fakeOppNotifier{}
	s := newTestSynthesizer(&fakeStore{}, &fakeProps{props: props(8)}, activeFixture(1000), placer, notifier)

	// Must not panic or propagate
	s.AttemptWager(ctx, "bp1", "human1", "m1")

	if notifier.calls != 0 {
		t.Errorf("notified human about a rejected bot wager")
	}
}

func TestPickCountBounds(t *testing.T) {
	for i := 0; i < 200; i++ {
		if n := pickCount(models.WagerAllOrNothing, 8); n < 2 || n > 6 {
			t.Fatalf("all-or-nothing count %d out of [2,6]", n)
		}
		if n := pickCount(models.WagerPartialCredit, 8); n < 3 || n > 6 {
			t.Fatalf("partial-credit count %d out of [3,6]", n)
		}
		if n := pickCount(models.WagerAllOrNothing, 3); n < 2 || n > 3 {
			t.Fatalf("all-or-nothing count %d out of [2,3]", n)
		}
	}
	if n := pickCount(models.WagerAllOrNothing, 1); n != 0 {
		t.Errorf("expected 0 with one proposition, got %d", n)
	}
	if n := pickCount(models.WagerPartialCredit, 2); n != 0 {
		t.Errorf("expected 0 with two propositions, got %d", n)
	}
}

func TestOneSidedPropositionIsChosenDeterministically(t *testing.T) {
	ctx := context.Background()
	oneSided := props(8)
	for i := range oneSided {
		oneSided[i].Sides = []string{"yes"}
	}
	placer := &fakePlacer{}
	s := newTestSynthesizer(&fakeStore{}, &fakeProps{props: oneSided}, activeFixture(1000), placer, &fakeOppNotifier{})

	s.AttemptWager(ctx, "bp1", "human1", "m1")

	if len(placer.placed) != 1 {
		t.Fatalf("expected a placement")
	}
	for _, leg := range placer.placed[0].legs {
		if leg.Choice != "yes" {
			t.Errorf("one-sided proposition got side %q", leg.Choice)
		}
	}
}
