package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/parlayclash/backend/internal/models"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestLimiter(window time.Duration, maxEvents int) (*RateLimiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	l := NewRateLimiter(window, maxEvents)
	l.now = clock.now
	return l, clock
}

func TestSecondSendWithinWindowIsRejectedWithRetryHint(t *testing.T) {
	l, clock := newTestLimiter(time.Second, 1)

	if ok, _ := l.Check("p1"); !ok {
		t.Fatal("first send rejected")
	}

	clock.advance(500 * time.Millisecond)
	ok, retryAfter := l.Check("p1")
	if ok {
		t.Fatal("second send within the window admitted")
	}
	if retryAfter != 500*time.Millisecond {
		t.Errorf("retryAfter = %v, want 500ms", retryAfter)
	}
}

func TestWindowExpiryReopensChannel(t *testing.T) {
	l, clock := newTestLimiter(time.Second, 1)

	l.Check("p1")
	clock.advance(1001 * time.Millisecond)
	if ok, _ := l.Check("p1"); !ok {
		t.Error("send after the window expired was rejected")
	}
}

func TestRejectedSendDoesNotExtendWindow(t *testing.T) {
	l, clock := newTestLimiter(time.Second, 1)

	l.Check("p1")
	clock.advance(900 * time.Millisecond)
	if ok, _ := l.Check("p1"); ok {
		t.Fatal("send inside the window admitted")
	}
	clock.advance(101 * time.Millisecond)
	if ok, _ := l.Check("p1"); !ok {
		t.Error("rejected send pushed the window forward")
	}
}

func TestParticipantsAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(time.Second, 1)

	l.Check("p1")
	if ok, _ := l.Check("p2"); !ok {
		t.Error("one participant's traffic throttled another")
	}
}

func TestMultiMessageBudget(t *testing.T) {
	l, clock := newTestLimiter(time.Second, 3)

	for i := 0; i < 3; i++ {
		if ok, _ := l.Check("p1"); !ok {
			t.Fatalf("send %d rejected under budget", i+1)
		}
		clock.advance(100 * time.Millisecond)
	}
	ok, retryAfter := l.Check("p1")
	if ok {
		t.Fatal("fourth send inside the window admitted")
	}
	// Oldest event was 300ms ago, so 700ms of its window remains.
	if retryAfter != 700*time.Millisecond {
		t.Errorf("retryAfter = %v, want 700ms", retryAfter)
	}
}

func TestForgetClearsState(t *testing.T) {
	l, _ := newTestLimiter(time.Second, 1)

	l.Check("p1")
	l.Forget("p1")
	if ok, _ := l.Check("p1"); !ok {
		t.Error("forgotten participant still throttled")
	}
}

type memStore struct {
	saved []models.ChatMessage
	err   error
}

func (s *memStore) SaveMessage(_ context.Context, msg *models.ChatMessage) error {
	if s.err != nil {
		return s.err
	}
	s.saved = append(s.saved, *msg)
	return nil
}

type oneParticipant struct {
	p models.Participant
}

func (f *oneParticipant) Participant(_ context.Context, id string) (*models.Participant, error) {
	if id != f.p.ID {
		return nil, errors.New("not found")
	}
	cp := f.p
	return &cp, nil
}

func testService(store *memStore, limiter *RateLimiter) *Service {
	roster := &oneParticipant{p: models.Participant{
		ID: "p1", MatchID: "m1", Status: models.ParticipantActive,
	}}
	return NewService(store, roster, limiter, 500, zap.NewNop())
}

func TestServicePersistsAdmittedMessage(t *testing.T) {
	store := &memStore{}
	l, _ := newTestLimiter(time.Second, 1)
	svc := testService(store, l)

	msg, err := svc.Send(context.Background(), "p1", "m1", "  nice hit  ")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if msg.Content != "nice hit" {
		t.Errorf("content = %q, want trimmed", msg.Content)
	}
	if len(store.saved) != 1 {
		t.Errorf("message not persisted")
	}
}

func TestServiceThrottleCarriesRetryAfter(t *testing.T) {
	store := &memStore{}
	l, clock := newTestLimiter(time.Second, 1)
	svc := testService(store, l)

	if _, err := svc.Send(context.Background(), "p1", "m1", "one"); err != nil {
		t.Fatalf("first send: %v", err)
	}
	clock.advance(500 * time.Millisecond)
	_, err := svc.Send(context.Background(), "p1", "m1", "two")

	var throttled *ErrThrottled
	if !errors.As(err, &throttled) {
		t.Fatalf("expected throttle error, got %v", err)
	}
	if throttled.RetryAfter != 500*time.Millisecond {
		t.Errorf("RetryAfter = %v, want 500ms", throttled.RetryAfter)
	}
	if len(store.saved) != 1 {
		t.Errorf("throttled message was persisted")
	}
}

func TestServiceValidation(t *testing.T) {
	store := &memStore{}
	l, _ := newTestLimiter(time.Second, 10)
	svc := testService(store, l)
	ctx := context.Background()

	if _, err := svc.Send(ctx, "p1", "m1", "   "); !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("blank content: got %v", err)
	}
	if _, err := svc.Send(ctx, "p1", "m1", strings.Repeat("x", 501)); !errors.Is(err, ErrMessageTooLong) {
		t.Errorf("oversized content: got %v", err)
	}
	if _, err := svc.Send(ctx, "p1", "other-match", "hello"); !errors.Is(err, ErrNotInMatch) {
		t.Errorf("wrong match: got %v", err)
	}
	if len(store.saved) != 0 {
		t.Errorf("invalid messages persisted")
	}
}
