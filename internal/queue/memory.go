package queue

import (
	"context"
	"sync"
	"time"

	"github.com/parlayclash/backend/internal/models"
)

// Memory is a mutex-guarded in-process queue. Used by tests and by
// single-node development runs without Postgres.
type Memory struct {
	mu      sync.Mutex
	nextID  int64
	leagues map[string][]models.QueueEntry
}

func NewMemory() *Memory {
	return &Memory{leagues: make(map[string][]models.QueueEntry)}
}

func (q *Memory) Enqueue(_ context.Context, e models.QueueEntry) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.nextID++
	e.ID = q.nextID
	if e.EnqueuedAt.IsZero() {
		e.EnqueuedAt = time.Now()
	}
	q.leagues[e.League] = append(q.leagues[e.League], e)
	return e.ID, nil
}

func (q *Memory) RemoveIfPresent(_ context.Context, userID, league string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	pool := q.leagues[league]
	for i, e := range pool {
		if e.UserID == userID && !e.Private {
			q.leagues[league] = append(pool[:i], pool[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (q *Memory) Snapshot(_ context.Context, league string) ([]models.QueueEntry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []models.QueueEntry
	for _, e := range q.leagues[league] {
		if !e.Private {
			out = append(out, e)
		}
	}
	return out, nil
}

func (q *Memory) PurgeInvalid(_ context.Context, league string, maxAgeMinutes int) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	cutoff := time.Now().Add(-time.Duration(maxAgeMinutes) * time.Minute)
	pool := q.leagues[league]
	kept := pool[:0]
	var removed int64
	for _, e := range pool {
		if e.UserID == "" || e.EnqueuedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	q.leagues[league] = kept
	return removed, nil
}

func (q *Memory) ClaimInvite(_ context.Context, code string) (*models.QueueEntry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for league, pool := range q.leagues {
		for i, e := range pool {
			if e.Private && e.InviteCode == code {
				q.leagues[league] = append(pool[:i], pool[i+1:]...)
				return &e, nil
			}
		}
	}
	return nil, nil
}

func (q *Memory) Depths(_ context.Context) (map[string]int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	depths := make(map[string]int, len(q.leagues))
	for league, pool := range q.leagues {
		n := 0
		for _, e := range pool {
			if !e.Private {
				n++
			}
		}
		if n > 0 {
			depths[league] = n
		}
	}
	return depths, nil
}
