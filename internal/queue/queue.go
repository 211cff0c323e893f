// Package queue holds the per-league waiting pools that matchmaking and the
// bot fallback race over. The queue is an injected service, not ambient
// state; everything that scans or claims entries receives one by reference.
package queue

import (
	"context"

	"github.com/parlayclash/backend/internal/models"
)

// Queue is an ordered per-league collection of waiting users.
//
// RemoveIfPresent is the single coordination primitive between the
// matchmaker and the bot fallback: it must check and remove in one
// indivisible step so exactly one caller wins any given entry.
type Queue interface {
	// Enqueue appends an entry to the tail of its league's pool. Callers
	// must not double-enqueue the same user for the same league.
	Enqueue(ctx context.Context, e models.QueueEntry) (int64, error)

	// RemoveIfPresent atomically removes at most one public entry for the
	// user in the league and reports whether anything was removed. Private
	// invite entries are never touched; those are claimed via ClaimInvite.
	RemoveIfPresent(ctx context.Context, userID, league string) (bool, error)

	// Snapshot returns a point-in-time copy of the league's pool in
	// insertion order (oldest first). Concurrent mutation is not locked out.
	Snapshot(ctx context.Context, league string) ([]models.QueueEntry, error)

	// PurgeInvalid removes malformed entries (empty user id) and entries
	// older than maxAgeMinutes. Returns the number of rows removed.
	PurgeInvalid(ctx context.Context, league string, maxAgeMinutes int) (int64, error)

	// ClaimInvite atomically claims a private entry by invite code,
	// returning the claimed entry. Used by the friendly-match join path.
	ClaimInvite(ctx context.Context, code string) (*models.QueueEntry, error)

	// Depths reports the number of waiting entries per league.
	Depths(ctx context.Context) (map[string]int, error)
}
