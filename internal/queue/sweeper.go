package queue

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Sweeper periodically purges malformed and stale entries from every league
// pool. Stale entries only appear when a client vanished without cancelling
// and its fallback deadline was lost, so sweeps can be infrequent.
type Sweeper struct {
	q             Queue
	leagues       []string
	maxAgeMinutes int
	interval      time.Duration
	log           *zap.Logger
}

func NewSweeper(q Queue, leagues []string, maxAgeMinutes int, interval time.Duration, log *zap.Logger) *Sweeper {
	return &Sweeper{
		q:             q,
		leagues:       leagues,
		maxAgeMinutes: maxAgeMinutes,
		interval:      interval,
		log:           log.Named("queue-sweeper"),
	}
}

func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	for _, league := range s.leagues {
		n, err := s.q.PurgeInvalid(ctx, league, s.maxAgeMinutes)
		if err != nil {
			s.log.Warn("purge failed", zap.String("league", league), zap.Error(err))
			continue
		}
		if n > 0 {
			s.log.Info("purged stale queue entries",
				zap.String("league", league),
				zap.Int64("count", n))
		}
	}
}
