// Package invalidation is the fan-out "this cached view is stale" channel.
// Keys are opaque; consumers re-fetch authoritative state themselves.
// Delivery is at-most-once with no ordering guarantee across keys.
package invalidation

import (
	"context"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/parlayclash/backend/internal/metrics"
)

// Channel is the Redis pub/sub channel invalidation keys are broadcast on.
const Channel = "cache_invalidation"

// Publisher is the narrow interface state-changing components depend on.
type Publisher interface {
	Publish(ctx context.Context, key string)
}

// Bus broadcasts invalidation keys over Redis pub/sub.
type Bus struct {
	rdb *redis.Client
	log *zap.Logger
}

func NewBus(rdb *redis.Client, log *zap.Logger) *Bus {
	return &Bus{rdb: rdb, log: log.Named("invalidation")}
}

// Publish is fire-and-forget; a failed publish is logged and dropped.
func (b *Bus) Publish(ctx context.Context, key string) {
	if err := b.rdb.Publish(ctx, Channel, key).Err(); err != nil {
		b.log.Warn("publish failed", zap.String("key", key), zap.Error(err))
		return
	}
	metrics.InvalidationsPublished.Inc()
}

// Subscribe returns a channel of invalidation keys. The subscription is torn
// down when ctx is cancelled.
func (b *Bus) Subscribe(ctx context.Context) <-chan string {
	sub := b.rdb.Subscribe(ctx, Channel)
	out := make(chan string, 64)

	go func() {
		defer close(out)
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- msg.Payload:
				default:
					// Slow consumer; at-most-once lets us drop.
				}
			}
		}
	}()

	return out
}
