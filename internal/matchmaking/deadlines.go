package matchmaking

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const fallbackZSet = "bot_fallback_deadlines"

// RedisDeadlines keeps fallback deadlines in a Redis sorted set scored by
// fire time. The ZRem on claim is what makes a due member belong to exactly
// one worker.
type RedisDeadlines struct {
	rdb *redis.Client
}

func NewRedisDeadlines(rdb *redis.Client) *RedisDeadlines {
	return &RedisDeadlines{rdb: rdb}
}

func member(userID, league string) string {
	return "l:" + league + ":u:" + userID
}

// parseMember expects member format l:<league>:u:<userID>
func parseMember(m string) (userID, league string, ok bool) {
	parts := strings.SplitN(m, ":", 4)
	if len(parts) == 4 && parts[0] == "l" && parts[2] == "u" {
		return parts[3], parts[1], true
	}
	return "", "", false
}

func (r *RedisDeadlines) Arm(ctx context.Context, d Deadline, fireAt time.Time) error {
	return r.rdb.ZAdd(ctx, fallbackZSet, redis.Z{
		Score:  float64(fireAt.Unix()),
		Member: member(d.UserID, d.League),
	}).Err()
}

func (r *RedisDeadlines) Cancel(ctx context.Context, userID, league string) error {
	return r.rdb.ZRem(ctx, fallbackZSet, member(userID, league)).Err()
}

func (r *RedisDeadlines) ClaimDue(ctx context.Context, now time.Time) ([]Deadline, error) {
	members, err := r.rdb.ZRangeByScore(ctx, fallbackZSet, &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", now.Unix()),
	}).Result()
	if err != nil {
		return nil, err
	}

	var due []Deadline
	for _, m := range members {
		// Race-safe claim: only the worker whose ZRem removes the member
		// owns the deadline.
		removed, err := r.rdb.ZRem(ctx, fallbackZSet, m).Result()
		if err != nil {
			return due, err
		}
		if removed == 0 {
			continue
		}
		userID, league, ok := parseMember(m)
		if !ok {
			continue
		}
		due = append(due, Deadline{UserID: userID, League: league})
	}
	return due, nil
}
