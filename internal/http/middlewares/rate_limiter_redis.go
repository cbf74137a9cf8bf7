package middlewares

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const rateLimitKeyPrefix = "scribe:rl:"

// RedisStore shares rate limit windows between API instances.
type RedisStore struct {
	client redis.Cmdable
}

func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client}
}

// Allow increments the window counter and sets its expiry on first hit.
func (s *RedisStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error) {
	key = rateLimitKeyPrefix + key

	var incr *redis.IntCmd
	var ttl *redis.DurationCmd

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, window)
		ttl = pipe.PTTL(ctx, key)
		return nil
	})
	if err != nil {
		return false, 0, err
	}

	if incr.Val() > int64(limit) {
		return false, ttl.Val(), nil
	}
	return true, 0, nil
}
