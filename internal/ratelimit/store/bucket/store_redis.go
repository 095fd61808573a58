package bucket

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"mtoken/internal/ratelimit/models"
)

// RedisBucketStore counts requests in fixed windows shared by every replica.
// The first INCR of a window sets its expiry; the key disappearing ends the
// window.
type RedisBucketStore struct {
	client redis.Cmdable
}

// NewRedis wraps a go-redis client.
func NewRedis(client redis.Cmdable) *RedisBucketStore {
	return &RedisBucketStore{client: client}
}

func (s *RedisBucketStore) Allow(ctx context.Context, key string, limit int, period time.Duration) (*models.Result, error) {
	var (
		incr *redis.IntCmd
		ttl  *redis.DurationCmd
	)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, period)
		ttl = pipe.PTTL(ctx, key)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("redis rate limit %s: %w", key, err)
	}

	now := time.Now()
	remaining := ttl.Val()
	if remaining <= 0 {
		remaining = period
	}
	return result(int(incr.Val()), limit, now.Add(remaining), now), nil
}

func (s *RedisBucketStore) Reset(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis rate limit reset %s: %w", key, err)
	}
	return nil
}
