package quota

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCounter keeps quota buckets in Redis so every process dispatching on
// the same channel sees the same trailing count.
type RedisCounter struct {
	client redis.UniversalClient
}

func NewRedisCounter(client redis.UniversalClient) *RedisCounter {
	return &RedisCounter{client: client}
}

func (c *RedisCounter) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	cnt, err := c.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	// First write sets the TTL so the bucket cleans itself up.
	if cnt == 1 {
		_ = c.client.Expire(ctx, key, ttl).Err()
	}
	return cnt, nil
}

func (c *RedisCounter) GetMany(ctx context.Context, keys []string) ([]int64, error) {
	vals, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	counts := make([]int64, len(vals))
	for i, v := range vals {
		if v == nil {
			continue
		}
		if s, ok := v.(string); ok {
			n, _ := strconv.ParseInt(s, 10, 64)
			counts[i] = n
		}
	}
	return counts, nil
}

var _ Counter = (*RedisCounter)(nil)
