package respcache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"scuba/searchservice/internal/domain"
)

const redisKeyPrefix = "scuba:search:response:"

// RedisBackend stores backend responses in Redis with JSON serialization.
type RedisBackend struct {
	client *redis.Client
}

func NewRedisBackend(client *redis.Client) *RedisBackend {
	return &RedisBackend{client: client}
}

func (r *RedisBackend) Get(ctx context.Context, key string) (domain.CategoryResultSet, bool, error) {
	data, err := r.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.CategoryResultSet{}, false, nil
		}
		return domain.CategoryResultSet{}, false, err
	}
	var set domain.CategoryResultSet
	if err := json.Unmarshal(data, &set); err != nil {
		return domain.CategoryResultSet{}, false, err
	}
	return set, true, nil
}

func (r *RedisBackend) Set(ctx context.Context, key string, set domain.CategoryResultSet, ttl time.Duration) error {
	data, err := json.Marshal(set)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, redisKeyPrefix+key, data, ttl).Err()
}

func (r *RedisBackend) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
