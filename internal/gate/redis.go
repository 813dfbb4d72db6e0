package gate

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisSet stores indexed URLs in a Redis set.
type RedisSet struct {
	client *redis.Client
	key    string
}

// NewRedisSet returns a gate backed by the set at key.
func NewRedisSet(client *redis.Client, key string) *RedisSet {
	if key == "" {
		key = DefaultSetKey
	}
	return &RedisSet{client: client, key: key}
}

// IsIndexed reports whether url is a member of the set (SISMEMBER).
func (s *RedisSet) IsIndexed(ctx context.Context, url string) (bool, error) {
	ok, err := s.client.SIsMember(ctx, s.key, url).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check indexed set: %w", err)
	}
	return ok, nil
}

// MarkIndexed adds url to the set (SADD). Adding an existing member is a no-op.
func (s *RedisSet) MarkIndexed(ctx context.Context, url string) error {
	if err := s.client.SAdd(ctx, s.key, url).Err(); err != nil {
		return fmt.Errorf("failed to add to indexed set: %w", err)
	}
	return nil
}

// Key returns the Redis key of the set.
func (s *RedisSet) Key() string {
	return s.key
}
