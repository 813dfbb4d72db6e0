package history

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mfenderov/pagechat/pkg/models"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each session's messages as a Redis list of JSON documents.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a history store whose lists live under prefix.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(sessionID string) string {
	return s.prefix + sessionID
}

// GetMessages returns up to amount of the latest messages, oldest first.
func (s *RedisStore) GetMessages(ctx context.Context, sessionID string, amount int) ([]models.Message, error) {
	if amount <= 0 {
		return []models.Message{}, nil
	}

	raw, err := s.client.LRange(ctx, s.key(sessionID), int64(-amount), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	msgs := make([]models.Message, 0, len(raw))
	for _, item := range raw {
		var msg models.Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			slog.Warn("skipping malformed history entry", "session", sessionID, "error", err)
			continue
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// AddMessages appends msgs to the session's list in one round trip.
func (s *RedisStore) AddMessages(ctx context.Context, sessionID string, msgs ...models.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	values := make([]interface{}, len(msgs))
	for i, msg := range msgs {
		data, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("failed to marshal message: %w", err)
		}
		values[i] = data
	}

	if err := s.client.RPush(ctx, s.key(sessionID), values...).Err(); err != nil {
		return fmt.Errorf("failed to append history: %w", err)
	}
	return nil
}
