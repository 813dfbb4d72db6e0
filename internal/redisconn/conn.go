// Package redisconn opens the Redis connection shared by the indexing gate
// and the history store.
package redisconn

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds Redis connection settings.
type Config struct {
	Addr        string
	Password    string
	DB          int
	DialTimeout time.Duration
}

// Connect creates a client and verifies the server answers PING.
func Connect(ctx context.Context, config Config) (*redis.Client, error) {
	if config.Addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	if config.DialTimeout == 0 {
		config.DialTimeout = 5 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:        config.Addr,
		Password:    config.Password,
		DB:          config.DB,
		DialTimeout: config.DialTimeout,
	})
	slog.Debug("connecting to redis", "addr", config.Addr, "db", config.DB)

	pong, err := client.Ping(ctx).Result()
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", config.Addr, err)
	}
	if pong != "PONG" {
		client.Close()
		return nil, fmt.Errorf("expected PONG, got %s", pong)
	}

	return client, nil
}
