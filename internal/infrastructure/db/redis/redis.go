// Package redis holds the Redis-backed stores: the secure-store backend used
// by the client and the refresh-token store used by the reference API.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultTimeout = 5 * time.Second

type Config struct {
	Addr     string
	DB       int
	Password string
	// ClientName, when set, is reported through CLIENT SETNAME.
	ClientName string
	Timeout    time.Duration
}

// Connect dials Redis and pings it before handing the client back.
func Connect(ctx context.Context, cfg Config) (*redis.Client, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	client := redis.NewClient(&redis.Options{
		Addr:       cfg.Addr,
		DB:         cfg.DB,
		Password:   cfg.Password,
		ClientName: cfg.ClientName,
	})

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis at %s (db %d): %w", cfg.Addr, cfg.DB, err)
	}
	return client, nil
}
