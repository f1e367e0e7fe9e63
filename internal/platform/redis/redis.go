package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// pingTimeout bounds the startup connectivity check so a dead Redis fails
// fast instead of blocking the whole boot sequence.
const pingTimeout = 5 * time.Second

// Client is the single connection shared by every repository. All quota and
// session invariants live in server-side Lua scripts, so one plain client is
// enough; there is no client-side locking to coordinate.
type Client struct {
	*redis.Client
}

// Open connects, verifies the connection and returns the shared client.
func Open(ctx context.Context, addr, password string, db int) (*Client, error) {
	if addr == "" {
		return nil, fmt.Errorf("empty redis addr")
	}

	c := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := c.Ping(pingCtx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return &Client{Client: c}, nil
}
