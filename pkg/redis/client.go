package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wonny/ddalkkak/backend/pkg/config"
)

// ErrDisabled is returned by Ping when REDIS_ENABLED=false
var ErrDisabled = errors.New("redis disabled")

const (
	dialTimeout = 3 * time.Second
	pingTimeout = 3 * time.Second
)

// Client wraps the Redis client used for the API cache and the market rate limit
// ⭐ SSOT: Redis 연결은 여기서만 관리
type Client struct {
	rdb     *redis.Client
	addr    string
	enabled bool
}

// New creates a new Redis client.
// A disabled config yields a no-op client; callers check Enabled().
func New(cfg *config.Config) (*Client, error) {
	if !cfg.Redis.Enabled {
		return &Client{enabled: false}, nil
	}

	addr := fmt.Sprintf("%s:%s", cfg.Redis.Host, cfg.Redis.Port)
	rdb := redis.NewClient(&redis.Options{
		Addr:        addr,
		Password:    cfg.Redis.Password,
		DB:          cfg.Redis.DB,
		DialTimeout: dialTimeout,
	})

	c := &Client{rdb: rdb, addr: addr, enabled: true}

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := c.Ping(ctx); err != nil {
		rdb.Close()
		return nil, err
	}

	return c, nil
}

// Ping checks the server is reachable
func (c *Client) Ping(ctx context.Context) error {
	if !c.enabled {
		return ErrDisabled
	}
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis connection failed (%s): %w", c.addr, err)
	}
	return nil
}

// Addr returns host:port, empty when disabled
func (c *Client) Addr() string {
	return c.addr
}

// Close closes the Redis connection
func (c *Client) Close() error {
	if c.rdb != nil {
		return c.rdb.Close()
	}
	return nil
}

// Enabled returns whether Redis is enabled
func (c *Client) Enabled() bool {
	return c.enabled
}

// Redis returns the underlying redis client for advanced usage
func (c *Client) Redis() *redis.Client {
	return c.rdb
}
