package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/odaiidemos/k9-sub001/internal/infra/config"
)

// Pool sizing and timeouts for the auth workload.
const (
	poolSize     = 10
	minIdleConns = 2
	maxRetries   = 3

	dialTimeout  = 5 * time.Second
	readTimeout  = 3 * time.Second
	writeTimeout = 3 * time.Second

	poolTimeout     = 4 * time.Second
	connMaxIdleTime = 5 * time.Minute
)

// Client wraps redis.Client with an initial connectivity check and lifecycle
// management. It backs the token denylist, pending MFA enrollment, TOTP
// replay guard, and rate limit stores.
type Client struct {
	client *redis.Client
	logger *zap.Logger
}

func options(cfg config.RedisSettings) *redis.Options {
	opts := &redis.Options{
		Addr:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Password: cfg.Password,
		DB:       cfg.DB,

		PoolSize:     poolSize,
		MinIdleConns: minIdleConns,
		MaxRetries:   maxRetries,

		DialTimeout:  dialTimeout,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,

		PoolTimeout:     poolTimeout,
		ConnMaxIdleTime: connMaxIdleTime,
	}

	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return opts
}

// NewClient opens the Redis connection pool and verifies connectivity before
// returning.
func NewClient(cfg config.RedisSettings, logger *zap.Logger) (*Client, error) {
	client := redis.NewClient(options(cfg))

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	logger.Info("connected to redis",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.Int("db", cfg.DB),
		zap.Bool("tls_enabled", cfg.TLSEnabled),
	)

	return &Client{client: client, logger: logger}, nil
}

// Client returns the underlying redis.Client for direct access.
func (c *Client) Client() *redis.Client {
	return c.client
}

// HealthCheck performs a ping to verify Redis connectivity. The readiness
// probe calls this on every check.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

// Close gracefully closes the Redis connection pool.
func (c *Client) Close() error {
	c.logger.Info("closing redis connection")
	if err := c.client.Close(); err != nil {
		return fmt.Errorf("close redis client: %w", err)
	}
	return nil
}
