package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/odaiidemos/k9-sub001/internal/core/port"
)

// SlidingWindowConfig defines configuration for the sliding window limiter.
type SlidingWindowConfig struct {
	KeyPrefix string
	TTL       time.Duration
}

// RateLimitRepository persists login and reset-request attempts in Redis
// sorted sets, scored by nanosecond timestamp. Query bounds go through the
// same float64 rounding as stored scores, so an attempt recorded at the
// reference instant always counts as inside the window.
type RateLimitRepository struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRateLimitRepository constructs a repository using the provided Redis client and config.
func NewRateLimitRepository(client *redis.Client, cfg SlidingWindowConfig) *RateLimitRepository {
	prefix := cfg.KeyPrefix
	if prefix != "" {
		prefix += ":"
	}

	return &RateLimitRepository{client: client, prefix: prefix, ttl: cfg.TTL}
}

var errWindowNotPositive = errors.New("window must be positive")

// score formats a timestamp exactly the way ZADD stored it, float64 rounding
// included.
func score(t time.Time) string {
	return strconv.FormatFloat(float64(t.UnixNano()), 'f', -1, 64)
}

// Record stores the attempt timestamp and refreshes the key TTL in a single
// pipelined round trip.
func (r *RateLimitRepository) Record(ctx context.Context, key string, at time.Time) error {
	name := r.prefix + key

	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, name, redis.Z{Score: float64(at.UnixNano()), Member: at.UnixNano()})
		if r.ttl > 0 {
			pipe.Expire(ctx, name, r.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis record attempt: %w", err)
	}

	return nil
}

// Count returns how many attempts fall inside the window ending at now.
func (r *RateLimitRepository) Count(ctx context.Context, key string, window time.Duration, now time.Time) (int, error) {
	if window <= 0 {
		return 0, errWindowNotPositive
	}

	count, err := r.client.ZCount(ctx, r.prefix+key,
		score(now.Add(-window)), score(now)).Result()
	if err != nil {
		return 0, fmt.Errorf("redis zcount: %w", err)
	}

	return int(count), nil
}

// Prune removes attempts older than the window ending at now.
func (r *RateLimitRepository) Prune(ctx context.Context, key string, window time.Duration, now time.Time) error {
	if window <= 0 {
		return errWindowNotPositive
	}

	err := r.client.ZRemRangeByScore(ctx, r.prefix+key,
		"-inf", score(now.Add(-window))).Err()
	if err != nil {
		return fmt.Errorf("redis zremrangebyscore: %w", err)
	}

	return nil
}

// Oldest returns the earliest attempt remaining inside the active window,
// which anchors the Retry-After and reset calculations.
func (r *RateLimitRepository) Oldest(ctx context.Context, key string, window time.Duration, now time.Time) (time.Time, bool, error) {
	if window <= 0 {
		return time.Time{}, false, errWindowNotPositive
	}

	members, err := r.client.ZRangeByScore(ctx, r.prefix+key, &redis.ZRangeBy{
		Min:   score(now.Add(-window)),
		Max:   score(now),
		Count: 1,
	}).Result()
	if err != nil {
		return time.Time{}, false, fmt.Errorf("redis zrangebyscore: %w", err)
	}

	if len(members) == 0 {
		return time.Time{}, false, nil
	}

	nanos, err := strconv.ParseInt(members[0], 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse timestamp: %w", err)
	}

	return time.Unix(0, nanos), true, nil
}

var _ port.RateLimitStore = (*RateLimitRepository)(nil)
