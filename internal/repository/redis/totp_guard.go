package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/odaiidemos/k9-sub001/internal/core/port"
)

const defaultTOTPGuardPrefix = "totp_step"

// TOTPGuardRepository remembers accepted TOTP time-steps per account so a
// captured code cannot be replayed inside the acceptance window.
type TOTPGuardRepository struct {
	client *red.Client
	prefix string
}

// NewTOTPGuardRepository constructs a replay guard with the provided Redis client and key prefix.
func NewTOTPGuardRepository(client *red.Client, keyPrefix string) *TOTPGuardRepository {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultTOTPGuardPrefix
	}

	return &TOTPGuardRepository{client: client, prefix: prefix}
}

// MarkUsed records the (account, step) pair. The first caller wins; a second
// call for the same pair returns false until the TTL lapses, by which time
// the step can no longer produce a valid code.
func (r *TOTPGuardRepository) MarkUsed(ctx context.Context, accountID string, step int64, ttl time.Duration) (bool, error) {
	if strings.TrimSpace(accountID) == "" {
		return false, errors.New("account id is required")
	}
	if ttl <= 0 {
		return false, errors.New("ttl must be positive")
	}

	key := fmt.Sprintf("%s:%s:%d", r.prefix, strings.TrimSpace(accountID), step)

	ok, err := r.client.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx totp step: %w", err)
	}

	return ok, nil
}

var _ port.TOTPReplayGuard = (*TOTPGuardRepository)(nil)
