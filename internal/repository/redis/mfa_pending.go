package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/odaiidemos/k9-sub001/internal/core/port"
	"github.com/odaiidemos/k9-sub001/internal/repository"
)

const defaultPendingMFAPrefix = "mfa_pending"

// PendingMFARepository holds unconfirmed TOTP enrollment secrets in Redis.
// A secret lives here between enable and confirm; the TTL bounds how long an
// abandoned enrollment can linger.
type PendingMFARepository struct {
	client *red.Client
	prefix string
}

// NewPendingMFARepository constructs a pending-enrollment store with the provided Redis client and key prefix.
func NewPendingMFARepository(client *red.Client, keyPrefix string) *PendingMFARepository {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultPendingMFAPrefix
	}

	return &PendingMFARepository{client: client, prefix: prefix}
}

// StorePending saves the enrollment secret, replacing any earlier pending
// enrollment for the account.
func (r *PendingMFARepository) StorePending(ctx context.Context, accountID string, secret string, ttl time.Duration) error {
	key := r.key(accountID)
	switch {
	case key == "":
		return errors.New("account id is required")
	case strings.TrimSpace(secret) == "":
		return errors.New("secret is required")
	case ttl <= 0:
		return errors.New("ttl must be positive")
	}

	if err := r.client.Set(ctx, key, secret, ttl).Err(); err != nil {
		return fmt.Errorf("redis store pending mfa: %w", err)
	}

	return nil
}

// FetchPending retrieves the enrollment secret for the account.
func (r *PendingMFARepository) FetchPending(ctx context.Context, accountID string) (string, error) {
	key := r.key(accountID)
	if key == "" {
		return "", errors.New("account id is required")
	}

	secret, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, red.Nil) {
			return "", repository.ErrNotFound
		}
		return "", fmt.Errorf("redis fetch pending mfa: %w", err)
	}

	return secret, nil
}

// DeletePending removes the enrollment secret once confirmed or abandoned.
func (r *PendingMFARepository) DeletePending(ctx context.Context, accountID string) error {
	key := r.key(accountID)
	if key == "" {
		return errors.New("account id is required")
	}

	deleted, err := r.client.Del(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("redis delete pending mfa: %w", err)
	}
	if deleted == 0 {
		return repository.ErrNotFound
	}

	return nil
}

func (r *PendingMFARepository) key(accountID string) string {
	trimmed := strings.TrimSpace(accountID)
	if trimmed == "" {
		return ""
	}
	return fmt.Sprintf("%s:%s", r.prefix, trimmed)
}

var _ port.PendingMFAStore = (*PendingMFARepository)(nil)
