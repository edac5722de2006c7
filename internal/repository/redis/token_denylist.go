package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/odaiidemos/k9-sub001/internal/core/domain"
	"github.com/odaiidemos/k9-sub001/internal/core/port"
)

const defaultDenylistPrefix = "denylist"

// TokenDenylistRepository refuses revoked token identifiers, backed by Redis.
// Entries carry a TTL equal to the remaining token lifetime so the denylist
// never outgrows the set of tokens that could still be presented.
type TokenDenylistRepository struct {
	client *red.Client
	prefix string
	now    func() time.Time
}

// NewTokenDenylistRepository wires a Redis client into a denylist repository.
func NewTokenDenylistRepository(client *red.Client, keyPrefix string) *TokenDenylistRepository {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultDenylistPrefix
	}

	return &TokenDenylistRepository{client: client, prefix: prefix, now: time.Now}
}

// Revoke stores the token identifier until the token would have expired
// anyway. Revoking an already-expired token is a no-op.
func (r *TokenDenylistRepository) Revoke(ctx context.Context, revocation domain.TokenRevocation) error {
	key := r.key(revocation.JTI)
	if key == "" {
		return errors.New("jti must not be empty")
	}

	ttl := revocation.ExpiresAt.Sub(r.now().UTC())
	if ttl <= 0 {
		return nil
	}

	reason := strings.TrimSpace(revocation.Reason)
	if reason == "" {
		reason = "revoked"
	}

	if err := r.client.Set(ctx, key, reason, ttl).Err(); err != nil {
		return fmt.Errorf("redis set revoked jti: %w", err)
	}

	return nil
}

// IsRevoked reports whether the token identifier has been revoked.
func (r *TokenDenylistRepository) IsRevoked(ctx context.Context, jti string) (bool, error) {
	key := r.key(jti)
	if key == "" {
		return false, errors.New("jti must not be empty")
	}

	if err := r.client.Get(ctx, key).Err(); err != nil {
		if errors.Is(err, red.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("redis get revoked jti: %w", err)
	}

	return true, nil
}

// WithClock overrides the internal clock, used in tests.
func (r *TokenDenylistRepository) WithClock(clock func() time.Time) {
	if clock != nil {
		r.now = clock
	}
}

func (r *TokenDenylistRepository) key(jti string) string {
	trimmed := strings.TrimSpace(jti)
	if trimmed == "" {
		return ""
	}
	return fmt.Sprintf("%s:%s", r.prefix, trimmed)
}

var _ port.TokenDenylist = (*TokenDenylistRepository)(nil)
