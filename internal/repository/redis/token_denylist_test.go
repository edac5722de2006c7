package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	red "github.com/redis/go-redis/v9"

	"github.com/odaiidemos/k9-sub001/internal/core/domain"
)

// newTestRedis spins up an in-process miniredis with a client wired to it.
// Both are torn down with the test.
func newTestRedis(t *testing.T) (*red.Client, *miniredis.Miniredis) {
	t.Helper()

	server := miniredis.RunT(t)
	client := red.NewClient(&red.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return client, server
}

func TestTokenDenylistRepository_RevokeAndCheck(t *testing.T) {
	client, server := newTestRedis(t)
	repo := NewTokenDenylistRepository(client, "denylist")

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	repo.WithClock(func() time.Time { return now })

	ctx := context.Background()
	revocation := domain.TokenRevocation{
		JTI:       "jti-123",
		ExpiresAt: now.Add(2 * time.Minute),
		Reason:    "user_logout",
	}

	if err := repo.Revoke(ctx, revocation); err != nil {
		t.Fatalf("Revoke returned error: %v", err)
	}

	revoked, err := repo.IsRevoked(ctx, "jti-123")
	if err != nil {
		t.Fatalf("IsRevoked returned error: %v", err)
	}
	if !revoked {
		t.Fatalf("expected jti to be marked revoked")
	}

	remaining := server.TTL("denylist:jti-123")
	if remaining <= 0 || remaining > 2*time.Minute {
		t.Fatalf("expected ttl within (0, %v], got %v", 2*time.Minute, remaining)
	}
}

func TestTokenDenylistRepository_ExpiredTokenIsNoOp(t *testing.T) {
	t.Helper()

	client, server := newTestRedis(t)
	repo := NewTokenDenylistRepository(client, "denylist")

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	repo.WithClock(func() time.Time { return now })

	revocation := domain.TokenRevocation{
		JTI:       "jti-expired",
		ExpiresAt: now.Add(-time.Second),
		Reason:    "user_logout",
	}

	if err := repo.Revoke(context.Background(), revocation); err != nil {
		t.Fatalf("Revoke returned error: %v", err)
	}

	if server.Exists("denylist:jti-expired") {
		t.Fatalf("expected no entry for an already-expired token")
	}

	revoked, err := repo.IsRevoked(context.Background(), "jti-expired")
	if err != nil {
		t.Fatalf("IsRevoked returned error: %v", err)
	}
	if revoked {
		t.Fatalf("expected expired token to not be recorded")
	}
}

func TestTokenDenylistRepository_IsRevokedMiss(t *testing.T) {
	t.Helper()

	client, _ := newTestRedis(t)
	repo := NewTokenDenylistRepository(client, "denylist")

	revoked, err := repo.IsRevoked(context.Background(), "missing")
	if err != nil {
		t.Fatalf("IsRevoked returned error: %v", err)
	}
	if revoked {
		t.Fatalf("expected revoked to be false")
	}
}

func TestTokenDenylistRepository_InvalidInput(t *testing.T) {
	t.Helper()

	client, _ := newTestRedis(t)
	repo := NewTokenDenylistRepository(client, "denylist")

	err := repo.Revoke(context.Background(), domain.TokenRevocation{JTI: "  ", ExpiresAt: time.Now().Add(time.Minute)})
	if err == nil {
		t.Fatalf("expected error for empty jti")
	}
	if errors.Is(err, red.Nil) {
		t.Fatalf("expected validation error, got redis miss")
	}

	if _, err := repo.IsRevoked(context.Background(), ""); err == nil {
		t.Fatalf("expected error for empty jti in IsRevoked")
	}
}
