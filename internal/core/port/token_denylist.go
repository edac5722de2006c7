package port

import (
	"context"

	"github.com/odaiidemos/k9-sub001/internal/core/domain"
)

// TokenDenylist refuses revoked token identifiers ahead of their natural
// expiry. Tokens themselves stay stateless; only the orchestration layer
// consults the denylist.
type TokenDenylist interface {
	Revoke(ctx context.Context, revocation domain.TokenRevocation) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}
