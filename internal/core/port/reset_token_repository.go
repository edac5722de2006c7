package port

import (
	"context"

	"github.com/odaiidemos/k9-sub001/internal/core/domain"
)

// ResetTokenRepository manages single-use password reset token records.
type ResetTokenRepository interface {
	// CreatePasswordReset stores a new token and, in the same transaction,
	// revokes every prior unused token of the account so at most one token
	// is ever live (last writer wins).
	CreatePasswordReset(ctx context.Context, token domain.PasswordResetToken) error
	GetPasswordResetByHash(ctx context.Context, hash string) (*domain.PasswordResetToken, error)
	// ConsumePasswordReset stamps used_at exactly once; a second call for the
	// same id reports not found.
	ConsumePasswordReset(ctx context.Context, id string) error
}
