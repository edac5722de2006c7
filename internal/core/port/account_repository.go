package port

import (
	"context"
	"time"

	"github.com/odaiidemos/k9-sub001/internal/core/domain"
)

// AccountRepository exposes persistence behavior for the security-relevant
// account fields. Counter updates are atomic at the storage layer so two
// concurrent failed attempts can never both observe the same value; the
// lockout threshold cannot be bypassed by racing.
type AccountRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Account, error)
	GetByIdentifier(ctx context.Context, identifier string) (*domain.Account, error)
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
	// IncrementFailedAttempts bumps the counter in a single statement and
	// returns the post-increment value.
	IncrementFailedAttempts(ctx context.Context, id string) (int, error)
	Lock(ctx context.Context, id string, until time.Time) error
	// ResetLoginState zeroes the counter, clears the lock, and stamps last_login.
	ResetLoginState(ctx context.Context, id string, lastLogin time.Time) error
	// ClearLockout zeroes the counter and clears the lock without touching last_login.
	ClearLockout(ctx context.Context, id string) error
	UpdatePassword(ctx context.Context, id string, passwordHash string, changedAt time.Time) error
	EnableMFA(ctx context.Context, id string, secret string, backupCodeHashes []string) error
	DisableMFA(ctx context.Context, id string) error
	UpdateBackupCodes(ctx context.Context, id string, backupCodeHashes []string) error
}
