package port

import (
	"context"
	"time"
)

// PendingMFAStore holds enrollment secrets between the enable and confirm
// calls. Keeping the unconfirmed secret out of the account row preserves the
// invariant that mfa_secret is set exactly when enrollment has completed.
type PendingMFAStore interface {
	StorePending(ctx context.Context, accountID string, secret string, ttl time.Duration) error
	FetchPending(ctx context.Context, accountID string) (string, error)
	DeletePending(ctx context.Context, accountID string) error
}

// TOTPReplayGuard remembers accepted time-steps per account. MarkUsed
// returns false when the step was already consumed, which callers treat as
// an invalid code.
type TOTPReplayGuard interface {
	MarkUsed(ctx context.Context, accountID string, step int64, ttl time.Duration) (bool, error)
}
