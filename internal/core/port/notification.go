package port

import "context"

// ResetNotifier delivers password-reset links out of band. Delivery is best
// effort: a failure must not abort the reset request, and the caller never
// tells the requester whether anything was sent.
type ResetNotifier interface {
	SendResetEmail(ctx context.Context, email string, resetLink string, token string) error
}
