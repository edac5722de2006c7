package domain

import "time"

// TokenType discriminates the two stateless credential kinds. The value is
// embedded in the signed claims so a refresh token can never stand in for an
// access token or vice versa.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// TokenPair carries the credentials issued on a successful login. Neither
// token is persisted server-side; validity is proven by signature and expiry
// alone.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int
}

// TokenRevocation marks a token identifier as refused ahead of its natural
// expiry. Entries outlive their token by nothing: TTL equals the remaining
// lifetime at revocation.
type TokenRevocation struct {
	JTI       string
	ExpiresAt time.Time
	Reason    string
}

// PasswordResetToken models a single-use reset credential. The raw value is
// returned to the requester exactly once; only its hash is stored.
type PasswordResetToken struct {
	ID        string
	AccountID string
	TokenHash string
	IP        *string
	UserAgent *string
	CreatedAt time.Time
	ExpiresAt time.Time
	UsedAt    *time.Time
	RevokedAt *time.Time
}

// IsExpired reports whether the reset token can still be redeemed.
func (t PasswordResetToken) IsExpired(at time.Time) bool {
	return !t.ExpiresAt.After(at)
}

// Consume marks the reset token as used.
// Returns true when the token transitions from unused to used.
func (t *PasswordResetToken) Consume(at time.Time) bool {
	return stampOnce(&t.UsedAt, at)
}

// Revoke marks the reset token as superseded.
func (t *PasswordResetToken) Revoke(at time.Time) bool {
	return stampOnce(&t.RevokedAt, at)
}

// stampOnce records at into dst unless a timestamp is already present,
// reporting whether the state changed.
func stampOnce(dst **time.Time, at time.Time) bool {
	if *dst != nil {
		return false
	}
	*dst = &at
	return true
}
