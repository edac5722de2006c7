package port

import (
	"time"

	"github.com/odaiidemos/k9-sub001/internal/core/domain"
)

// PasswordHasher derives and checks password hashes. Verify treats a
// malformed stored hash as a non-match rather than a failure, so corrupt
// rows cannot be told apart from wrong passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password string, encoded string) (bool, error)
}

// PasswordPolicyValidator decides whether a candidate password is acceptable
// given the surrounding account context.
type PasswordPolicyValidator interface {
	Validate(password string, ctx domain.PasswordContext) error
}

// TOTPProvider generates MFA secrets, provisioning URIs, and verifies
// time-based codes with a clock-skew tolerance of exactly one step either
// side. Verify reports the matched step so callers can refuse replay of the
// same step; the step is meaningful only when ok is true. Malformed secrets
// or codes verify as false, never as an error.
type TOTPProvider interface {
	GenerateSecret() (string, error)
	ProvisioningURI(accountLabel string, secret string) (string, error)
	Verify(secret string, code string, at time.Time) (ok bool, step int64)
}
