package security

import (
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/odaiidemos/k9-sub001/internal/core/port"
)

const (
	totpPeriodSeconds = 30
	totpSecretBytes   = 20
)

// ErrMissingSecret is returned when a TOTP operation is invoked without secret material.
var ErrMissingSecret = fmt.Errorf("totp secret is required")

// TOTP implements port.TOTPProvider on RFC 6238 semantics: 30-second steps,
// six digits, SHA-1, and a skew tolerance of exactly one step either side.
type TOTP struct {
	issuer string
}

// NewTOTP constructs a provider that stamps provisioning URIs with the
// supplied issuer name.
func NewTOTP(issuer string) *TOTP {
	issuer = strings.TrimSpace(issuer)
	if issuer == "" {
		issuer = "k9-auth"
	}
	return &TOTP{issuer: issuer}
}

// GenerateSecret returns a fresh 20-byte secret encoded as unpadded base32
// for manual transcription into an authenticator app.
func (p *TOTP) GenerateSecret() (string, error) {
	raw := make([]byte, totpSecretBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("totp: generate secret: %w", err)
	}

	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(raw), nil
}

// ProvisioningURI renders the otpauth:// URL an authenticator app consumes.
// The secret leaves the process through this call and nowhere else.
func (p *TOTP) ProvisioningURI(accountLabel string, secret string) (string, error) {
	accountLabel = strings.TrimSpace(accountLabel)
	if accountLabel == "" {
		return "", fmt.Errorf("totp: account label is required")
	}
	raw, err := decodeTOTPSecret(secret)
	if err != nil {
		return "", err
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      p.issuer,
		AccountName: accountLabel,
		Period:      totpPeriodSeconds,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
		Secret:      raw,
	})
	if err != nil {
		return "", fmt.Errorf("totp: build provisioning key: %w", err)
	}

	return key.URL(), nil
}

// Verify checks the submitted code against the current step and exactly one
// adjacent step on either side, reporting the step that matched so callers
// can refuse a replay of the same step. Malformed input verifies as false.
func (p *TOTP) Verify(secret string, code string, at time.Time) (bool, int64) {
	code = strings.TrimSpace(code)
	if secret == "" || code == "" {
		return false, 0
	}

	opts := totp.ValidateOpts{
		Period:    totpPeriodSeconds,
		Skew:      0,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	}

	// Probing each candidate step with zero skew identifies which step the
	// code belongs to; a plain skew-1 validation would only say "some step".
	for _, offset := range []int64{0, -1, 1} {
		probe := at.Add(time.Duration(offset*totpPeriodSeconds) * time.Second)
		ok, err := totp.ValidateCustom(code, secret, probe, opts)
		if err == nil && ok {
			return true, probe.Unix() / totpPeriodSeconds
		}
	}

	return false, 0
}

// StepTTL is how long a consumed time-step must be remembered to cover the
// full skew window.
func (p *TOTP) StepTTL() time.Duration {
	return 3 * totpPeriodSeconds * time.Second
}

func decodeTOTPSecret(secret string) ([]byte, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, ErrMissingSecret
	}

	if padding := len(secret) % 8; padding != 0 {
		secret += strings.Repeat("=", 8-padding)
	}

	raw, err := base32.StdEncoding.DecodeString(strings.ToUpper(secret))
	if err != nil {
		return nil, fmt.Errorf("totp: decode secret: %w", err)
	}

	return raw, nil
}

var _ port.TOTPProvider = (*TOTP)(nil)
