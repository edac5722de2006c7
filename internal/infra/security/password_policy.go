package security

import (
	"errors"

	"github.com/odaiidemos/k9-sub001/internal/core/domain"
	"github.com/odaiidemos/k9-sub001/internal/core/port"
)

var _ port.PasswordPolicyValidator = (*PasswordPolicy)(nil)

const (
	defaultMinPasswordLength   = 10
	defaultMinCharacterClasses = 3
	defaultMinZxcvbnScore      = 3
)

// commonPasswords is the built-in denylist of values rejected outright
// before any strength scoring. Entries are lowercase.
var commonPasswords = denylist(
	"password", "password1", "password123", "password1234",
	"passw0rd", "passw0rd123", "p@ssword", "p@ssw0rd",
	"123456", "1234567", "12345678", "123456789", "1234567890",
	"qwerty", "qwerty123", "qwertyuiop", "q1w2e3r4t5y6", "1q2w3e4r5t",
	"1qaz2wsx", "zaq12wsx", "abc123", "abcd1234", "iloveyou",
	"letmein", "letmein1", "welcome", "welcome1", "admin",
	"administrator", "root", "trustno1", "sunshine", "princess",
	"football", "baseball", "superman", "starwars", "dragon",
	"monkey", "shadow", "master", "freedom", "whatever",
	"secret", "hunter2", "changeme", "changeme123", "default",
)

func denylist(values ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

func policyRules(userInputs ...string) []PasswordRule {
	return []PasswordRule{
		MinLengthRule(defaultMinPasswordLength),
		RequireCharacterClassesRule(defaultMinCharacterClasses),
		RejectCommonPasswordsRule(commonPasswords),
		RequirePasswordStrengthRule(defaultMinZxcvbnScore, userInputs...),
	}
}

// DefaultPasswordValidator returns the built-in validator enforcing the
// service password policy: minimum length, character class mix, the
// common-password denylist, and zxcvbn strength.
func DefaultPasswordValidator() *PasswordValidator {
	return NewPasswordValidator(policyRules()...)
}

// NewPasswordValidatorWithContext includes additional user inputs, such as
// the account's username and email, when scoring strength. Passwords derived
// from those inputs score lower.
func NewPasswordValidatorWithContext(userInputs ...string) *PasswordValidator {
	return NewPasswordValidator(policyRules(userInputs...)...)
}

// PasswordPolicy adapts the password validator to the domain-level policy
// interface.
type PasswordPolicy struct {
	factory func(inputs []string) *PasswordValidator
}

// NewPasswordPolicy builds a policy that folds the account's username and
// email into strength scoring.
func NewPasswordPolicy() *PasswordPolicy {
	return &PasswordPolicy{
		factory: func(inputs []string) *PasswordValidator {
			return NewPasswordValidatorWithContext(inputs...)
		},
	}
}

// Validate applies the configured validator. Every failed rule is reported,
// joined into a single error, so the caller can surface the complete list of
// problems at once.
func (p *PasswordPolicy) Validate(password string, ctx domain.PasswordContext) error {
	if p == nil || p.factory == nil {
		return errors.New("password policy not configured")
	}

	var inputs []string
	for _, input := range []string{ctx.Username, ctx.Email} {
		if input != "" {
			inputs = append(inputs, input)
		}
	}

	validator := p.factory(inputs)
	if validator == nil {
		return errors.New("password validator not configured")
	}

	return errors.Join(validator.ValidateAll(password)...)
}
