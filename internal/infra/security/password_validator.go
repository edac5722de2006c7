package security

import (
	"errors"
	"fmt"
	"math/bits"
	"strings"
	"unicode"
	"unicode/utf8"

	zxcvbn "github.com/nbutton23/zxcvbn-go"
)

var errNoValidator = errors.New("password validator not configured")

// PasswordValidationError is a single policy violation. Code is a stable
// machine-readable identifier; Message is safe to surface to the end user.
type PasswordValidationError struct {
	Code    string
	Message string
}

func (e *PasswordValidationError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func violation(code, format string, args ...any) *PasswordValidationError {
	return &PasswordValidationError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// PasswordRule checks one aspect of a candidate password and returns a
// violation when it fails.
type PasswordRule func(password string) error

// PasswordValidator runs a fixed sequence of rules against a password.
type PasswordValidator struct {
	rules []PasswordRule
}

// NewPasswordValidator builds a validator over a copy of the given rules.
func NewPasswordValidator(rules ...PasswordRule) *PasswordValidator {
	return &PasswordValidator{rules: append([]PasswordRule(nil), rules...)}
}

// Validate returns the first violation in rule order, or nil when every rule
// passes.
func (v *PasswordValidator) Validate(password string) error {
	if v == nil {
		return errNoValidator
	}
	for _, rule := range v.rules {
		if err := rule(password); err != nil {
			return err
		}
	}
	return nil
}

// ValidateAll runs every rule and collects each violation instead of stopping
// at the first, so callers can report the full list of problems.
func (v *PasswordValidator) ValidateAll(password string) []error {
	if v == nil {
		return []error{errNoValidator}
	}
	var violations []error
	for _, rule := range v.rules {
		if err := rule(password); err != nil {
			violations = append(violations, err)
		}
	}
	return violations
}

// MinLengthRule requires at least min characters, counted as runes.
func MinLengthRule(min int) PasswordRule {
	return func(password string) error {
		if utf8.RuneCountInString(password) >= min {
			return nil
		}
		return violation("min_length", "password must be at least %d characters", min)
	}
}

// Character class bits for RequireCharacterClassesRule.
const (
	classUpper = 1 << iota
	classLower
	classDigit
	classSymbol
)

// RequireCharacterClassesRule requires characters from at least min of the
// four classes: uppercase, lowercase, digit, and symbol. Punctuation counts
// as a symbol.
func RequireCharacterClassesRule(min int) PasswordRule {
	return func(password string) error {
		if min <= 0 {
			return nil
		}

		var classes uint8
		for _, r := range password {
			switch {
			case unicode.IsUpper(r):
				classes |= classUpper
			case unicode.IsLower(r):
				classes |= classLower
			case unicode.IsDigit(r):
				classes |= classDigit
			case unicode.IsSymbol(r) || unicode.IsPunct(r):
				classes |= classSymbol
			}
		}

		if bits.OnesCount8(classes) >= min {
			return nil
		}
		return violation("character_classes", "password must mix at least %d character types", min)
	}
}

// RejectCommonPasswordsRule refuses passwords present in the supplied
// denylist. Matching is case-insensitive on the trimmed value.
func RejectCommonPasswordsRule(denylist map[string]struct{}) PasswordRule {
	return func(password string) error {
		if len(denylist) == 0 {
			return nil
		}
		if _, found := denylist[strings.ToLower(strings.TrimSpace(password))]; found {
			return violation("common_password", "password is too common; choose a less predictable value")
		}
		return nil
	}
}

// RequirePasswordStrengthRule rejects passwords scoring below minScore on the
// zxcvbn scale of 0 to 4. Optional userInputs, such as the account's username
// and email, lower the score of passwords derived from them.
func RequirePasswordStrengthRule(minScore int, userInputs ...string) PasswordRule {
	return func(password string) error {
		if minScore <= 0 {
			return nil
		}
		if zxcvbn.PasswordStrength(password, userInputs).Score >= min(minScore, 4) {
			return nil
		}
		return violation("weak_password", "password is too weak; choose a more complex value")
	}
}
