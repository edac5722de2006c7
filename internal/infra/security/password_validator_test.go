package security

import (
	"errors"
	"strings"
	"testing"

	zxcvbn "github.com/nbutton23/zxcvbn-go"

	"github.com/odaiidemos/k9-sub001/internal/core/domain"
)

func violationCode(t *testing.T, err error) string {
	t.Helper()

	if err == nil {
		t.Fatal("expected a violation, got nil")
	}
	var vErr *PasswordValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected PasswordValidationError, got %T", err)
	}
	return vErr.Code
}

func TestDefaultPasswordValidatorAcceptsStrongPassword(t *testing.T) {
	password := "C0mplex!Passphrase#2025"
	if strength := zxcvbn.PasswordStrength(password, nil); strength.Score < defaultMinZxcvbnScore {
		t.Fatalf("test password unexpectedly weak: score=%d", strength.Score)
	}

	if err := DefaultPasswordValidator().Validate(password); err != nil {
		t.Fatalf("expected password to pass validation, got %v", err)
	}
}

func TestDefaultPasswordValidatorViolations(t *testing.T) {
	validator := DefaultPasswordValidator()

	cases := map[string]struct {
		password string
		code     string
	}{
		"too short":    {"Short1!", "min_length"},
		"single class": {"lowercasepassword", "character_classes"},
		"denylisted":   {"Password123", "common_password"},
		"guessable":    {"Sunshine2024", "weak_password"},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if code := violationCode(t, validator.Validate(tc.password)); code != tc.code {
				t.Fatalf("expected %s, got %s", tc.code, code)
			}
		})
	}
}

func TestCommonPasswordRuleIsCaseInsensitive(t *testing.T) {
	rule := RejectCommonPasswordsRule(commonPasswords)

	if rule("  QwErTyUiOp ") == nil {
		t.Fatal("expected denylisted password to be rejected regardless of case")
	}
	if err := rule("velvet-otter-range"); err != nil {
		t.Fatalf("expected non-listed password to pass, got %v", err)
	}
}

func TestCustomRuleComposesWithBuiltins(t *testing.T) {
	noSpaces := func(password string) error {
		if strings.ContainsRune(password, ' ') {
			return violation("no_spaces", "password must not contain spaces")
		}
		return nil
	}
	validator := NewPasswordValidator(
		MinLengthRule(4),
		RequireCharacterClassesRule(2),
		noSpaces,
	)

	for password, wantCode := range map[string]string{
		"ab1":        "min_length",
		"lowercase":  "character_classes",
		"pass word1": "no_spaces",
	} {
		if code := violationCode(t, validator.Validate(password)); code != wantCode {
			t.Fatalf("Validate(%q): expected %s, got %s", password, wantCode, code)
		}
	}

	if err := validator.Validate("Fetch7"); err != nil {
		t.Fatalf("expected password to pass custom validation, got %v", err)
	}
}

func TestValidateAllCollectsEveryViolation(t *testing.T) {
	validator := NewPasswordValidator(
		MinLengthRule(8),
		RequireCharacterClassesRule(3),
	)

	violations := validator.ValidateAll("abc")
	if len(violations) != 2 {
		t.Fatalf("expected 2 violations, got %d: %v", len(violations), violations)
	}

	first := validator.Validate("abc")
	if first == nil || first.Error() != violations[0].Error() {
		t.Fatalf("expected Validate to return the first violation, got %v", first)
	}
}

func TestPasswordPolicyUsesAccountContext(t *testing.T) {
	policy := NewPasswordPolicy()

	err := policy.Validate("Kennelmaster#2025", domain.PasswordContext{
		Username: "kennelmaster",
		Email:    "kennelmaster@example.com",
	})
	if code := violationCode(t, err); code != "weak_password" {
		t.Fatalf("expected weak_password code, got %s", code)
	}
}
