package domain

import (
	"testing"
	"time"
)

func TestLockoutPolicyThresholdTransition(t *testing.T) {
	policy := NewLockoutPolicy(5, 15*time.Minute)
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	account := Account{ID: "acct-1", FailedLoginAttempts: 4}

	updated := policy.RecordFailure(account, now)
	if updated.FailedLoginAttempts != 5 {
		t.Fatalf("expected 5 failed attempts, got %d", updated.FailedLoginAttempts)
	}
	if updated.LockedUntil == nil {
		t.Fatal("expected account to be locked at threshold")
	}
	if want := now.Add(15 * time.Minute); !updated.LockedUntil.Equal(want) {
		t.Fatalf("expected lock until %v, got %v", want, *updated.LockedUntil)
	}
}

func TestLockoutPolicyBelowThresholdIncrementsOnly(t *testing.T) {
	policy := NewLockoutPolicy(5, 15*time.Minute)
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	account := Account{FailedLoginAttempts: 2}
	updated := policy.RecordFailure(account, now)

	if updated.FailedLoginAttempts != 3 {
		t.Fatalf("expected 3 failed attempts, got %d", updated.FailedLoginAttempts)
	}
	if updated.LockedUntil != nil {
		t.Fatal("did not expect a lock below the threshold")
	}
}

func TestLockoutPolicyLockedAccountNotReincremented(t *testing.T) {
	policy := NewLockoutPolicy(5, 15*time.Minute)
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	until := now.Add(10 * time.Minute)

	account := Account{FailedLoginAttempts: 5, LockedUntil: &until}
	updated := policy.RecordFailure(account, now)

	if updated.FailedLoginAttempts != 5 {
		t.Fatalf("locked account counter changed: %d", updated.FailedLoginAttempts)
	}
	if !updated.LockedUntil.Equal(until) {
		t.Fatalf("lock expiry moved from %v to %v", until, *updated.LockedUntil)
	}
}

func TestLockoutPolicyLazyExpiry(t *testing.T) {
	policy := NewLockoutPolicy(5, 15*time.Minute)
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Second)

	account := Account{FailedLoginAttempts: 5, LockedUntil: &past}

	if policy.IsLocked(account, now) {
		t.Fatal("expired lock must read as unlocked without a write")
	}
	if got := policy.RemainingLockout(account, now); got != 0 {
		t.Fatalf("expected zero remaining minutes, got %d", got)
	}

	// A new failure after expiry is evaluated as if OPEN.
	updated := policy.RecordFailure(account, now)
	if updated.FailedLoginAttempts != 6 {
		t.Fatalf("expected counter to advance past a stale lock, got %d", updated.FailedLoginAttempts)
	}
}

func TestLockoutPolicyRemainingMinutesRoundsUp(t *testing.T) {
	policy := NewLockoutPolicy(5, 15*time.Minute)
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name      string
		remaining time.Duration
		want      int
	}{
		{"whole minutes", 15 * time.Minute, 15},
		{"partial minute rounds up", 14*time.Minute + time.Second, 15},
		{"under a minute", 30 * time.Second, 1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			until := now.Add(tc.remaining)
			account := Account{LockedUntil: &until}
			if got := policy.RemainingLockout(account, now); got != tc.want {
				t.Fatalf("expected %d minutes, got %d", tc.want, got)
			}
		})
	}
}

func TestLockoutPolicyRecordSuccessClearsState(t *testing.T) {
	policy := NewLockoutPolicy(5, 15*time.Minute)
	until := time.Date(2025, 3, 10, 12, 30, 0, 0, time.UTC)

	account := Account{FailedLoginAttempts: 5, LockedUntil: &until}
	updated := policy.RecordSuccess(account)

	if updated.FailedLoginAttempts != 0 {
		t.Fatalf("expected counter reset, got %d", updated.FailedLoginAttempts)
	}
	if updated.LockedUntil != nil {
		t.Fatal("expected lock cleared")
	}
}

func TestNewLockoutPolicyDefaults(t *testing.T) {
	policy := NewLockoutPolicy(0, 0)
	if policy.MaxAttempts != DefaultLockoutMaxAttempts {
		t.Fatalf("expected default max attempts, got %d", policy.MaxAttempts)
	}
	if policy.LockDuration != DefaultLockoutDuration {
		t.Fatalf("expected default duration, got %v", policy.LockDuration)
	}
}
