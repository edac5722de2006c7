package domain

import "time"

const (
	// DefaultLockoutMaxAttempts is the failed-attempt threshold that trips a lock.
	DefaultLockoutMaxAttempts = 5
	// DefaultLockoutDuration is the canonical lockout window applied uniformly.
	DefaultLockoutDuration = 15 * time.Minute
)

// LockoutPolicy is the pure state machine governing failed-attempt tracking.
// Every method operates on an Account snapshot plus an explicit instant, so
// transitions are deterministic under test. Persistence of the transitions,
// including the atomic counter increment required under concurrent attempts,
// is the repository's concern.
type LockoutPolicy struct {
	MaxAttempts  int
	LockDuration time.Duration
}

// NewLockoutPolicy builds a policy, substituting defaults for non-positive values.
func NewLockoutPolicy(maxAttempts int, lockDuration time.Duration) LockoutPolicy {
	if maxAttempts <= 0 {
		maxAttempts = DefaultLockoutMaxAttempts
	}
	if lockDuration <= 0 {
		lockDuration = DefaultLockoutDuration
	}
	return LockoutPolicy{MaxAttempts: maxAttempts, LockDuration: lockDuration}
}

// IsLocked reports whether the account rejects attempts at the supplied moment.
// A LockedUntil in the past means unlocked; no eager write is required.
func (p LockoutPolicy) IsLocked(account Account, now time.Time) bool {
	return account.LockedUntil != nil && account.LockedUntil.After(now)
}

// RemainingLockout returns whole minutes until the lock elapses, rounded up,
// and zero for an unlocked account.
func (p LockoutPolicy) RemainingLockout(account Account, now time.Time) int {
	if !p.IsLocked(account, now) {
		return 0
	}
	remaining := account.LockedUntil.Sub(now)
	minutes := int((remaining + time.Minute - 1) / time.Minute)
	if minutes < 0 {
		return 0
	}
	return minutes
}

// ShouldLock reports whether the supplied failed-attempt count trips the lock.
func (p LockoutPolicy) ShouldLock(failedAttempts int) bool {
	return failedAttempts >= p.MaxAttempts
}

// LockUntil computes the lock expiry for a lock applied at the supplied moment.
func (p LockoutPolicy) LockUntil(now time.Time) time.Time {
	return now.Add(p.LockDuration).UTC()
}

// RecordFailure returns the snapshot after one failed attempt: the counter is
// incremented and, at the threshold, LockedUntil is set. An already locked
// snapshot is returned unchanged; attempts against a locked account do not
// re-increment.
func (p LockoutPolicy) RecordFailure(account Account, now time.Time) Account {
	if p.IsLocked(account, now) {
		return account
	}
	account.FailedLoginAttempts++
	if p.ShouldLock(account.FailedLoginAttempts) {
		until := p.LockUntil(now)
		account.LockedUntil = &until
	}
	return account
}

// RecordSuccess returns the snapshot after a successful login or completed
// password reset: counter zeroed, lock cleared. Stamping LastLogin is the
// caller's decision; a password reset clears the lock without one.
func (p LockoutPolicy) RecordSuccess(account Account) Account {
	account.FailedLoginAttempts = 0
	account.LockedUntil = nil
	return account
}
