package domain

import "time"

// Account mirrors the security-relevant subset of the accounts table.
// Creation and destruction of accounts belong to the surrounding records
// application; this core only reads and mutates the fields below.
type Account struct {
	ID                  string
	Username            string
	Email               string
	PasswordHash        string
	Active              bool
	FailedLoginAttempts int
	LockedUntil         *time.Time
	LastLogin           *time.Time
	PasswordChangedAt   time.Time
	MFAEnabled          bool
	MFASecret           *string
	BackupCodes         []string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// HasMFA reports whether multi-factor verification is required at login.
// MFASecret is set if and only if enrollment has completed, so both fields
// are checked to guard against a half-written row.
func (a Account) HasMFA() bool {
	return a.MFAEnabled && a.MFASecret != nil && *a.MFASecret != ""
}

// PasswordContext carries user-derived inputs a password must not resemble.
type PasswordContext struct {
	Username string
	Email    string
}

// ActorSystem identifies audit events not attributable to a specific account
// (unknown identifiers, reset requests for non-existent emails).
const ActorSystem = "system"
