package domain

import "time"

// LoginSucceededEvent represents the payload for auth.login.succeeded messages.
type LoginSucceededEvent struct {
	EventID    string
	AccountID  string
	Username   string
	MFAUsed    bool
	BackupCode bool
	OccurredAt time.Time
	IPAddress  *string
	Metadata   map[string]any
}

// LoginFailedEvent represents the payload for auth.login.failed messages.
type LoginFailedEvent struct {
	EventID        string
	AccountID      string
	Identifier     string
	Reason         string
	FailedAttempts int
	OccurredAt     time.Time
	IPAddress      *string
	Metadata       map[string]any
}

// AccountLockedEvent represents the payload for auth.account.locked messages.
type AccountLockedEvent struct {
	EventID        string
	AccountID      string
	FailedAttempts int
	LockedUntil    time.Time
	OccurredAt     time.Time
	Metadata       map[string]any
}

// MFAEnabledEvent represents the payload for auth.mfa.enabled messages.
type MFAEnabledEvent struct {
	EventID           string
	AccountID         string
	BackupCodesIssued int
	OccurredAt        time.Time
	Metadata          map[string]any
}

// MFADisabledEvent represents the payload for auth.mfa.disabled messages.
type MFADisabledEvent struct {
	EventID    string
	AccountID  string
	OccurredAt time.Time
	Metadata   map[string]any
}

// PasswordResetRequestedEvent represents the payload for auth.password.reset_requested messages.
type PasswordResetRequestedEvent struct {
	EventID           string
	AccountID         string
	RequestID         string
	RequestedAt       time.Time
	MaskedDestination string
	IPAddress         *string
	ExpiresAt         time.Time
	Metadata          map[string]any
}

// PasswordChangedEvent represents the payload for auth.password.changed messages.
type PasswordChangedEvent struct {
	EventID          string
	AccountID        string
	ChangedAt        time.Time
	ChangedBy        string
	NotificationSent bool
	Metadata         map[string]any
}
