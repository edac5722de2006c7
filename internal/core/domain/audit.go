package domain

import "time"

// AuditKind enumerates the security events the audit trail records.
type AuditKind string

const (
	AuditSuccessfulLogin            AuditKind = "SUCCESSFUL_LOGIN"
	AuditFailedLoginAttempt         AuditKind = "FAILED_LOGIN_ATTEMPT"
	AuditLockedAccountAccessAttempt AuditKind = "LOCKED_ACCOUNT_ACCESS_ATTEMPT"
	AuditMFAEnabled                 AuditKind = "MFA_ENABLED"
	AuditMFADisabled                AuditKind = "MFA_DISABLED"
	AuditBackupCodeUsed             AuditKind = "BACKUP_CODE_USED"
	AuditPasswordResetRequested     AuditKind = "PASSWORD_RESET_REQUESTED"
	AuditPasswordResetCompleted     AuditKind = "PASSWORD_RESET_COMPLETED"
	AuditPasswordChanged            AuditKind = "PASSWORD_CHANGED"
)

// AuditEvent is one immutable entry in the append-only security trail.
// Actor is an account id or ActorSystem; TargetID names the account the
// event is about when that differs from the actor or the actor is unknown.
type AuditEvent struct {
	ID         int64
	Actor      string
	Kind       AuditKind
	TargetID   *string
	OccurredAt time.Time
	Details    map[string]any
	IP         *string
	UserAgent  *string
}
