package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/odaiidemos/k9-sub001/internal/core/domain"
	"github.com/odaiidemos/k9-sub001/internal/core/port"
)

// StubPublisher logs events instead of sending them to Kafka. Useful for development environments.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: logger}
}

func (p *StubPublisher) logEvent(eventType, accountID string, at time.Time, payload any) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	p.logger.Info("stub event published",
		zap.String("event_type", eventType),
		zap.String("account_id", accountID),
		zap.Time("timestamp", at.UTC()),
		zap.Any("payload", payload),
	)
}

// PublishLoginSucceeded logs auth.login.succeeded events.
func (p *StubPublisher) PublishLoginSucceeded(_ context.Context, event domain.LoginSucceededEvent) error {
	payload := map[string]any{
		"account_id":  event.AccountID,
		"username":    event.Username,
		"mfa_used":    event.MFAUsed,
		"backup_code": event.BackupCode,
		"occurred_at": event.OccurredAt,
		"ip_address":  event.IPAddress,
		"metadata":    event.Metadata,
	}
	p.logEvent("auth.login.succeeded", event.AccountID, event.OccurredAt, payload)
	return nil
}

// PublishLoginFailed logs auth.login.failed events.
func (p *StubPublisher) PublishLoginFailed(_ context.Context, event domain.LoginFailedEvent) error {
	payload := map[string]any{
		"account_id":      event.AccountID,
		"identifier":      event.Identifier,
		"reason":          event.Reason,
		"failed_attempts": event.FailedAttempts,
		"occurred_at":     event.OccurredAt,
		"ip_address":      event.IPAddress,
		"metadata":        event.Metadata,
	}
	p.logEvent("auth.login.failed", event.AccountID, event.OccurredAt, payload)
	return nil
}

// PublishAccountLocked logs auth.account.locked events.
func (p *StubPublisher) PublishAccountLocked(_ context.Context, event domain.AccountLockedEvent) error {
	payload := map[string]any{
		"account_id":      event.AccountID,
		"failed_attempts": event.FailedAttempts,
		"locked_until":    event.LockedUntil,
		"occurred_at":     event.OccurredAt,
		"metadata":        event.Metadata,
	}
	p.logEvent("auth.account.locked", event.AccountID, event.OccurredAt, payload)
	return nil
}

// PublishMFAEnabled logs auth.mfa.enabled events.
func (p *StubPublisher) PublishMFAEnabled(_ context.Context, event domain.MFAEnabledEvent) error {
	payload := map[string]any{
		"account_id":          event.AccountID,
		"backup_codes_issued": event.BackupCodesIssued,
		"occurred_at":         event.OccurredAt,
		"metadata":            event.Metadata,
	}
	p.logEvent("auth.mfa.enabled", event.AccountID, event.OccurredAt, payload)
	return nil
}

// PublishMFADisabled logs auth.mfa.disabled events.
func (p *StubPublisher) PublishMFADisabled(_ context.Context, event domain.MFADisabledEvent) error {
	payload := map[string]any{
		"account_id":  event.AccountID,
		"occurred_at": event.OccurredAt,
		"metadata":    event.Metadata,
	}
	p.logEvent("auth.mfa.disabled", event.AccountID, event.OccurredAt, payload)
	return nil
}

// PublishPasswordResetRequested logs auth.password.reset_requested events.
func (p *StubPublisher) PublishPasswordResetRequested(_ context.Context, event domain.PasswordResetRequestedEvent) error {
	payload := map[string]any{
		"account_id":         event.AccountID,
		"request_id":         event.RequestID,
		"requested_at":       event.RequestedAt,
		"masked_destination": event.MaskedDestination,
		"ip_address":         event.IPAddress,
		"expires_at":         event.ExpiresAt,
		"metadata":           event.Metadata,
	}
	p.logEvent("auth.password.reset_requested", event.AccountID, event.RequestedAt, payload)
	return nil
}

// PublishPasswordChanged logs auth.password.changed events.
func (p *StubPublisher) PublishPasswordChanged(_ context.Context, event domain.PasswordChangedEvent) error {
	payload := map[string]any{
		"account_id":        event.AccountID,
		"changed_at":        event.ChangedAt,
		"changed_by":        event.ChangedBy,
		"notification_sent": event.NotificationSent,
		"metadata":          event.Metadata,
	}
	p.logEvent("auth.password.changed", event.AccountID, event.ChangedAt, payload)
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
