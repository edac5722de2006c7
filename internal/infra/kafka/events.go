package kafka

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/odaiidemos/k9-sub001/internal/core/domain"
	"github.com/odaiidemos/k9-sub001/internal/core/port"
	"github.com/odaiidemos/k9-sub001/internal/infra/config"
)

const schemaVersion = "1.0"

// EventPublisher emits security events to Kafka as versioned JSON envelopes.
type EventPublisher struct {
	producer *Producer
	app      config.AppSettings
}

// NewEventPublisher wraps the producer under the given service identity.
func NewEventPublisher(producer *Producer, app config.AppSettings) *EventPublisher {
	return &EventPublisher{producer: producer, app: app}
}

type envelopeMetadata map[string]string

// eventEnvelope is the wire shape shared by every event topic.
type eventEnvelope struct {
	EventID   string           `json:"event_id"`
	EventType string           `json:"event_type"`
	AccountID string           `json:"account_id,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Version   string           `json:"version"`
	Payload   any              `json:"payload"`
	Metadata  envelopeMetadata `json:"metadata,omitempty"`
}

func (p *EventPublisher) publish(ctx context.Context, eventID, eventType, accountID string, ts time.Time, payload any) error {
	if eventID == "" {
		eventID = uuid.NewString()
	}
	if ts.IsZero() {
		ts = time.Now()
	}

	body, err := json.Marshal(eventEnvelope{
		EventID:   eventID,
		EventType: eventType,
		AccountID: accountID,
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Payload:   payload,
		Metadata:  p.stamp(ctx),
	})
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	return p.producer.Send(ctx, eventType, body)
}

// stamp labels the envelope with the emitting service and, when the caller is
// traced, the trace ID.
func (p *EventPublisher) stamp(ctx context.Context) envelopeMetadata {
	md := envelopeMetadata{
		"service":     p.app.Name,
		"environment": p.app.Env,
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		md["trace_id"] = sc.TraceID().String()
	}
	return md
}

// PublishLoginSucceeded publishes auth.login.succeeded events.
func (p *EventPublisher) PublishLoginSucceeded(ctx context.Context, event domain.LoginSucceededEvent) error {
	payload := struct {
		AccountID  string         `json:"account_id"`
		Username   string         `json:"username"`
		MFAUsed    bool           `json:"mfa_used"`
		BackupCode bool           `json:"backup_code"`
		OccurredAt time.Time      `json:"occurred_at"`
		IPAddress  *string        `json:"ip_address,omitempty"`
		Metadata   map[string]any `json:"metadata,omitempty"`
	}{
		AccountID:  event.AccountID,
		Username:   event.Username,
		MFAUsed:    event.MFAUsed,
		BackupCode: event.BackupCode,
		OccurredAt: event.OccurredAt.UTC(),
		IPAddress:  event.IPAddress,
		Metadata:   event.Metadata,
	}

	return p.publish(ctx, event.EventID, "auth.login.succeeded", event.AccountID, event.OccurredAt, payload)
}

// PublishLoginFailed publishes auth.login.failed events.
func (p *EventPublisher) PublishLoginFailed(ctx context.Context, event domain.LoginFailedEvent) error {
	payload := struct {
		AccountID      string         `json:"account_id,omitempty"`
		Identifier     string         `json:"identifier"`
		Reason         string         `json:"reason"`
		FailedAttempts int            `json:"failed_attempts"`
		OccurredAt     time.Time      `json:"occurred_at"`
		IPAddress      *string        `json:"ip_address,omitempty"`
		Metadata       map[string]any `json:"metadata,omitempty"`
	}{
		AccountID:      event.AccountID,
		Identifier:     event.Identifier,
		Reason:         event.Reason,
		FailedAttempts: event.FailedAttempts,
		OccurredAt:     event.OccurredAt.UTC(),
		IPAddress:      event.IPAddress,
		Metadata:       event.Metadata,
	}

	return p.publish(ctx, event.EventID, "auth.login.failed", event.AccountID, event.OccurredAt, payload)
}

// PublishAccountLocked publishes auth.account.locked events.
func (p *EventPublisher) PublishAccountLocked(ctx context.Context, event domain.AccountLockedEvent) error {
	payload := struct {
		AccountID      string         `json:"account_id"`
		FailedAttempts int            `json:"failed_attempts"`
		LockedUntil    time.Time      `json:"locked_until"`
		OccurredAt     time.Time      `json:"occurred_at"`
		Metadata       map[string]any `json:"metadata,omitempty"`
	}{
		AccountID:      event.AccountID,
		FailedAttempts: event.FailedAttempts,
		LockedUntil:    event.LockedUntil.UTC(),
		OccurredAt:     event.OccurredAt.UTC(),
		Metadata:       event.Metadata,
	}

	return p.publish(ctx, event.EventID, "auth.account.locked", event.AccountID, event.OccurredAt, payload)
}

// PublishMFAEnabled publishes auth.mfa.enabled events.
func (p *EventPublisher) PublishMFAEnabled(ctx context.Context, event domain.MFAEnabledEvent) error {
	payload := struct {
		AccountID         string         `json:"account_id"`
		BackupCodesIssued int            `json:"backup_codes_issued"`
		OccurredAt        time.Time      `json:"occurred_at"`
		Metadata          map[string]any `json:"metadata,omitempty"`
	}{
		AccountID:         event.AccountID,
		BackupCodesIssued: event.BackupCodesIssued,
		OccurredAt:        event.OccurredAt.UTC(),
		Metadata:          event.Metadata,
	}

	return p.publish(ctx, event.EventID, "auth.mfa.enabled", event.AccountID, event.OccurredAt, payload)
}

// PublishMFADisabled publishes auth.mfa.disabled events.
func (p *EventPublisher) PublishMFADisabled(ctx context.Context, event domain.MFADisabledEvent) error {
	payload := struct {
		AccountID  string         `json:"account_id"`
		OccurredAt time.Time      `json:"occurred_at"`
		Metadata   map[string]any `json:"metadata,omitempty"`
	}{
		AccountID:  event.AccountID,
		OccurredAt: event.OccurredAt.UTC(),
		Metadata:   event.Metadata,
	}

	return p.publish(ctx, event.EventID, "auth.mfa.disabled", event.AccountID, event.OccurredAt, payload)
}

// PublishPasswordResetRequested publishes auth.password.reset_requested
// events. The envelope timestamp falls back to the token expiry when the
// request time is absent.
func (p *EventPublisher) PublishPasswordResetRequested(ctx context.Context, event domain.PasswordResetRequestedEvent) error {
	payload := struct {
		AccountID         string         `json:"account_id"`
		RequestID         string         `json:"request_id"`
		RequestedAt       time.Time      `json:"requested_at"`
		MaskedDestination string         `json:"masked_destination,omitempty"`
		IPAddress         *string        `json:"ip_address,omitempty"`
		ExpiresAt         time.Time      `json:"expires_at"`
		Metadata          map[string]any `json:"metadata,omitempty"`
	}{
		AccountID:         event.AccountID,
		RequestID:         event.RequestID,
		RequestedAt:       event.RequestedAt.UTC(),
		MaskedDestination: event.MaskedDestination,
		IPAddress:         event.IPAddress,
		ExpiresAt:         event.ExpiresAt.UTC(),
		Metadata:          event.Metadata,
	}

	ts := cmp.Or(event.RequestedAt, event.ExpiresAt)
	return p.publish(ctx, event.EventID, "auth.password.reset_requested", event.AccountID, ts, payload)
}

// PublishPasswordChanged publishes auth.password.changed events.
func (p *EventPublisher) PublishPasswordChanged(ctx context.Context, event domain.PasswordChangedEvent) error {
	payload := struct {
		AccountID        string         `json:"account_id"`
		ChangedAt        time.Time      `json:"changed_at"`
		ChangedBy        string         `json:"changed_by"`
		NotificationSent bool           `json:"notification_sent"`
		Metadata         map[string]any `json:"metadata,omitempty"`
	}{
		AccountID:        event.AccountID,
		ChangedAt:        event.ChangedAt.UTC(),
		ChangedBy:        event.ChangedBy,
		NotificationSent: event.NotificationSent,
		Metadata:         event.Metadata,
	}

	return p.publish(ctx, event.EventID, "auth.password.changed", event.AccountID, event.ChangedAt, payload)
}

var _ port.EventPublisher = (*EventPublisher)(nil)
