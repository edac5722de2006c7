package port

import (
	"context"

	"github.com/odaiidemos/k9-sub001/internal/core/domain"
)

// EventPublisher publishes security events to the message bus.
type EventPublisher interface {
	PublishLoginSucceeded(ctx context.Context, event domain.LoginSucceededEvent) error
	PublishLoginFailed(ctx context.Context, event domain.LoginFailedEvent) error
	PublishAccountLocked(ctx context.Context, event domain.AccountLockedEvent) error
	PublishMFAEnabled(ctx context.Context, event domain.MFAEnabledEvent) error
	PublishMFADisabled(ctx context.Context, event domain.MFADisabledEvent) error
	PublishPasswordResetRequested(ctx context.Context, event domain.PasswordResetRequestedEvent) error
	PublishPasswordChanged(ctx context.Context, event domain.PasswordChangedEvent) error
}
