package port

import (
	"context"

	"github.com/odaiidemos/k9-sub001/internal/core/domain"
)

// AuditLog is the append-only security trail. Append assigns a server
// timestamp when the event carries none and returns the stored entry.
// Append failures propagate; the caller decides whether the triggering
// operation survives them. Entries are never updated or deleted.
type AuditLog interface {
	Append(ctx context.Context, event domain.AuditEvent) (*domain.AuditEvent, error)
	QueryByActor(ctx context.Context, actor string, limit int) ([]domain.AuditEvent, error)
	QueryByKindAndTarget(ctx context.Context, kind domain.AuditKind, targetID string, limit int) ([]domain.AuditEvent, error)
}
