package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odaiidemos/k9-sub001/internal/core/domain"
	"github.com/odaiidemos/k9-sub001/internal/core/port"
)

// AuditLogRepository implements port.AuditLog using PostgreSQL. The table is
// append-only: no update or delete statement exists in this file on purpose.
type AuditLogRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewAuditLogRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewAuditLogRepository(exec pgExecutor) *AuditLogRepository {
	repo := &AuditLogRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		repo.pool = pool
	}
	return repo
}

// Append inserts one audit entry and returns it with the assigned id. Events
// without a timestamp receive the server clock.
func (r *AuditLogRepository) Append(ctx context.Context, event domain.AuditEvent) (*domain.AuditEvent, error) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	details, err := marshalDetails(event.Details)
	if err != nil {
		return nil, fmt.Errorf("prepare audit details: %w", err)
	}

	stmt, args, err := r.builder.Insert("auth.audit_events").
		Columns(
			"actor",
			"kind",
			"target_id",
			"occurred_at",
			"details",
			"ip",
			"user_agent",
		).
		Values(
			event.Actor,
			event.Kind,
			textOrNil(event.TargetID),
			event.OccurredAt,
			details,
			textOrNil(event.IP),
			textOrNil(event.UserAgent),
		).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build insert audit event sql: %w", err)
	}

	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&event.ID); err != nil {
		return nil, fmt.Errorf("insert audit event: %w", err)
	}

	return &event, nil
}

// QueryByActor lists the most recent events recorded for an actor.
func (r *AuditLogRepository) QueryByActor(ctx context.Context, actor string, limit int) ([]domain.AuditEvent, error) {
	query := r.builder.Select(auditColumns...).
		From("auth.audit_events").
		Where(squirrel.Eq{"actor": actor}).
		OrderBy("occurred_at DESC", "id DESC")

	if limit > 0 {
		query = query.Limit(uint64(limit))
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select audit by actor sql: %w", err)
	}

	return r.queryEvents(ctx, stmt, args)
}

// QueryByKindAndTarget lists the most recent events of one kind about a target account.
func (r *AuditLogRepository) QueryByKindAndTarget(ctx context.Context, kind domain.AuditKind, targetID string, limit int) ([]domain.AuditEvent, error) {
	query := r.builder.Select(auditColumns...).
		From("auth.audit_events").
		Where(squirrel.Eq{"kind": kind}).
		Where(squirrel.Eq{"target_id": targetID}).
		OrderBy("occurred_at DESC", "id DESC")

	if limit > 0 {
		query = query.Limit(uint64(limit))
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select audit by kind sql: %w", err)
	}

	return r.queryEvents(ctx, stmt, args)
}

var auditColumns = []string{
	"id",
	"actor",
	"kind",
	"target_id",
	"occurred_at",
	"details",
	"ip",
	"user_agent",
}

func (r *AuditLogRepository) queryEvents(ctx context.Context, stmt string, args []any) ([]domain.AuditEvent, error) {
	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	events := make([]domain.AuditEvent, 0)
	for rows.Next() {
		var (
			event     domain.AuditEvent
			targetID  sql.NullString
			details   []byte
			ip        sql.NullString
			userAgent sql.NullString
		)

		if err := rows.Scan(
			&event.ID,
			&event.Actor,
			&event.Kind,
			&targetID,
			&event.OccurredAt,
			&details,
			&ip,
			&userAgent,
		); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				continue
			}
			return nil, fmt.Errorf("scan audit event: %w", err)
		}

		event.TargetID = fromNullString(targetID)
		event.IP = fromNullString(ip)
		event.UserAgent = fromNullString(userAgent)
		if len(details) > 0 {
			parsed, err := unmarshalDetails(details)
			if err != nil {
				return nil, fmt.Errorf("unmarshal audit details: %w", err)
			}
			event.Details = parsed
		}

		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}

	return events, nil
}

func marshalDetails(details map[string]any) ([]byte, error) {
	if details == nil {
		return nil, nil
	}

	payload, err := json.Marshal(details)
	if err != nil {
		return nil, fmt.Errorf("marshal details: %w", err)
	}
	return payload, nil
}

func unmarshalDetails(payload []byte) (map[string]any, error) {
	if len(payload) == 0 {
		return nil, nil
	}

	var details map[string]any
	if err := json.Unmarshal(payload, &details); err != nil {
		return nil, err
	}
	return details, nil
}

var _ port.AuditLog = (*AuditLogRepository)(nil)
