package postgres

import (
	"context"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v2"

	"github.com/odaiidemos/k9-sub001/internal/core/domain"
)

func TestAuditLogRepository_AppendAssignsID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewAuditLogRepository(mock)

	occurredAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	ip := "203.0.113.9"
	event := domain.AuditEvent{
		Actor:      "acc-1",
		Kind:       domain.AuditSuccessfulLogin,
		OccurredAt: occurredAt,
		Details:    map[string]any{"method": "totp"},
		IP:         &ip,
	}

	mock.ExpectQuery(`INSERT INTO auth\.audit_events .*RETURNING id`).
		WithArgs("acc-1", domain.AuditSuccessfulLogin, nil, occurredAt, []byte(`{"method":"totp"}`), ip, nil).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(42)))

	stored, err := repo.Append(context.Background(), event)
	if err != nil {
		t.Fatalf("Append returned error: %v", err)
	}
	if stored.ID != 42 {
		t.Fatalf("expected assigned id 42, got %d", stored.ID)
	}
	if !stored.OccurredAt.Equal(occurredAt) {
		t.Fatalf("expected caller timestamp preserved, got %v", stored.OccurredAt)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAuditLogRepository_AppendStampsServerClock(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewAuditLogRepository(mock)

	target := "acc-2"
	event := domain.AuditEvent{
		Actor:    domain.ActorSystem,
		Kind:     domain.AuditPasswordResetRequested,
		TargetID: &target,
	}

	mock.ExpectQuery(`INSERT INTO auth\.audit_events`).
		WithArgs(domain.ActorSystem, domain.AuditPasswordResetRequested, target, pgxmock.AnyArg(), nil, nil, nil).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(7)))

	stored, err := repo.Append(context.Background(), event)
	if err != nil {
		t.Fatalf("Append returned error: %v", err)
	}
	if stored.OccurredAt.IsZero() {
		t.Fatal("expected server clock to be stamped")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAuditLogRepository_QueryByActor(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewAuditLogRepository(mock)

	now := time.Now().UTC()
	rows := pgxmock.NewRows([]string{
		"id", "actor", "kind", "target_id", "occurred_at", "details", "ip", "user_agent",
	}).AddRow(
		int64(2), "acc-1", domain.AuditSuccessfulLogin, nil, now, []byte(`{"method":"password"}`), "203.0.113.9", nil,
	).AddRow(
		int64(1), "acc-1", domain.AuditFailedLoginAttempt, nil, now.Add(-time.Minute), nil, nil, nil,
	)

	mock.ExpectQuery(`SELECT .*FROM auth\.audit_events WHERE actor = \$1 ORDER BY occurred_at DESC, id DESC LIMIT 50`).
		WithArgs("acc-1").
		WillReturnRows(rows)

	events, err := repo.QueryByActor(context.Background(), "acc-1", 50)
	if err != nil {
		t.Fatalf("QueryByActor returned error: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].ID != 2 || events[0].Kind != domain.AuditSuccessfulLogin {
		t.Fatalf("unexpected first event: %+v", events[0])
	}
	if events[0].Details["method"] != "password" {
		t.Fatalf("expected details to round-trip, got %+v", events[0].Details)
	}
	if events[1].Details != nil {
		t.Fatal("expected empty details to stay nil")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAuditLogRepository_QueryByKindAndTarget(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewAuditLogRepository(mock)

	now := time.Now().UTC()
	rows := pgxmock.NewRows([]string{
		"id", "actor", "kind", "target_id", "occurred_at", "details", "ip", "user_agent",
	}).AddRow(
		int64(9), domain.ActorSystem, domain.AuditLockedAccountAccessAttempt, "acc-3", now, nil, nil, nil,
	)

	mock.ExpectQuery(`SELECT .*FROM auth\.audit_events WHERE kind = \$1 AND target_id = \$2`).
		WithArgs(domain.AuditLockedAccountAccessAttempt, "acc-3").
		WillReturnRows(rows)

	events, err := repo.QueryByKindAndTarget(context.Background(), domain.AuditLockedAccountAccessAttempt, "acc-3", 10)
	if err != nil {
		t.Fatalf("QueryByKindAndTarget returned error: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].TargetID == nil || *events[0].TargetID != "acc-3" {
		t.Fatal("expected target id to be populated")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
