package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v2"

	"github.com/odaiidemos/k9-sub001/internal/core/domain"
	"github.com/odaiidemos/k9-sub001/internal/repository"
)

func TestResetTokenRepository_CreateSupersedesPriorTokens(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewResetTokenRepository(mock)

	now := time.Now().UTC()
	ip := "203.0.113.9"
	ua := "records-app/2.4"
	token := domain.PasswordResetToken{
		ID:        "reset-1",
		AccountID: "acc-1",
		TokenHash: "a1b2c3",
		IP:        &ip,
		UserAgent: &ua,
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	}

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE auth\.password_reset_tokens SET revoked_at = \$1 WHERE account_id = \$2 AND used_at IS NULL AND revoked_at IS NULL`).
		WithArgs(pgxmock.AnyArg(), "acc-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))
	mock.ExpectExec(`INSERT INTO auth\.password_reset_tokens`).
		WithArgs("reset-1", "acc-1", "a1b2c3", ip, ua, now, now.Add(time.Hour), nil, nil).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	if err := repo.CreatePasswordReset(context.Background(), token); err != nil {
		t.Fatalf("CreatePasswordReset returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestResetTokenRepository_CreateRollsBackOnInsertFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewResetTokenRepository(mock)

	now := time.Now().UTC()
	token := domain.PasswordResetToken{
		ID:        "reset-1",
		AccountID: "acc-1",
		TokenHash: "a1b2c3",
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	}

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE auth\.password_reset_tokens SET revoked_at`).
		WithArgs(pgxmock.AnyArg(), "acc-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectExec(`INSERT INTO auth\.password_reset_tokens`).
		WithArgs("reset-1", "acc-1", "a1b2c3", nil, nil, now, now.Add(time.Hour), nil, nil).
		WillReturnError(errors.New("constraint violation"))
	mock.ExpectRollback()

	if err := repo.CreatePasswordReset(context.Background(), token); err == nil {
		t.Fatal("expected insert failure to propagate")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestResetTokenRepository_GetByHash(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewResetTokenRepository(mock)

	now := time.Now().UTC()
	rows := pgxmock.NewRows([]string{
		"id", "account_id", "token_hash", "ip", "user_agent",
		"created_at", "expires_at", "used_at", "revoked_at",
	}).AddRow(
		"reset-1", "acc-1", "a1b2c3", "203.0.113.9", nil,
		now, now.Add(time.Hour), nil, nil,
	)

	mock.ExpectQuery(`SELECT .*FROM auth\.password_reset_tokens WHERE token_hash = \$1`).
		WithArgs("a1b2c3").
		WillReturnRows(rows)

	token, err := repo.GetPasswordResetByHash(context.Background(), "a1b2c3")
	if err != nil {
		t.Fatalf("GetPasswordResetByHash returned error: %v", err)
	}
	if token.AccountID != "acc-1" {
		t.Fatalf("expected account acc-1, got %s", token.AccountID)
	}
	if token.UsedAt != nil || token.RevokedAt != nil {
		t.Fatal("expected live token")
	}
	if token.IP == nil || *token.IP != "203.0.113.9" {
		t.Fatal("expected ip to be populated")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestResetTokenRepository_ConsumeExactlyOnce(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewResetTokenRepository(mock)

	mock.ExpectExec(`UPDATE auth\.password_reset_tokens SET used_at = \$1 WHERE id = \$2 AND used_at IS NULL`).
		WithArgs(pgxmock.AnyArg(), "reset-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE auth\.password_reset_tokens SET used_at = \$1 WHERE id = \$2 AND used_at IS NULL`).
		WithArgs(pgxmock.AnyArg(), "reset-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	if err := repo.ConsumePasswordReset(context.Background(), "reset-1"); err != nil {
		t.Fatalf("first consume returned error: %v", err)
	}
	if err := repo.ConsumePasswordReset(context.Background(), "reset-1"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on replay, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
