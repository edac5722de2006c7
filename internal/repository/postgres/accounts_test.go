package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v2"

	"github.com/odaiidemos/k9-sub001/internal/repository"
)

func TestAccountRepository_GetByIdentifier(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewAccountRepository(mock)

	now := time.Now().UTC()
	secret := "JBSWY3DPEHPK3PXP"
	rows := pgxmock.NewRows([]string{
		"id", "username", "email", "password_hash", "active", "failed_login_attempts",
		"locked_until", "last_login", "password_changed_at", "mfa_enabled", "mfa_secret",
		"backup_code_hashes", "created_at", "updated_at",
	}).AddRow(
		"acc-1", "kennelmaster", "km@example.com", "argon2id$v=19$m=65536,t=3,p=4$c$h", true, 2,
		nil, nil, now, true, secret,
		[]string{"hash-1", "hash-2"}, now, now,
	)

	mock.ExpectQuery(`SELECT .*FROM auth\.accounts WHERE \(username = \$1 OR email = \$2\)`).
		WithArgs("kennelmaster", "kennelmaster").
		WillReturnRows(rows)

	account, err := repo.GetByIdentifier(context.Background(), "kennelmaster")
	if err != nil {
		t.Fatalf("GetByIdentifier returned error: %v", err)
	}
	if account.ID != "acc-1" {
		t.Fatalf("expected account id acc-1, got %s", account.ID)
	}
	if account.FailedLoginAttempts != 2 {
		t.Fatalf("expected 2 failed attempts, got %d", account.FailedLoginAttempts)
	}
	if account.LockedUntil != nil {
		t.Fatal("expected nil locked_until")
	}
	if account.MFASecret == nil || *account.MFASecret != secret {
		t.Fatal("expected mfa secret to be populated")
	}
	if len(account.BackupCodes) != 2 {
		t.Fatalf("expected 2 backup code hashes, got %d", len(account.BackupCodes))
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAccountRepository_GetByID_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewAccountRepository(mock)

	mock.ExpectQuery(`SELECT .*FROM auth\.accounts`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	if _, err := repo.GetByID(context.Background(), "missing"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAccountRepository_IncrementFailedAttempts(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewAccountRepository(mock)

	mock.ExpectQuery(`UPDATE auth\.accounts SET failed_login_attempts = failed_login_attempts \+ 1.*RETURNING failed_login_attempts`).
		WithArgs(pgxmock.AnyArg(), "acc-1").
		WillReturnRows(pgxmock.NewRows([]string{"failed_login_attempts"}).AddRow(5))

	attempts, err := repo.IncrementFailedAttempts(context.Background(), "acc-1")
	if err != nil {
		t.Fatalf("IncrementFailedAttempts returned error: %v", err)
	}
	if attempts != 5 {
		t.Fatalf("expected post-increment value 5, got %d", attempts)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAccountRepository_IncrementFailedAttempts_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewAccountRepository(mock)

	mock.ExpectQuery(`UPDATE auth\.accounts SET failed_login_attempts`).
		WithArgs(pgxmock.AnyArg(), "missing").
		WillReturnError(pgx.ErrNoRows)

	if _, err := repo.IncrementFailedAttempts(context.Background(), "missing"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAccountRepository_Lock(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewAccountRepository(mock)

	until := time.Now().UTC().Add(15 * time.Minute)
	mock.ExpectExec(`UPDATE auth\.accounts SET locked_until = \$1`).
		WithArgs(until, pgxmock.AnyArg(), "acc-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	if err := repo.Lock(context.Background(), "acc-1", until); err != nil {
		t.Fatalf("Lock returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAccountRepository_ResetLoginState(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewAccountRepository(mock)

	loginAt := time.Now().UTC()
	mock.ExpectExec(`UPDATE auth\.accounts SET failed_login_attempts = \$1, locked_until = \$2, last_login = \$3`).
		WithArgs(0, nil, loginAt, pgxmock.AnyArg(), "acc-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	if err := repo.ResetLoginState(context.Background(), "acc-1", loginAt); err != nil {
		t.Fatalf("ResetLoginState returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAccountRepository_EnableMFA(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewAccountRepository(mock)

	hashes := []string{"hash-1", "hash-2", "hash-3"}
	mock.ExpectExec(`UPDATE auth\.accounts SET mfa_enabled = \$1, mfa_secret = \$2, backup_code_hashes = \$3`).
		WithArgs(true, "JBSWY3DPEHPK3PXP", hashes, pgxmock.AnyArg(), "acc-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	if err := repo.EnableMFA(context.Background(), "acc-1", "JBSWY3DPEHPK3PXP", hashes); err != nil {
		t.Fatalf("EnableMFA returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAccountRepository_DisableMFA_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewAccountRepository(mock)

	mock.ExpectExec(`UPDATE auth\.accounts SET mfa_enabled = \$1`).
		WithArgs(false, nil, []string{}, pgxmock.AnyArg(), "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	if err := repo.DisableMFA(context.Background(), "missing"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
