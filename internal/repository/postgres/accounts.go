package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odaiidemos/k9-sub001/internal/core/domain"
	"github.com/odaiidemos/k9-sub001/internal/core/port"
	"github.com/odaiidemos/k9-sub001/internal/repository"
)

var accountColumns = []string{
	"id",
	"username",
	"email",
	"password_hash",
	"active",
	"failed_login_attempts",
	"locked_until",
	"last_login",
	"password_changed_at",
	"mfa_enabled",
	"mfa_secret",
	"backup_code_hashes",
	"created_at",
	"updated_at",
}

// AccountRepository implements port.AccountRepository using PostgreSQL.
// Counter mutations run as single statements so concurrent failures observe
// distinct values.
type AccountRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewAccountRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewAccountRepository(exec pgExecutor) *AccountRepository {
	repo := &AccountRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		repo.pool = pool
	}
	return repo
}

// WithTx returns a repository instance executing within the provided transaction.
func (r *AccountRepository) WithTx(tx pgx.Tx) *AccountRepository {
	if tx == nil {
		return r
	}
	return &AccountRepository{
		pool:    r.pool,
		exec:    tx,
		builder: r.builder,
	}
}

// GetByID retrieves an account by identifier.
func (r *AccountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	stmt, args, err := r.builder.Select(accountColumns...).
		From("auth.accounts").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select account sql: %w", err)
	}

	return r.scanAccount(r.exec.QueryRow(ctx, stmt, args...))
}

// GetByIdentifier retrieves an account by username or email.
func (r *AccountRepository) GetByIdentifier(ctx context.Context, identifier string) (*domain.Account, error) {
	stmt, args, err := r.builder.Select(accountColumns...).
		From("auth.accounts").
		Where(squirrel.Or{
			squirrel.Eq{"username": identifier},
			squirrel.Eq{"email": identifier},
		}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select account by identifier sql: %w", err)
	}

	return r.scanAccount(r.exec.QueryRow(ctx, stmt, args...))
}

// GetByEmail retrieves an account by email address.
func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	stmt, args, err := r.builder.Select(accountColumns...).
		From("auth.accounts").
		Where(squirrel.Eq{"email": email}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select account by email sql: %w", err)
	}

	return r.scanAccount(r.exec.QueryRow(ctx, stmt, args...))
}

// IncrementFailedAttempts bumps the failed-attempt counter in one statement
// and returns the post-increment value.
func (r *AccountRepository) IncrementFailedAttempts(ctx context.Context, id string) (int, error) {
	stmt, args, err := r.builder.Update("auth.accounts").
		Set("failed_login_attempts", squirrel.Expr("failed_login_attempts + 1")).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": id}).
		Suffix("RETURNING failed_login_attempts").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build increment failed attempts sql: %w", err)
	}

	var attempts int
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&attempts); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, repository.ErrNotFound
		}
		return 0, fmt.Errorf("increment failed attempts: %w", err)
	}

	return attempts, nil
}

// Lock sets the lock expiry for an account.
func (r *AccountRepository) Lock(ctx context.Context, id string, until time.Time) error {
	stmt, args, err := r.builder.Update("auth.accounts").
		Set("locked_until", until.UTC()).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build lock account sql: %w", err)
	}

	return r.execExpectingRow(ctx, stmt, args, "lock account")
}

// ResetLoginState zeroes the counter, clears the lock, and stamps last_login.
func (r *AccountRepository) ResetLoginState(ctx context.Context, id string, lastLogin time.Time) error {
	stmt, args, err := r.builder.Update("auth.accounts").
		Set("failed_login_attempts", 0).
		Set("locked_until", nil).
		Set("last_login", lastLogin.UTC()).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build reset login state sql: %w", err)
	}

	return r.execExpectingRow(ctx, stmt, args, "reset login state")
}

// ClearLockout zeroes the counter and clears the lock without touching last_login.
func (r *AccountRepository) ClearLockout(ctx context.Context, id string) error {
	stmt, args, err := r.builder.Update("auth.accounts").
		Set("failed_login_attempts", 0).
		Set("locked_until", nil).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build clear lockout sql: %w", err)
	}

	return r.execExpectingRow(ctx, stmt, args, "clear lockout")
}

// UpdatePassword replaces the credential hash and stamps the change instant.
func (r *AccountRepository) UpdatePassword(ctx context.Context, id string, passwordHash string, changedAt time.Time) error {
	stmt, args, err := r.builder.Update("auth.accounts").
		Set("password_hash", passwordHash).
		Set("password_changed_at", changedAt.UTC()).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update password sql: %w", err)
	}

	return r.execExpectingRow(ctx, stmt, args, "update password")
}

// EnableMFA persists the confirmed secret and the hashed backup codes in one write.
func (r *AccountRepository) EnableMFA(ctx context.Context, id string, secret string, backupCodeHashes []string) error {
	stmt, args, err := r.builder.Update("auth.accounts").
		Set("mfa_enabled", true).
		Set("mfa_secret", secret).
		Set("backup_code_hashes", backupCodeHashes).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build enable mfa sql: %w", err)
	}

	return r.execExpectingRow(ctx, stmt, args, "enable mfa")
}

// DisableMFA clears the secret and discards all remaining backup codes.
func (r *AccountRepository) DisableMFA(ctx context.Context, id string) error {
	stmt, args, err := r.builder.Update("auth.accounts").
		Set("mfa_enabled", false).
		Set("mfa_secret", nil).
		Set("backup_code_hashes", []string{}).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build disable mfa sql: %w", err)
	}

	return r.execExpectingRow(ctx, stmt, args, "disable mfa")
}

// UpdateBackupCodes overwrites the stored backup code hashes.
func (r *AccountRepository) UpdateBackupCodes(ctx context.Context, id string, backupCodeHashes []string) error {
	stmt, args, err := r.builder.Update("auth.accounts").
		Set("backup_code_hashes", backupCodeHashes).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update backup codes sql: %w", err)
	}

	return r.execExpectingRow(ctx, stmt, args, "update backup codes")
}

func (r *AccountRepository) execExpectingRow(ctx context.Context, stmt string, args []any, action string) error {
	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", action, err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *AccountRepository) scanAccount(row pgx.Row) (*domain.Account, error) {
	var (
		account     domain.Account
		lockedUntil sql.NullTime
		lastLogin   sql.NullTime
		mfaSecret   sql.NullString
		backupCodes []string
	)

	if err := row.Scan(
		&account.ID,
		&account.Username,
		&account.Email,
		&account.PasswordHash,
		&account.Active,
		&account.FailedLoginAttempts,
		&lockedUntil,
		&lastLogin,
		&account.PasswordChangedAt,
		&account.MFAEnabled,
		&mfaSecret,
		&backupCodes,
		&account.CreatedAt,
		&account.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan account: %w", err)
	}

	account.LockedUntil = fromNullTime(lockedUntil)
	account.LastLogin = fromNullTime(lastLogin)
	account.MFASecret = fromNullString(mfaSecret)
	account.BackupCodes = backupCodes

	return &account, nil
}

var _ port.AccountRepository = (*AccountRepository)(nil)
