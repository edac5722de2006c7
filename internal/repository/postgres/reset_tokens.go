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

const resetTokenTable = "auth.password_reset_tokens"

// resetTokenColumns is the column order shared by inserts and scans.
var resetTokenColumns = []string{
	"id", "account_id", "token_hash", "ip", "user_agent",
	"created_at", "expires_at", "used_at", "revoked_at",
}

// ResetTokenRepository implements port.ResetTokenRepository using PostgreSQL.
type ResetTokenRepository struct {
	pool    pgPool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewResetTokenRepository constructs a repository backed by a pool capable of
// opening transactions.
func NewResetTokenRepository(pool pgPool) *ResetTokenRepository {
	return &ResetTokenRepository{
		pool:    pool,
		exec:    pool,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// WithTx returns a repository instance executing within the provided transaction.
func (r *ResetTokenRepository) WithTx(tx pgx.Tx) *ResetTokenRepository {
	if tx == nil {
		return r
	}
	return &ResetTokenRepository{
		pool:    r.pool,
		exec:    tx,
		builder: r.builder,
	}
}

// CreatePasswordReset revokes every live token of the account and inserts the
// new one inside a single transaction, so at most one token is ever
// redeemable per account.
func (r *ResetTokenRepository) CreatePasswordReset(ctx context.Context, token domain.PasswordResetToken) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin create password reset: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	revoke, revokeArgs, err := r.builder.Update(resetTokenTable).
		Set("revoked_at", time.Now().UTC()).
		Where(squirrel.Eq{"account_id": token.AccountID}).
		Where("used_at IS NULL").
		Where("revoked_at IS NULL").
		ToSql()
	if err != nil {
		return fmt.Errorf("build revoke prior resets sql: %w", err)
	}

	if _, err := tx.Exec(ctx, revoke, revokeArgs...); err != nil {
		return fmt.Errorf("revoke prior resets: %w", err)
	}

	insert, insertArgs, err := r.builder.Insert(resetTokenTable).
		Columns(resetTokenColumns...).
		Values(
			token.ID,
			token.AccountID,
			token.TokenHash,
			textOrNil(token.IP),
			textOrNil(token.UserAgent),
			token.CreatedAt,
			token.ExpiresAt,
			token.UsedAt,
			token.RevokedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert password reset sql: %w", err)
	}

	if _, err := tx.Exec(ctx, insert, insertArgs...); err != nil {
		return fmt.Errorf("insert password reset token: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit create password reset: %w", err)
	}

	return nil
}

// GetPasswordResetByHash fetches a password reset token by its hash.
func (r *ResetTokenRepository) GetPasswordResetByHash(ctx context.Context, hash string) (*domain.PasswordResetToken, error) {
	stmt, args, err := r.builder.Select(resetTokenColumns...).
		From(resetTokenTable).
		Where(squirrel.Eq{"token_hash": hash}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select password reset sql: %w", err)
	}

	token, err := scanResetToken(r.exec.QueryRow(ctx, stmt, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan password reset token: %w", err)
	}

	return token, nil
}

// scanResetToken reads one row in resetTokenColumns order.
func scanResetToken(row pgx.Row) (*domain.PasswordResetToken, error) {
	var (
		token         domain.PasswordResetToken
		ip, agent     sql.NullString
		used, revoked sql.NullTime
	)

	if err := row.Scan(
		&token.ID, &token.AccountID, &token.TokenHash, &ip, &agent,
		&token.CreatedAt, &token.ExpiresAt, &used, &revoked,
	); err != nil {
		return nil, err
	}

	token.IP = fromNullString(ip)
	token.UserAgent = fromNullString(agent)
	token.UsedAt = fromNullTime(used)
	token.RevokedAt = fromNullTime(revoked)

	return &token, nil
}

// ConsumePasswordReset stamps used_at exactly once. The used_at guard makes a
// replay of the same id report not found rather than silently succeed.
func (r *ResetTokenRepository) ConsumePasswordReset(ctx context.Context, id string) error {
	stmt, args, err := r.builder.Update(resetTokenTable).
		Set("used_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": id}).
		Where("used_at IS NULL").
		ToSql()
	if err != nil {
		return fmt.Errorf("build consume password reset sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("consume password reset token: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

var (
	_ port.ResetTokenRepository = (*ResetTokenRepository)(nil)
	_ pgPool                    = (*pgxpool.Pool)(nil)
)
