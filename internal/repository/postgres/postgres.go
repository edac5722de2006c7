package postgres

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// pgExecutor is the query surface the repositories need. Both *pgxpool.Pool
// and the pgxmock pool satisfy it.
type pgExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// pgPool extends pgExecutor with transaction support.
type pgPool interface {
	pgExecutor
	Begin(ctx context.Context) (pgx.Tx, error)
}

// textOrNil prepares an optional string for a write: trimmed text, or nil so
// blank values land as SQL NULL instead of empty strings.
func textOrNil(value *string) any {
	if value == nil {
		return nil
	}
	if trimmed := strings.TrimSpace(*value); trimmed != "" {
		return trimmed
	}
	return nil
}

// fromNullString converts a scanned nullable column to the domain pointer
// form, folding whitespace-only values into nil.
func fromNullString(ns sql.NullString) *string {
	trimmed := strings.TrimSpace(ns.String)
	if !ns.Valid || trimmed == "" {
		return nil
	}
	return &trimmed
}

// fromNullTime normalizes a scanned nullable timestamp to UTC.
func fromNullTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	utc := nt.Time.UTC()
	return &utc
}
