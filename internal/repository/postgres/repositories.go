package postgres

import "github.com/jackc/pgx/v5/pgxpool"

// Repositories bundles the PostgreSQL-backed stores: account credential
// state, single-use reset tokens, and the append-only audit log.
type Repositories struct {
	Accounts    *AccountRepository
	ResetTokens *ResetTokenRepository
	Audit       *AuditLogRepository
}

// NewRepositories builds every repository on the shared pool.
func NewRepositories(pool *pgxpool.Pool) *Repositories {
	return &Repositories{
		Accounts:    NewAccountRepository(pool),
		ResetTokens: NewResetTokenRepository(pool),
		Audit:       NewAuditLogRepository(pool),
	}
}
