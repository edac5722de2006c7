package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/odaiidemos/k9-sub001/internal/core/domain"
	"github.com/odaiidemos/k9-sub001/internal/core/port"
	"github.com/odaiidemos/k9-sub001/internal/infra/config"
	"github.com/odaiidemos/k9-sub001/internal/infra/security"
	"github.com/odaiidemos/k9-sub001/internal/repository"
)

const (
	defaultResetTokenTTL   = 24 * time.Hour
	defaultResetMaxPerHour = 3
	resetTokenByteLength   = 32

	passwordResetRateLimitScope = "password_reset"
	passwordResetChangedBy      = "password_reset"
)

// ErrInvalidOrExpiredResetToken covers every way a reset token can be
// unusable: unknown, already used, superseded, or past expiry. Collapsing
// them into one error denies an attacker confirmation of which guess came
// close.
var ErrInvalidOrExpiredResetToken = errors.New("invalid or expired reset token")

// RateLimitExceededError reports a throttled operation and how long the
// caller must wait for the sliding window to open again.
type RateLimitExceededError struct {
	Scope      string
	RetryAfter time.Duration
}

// Error implements error for RateLimitExceededError.
func (e *RateLimitExceededError) Error() string {
	if e == nil {
		return "rate limit exceeded"
	}
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limit exceeded for %s, retry in %s", e.Scope, e.RetryAfter)
	}
	return fmt.Sprintf("rate limit exceeded for %s", e.Scope)
}

// WeakPasswordError lists every policy rule the candidate password failed.
type WeakPasswordError struct {
	Reasons []string
}

// Error implements error for WeakPasswordError.
func (e *WeakPasswordError) Error() string {
	if e == nil || len(e.Reasons) == 0 {
		return "password does not meet policy"
	}
	return "weak password: " + strings.Join(e.Reasons, "; ")
}

// PasswordResetService drives the single-use reset token flow: issuing a
// token against an identifier without confirming the identifier exists, and
// redeeming it exactly once for a new password.
type PasswordResetService struct {
	cfg        *config.AppConfig
	accounts   port.AccountRepository
	tokens     port.ResetTokenRepository
	audit      port.AuditLog
	hasher     port.PasswordHasher
	passwords  port.PasswordPolicyValidator
	rateLimits port.RateLimitStore
	notifier   port.ResetNotifier
	events     port.EventPublisher
	logger     *zap.Logger
	now        func() time.Time
	resetTTL   time.Duration
	maxPerHour int
}

// NewPasswordResetService constructs a PasswordResetService.
func NewPasswordResetService(
	cfg *config.AppConfig,
	accounts port.AccountRepository,
	tokens port.ResetTokenRepository,
	audit port.AuditLog,
	hasher port.PasswordHasher,
	passwords port.PasswordPolicyValidator,
	rateLimits port.RateLimitStore,
	notifier port.ResetNotifier,
	events port.EventPublisher,
	logger *zap.Logger,
) (*PasswordResetService, error) {
	if accounts == nil {
		return nil, fmt.Errorf("account repository is required")
	}
	if tokens == nil {
		return nil, fmt.Errorf("reset token repository is required")
	}
	if hasher == nil {
		return nil, fmt.Errorf("password hasher is required")
	}
	if passwords == nil {
		passwords = security.NewPasswordPolicy()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	resetTTL := defaultResetTokenTTL
	maxPerHour := defaultResetMaxPerHour
	if cfg != nil {
		if cfg.PasswordReset.TokenTTL > 0 {
			resetTTL = cfg.PasswordReset.TokenTTL
		}
		if cfg.PasswordReset.MaxPerHour > 0 {
			maxPerHour = cfg.PasswordReset.MaxPerHour
		}
	}

	service := &PasswordResetService{
		cfg:        cfg,
		accounts:   accounts,
		tokens:     tokens,
		audit:      audit,
		hasher:     hasher,
		passwords:  passwords,
		rateLimits: rateLimits,
		notifier:   notifier,
		events:     events,
		logger:     logger,
		resetTTL:   resetTTL,
		maxPerHour: maxPerHour,
	}
	service.now = func() time.Time { return time.Now().UTC() }
	return service, nil
}

// WithClock allows tests to override the clock used by the service.
func (s *PasswordResetService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// WithTTL allows tests to override the default reset TTL.
func (s *PasswordResetService) WithTTL(ttl time.Duration) {
	if ttl > 0 {
		s.resetTTL = ttl
	}
}

// ResetRequestInput encapsulates metadata for a password reset request.
type ResetRequestInput struct {
	Identifier string
	IP         string
	UserAgent  string
}

// ResetRequestResult is shaped identically whether or not the identifier
// matched an account. Token and ResetLink are populated only on a match and
// exist for the notifier and for development handlers; production responses
// must never include them.
type ResetRequestResult struct {
	RequestID         string
	ExpiresAt         time.Time
	MaskedDestination string
	Token             string
	ResetLink         string
}

// RequestReset issues a single-use reset token for the identifier. Unknown
// identifiers produce the same result shape as known ones so the endpoint
// cannot be used to enumerate accounts; only the audit trail records the
// difference.
func (s *PasswordResetService) RequestReset(ctx context.Context, input ResetRequestInput) (*ResetRequestResult, error) {
	identifier := strings.TrimSpace(input.Identifier)
	if identifier == "" {
		return nil, fmt.Errorf("identifier is required")
	}

	now := s.now().UTC()
	if err := s.enforceResetRateLimit(ctx, identifier, now); err != nil {
		return nil, err
	}

	requestID := uuid.NewString()
	expiresAt := now.Add(s.resetTTL)

	account, err := s.accounts.GetByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.appendResetAudit(ctx, domain.AuditEvent{
				Actor:      domain.ActorSystem,
				Kind:       domain.AuditPasswordResetRequested,
				OccurredAt: now,
				Details:    map[string]any{"request_id": requestID, "identifier": identifier, "outcome": "unknown_identifier"},
				IP:         stringPtrOrNil(input.IP),
				UserAgent:  stringPtrOrNil(input.UserAgent),
			})
			return &ResetRequestResult{
				RequestID:         requestID,
				ExpiresAt:         expiresAt,
				MaskedDestination: maskDestination(identifier),
			}, nil
		}
		return nil, fmt.Errorf("lookup account: %w", err)
	}

	raw, err := security.GenerateSecureToken(resetTokenByteLength)
	if err != nil {
		return nil, fmt.Errorf("generate reset token: %w", err)
	}

	record := domain.PasswordResetToken{
		ID:        uuid.NewString(),
		AccountID: account.ID,
		TokenHash: security.HashToken(raw),
		IP:        stringPtrOrNil(input.IP),
		UserAgent: stringPtrOrNil(input.UserAgent),
		CreatedAt: now,
		ExpiresAt: expiresAt,
	}
	if err := s.tokens.CreatePasswordReset(ctx, record); err != nil {
		return nil, fmt.Errorf("store password reset token: %w", err)
	}

	masked := maskDestination(account.Email)
	link := s.resetLink(raw)
	delivered := s.sendResetEmail(ctx, account.Email, link, raw)

	s.appendResetAudit(ctx, domain.AuditEvent{
		Actor:      account.ID,
		Kind:       domain.AuditPasswordResetRequested,
		TargetID:   &account.ID,
		OccurredAt: now,
		Details: map[string]any{
			"request_id":         requestID,
			"masked_destination": masked,
			"expires_at":         expiresAt.Format(time.RFC3339),
			"delivered":          delivered,
		},
		IP:        stringPtrOrNil(input.IP),
		UserAgent: stringPtrOrNil(input.UserAgent),
	})
	s.publishResetRequested(ctx, account.ID, requestID, masked, now, expiresAt, input.IP)

	return &ResetRequestResult{
		RequestID:         requestID,
		ExpiresAt:         expiresAt,
		MaskedDestination: masked,
		Token:             raw,
		ResetLink:         link,
	}, nil
}

// ResetCompleteInput carries the payload to finalize a password reset.
type ResetCompleteInput struct {
	Token       string
	NewPassword string
	IP          string
	UserAgent   string
}

// CompleteReset redeems a reset token for a new password. A weak password
// leaves the token unconsumed so the same link can be retried; once the
// token is consumed no second completion can succeed, whatever the outcome
// of the writes that follow.
func (s *PasswordResetService) CompleteReset(ctx context.Context, input ResetCompleteInput) error {
	raw := strings.TrimSpace(input.Token)
	if raw == "" {
		return ErrInvalidOrExpiredResetToken
	}
	newPassword := strings.TrimSpace(input.NewPassword)
	if newPassword == "" {
		return &WeakPasswordError{Reasons: []string{"new password is required"}}
	}

	token, err := s.tokens.GetPasswordResetByHash(ctx, security.HashToken(raw))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvalidOrExpiredResetToken
		}
		return fmt.Errorf("lookup password reset token: %w", err)
	}

	now := s.now().UTC()
	if token.UsedAt != nil || token.RevokedAt != nil || token.IsExpired(now) {
		return ErrInvalidOrExpiredResetToken
	}

	account, err := s.accounts.GetByID(ctx, token.AccountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvalidOrExpiredResetToken
		}
		return fmt.Errorf("lookup account: %w", err)
	}

	if err := s.validateNewPassword(newPassword, account); err != nil {
		return err
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hash new password: %w", err)
	}

	// Consuming before writing serializes concurrent completions: exactly
	// one caller gets past this line for a given token.
	if err := s.tokens.ConsumePasswordReset(ctx, token.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvalidOrExpiredResetToken
		}
		return fmt.Errorf("consume password reset token: %w", err)
	}

	if err := s.accounts.UpdatePassword(ctx, account.ID, hash, now); err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	if err := s.accounts.ClearLockout(ctx, account.ID); err != nil {
		s.logger.Warn("clear lockout after reset failed", zap.String("account_id", account.ID), zap.Error(err))
	}

	s.appendResetAudit(ctx, domain.AuditEvent{
		Actor:      account.ID,
		Kind:       domain.AuditPasswordResetCompleted,
		TargetID:   &account.ID,
		OccurredAt: now,
		Details:    map[string]any{"token_id": token.ID},
		IP:         stringPtrOrNil(input.IP),
		UserAgent:  stringPtrOrNil(input.UserAgent),
	})
	s.appendResetAudit(ctx, domain.AuditEvent{
		Actor:      account.ID,
		Kind:       domain.AuditPasswordChanged,
		TargetID:   &account.ID,
		OccurredAt: now,
		Details:    map[string]any{"changed_by": passwordResetChangedBy},
		IP:         stringPtrOrNil(input.IP),
		UserAgent:  stringPtrOrNil(input.UserAgent),
	})
	s.publishPasswordChanged(ctx, account.ID, now)

	return nil
}

func (s *PasswordResetService) enforceResetRateLimit(ctx context.Context, identifier string, now time.Time) error {
	if s.rateLimits == nil || s.maxPerHour <= 0 {
		return nil
	}

	identifierKey := normalizeIdentifierKey(identifier)
	if identifierKey == "" {
		return nil
	}

	window := time.Hour
	storageKey := fmt.Sprintf("%s:%s", passwordResetRateLimitScope, identifierKey)

	if err := s.rateLimits.Prune(ctx, storageKey, window, now); err != nil {
		s.logger.Warn("password reset rate limit prune failed", zap.String("scope", passwordResetRateLimitScope), zap.Error(err))
		return nil
	}

	count, err := s.rateLimits.Count(ctx, storageKey, window, now)
	if err != nil {
		s.logger.Warn("password reset rate limit count failed", zap.String("scope", passwordResetRateLimitScope), zap.Error(err))
		return nil
	}

	if count >= s.maxPerHour {
		retryAfter := time.Duration(0)
		if oldest, ok, err := s.rateLimits.Oldest(ctx, storageKey, window, now); err == nil && ok {
			reset := oldest.Add(window)
			if reset.After(now) {
				retryAfter = reset.Sub(now)
			}
		} else if err != nil {
			s.logger.Warn("password reset rate limit oldest lookup failed", zap.Error(err))
		}
		return &RateLimitExceededError{Scope: passwordResetRateLimitScope, RetryAfter: retryAfter}
	}

	if err := s.rateLimits.Record(ctx, storageKey, now); err != nil {
		s.logger.Warn("password reset rate limit record failed", zap.Error(err))
	}

	return nil
}

func (s *PasswordResetService) validateNewPassword(password string, account *domain.Account) error {
	pwCtx := domain.PasswordContext{}
	if account != nil {
		pwCtx.Username = strings.TrimSpace(account.Username)
		pwCtx.Email = strings.TrimSpace(account.Email)
	}

	if err := s.passwords.Validate(password, pwCtx); err != nil {
		return &WeakPasswordError{Reasons: violationReasons(err)}
	}

	if account != nil && account.PasswordHash != "" {
		same, err := s.hasher.Verify(password, account.PasswordHash)
		if err != nil {
			return fmt.Errorf("compare against current password: %w", err)
		}
		if same {
			return &WeakPasswordError{Reasons: []string{"new password must be different from current password"}}
		}
	}

	return nil
}

func (s *PasswordResetService) resetLink(raw string) string {
	base := ""
	if s.cfg != nil {
		base = strings.TrimSpace(s.cfg.PasswordReset.BaseURL)
	}
	if base == "" || raw == "" {
		return ""
	}
	return base + "?token=" + url.QueryEscape(raw)
}

func (s *PasswordResetService) sendResetEmail(ctx context.Context, email, link, token string) bool {
	if s.notifier == nil || strings.TrimSpace(email) == "" {
		return false
	}
	if err := s.notifier.SendResetEmail(ctx, email, link, token); err != nil {
		s.logger.Warn("send reset email failed", zap.Error(err))
		return false
	}
	return true
}

// appendResetAudit writes to the security trail. Append failures degrade to
// a process-level warning; the reset flow proceeds.
func (s *PasswordResetService) appendResetAudit(ctx context.Context, event domain.AuditEvent) {
	if s.audit == nil {
		return
	}
	if _, err := s.audit.Append(ctx, event); err != nil {
		s.logger.Warn("audit append failed",
			zap.String("kind", string(event.Kind)),
			zap.String("actor", event.Actor),
			zap.Error(err))
	}
}

func (s *PasswordResetService) publishResetRequested(ctx context.Context, accountID, requestID, masked string, now, expiresAt time.Time, ip string) {
	if s.events == nil {
		return
	}

	event := domain.PasswordResetRequestedEvent{
		EventID:           uuid.NewString(),
		AccountID:         accountID,
		RequestID:         requestID,
		RequestedAt:       now,
		MaskedDestination: masked,
		IPAddress:         stringPtrOrNil(ip),
		ExpiresAt:         expiresAt,
	}
	if err := s.events.PublishPasswordResetRequested(ctx, event); err != nil {
		s.logger.Warn("publish reset requested failed", zap.String("account_id", accountID), zap.Error(err))
	}
}

func (s *PasswordResetService) publishPasswordChanged(ctx context.Context, accountID string, changedAt time.Time) {
	if s.events == nil {
		return
	}

	event := domain.PasswordChangedEvent{
		EventID:          uuid.NewString(),
		AccountID:        accountID,
		ChangedAt:        changedAt,
		ChangedBy:        passwordResetChangedBy,
		NotificationSent: s.notifier != nil,
	}
	if err := s.events.PublishPasswordChanged(ctx, event); err != nil {
		s.logger.Warn("publish password changed failed", zap.String("account_id", accountID), zap.Error(err))
	}
}

func violationReasons(err error) []string {
	type unwrapper interface{ Unwrap() []error }
	if joined, ok := err.(unwrapper); ok {
		errs := joined.Unwrap()
		reasons := make([]string, 0, len(errs))
		for _, item := range errs {
			reasons = append(reasons, item.Error())
		}
		return reasons
	}
	return []string{err.Error()}
}

func normalizeIdentifierKey(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}

// maskDestination keeps at most the first three characters of the local part.
// Shorter locals and bare identifiers are masked entirely.
func maskDestination(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}

	local, domain, isEmail := strings.Cut(trimmed, "@")
	if !isEmail || local == "" {
		local, domain = trimmed, ""
	} else {
		domain = "@" + domain
	}

	visible := ""
	if len(local) > 3 {
		visible = local[:3]
	}
	return visible + "***" + domain
}
