package usecase

import (
	"context"
	"errors"
	"fmt"
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

var (
	// ErrInvalidCredentials indicates the provided identifier or password are incorrect.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInactiveAccount indicates the account is disabled.
	ErrInactiveAccount = errors.New("account is not active")
	// ErrMFARequired indicates the account requires a second factor that was not supplied.
	ErrMFARequired = errors.New("mfa code required")
	// ErrInvalidMFACode indicates neither the TOTP code nor a backup code matched.
	ErrInvalidMFACode = errors.New("invalid mfa code")
	// ErrInvalidToken indicates the presented token is malformed, mis-typed, revoked, or otherwise unusable.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredAccessToken indicates the access token was valid but is past its expiry.
	ErrExpiredAccessToken = errors.New("access token expired")
	// ErrAccountNotFound indicates the referenced account does not exist.
	ErrAccountNotFound = errors.New("account not found")
)

// AccountLockedError carries the remaining lockout window so callers can
// tell the user when to retry. Lockout is the one failure that surfaces
// extra detail: the rejection itself already reveals the locked state.
type AccountLockedError struct {
	RetryAfterMinutes int
}

func (e *AccountLockedError) Error() string {
	return fmt.Sprintf("account locked, retry in %d minutes", e.RetryAfterMinutes)
}

// The replay guard remembers a matched step for the full span during which
// its code can still pass the ±1-step verify (three 30s steps).
const totpReplayGuardTTL = 90 * time.Second

const burnedCredential = "timing-leveler-credential"

// AuthService orchestrates login, token verification, refresh, and logout.
type AuthService struct {
	cfg         *config.AppConfig
	accounts    port.AccountRepository
	audit       port.AuditLog
	denylist    port.TokenDenylist
	replayGuard port.TOTPReplayGuard
	hasher      port.PasswordHasher
	totp        port.TOTPProvider
	backupCodes *security.BackupCodes
	tokens      *security.TokenManager
	events      port.EventPublisher
	lockout     domain.LockoutPolicy
	degradation domain.DegradationPolicy
	logger      *zap.Logger
	now         func() time.Time

	// levelingHash is a throwaway hash burned against unknown identifiers so
	// response timing does not distinguish them from wrong passwords.
	levelingHash string
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(
	cfg *config.AppConfig,
	accounts port.AccountRepository,
	audit port.AuditLog,
	denylist port.TokenDenylist,
	replayGuard port.TOTPReplayGuard,
	hasher port.PasswordHasher,
	totp port.TOTPProvider,
	backupCodes *security.BackupCodes,
	tokens *security.TokenManager,
	events port.EventPublisher,
	logger *zap.Logger,
) (*AuthService, error) {
	if accounts == nil {
		return nil, fmt.Errorf("account repository is required")
	}
	if hasher == nil {
		return nil, fmt.Errorf("password hasher is required")
	}
	if tokens == nil {
		return nil, fmt.Errorf("token manager is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	lockout := domain.NewLockoutPolicy(0, 0)
	degradation := domain.NewDegradationPolicy(domain.DegradationPolicyModeLenient)
	if cfg != nil {
		lockout = domain.NewLockoutPolicy(cfg.Lockout.MaxAttempts, cfg.Lockout.Duration)
		degradation = domain.NewDegradationPolicy(domain.ParseDegradationPolicyMode(cfg.Degradation.Mode))
	}

	levelingHash, err := hasher.Hash(burnedCredential)
	if err != nil {
		return nil, fmt.Errorf("prepare timing leveler: %w", err)
	}

	service := &AuthService{
		cfg:          cfg,
		accounts:     accounts,
		audit:        audit,
		denylist:     denylist,
		replayGuard:  replayGuard,
		hasher:       hasher,
		totp:         totp,
		backupCodes:  backupCodes,
		tokens:       tokens,
		events:       events,
		lockout:      lockout,
		degradation:  degradation,
		logger:       logger,
		levelingHash: levelingHash,
	}
	service.now = func() time.Time { return time.Now().UTC() }
	return service, nil
}

// WithClock overrides the service clock for deterministic tests.
func (s *AuthService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// LoginInput carries the credentials and request context for a login attempt.
type LoginInput struct {
	Identifier string
	Password   string
	MFACode    string
	IP         string
	UserAgent  string
}

// LoginResult describes a successful authentication.
type LoginResult struct {
	Account        domain.Account
	Tokens         domain.TokenPair
	MFAUsed        bool
	BackupCodeUsed bool
}

// Login runs the full authentication pipeline: account lookup, active check,
// lockout check, password verification, MFA, then token issuance. The order
// is contractual; in particular the lockout check precedes password
// verification so attempts against a locked account never touch the counter.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	identifier := strings.TrimSpace(input.Identifier)
	if identifier == "" {
		return nil, fmt.Errorf("identifier is required")
	}
	if input.Password == "" {
		return nil, fmt.Errorf("password is required")
	}

	now := s.now().UTC()

	account, err := s.accounts.GetByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.burnVerification(input.Password)
			s.appendAudit(ctx, domain.AuditEvent{
				Actor:      domain.ActorSystem,
				Kind:       domain.AuditFailedLoginAttempt,
				OccurredAt: now,
				Details:    map[string]any{"identifier": identifier, "reason": "unknown_identifier"},
				IP:         stringPtrOrNil(input.IP),
				UserAgent:  stringPtrOrNil(input.UserAgent),
			})
			s.publishLoginFailed(ctx, "", identifier, "unknown_identifier", 0, now, input.IP)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup account: %w", err)
	}

	if !account.Active {
		s.appendAudit(ctx, domain.AuditEvent{
			Actor:      account.ID,
			Kind:       domain.AuditFailedLoginAttempt,
			TargetID:   &account.ID,
			OccurredAt: now,
			Details:    map[string]any{"reason": "inactive_account"},
			IP:         stringPtrOrNil(input.IP),
			UserAgent:  stringPtrOrNil(input.UserAgent),
		})
		return nil, ErrInactiveAccount
	}

	if s.lockout.IsLocked(*account, now) {
		s.appendAudit(ctx, domain.AuditEvent{
			Actor:      account.ID,
			Kind:       domain.AuditLockedAccountAccessAttempt,
			TargetID:   &account.ID,
			OccurredAt: now,
			Details:    map[string]any{"locked_until": account.LockedUntil.UTC().Format(time.RFC3339)},
			IP:         stringPtrOrNil(input.IP),
			UserAgent:  stringPtrOrNil(input.UserAgent),
		})
		return nil, &AccountLockedError{RetryAfterMinutes: s.lockout.RemainingLockout(*account, now)}
	}

	match, err := s.hasher.Verify(input.Password, account.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !match {
		return s.failAttempt(ctx, account, identifier, "wrong_password", now, input)
	}

	var mfaUsed, backupUsed bool
	if account.HasMFA() {
		code := strings.TrimSpace(input.MFACode)
		if code == "" {
			return nil, ErrMFARequired
		}

		mfaUsed, backupUsed, err = s.verifySecondFactor(ctx, account, code, now, input)
		if err != nil {
			return nil, err
		}
	}

	if err := s.accounts.ResetLoginState(ctx, account.ID, now); err != nil {
		return nil, fmt.Errorf("reset login state: %w", err)
	}

	pair, err := s.issueTokenPair(account, now)
	if err != nil {
		return nil, err
	}

	s.appendAudit(ctx, domain.AuditEvent{
		Actor:      account.ID,
		Kind:       domain.AuditSuccessfulLogin,
		TargetID:   &account.ID,
		OccurredAt: now,
		Details:    map[string]any{"method": loginMethod(mfaUsed, backupUsed)},
		IP:         stringPtrOrNil(input.IP),
		UserAgent:  stringPtrOrNil(input.UserAgent),
	})
	s.publishLoginSucceeded(ctx, account, mfaUsed, backupUsed, now, input.IP)

	sanitized := *account
	sanitized.PasswordHash = ""
	sanitized.MFASecret = nil
	sanitized.BackupCodes = nil
	sanitized.FailedLoginAttempts = 0
	sanitized.LockedUntil = nil
	lastLogin := now
	sanitized.LastLogin = &lastLogin

	return &LoginResult{
		Account:        sanitized,
		Tokens:         *pair,
		MFAUsed:        mfaUsed,
		BackupCodeUsed: backupUsed,
	}, nil
}

// verifySecondFactor checks the submitted code first against TOTP, then
// against the backup code set. A consumed backup code is persisted before
// the login proceeds so it can never be presented twice.
func (s *AuthService) verifySecondFactor(ctx context.Context, account *domain.Account, code string, now time.Time, input LoginInput) (mfaUsed bool, backupUsed bool, err error) {
	if s.totp != nil {
		if ok, step := s.totp.Verify(*account.MFASecret, code, now); ok {
			fresh, guardErr := s.markStepUsed(ctx, account.ID, step)
			if guardErr != nil {
				return false, false, guardErr
			}
			if !fresh {
				_, lockedErr := s.failAttempt(ctx, account, account.Username, "totp_replay", now, input)
				if lockedErr != nil && !errors.Is(lockedErr, ErrInvalidCredentials) {
					return false, false, lockedErr
				}
				return false, false, ErrInvalidMFACode
			}
			return true, false, nil
		}
	}

	if s.backupCodes != nil && len(account.BackupCodes) > 0 {
		matched, remaining, consumeErr := s.backupCodes.Consume(account.BackupCodes, code)
		if consumeErr != nil {
			return false, false, fmt.Errorf("consume backup code: %w", consumeErr)
		}
		if matched {
			if updateErr := s.accounts.UpdateBackupCodes(ctx, account.ID, remaining); updateErr != nil {
				return false, false, fmt.Errorf("persist backup codes: %w", updateErr)
			}
			s.appendAudit(ctx, domain.AuditEvent{
				Actor:      account.ID,
				Kind:       domain.AuditBackupCodeUsed,
				TargetID:   &account.ID,
				OccurredAt: now,
				Details:    map[string]any{"remaining": len(remaining)},
				IP:         stringPtrOrNil(input.IP),
				UserAgent:  stringPtrOrNil(input.UserAgent),
			})
			return false, true, nil
		}
	}

	_, lockedErr := s.failAttempt(ctx, account, account.Username, "invalid_mfa_code", now, input)
	if lockedErr != nil && !errors.Is(lockedErr, ErrInvalidCredentials) {
		return false, false, lockedErr
	}
	return false, false, ErrInvalidMFACode
}

// failAttempt records one failed attempt through the atomic storage counter
// and applies the lock when the returned count reaches the threshold. It
// returns ErrInvalidCredentials, or AccountLockedError when this attempt
// tripped the lock.
func (s *AuthService) failAttempt(ctx context.Context, account *domain.Account, identifier, reason string, now time.Time, input LoginInput) (*LoginResult, error) {
	attempts, err := s.accounts.IncrementFailedAttempts(ctx, account.ID)
	if err != nil {
		return nil, fmt.Errorf("record failed attempt: %w", err)
	}

	details := map[string]any{"reason": reason, "failed_attempts": attempts}

	locked := s.lockout.ShouldLock(attempts)
	if locked {
		until := s.lockout.LockUntil(now)
		if err := s.accounts.Lock(ctx, account.ID, until); err != nil {
			return nil, fmt.Errorf("lock account: %w", err)
		}
		details["locked_until"] = until.Format(time.RFC3339)
		s.publishAccountLocked(ctx, account.ID, attempts, until, now)
	}

	s.appendAudit(ctx, domain.AuditEvent{
		Actor:      account.ID,
		Kind:       domain.AuditFailedLoginAttempt,
		TargetID:   &account.ID,
		OccurredAt: now,
		Details:    details,
		IP:         stringPtrOrNil(input.IP),
		UserAgent:  stringPtrOrNil(input.UserAgent),
	})
	s.publishLoginFailed(ctx, account.ID, identifier, reason, attempts, now, input.IP)

	if locked {
		return nil, &AccountLockedError{RetryAfterMinutes: int((s.lockout.LockDuration + time.Minute - 1) / time.Minute)}
	}
	return nil, ErrInvalidCredentials
}

func (s *AuthService) markStepUsed(ctx context.Context, accountID string, step int64) (bool, error) {
	if s.replayGuard == nil {
		return true, nil
	}

	fresh, err := s.replayGuard.MarkUsed(ctx, accountID, step, totpReplayGuardTTL)
	if err != nil {
		if s.degradation.AllowsFallback(domain.DegradationReasonReplayGuardUnavailable) {
			s.logger.Warn("totp replay guard unavailable, accepting code",
				zap.String("account_id", accountID), zap.Error(err))
			return true, nil
		}
		return false, fmt.Errorf("totp replay guard: %w", err)
	}

	return fresh, nil
}

func (s *AuthService) issueTokenPair(account *domain.Account, now time.Time) (*domain.TokenPair, error) {
	access, _, err := s.tokens.IssueAccess(account.ID, security.TokenExtras{Username: account.Username}, now)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}

	refresh, _, err := s.tokens.IssueRefresh(account.ID, now)
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}

	return &domain.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int(s.tokens.AccessTTL().Seconds()),
	}, nil
}

// VerifyAccessToken decodes a bearer token and consults the denylist. The
// HTTP middleware, the gRPC interceptor, and the introspection endpoint all
// route through here.
func (s *AuthService) VerifyAccessToken(ctx context.Context, token string) (*security.TokenClaims, error) {
	claims, err := s.tokens.Decode(token, domain.TokenTypeAccess, s.now().UTC())
	if err != nil {
		if errors.Is(err, security.ErrTokenExpired) {
			return nil, ErrExpiredAccessToken
		}
		return nil, ErrInvalidToken
	}

	if revoked, err := s.checkDenylist(ctx, claims.ID); err != nil {
		return nil, err
	} else if revoked {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

func (s *AuthService) checkDenylist(ctx context.Context, jti string) (bool, error) {
	if s.denylist == nil || jti == "" {
		return false, nil
	}

	revoked, err := s.denylist.IsRevoked(ctx, jti)
	if err != nil {
		if s.degradation.AllowsFallback(domain.DegradationReasonDenylistUnavailable) {
			s.logger.Warn("token denylist unavailable, accepting token",
				zap.String("jti", jti), zap.Error(err))
			return false, nil
		}
		// Strict mode fails closed: a token whose revocation state cannot be
		// confirmed is treated as revoked.
		s.logger.Warn("token denylist unavailable, rejecting token",
			zap.String("jti", jti), zap.Error(err))
		return true, nil
	}

	return revoked, nil
}

// RefreshResult carries the replacement access token. The refresh token is
// not rotated; it stays valid until its own expiry.
type RefreshResult struct {
	AccessToken string
	ExpiresIn   int
}

// Refresh validates a refresh token, re-reads the account, and issues a new
// access token. Every failure collapses to ErrInvalidToken: a refresh caller
// learns nothing about why the token stopped working.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	now := s.now().UTC()

	claims, err := s.tokens.Decode(refreshToken, domain.TokenTypeRefresh, now)
	if err != nil {
		return nil, ErrInvalidToken
	}

	if revoked, err := s.checkDenylist(ctx, claims.ID); err != nil {
		return nil, err
	} else if revoked {
		return nil, ErrInvalidToken
	}

	account, err := s.accounts.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("lookup account: %w", err)
	}

	if !account.Active {
		return nil, ErrInvalidToken
	}

	access, _, err := s.tokens.IssueAccess(account.ID, security.TokenExtras{Username: account.Username}, now)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}

	return &RefreshResult{
		AccessToken: access,
		ExpiresIn:   int(s.tokens.AccessTTL().Seconds()),
	}, nil
}

// Logout denylists the presented tokens for their remaining lifetime.
// Invalid or already-expired tokens are skipped: they are unusable anyway
// and logout stays idempotent.
func (s *AuthService) Logout(ctx context.Context, accessToken, refreshToken string) error {
	now := s.now().UTC()

	if err := s.revokePresented(ctx, accessToken, domain.TokenTypeAccess, now); err != nil {
		return err
	}
	return s.revokePresented(ctx, refreshToken, domain.TokenTypeRefresh, now)
}

func (s *AuthService) revokePresented(ctx context.Context, token string, tokenType domain.TokenType, now time.Time) error {
	if strings.TrimSpace(token) == "" || s.denylist == nil {
		return nil
	}

	claims, err := s.tokens.Decode(token, tokenType, now)
	if err != nil {
		return nil
	}

	revocation := domain.TokenRevocation{
		JTI:       claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
		Reason:    "user_logout",
	}
	if err := s.denylist.Revoke(ctx, revocation); err != nil {
		if s.degradation.AllowsFallback(domain.DegradationReasonDenylistUnavailable) {
			s.logger.Warn("token denylist unavailable, logout revocation dropped",
				zap.String("jti", claims.ID), zap.Error(err))
			return nil
		}
		return fmt.Errorf("revoke token: %w", err)
	}

	return nil
}

// IntrospectionResult reports token state to out-of-process callers. An
// unusable token yields Active=false rather than an error.
type IntrospectionResult struct {
	Active    bool
	Subject   string
	Username  string
	TokenType string
	JTI       string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Introspect verifies an access token on behalf of the records layer.
func (s *AuthService) Introspect(ctx context.Context, token string) (*IntrospectionResult, error) {
	claims, err := s.VerifyAccessToken(ctx, token)
	if err != nil {
		if errors.Is(err, ErrInvalidToken) || errors.Is(err, ErrExpiredAccessToken) {
			return &IntrospectionResult{Active: false}, nil
		}
		return nil, err
	}

	result := &IntrospectionResult{
		Active:    true,
		Subject:   claims.Subject,
		Username:  claims.Username,
		TokenType: claims.TokenType,
		JTI:       claims.ID,
	}
	if claims.IssuedAt != nil {
		result.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		result.ExpiresAt = claims.ExpiresAt.Time
	}

	return result, nil
}

// burnVerification runs one hash comparison against a throwaway hash so an
// unknown identifier costs the same as a wrong password.
func (s *AuthService) burnVerification(password string) {
	_, _ = s.hasher.Verify(password, s.levelingHash)
}

// appendAudit writes to the security trail. Append failures degrade to a
// process-level warning; the triggering auth decision proceeds.
func (s *AuthService) appendAudit(ctx context.Context, event domain.AuditEvent) {
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

func (s *AuthService) publishLoginSucceeded(ctx context.Context, account *domain.Account, mfaUsed, backupUsed bool, now time.Time, ip string) {
	if s.events == nil {
		return
	}

	event := domain.LoginSucceededEvent{
		EventID:    uuid.NewString(),
		AccountID:  account.ID,
		Username:   account.Username,
		MFAUsed:    mfaUsed,
		BackupCode: backupUsed,
		OccurredAt: now,
		IPAddress:  stringPtrOrNil(ip),
	}
	if err := s.events.PublishLoginSucceeded(ctx, event); err != nil {
		s.logger.Warn("publish login succeeded failed", zap.String("account_id", account.ID), zap.Error(err))
	}
}

func (s *AuthService) publishLoginFailed(ctx context.Context, accountID, identifier, reason string, attempts int, now time.Time, ip string) {
	if s.events == nil {
		return
	}

	event := domain.LoginFailedEvent{
		EventID:        uuid.NewString(),
		AccountID:      accountID,
		Identifier:     identifier,
		Reason:         reason,
		FailedAttempts: attempts,
		OccurredAt:     now,
		IPAddress:      stringPtrOrNil(ip),
	}
	if err := s.events.PublishLoginFailed(ctx, event); err != nil {
		s.logger.Warn("publish login failed event failed", zap.String("identifier", identifier), zap.Error(err))
	}
}

func (s *AuthService) publishAccountLocked(ctx context.Context, accountID string, attempts int, until, now time.Time) {
	if s.events == nil {
		return
	}

	event := domain.AccountLockedEvent{
		EventID:        uuid.NewString(),
		AccountID:      accountID,
		FailedAttempts: attempts,
		LockedUntil:    until,
		OccurredAt:     now,
	}
	if err := s.events.PublishAccountLocked(ctx, event); err != nil {
		s.logger.Warn("publish account locked failed", zap.String("account_id", accountID), zap.Error(err))
	}
}

func loginMethod(mfaUsed, backupUsed bool) string {
	switch {
	case backupUsed:
		return "backup_code"
	case mfaUsed:
		return "totp"
	default:
		return "password"
	}
}

func stringPtrOrNil(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
