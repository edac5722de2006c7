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

const defaultPendingEnrollmentTTL = 10 * time.Minute

var (
	// ErrMFAAlreadyEnabled indicates the account already completed enrollment.
	ErrMFAAlreadyEnabled = errors.New("mfa already enabled")
	// ErrMFANotEnabled indicates the account has no second factor to disable.
	ErrMFANotEnabled = errors.New("mfa not enabled")
	// ErrMFAEnrollmentNotFound indicates no pending enrollment exists for the
	// account; either enable was never called or the window elapsed.
	ErrMFAEnrollmentNotFound = errors.New("mfa enrollment not found")
	// ErrInvalidPassword indicates the current password check failed.
	ErrInvalidPassword = errors.New("invalid password")
)

// MFAService manages TOTP enrollment and removal. The unconfirmed secret
// lives in the pending store between Enable and Confirm, never on the
// account row, so mfa_secret is set exactly when enrollment has completed.
type MFAService struct {
	accounts    port.AccountRepository
	pending     port.PendingMFAStore
	totp        port.TOTPProvider
	backupCodes *security.BackupCodes
	hasher      port.PasswordHasher
	audit       port.AuditLog
	events      port.EventPublisher
	logger      *zap.Logger
	now         func() time.Time
	pendingTTL  time.Duration
}

// NewMFAService constructs an MFAService instance.
func NewMFAService(
	cfg *config.AppConfig,
	accounts port.AccountRepository,
	pending port.PendingMFAStore,
	totp port.TOTPProvider,
	backupCodes *security.BackupCodes,
	hasher port.PasswordHasher,
	audit port.AuditLog,
	events port.EventPublisher,
	logger *zap.Logger,
) (*MFAService, error) {
	if accounts == nil {
		return nil, fmt.Errorf("account repository is required")
	}
	if pending == nil {
		return nil, fmt.Errorf("pending enrollment store is required")
	}
	if totp == nil {
		return nil, fmt.Errorf("totp provider is required")
	}
	if backupCodes == nil {
		return nil, fmt.Errorf("backup code manager is required")
	}
	if hasher == nil {
		return nil, fmt.Errorf("password hasher is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	pendingTTL := defaultPendingEnrollmentTTL
	if cfg != nil && cfg.MFA.PendingTTL > 0 {
		pendingTTL = cfg.MFA.PendingTTL
	}

	service := &MFAService{
		accounts:    accounts,
		pending:     pending,
		totp:        totp,
		backupCodes: backupCodes,
		hasher:      hasher,
		audit:       audit,
		events:      events,
		logger:      logger,
		pendingTTL:  pendingTTL,
	}
	service.now = func() time.Time { return time.Now().UTC() }
	return service, nil
}

// WithClock overrides the service clock for deterministic tests.
func (s *MFAService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// MFAEnrollment carries the fresh secret back to the caller exactly once.
type MFAEnrollment struct {
	Secret          string
	ProvisioningURI string
}

// Enable starts TOTP enrollment: a fresh secret is generated, parked in the
// pending store, and returned with its provisioning URI. The account row is
// untouched until Confirm.
func (s *MFAService) Enable(ctx context.Context, accountID string) (*MFAEnrollment, error) {
	account, err := s.getAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	if account.HasMFA() {
		return nil, ErrMFAAlreadyEnabled
	}

	secret, err := s.totp.GenerateSecret()
	if err != nil {
		return nil, fmt.Errorf("generate totp secret: %w", err)
	}

	uri, err := s.totp.ProvisioningURI(account.Username, secret)
	if err != nil {
		return nil, fmt.Errorf("build provisioning uri: %w", err)
	}

	if err := s.pending.StorePending(ctx, account.ID, secret, s.pendingTTL); err != nil {
		return nil, fmt.Errorf("store pending enrollment: %w", err)
	}

	return &MFAEnrollment{Secret: secret, ProvisioningURI: uri}, nil
}

// Confirm completes enrollment: the submitted code is verified against the
// pending secret, backup codes are minted, and the account row flips to
// mfa_enabled in one write. The plaintext backup codes are returned exactly
// once; only their hashes persist.
func (s *MFAService) Confirm(ctx context.Context, accountID string, code string) ([]string, error) {
	account, err := s.getAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	if account.HasMFA() {
		return nil, ErrMFAAlreadyEnabled
	}

	secret, err := s.pending.FetchPending(ctx, account.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrMFAEnrollmentNotFound
		}
		return nil, fmt.Errorf("fetch pending enrollment: %w", err)
	}

	now := s.now().UTC()
	if ok, _ := s.totp.Verify(secret, strings.TrimSpace(code), now); !ok {
		return nil, ErrInvalidMFACode
	}

	plaintext, err := s.backupCodes.Generate()
	if err != nil {
		return nil, fmt.Errorf("generate backup codes: %w", err)
	}

	hashes, err := s.backupCodes.HashAll(plaintext)
	if err != nil {
		return nil, fmt.Errorf("hash backup codes: %w", err)
	}

	if err := s.accounts.EnableMFA(ctx, account.ID, secret, hashes); err != nil {
		return nil, fmt.Errorf("enable mfa: %w", err)
	}

	if err := s.pending.DeletePending(ctx, account.ID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		s.logger.Warn("delete pending enrollment failed", zap.String("account_id", account.ID), zap.Error(err))
	}

	s.appendMFAAudit(ctx, account.ID, domain.AuditMFAEnabled, now, map[string]any{"backup_codes_issued": len(plaintext)})
	s.publishMFAEnabled(ctx, account.ID, len(plaintext), now)

	return plaintext, nil
}

// Disable removes the second factor after re-verifying the current password.
// The secret and every remaining backup code hash are dropped together.
func (s *MFAService) Disable(ctx context.Context, accountID string, currentPassword string) error {
	account, err := s.getAccount(ctx, accountID)
	if err != nil {
		return err
	}

	if !account.HasMFA() {
		return ErrMFANotEnabled
	}

	match, err := s.hasher.Verify(currentPassword, account.PasswordHash)
	if err != nil {
		return fmt.Errorf("verify password: %w", err)
	}
	if !match {
		return ErrInvalidPassword
	}

	if err := s.accounts.DisableMFA(ctx, account.ID); err != nil {
		return fmt.Errorf("disable mfa: %w", err)
	}

	now := s.now().UTC()
	s.appendMFAAudit(ctx, account.ID, domain.AuditMFADisabled, now, nil)
	s.publishMFADisabled(ctx, account.ID, now)

	return nil
}

func (s *MFAService) getAccount(ctx context.Context, accountID string) (*domain.Account, error) {
	id := strings.TrimSpace(accountID)
	if id == "" {
		return nil, fmt.Errorf("account id is required")
	}

	account, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("lookup account: %w", err)
	}

	return account, nil
}

func (s *MFAService) appendMFAAudit(ctx context.Context, accountID string, kind domain.AuditKind, now time.Time, details map[string]any) {
	if s.audit == nil {
		return
	}

	event := domain.AuditEvent{
		Actor:      accountID,
		Kind:       kind,
		TargetID:   &accountID,
		OccurredAt: now,
		Details:    details,
	}
	if _, err := s.audit.Append(ctx, event); err != nil {
		s.logger.Warn("audit append failed",
			zap.String("kind", string(kind)),
			zap.String("actor", accountID),
			zap.Error(err))
	}
}

func (s *MFAService) publishMFAEnabled(ctx context.Context, accountID string, issued int, now time.Time) {
	if s.events == nil {
		return
	}

	event := domain.MFAEnabledEvent{
		EventID:           uuid.NewString(),
		AccountID:         accountID,
		BackupCodesIssued: issued,
		OccurredAt:        now,
	}
	if err := s.events.PublishMFAEnabled(ctx, event); err != nil {
		s.logger.Warn("publish mfa enabled failed", zap.String("account_id", accountID), zap.Error(err))
	}
}

func (s *MFAService) publishMFADisabled(ctx context.Context, accountID string, now time.Time) {
	if s.events == nil {
		return
	}

	event := domain.MFADisabledEvent{
		EventID:    uuid.NewString(),
		AccountID:  accountID,
		OccurredAt: now,
	}
	if err := s.events.PublishMFADisabled(ctx, event); err != nil {
		s.logger.Warn("publish mfa disabled failed", zap.String("account_id", accountID), zap.Error(err))
	}
}
