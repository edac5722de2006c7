package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/odaiidemos/k9-sub001/internal/core/domain"
	"github.com/odaiidemos/k9-sub001/internal/infra/security"
	"github.com/odaiidemos/k9-sub001/internal/repository"
)

type fakeResetTokenRepo struct {
	byID      map[string]*domain.PasswordResetToken
	createErr error
	clock     func() time.Time
}

func newFakeResetTokenRepo(clock func() time.Time) *fakeResetTokenRepo {
	return &fakeResetTokenRepo{byID: make(map[string]*domain.PasswordResetToken), clock: clock}
}

// CreatePasswordReset mirrors the production contract: storing a new token
// revokes every prior live token of the same account.
func (r *fakeResetTokenRepo) CreatePasswordReset(_ context.Context, token domain.PasswordResetToken) error {
	if r.createErr != nil {
		return r.createErr
	}
	for _, prior := range r.byID {
		if prior.AccountID == token.AccountID && prior.UsedAt == nil && prior.RevokedAt == nil {
			revokedAt := token.CreatedAt
			prior.RevokedAt = &revokedAt
		}
	}
	stored := token
	r.byID[token.ID] = &stored
	return nil
}

func (r *fakeResetTokenRepo) GetPasswordResetByHash(_ context.Context, hash string) (*domain.PasswordResetToken, error) {
	for _, token := range r.byID {
		if token.TokenHash == hash {
			stored := *token
			return &stored, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeResetTokenRepo) ConsumePasswordReset(_ context.Context, id string) error {
	token, ok := r.byID[id]
	if !ok || token.UsedAt != nil {
		return repository.ErrNotFound
	}
	usedAt := r.clock()
	token.UsedAt = &usedAt
	return nil
}

func (r *fakeResetTokenRepo) tokenForAccount(t *testing.T, accountID string) domain.PasswordResetToken {
	t.Helper()
	var live *domain.PasswordResetToken
	for _, token := range r.byID {
		if token.AccountID == accountID && token.RevokedAt == nil {
			if live != nil {
				t.Fatalf("multiple live tokens for account %s", accountID)
			}
			live = token
		}
	}
	if live == nil {
		t.Fatalf("no live token for account %s", accountID)
	}
	return *live
}

type fakeRateLimitStore struct {
	attempts map[string][]time.Time
	trimErr  error
	countErr error
}

func newFakeRateLimitStore() *fakeRateLimitStore {
	return &fakeRateLimitStore{attempts: make(map[string][]time.Time)}
}

func (s *fakeRateLimitStore) Prune(_ context.Context, key string, window time.Duration, now time.Time) error {
	if s.trimErr != nil {
		return s.trimErr
	}
	cutoff := now.Add(-window)
	kept := s.attempts[key][:0]
	for _, at := range s.attempts[key] {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}
	s.attempts[key] = kept
	return nil
}

func (s *fakeRateLimitStore) Count(_ context.Context, key string, window time.Duration, now time.Time) (int, error) {
	if s.countErr != nil {
		return 0, s.countErr
	}
	cutoff := now.Add(-window)
	count := 0
	for _, at := range s.attempts[key] {
		if at.After(cutoff) {
			count++
		}
	}
	return count, nil
}

func (s *fakeRateLimitStore) Record(_ context.Context, key string, at time.Time) error {
	s.attempts[key] = append(s.attempts[key], at)
	return nil
}

func (s *fakeRateLimitStore) Oldest(_ context.Context, key string, window time.Duration, now time.Time) (time.Time, bool, error) {
	cutoff := now.Add(-window)
	var oldest time.Time
	found := false
	for _, at := range s.attempts[key] {
		if at.After(cutoff) && (!found || at.Before(oldest)) {
			oldest = at
			found = true
		}
	}
	return oldest, found, nil
}

type fakeResetNotifier struct {
	emails []string
	links  []string
	err    error
}

func (n *fakeResetNotifier) SendResetEmail(_ context.Context, email, resetLink, _ string) error {
	if n.err != nil {
		return n.err
	}
	n.emails = append(n.emails, email)
	n.links = append(n.links, resetLink)
	return nil
}

type resetFixture struct {
	service  *PasswordResetService
	accounts *fakeAccountRepo
	tokens   *fakeResetTokenRepo
	audit    *fakeAuditLog
	limits   *fakeRateLimitStore
	notifier *fakeResetNotifier
	events   *eventRecorder
	clock    time.Time
}

func newResetFixture(t *testing.T, accounts *fakeAccountRepo) *resetFixture {
	t.Helper()

	fixture := &resetFixture{
		accounts: accounts,
		audit:    &fakeAuditLog{},
		limits:   newFakeRateLimitStore(),
		notifier: &fakeResetNotifier{},
		events:   &eventRecorder{},
		clock:    time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	fixture.tokens = newFakeResetTokenRepo(func() time.Time { return fixture.clock })

	service, err := NewPasswordResetService(
		testConfig(),
		accounts,
		fixture.tokens,
		fixture.audit,
		stubHasher{},
		nil,
		fixture.limits,
		fixture.notifier,
		fixture.events,
		nil,
	)
	if err != nil {
		t.Fatalf("NewPasswordResetService failed: %v", err)
	}

	service.WithClock(func() time.Time { return fixture.clock })
	fixture.service = service
	return fixture
}

func TestPasswordResetService_RequestReset_KnownIdentifier(t *testing.T) {
	fixture := newResetFixture(t, newFakeAccountRepo(activeAccount()))

	result, err := fixture.service.RequestReset(context.Background(), ResetRequestInput{
		Identifier: "petrova@kennel.example",
		IP:         "10.0.0.7",
	})
	if err != nil {
		t.Fatalf("RequestReset returned error: %v", err)
	}

	if result.RequestID == "" {
		t.Fatalf("expected a request id")
	}
	if want := fixture.clock.Add(24 * time.Hour); !result.ExpiresAt.Equal(want) {
		t.Fatalf("expected expiry %v, got %v", want, result.ExpiresAt)
	}
	if result.MaskedDestination != "pet***@kennel.example" {
		t.Fatalf("unexpected masked destination %q", result.MaskedDestination)
	}
	if result.Token == "" || !strings.Contains(result.ResetLink, result.Token) {
		t.Fatalf("expected link carrying the raw token, got %q", result.ResetLink)
	}
	if !strings.HasPrefix(result.ResetLink, "https://kennel.example/reset?token=") {
		t.Fatalf("unexpected reset link %q", result.ResetLink)
	}

	stored := fixture.tokens.tokenForAccount(t, "acct-1")
	if stored.TokenHash != security.HashToken(result.Token) {
		t.Fatalf("stored hash does not match the issued token")
	}
	if stored.TokenHash == result.Token {
		t.Fatalf("raw token must not be persisted")
	}
	if !stored.ExpiresAt.Equal(result.ExpiresAt) {
		t.Fatalf("stored expiry %v does not match result %v", stored.ExpiresAt, result.ExpiresAt)
	}

	if len(fixture.notifier.emails) != 1 || fixture.notifier.emails[0] != "petrova@kennel.example" {
		t.Fatalf("expected one notification to the account email, got %v", fixture.notifier.emails)
	}

	event := fixture.audit.lastOfKind(domain.AuditPasswordResetRequested)
	if event == nil {
		t.Fatalf("expected reset requested audit entry")
	}
	if event.Actor != "acct-1" {
		t.Fatalf("expected account actor, got %s", event.Actor)
	}
	if event.Details["delivered"] != true {
		t.Fatalf("expected delivered detail, got %v", event.Details["delivered"])
	}
	if len(fixture.events.resetRequested) != 1 {
		t.Fatalf("expected reset requested event, got %d", len(fixture.events.resetRequested))
	}
}

func TestPasswordResetService_RequestReset_UnknownIdentifierLooksIdentical(t *testing.T) {
	fixture := newResetFixture(t, newFakeAccountRepo())

	result, err := fixture.service.RequestReset(context.Background(), ResetRequestInput{
		Identifier: "ghost@kennel.example",
	})
	if err != nil {
		t.Fatalf("RequestReset returned error: %v", err)
	}

	// The caller-visible shape matches the known-identifier response.
	if result.RequestID == "" {
		t.Fatalf("expected a request id")
	}
	if want := fixture.clock.Add(24 * time.Hour); !result.ExpiresAt.Equal(want) {
		t.Fatalf("expected expiry %v, got %v", want, result.ExpiresAt)
	}
	if result.MaskedDestination != "gho***@kennel.example" {
		t.Fatalf("unexpected masked destination %q", result.MaskedDestination)
	}
	if result.Token != "" || result.ResetLink != "" {
		t.Fatalf("unknown identifier must not mint a token")
	}

	if len(fixture.tokens.byID) != 0 {
		t.Fatalf("expected no stored token, got %d", len(fixture.tokens.byID))
	}
	if len(fixture.notifier.emails) != 0 {
		t.Fatalf("expected no notification, got %v", fixture.notifier.emails)
	}
	if len(fixture.events.resetRequested) != 0 {
		t.Fatalf("expected no reset requested event")
	}

	event := fixture.audit.lastOfKind(domain.AuditPasswordResetRequested)
	if event == nil {
		t.Fatalf("expected audit entry for the unknown identifier")
	}
	if event.Actor != domain.ActorSystem {
		t.Fatalf("expected system actor, got %s", event.Actor)
	}
	if event.Details["outcome"] != "unknown_identifier" {
		t.Fatalf("expected unknown_identifier outcome, got %v", event.Details["outcome"])
	}
}

func TestPasswordResetService_RequestReset_ThrottledAfterMax(t *testing.T) {
	fixture := newResetFixture(t, newFakeAccountRepo())

	// The limiter keys on the identifier before any account lookup, so an
	// unknown identifier is throttled exactly like a real one.
	for i := 0; i < 3; i++ {
		if _, err := fixture.service.RequestReset(context.Background(), ResetRequestInput{
			Identifier: "Ghost@kennel.example",
		}); err != nil {
			t.Fatalf("request %d returned error: %v", i+1, err)
		}
		fixture.clock = fixture.clock.Add(time.Minute)
	}

	_, err := fixture.service.RequestReset(context.Background(), ResetRequestInput{
		Identifier: "ghost@kennel.example",
	})

	var limitErr *RateLimitExceededError
	if !errors.As(err, &limitErr) {
		t.Fatalf("expected RateLimitExceededError, got %v", err)
	}
	if limitErr.Scope != "password_reset" {
		t.Fatalf("unexpected scope %q", limitErr.Scope)
	}
	if limitErr.RetryAfter <= 0 || limitErr.RetryAfter > time.Hour {
		t.Fatalf("unexpected retry-after %s", limitErr.RetryAfter)
	}

	// An hour after the first attempt the window has drained.
	fixture.clock = fixture.clock.Add(time.Hour)
	if _, err := fixture.service.RequestReset(context.Background(), ResetRequestInput{
		Identifier: "ghost@kennel.example",
	}); err != nil {
		t.Fatalf("expected window to reopen, got %v", err)
	}
}

func TestPasswordResetService_RequestReset_NewTokenRevokesPrior(t *testing.T) {
	fixture := newResetFixture(t, newFakeAccountRepo(activeAccount()))

	first, err := fixture.service.RequestReset(context.Background(), ResetRequestInput{
		Identifier: "handler.petrova",
	})
	if err != nil {
		t.Fatalf("first request returned error: %v", err)
	}

	fixture.clock = fixture.clock.Add(time.Minute)
	second, err := fixture.service.RequestReset(context.Background(), ResetRequestInput{
		Identifier: "handler.petrova",
	})
	if err != nil {
		t.Fatalf("second request returned error: %v", err)
	}

	err = fixture.service.CompleteReset(context.Background(), ResetCompleteInput{
		Token:       first.Token,
		NewPassword: "Velvet-Quasar-Mango-57!",
	})
	if !errors.Is(err, ErrInvalidOrExpiredResetToken) {
		t.Fatalf("expected superseded token to be rejected, got %v", err)
	}

	if err := fixture.service.CompleteReset(context.Background(), ResetCompleteInput{
		Token:       second.Token,
		NewPassword: "Velvet-Quasar-Mango-57!",
	}); err != nil {
		t.Fatalf("expected latest token to complete, got %v", err)
	}
}

func TestPasswordResetService_CompleteReset_Success(t *testing.T) {
	account := activeAccount()
	account.FailedLoginAttempts = 5
	until := time.Date(2025, 6, 1, 12, 10, 0, 0, time.UTC)
	account.LockedUntil = &until

	fixture := newResetFixture(t, newFakeAccountRepo(account))

	request, err := fixture.service.RequestReset(context.Background(), ResetRequestInput{
		Identifier: "handler.petrova",
	})
	if err != nil {
		t.Fatalf("RequestReset returned error: %v", err)
	}

	fixture.clock = fixture.clock.Add(30 * time.Minute)
	if err := fixture.service.CompleteReset(context.Background(), ResetCompleteInput{
		Token:       request.Token,
		NewPassword: "Velvet-Quasar-Mango-57!",
		IP:          "10.0.0.9",
	}); err != nil {
		t.Fatalf("CompleteReset returned error: %v", err)
	}

	stored := fixture.accounts.account(t, "acct-1")
	if stored.PasswordHash != stubHash("Velvet-Quasar-Mango-57!") {
		t.Fatalf("expected new password hash persisted, got %q", stored.PasswordHash)
	}
	if !stored.PasswordChangedAt.Equal(fixture.clock) {
		t.Fatalf("expected password change stamped at %v, got %v", fixture.clock, stored.PasswordChangedAt)
	}
	if stored.FailedLoginAttempts != 0 || stored.LockedUntil != nil {
		t.Fatalf("expected lockout cleared, got attempts=%d locked=%v", stored.FailedLoginAttempts, stored.LockedUntil)
	}

	token := fixture.tokens.tokenForAccount(t, "acct-1")
	if token.UsedAt == nil {
		t.Fatalf("expected token consumed")
	}

	if event := fixture.audit.lastOfKind(domain.AuditPasswordResetCompleted); event == nil {
		t.Fatalf("expected reset completed audit entry")
	}
	changed := fixture.audit.lastOfKind(domain.AuditPasswordChanged)
	if changed == nil {
		t.Fatalf("expected password changed audit entry")
	}
	if changed.Details["changed_by"] != "password_reset" {
		t.Fatalf("expected changed_by password_reset, got %v", changed.Details["changed_by"])
	}
	if len(fixture.events.passwordChanged) != 1 || fixture.events.passwordChanged[0].ChangedBy != "password_reset" {
		t.Fatalf("expected password changed event, got %+v", fixture.events.passwordChanged)
	}
}

func TestPasswordResetService_CompleteReset_SecondUseFails(t *testing.T) {
	fixture := newResetFixture(t, newFakeAccountRepo(activeAccount()))

	request, err := fixture.service.RequestReset(context.Background(), ResetRequestInput{
		Identifier: "handler.petrova",
	})
	if err != nil {
		t.Fatalf("RequestReset returned error: %v", err)
	}

	input := ResetCompleteInput{Token: request.Token, NewPassword: "Velvet-Quasar-Mango-57!"}
	if err := fixture.service.CompleteReset(context.Background(), input); err != nil {
		t.Fatalf("first completion returned error: %v", err)
	}

	input.NewPassword = "Another-Granite-Falcon-3?"
	if err := fixture.service.CompleteReset(context.Background(), input); !errors.Is(err, ErrInvalidOrExpiredResetToken) {
		t.Fatalf("expected consumed token to be rejected, got %v", err)
	}

	// The first write stands.
	if got := fixture.accounts.account(t, "acct-1").PasswordHash; got != stubHash("Velvet-Quasar-Mango-57!") {
		t.Fatalf("expected first password to stand, got %q", got)
	}
}

func TestPasswordResetService_CompleteReset_ExpiredToken(t *testing.T) {
	fixture := newResetFixture(t, newFakeAccountRepo(activeAccount()))

	request, err := fixture.service.RequestReset(context.Background(), ResetRequestInput{
		Identifier: "handler.petrova",
	})
	if err != nil {
		t.Fatalf("RequestReset returned error: %v", err)
	}

	fixture.clock = fixture.clock.Add(24*time.Hour + time.Minute)
	err = fixture.service.CompleteReset(context.Background(), ResetCompleteInput{
		Token:       request.Token,
		NewPassword: "Velvet-Quasar-Mango-57!",
	})
	if !errors.Is(err, ErrInvalidOrExpiredResetToken) {
		t.Fatalf("expected expired token to be rejected, got %v", err)
	}
}

func TestPasswordResetService_CompleteReset_UnknownToken(t *testing.T) {
	fixture := newResetFixture(t, newFakeAccountRepo(activeAccount()))

	err := fixture.service.CompleteReset(context.Background(), ResetCompleteInput{
		Token:       "never-issued",
		NewPassword: "Velvet-Quasar-Mango-57!",
	})
	if !errors.Is(err, ErrInvalidOrExpiredResetToken) {
		t.Fatalf("expected unknown token to be rejected, got %v", err)
	}

	err = fixture.service.CompleteReset(context.Background(), ResetCompleteInput{
		NewPassword: "Velvet-Quasar-Mango-57!",
	})
	if !errors.Is(err, ErrInvalidOrExpiredResetToken) {
		t.Fatalf("expected empty token to be rejected, got %v", err)
	}
}

func TestPasswordResetService_CompleteReset_WeakPasswordKeepsTokenLive(t *testing.T) {
	fixture := newResetFixture(t, newFakeAccountRepo(activeAccount()))

	request, err := fixture.service.RequestReset(context.Background(), ResetRequestInput{
		Identifier: "handler.petrova",
	})
	if err != nil {
		t.Fatalf("RequestReset returned error: %v", err)
	}

	err = fixture.service.CompleteReset(context.Background(), ResetCompleteInput{
		Token:       request.Token,
		NewPassword: "short",
	})

	var weakErr *WeakPasswordError
	if !errors.As(err, &weakErr) {
		t.Fatalf("expected WeakPasswordError, got %v", err)
	}
	if len(weakErr.Reasons) < 2 {
		t.Fatalf("expected every failed rule reported, got %v", weakErr.Reasons)
	}

	if token := fixture.tokens.tokenForAccount(t, "acct-1"); token.UsedAt != nil {
		t.Fatalf("weak password must leave the token unconsumed")
	}

	if err := fixture.service.CompleteReset(context.Background(), ResetCompleteInput{
		Token:       request.Token,
		NewPassword: "Velvet-Quasar-Mango-57!",
	}); err != nil {
		t.Fatalf("expected retry with a strong password to succeed, got %v", err)
	}
}

func TestPasswordResetService_CompleteReset_SamePasswordRejected(t *testing.T) {
	account := activeAccount()
	account.PasswordHash = stubHash("Velvet-Quasar-Mango-57!")

	fixture := newResetFixture(t, newFakeAccountRepo(account))

	request, err := fixture.service.RequestReset(context.Background(), ResetRequestInput{
		Identifier: "handler.petrova",
	})
	if err != nil {
		t.Fatalf("RequestReset returned error: %v", err)
	}

	err = fixture.service.CompleteReset(context.Background(), ResetCompleteInput{
		Token:       request.Token,
		NewPassword: "Velvet-Quasar-Mango-57!",
	})

	var weakErr *WeakPasswordError
	if !errors.As(err, &weakErr) {
		t.Fatalf("expected WeakPasswordError, got %v", err)
	}
	if len(weakErr.Reasons) != 1 || !strings.Contains(weakErr.Reasons[0], "different from current") {
		t.Fatalf("expected must-differ reason, got %v", weakErr.Reasons)
	}
	if token := fixture.tokens.tokenForAccount(t, "acct-1"); token.UsedAt != nil {
		t.Fatalf("rejection must leave the token unconsumed")
	}
}
