package transportgrpc

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/odaiidemos/k9-sub001/internal/core/domain"
	"github.com/odaiidemos/k9-sub001/internal/infra/security"
	"github.com/odaiidemos/k9-sub001/internal/repository"
	"github.com/odaiidemos/k9-sub001/internal/usecase"
)

type emptyAccountRepo struct{}

func (emptyAccountRepo) GetByID(context.Context, string) (*domain.Account, error) {
	return nil, repository.ErrNotFound
}

func (emptyAccountRepo) GetByIdentifier(context.Context, string) (*domain.Account, error) {
	return nil, repository.ErrNotFound
}

func (emptyAccountRepo) GetByEmail(context.Context, string) (*domain.Account, error) {
	return nil, repository.ErrNotFound
}

func (emptyAccountRepo) IncrementFailedAttempts(context.Context, string) (int, error) {
	return 0, repository.ErrNotFound
}

func (emptyAccountRepo) Lock(context.Context, string, time.Time) error {
	return repository.ErrNotFound
}

func (emptyAccountRepo) ResetLoginState(context.Context, string, time.Time) error {
	return repository.ErrNotFound
}

func (emptyAccountRepo) ClearLockout(context.Context, string) error {
	return repository.ErrNotFound
}

func (emptyAccountRepo) UpdatePassword(context.Context, string, string, time.Time) error {
	return repository.ErrNotFound
}

func (emptyAccountRepo) EnableMFA(context.Context, string, string, []string) error {
	return repository.ErrNotFound
}

func (emptyAccountRepo) DisableMFA(context.Context, string) error {
	return repository.ErrNotFound
}

func (emptyAccountRepo) UpdateBackupCodes(context.Context, string, []string) error {
	return repository.ErrNotFound
}

type plainHasher struct{}

func (plainHasher) Hash(password string) (string, error) { return "h:" + password, nil }

func (plainHasher) Verify(password, encoded string) (bool, error) {
	return encoded == "h:"+password, nil
}

func newTestAuthService(t *testing.T) *usecase.AuthService {
	t.Helper()

	tokens, err := security.NewTokenManager("0123456789abcdef0123456789abcdef", "k9-auth", time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("failed to build token manager: %v", err)
	}

	auth, err := usecase.NewAuthService(nil, emptyAccountRepo{}, nil, nil, nil, plainHasher{}, nil, nil, tokens, nil, nil)
	if err != nil {
		t.Fatalf("failed to build auth service: %v", err)
	}
	return auth
}

func TestNewServerRequiresAuthService(t *testing.T) {
	if _, err := NewServer(ServerDependencies{}); err == nil {
		t.Fatalf("expected error when auth service is missing")
	}
}

func TestNewServerRegistersHealthService(t *testing.T) {
	server, err := NewServer(ServerDependencies{
		Auth:   newTestAuthService(t),
		Logger: zaptest.NewLogger(t),
	})
	if err != nil {
		t.Fatalf("failed to build server: %v", err)
	}
	defer server.Stop()

	info := server.GetServiceInfo()
	if _, ok := info["grpc.health.v1.Health"]; !ok {
		t.Fatalf("expected health service to be registered, got %v", info)
	}
}
