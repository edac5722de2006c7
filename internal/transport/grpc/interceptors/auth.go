package interceptors

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/odaiidemos/k9-sub001/internal/infra/security"
	"github.com/odaiidemos/k9-sub001/internal/usecase"
)

const (
	authorizationKey = "authorization"
	bearerPrefix     = "bearer "
)

// TokenVerifier exposes the access-token verification capability required by
// the auth interceptor.
type TokenVerifier interface {
	VerifyAccessToken(ctx context.Context, token string) (*security.TokenClaims, error)
}

// AuthOptions fine-tunes interceptor behaviour.
type AuthOptions struct {
	AllowMethods []string
	Logger       *zap.Logger
}

// AuthInterceptor validates incoming requests using JWT access tokens.
type AuthInterceptor struct {
	verifier TokenVerifier
	logger   *zap.Logger
	allow    map[string]struct{}
}

// NewAuthInterceptor constructs a new AuthInterceptor instance.
func NewAuthInterceptor(verifier TokenVerifier, opts AuthOptions) *AuthInterceptor {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &AuthInterceptor{
		verifier: verifier,
		logger:   logger,
		allow:    allowSet(opts.AllowMethods),
	}
}

func allowSet(methods []string) map[string]struct{} {
	allow := make(map[string]struct{}, len(methods))
	for _, method := range methods {
		if method = strings.TrimSpace(method); method != "" {
			allow[method] = struct{}{}
		}
	}
	return allow
}

// UnaryServerInterceptor returns a gRPC unary interceptor that enforces JWT
// authentication on every method outside the allow list.
func (ai *AuthInterceptor) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		authed, err := ai.authenticate(ctx, info.FullMethod)
		if err != nil {
			return nil, err
		}
		return handler(authed, req)
	}
}

// authenticate verifies the bearer token unless the method is allow-listed.
// On success the returned context carries the verified claims.
func (ai *AuthInterceptor) authenticate(ctx context.Context, fullMethod string) (context.Context, error) {
	if ai == nil || ai.verifier == nil {
		return ctx, nil
	}
	if _, open := ai.allow[fullMethod]; open {
		return ctx, nil
	}

	token, err := tokenFromMetadata(ctx)
	if err != nil {
		ai.logger.Warn("grpc authentication failed", zap.String("method", fullMethod), zap.Error(err))
		return ctx, status.Error(codes.Unauthenticated, err.Error())
	}

	claims, err := ai.verifier.VerifyAccessToken(ctx, token)
	if err != nil {
		ai.logger.Warn("grpc token validation failed", zap.String("method", fullMethod), zap.Error(err))
		return ctx, authFailure(err)
	}

	return WithClaims(ctx, claims), nil
}

func authFailure(err error) error {
	switch {
	case errors.Is(err, usecase.ErrExpiredAccessToken):
		return status.Error(codes.Unauthenticated, "access token expired")
	case errors.Is(err, usecase.ErrInvalidToken):
		return status.Error(codes.Unauthenticated, "invalid access token")
	default:
		return status.Error(codes.Unauthenticated, "failed to validate access token")
	}
}

// claimsContextKey stores token claims within the request context.
type claimsContextKey struct{}

// WithClaims returns a derived context containing token claims.
func WithClaims(ctx context.Context, claims *security.TokenClaims) context.Context {
	if claims == nil {
		return ctx
	}
	return context.WithValue(ctx, claimsContextKey{}, claims)
}

// ClaimsFromContext extracts token claims from context when available.
func ClaimsFromContext(ctx context.Context) (*security.TokenClaims, bool) {
	if ctx == nil {
		return nil, false
	}
	claims, ok := ctx.Value(claimsContextKey{}).(*security.TokenClaims)
	if !ok || claims == nil {
		return nil, false
	}
	return claims, true
}

// tokenFromMetadata pulls the bearer token out of the authorization metadata
// entry. Metadata keys are normalised to lowercase by the transport, so a
// single lookup covers every client spelling.
func tokenFromMetadata(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", errors.New("missing metadata")
	}

	var raw string
	if values := md.Get(authorizationKey); len(values) > 0 {
		raw = strings.TrimSpace(values[0])
	}
	if raw == "" {
		return "", errors.New("authorization token required")
	}

	if len(raw) < len(bearerPrefix) || !strings.EqualFold(raw[:len(bearerPrefix)], bearerPrefix) {
		return "", errors.New("invalid authorization header")
	}

	token := strings.TrimSpace(raw[len(bearerPrefix):])
	if token == "" {
		return "", errors.New("authorization token required")
	}

	return token, nil
}
