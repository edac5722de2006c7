package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	uuid "github.com/google/uuid"

	"github.com/odaiidemos/k9-sub001/internal/core/domain"
)

// ErrSigningSecretTooShort indicates the configured HMAC secret is below the
// minimum accepted length.
var ErrSigningSecretTooShort = errors.New("jwt: signing secret must be at least 32 bytes")

// ErrTokenInvalid indicates a token that failed signature, structure, issuer,
// or type validation. Callers must treat it as if no token was presented.
var ErrTokenInvalid = errors.New("jwt: token invalid")

// ErrTokenExpired indicates a structurally valid token past its expiry.
var ErrTokenExpired = errors.New("jwt: token expired")

const (
	minSigningSecretBytes = 32

	defaultAccessTokenTTL  = 15 * time.Minute
	defaultRefreshTokenTTL = 720 * time.Hour
)

// TokenClaims carries the registered claims plus the token type marker and
// optional account context.
type TokenClaims struct {
	Username  string `json:"preferred_username,omitempty"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// TokenExtras holds optional non-registered claims embedded in access tokens.
type TokenExtras struct {
	Username string
}

// TokenManager mints and decodes HMAC-signed access and refresh tokens.
// Tokens are stateless: validity is established by signature and expiry
// alone, with revocation layered on top by the caller.
type TokenManager struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewTokenManager validates the signing configuration and returns a manager.
func NewTokenManager(secret, issuer string, accessTTL, refreshTTL time.Duration) (*TokenManager, error) {
	if len(secret) < minSigningSecretBytes {
		return nil, ErrSigningSecretTooShort
	}
	issuer = strings.TrimSpace(issuer)
	if issuer == "" {
		return nil, fmt.Errorf("jwt: issuer is required")
	}
	if accessTTL <= 0 {
		accessTTL = defaultAccessTokenTTL
	}
	if refreshTTL <= 0 {
		refreshTTL = defaultRefreshTokenTTL
	}

	return &TokenManager{
		secret:     []byte(secret),
		issuer:     issuer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}, nil
}

// AccessTTL reports the configured access token lifetime.
func (m *TokenManager) AccessTTL() time.Duration { return m.accessTTL }

// RefreshTTL reports the configured refresh token lifetime.
func (m *TokenManager) RefreshTTL() time.Duration { return m.refreshTTL }

// IssueAccess mints a signed access token for the subject at the supplied
// instant and returns it with the claims that were embedded.
func (m *TokenManager) IssueAccess(subject string, extra TokenExtras, now time.Time) (string, *TokenClaims, error) {
	return m.issue(subject, domain.TokenTypeAccess, extra.Username, now, m.accessTTL)
}

// IssueRefresh mints a signed refresh token for the subject. Refresh tokens
// carry no account context beyond the subject.
func (m *TokenManager) IssueRefresh(subject string, now time.Time) (string, *TokenClaims, error) {
	return m.issue(subject, domain.TokenTypeRefresh, "", now, m.refreshTTL)
}

func (m *TokenManager) issue(subject string, tokenType domain.TokenType, username string, now time.Time, ttl time.Duration) (string, *TokenClaims, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", nil, fmt.Errorf("jwt: subject is required")
	}
	now = now.UTC()

	claims := &TokenClaims{
		Username:  strings.TrimSpace(username),
		TokenType: string(tokenType),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", nil, fmt.Errorf("jwt: sign token: %w", err)
	}

	return signed, claims, nil
}

// Decode verifies the token signature, issuer, time window, and type marker
// as of the supplied instant. Any structural or signature defect maps to
// ErrTokenInvalid; a valid-but-expired token maps to ErrTokenExpired.
func (m *TokenManager) Decode(tokenString string, want domain.TokenType, now time.Time) (*TokenClaims, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return nil, ErrTokenInvalid
	}

	claims := &TokenClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, m.verificationKey,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithTimeFunc(func() time.Time { return now.UTC() }),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	if !token.Valid {
		return nil, ErrTokenInvalid
	}

	if claims.TokenType != string(want) {
		return nil, ErrTokenInvalid
	}
	if strings.TrimSpace(claims.Subject) == "" || strings.TrimSpace(claims.ID) == "" {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}

func (m *TokenManager) verificationKey(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("jwt: unexpected signing method %v", token.Header["alg"])
	}
	return m.secret, nil
}
