package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/odaiidemos/k9-sub001/internal/core/domain"
	"github.com/odaiidemos/k9-sub001/internal/transport/http/middleware"
)

// ErrorResponse is the generic error payload. The trace ID lets a caller
// quote the exact failed request when reporting a problem.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewErrorResponse builds an ErrorResponse stamped with the request trace ID.
func NewErrorResponse(c *gin.Context, message string) ErrorResponse {
	return ErrorResponse{Error: message, TraceID: middleware.GetTraceID(c)}
}

// MessageResponse carries a single human-readable confirmation line.
type MessageResponse struct {
	Message string `json:"message"`
}

// AccountSummary describes the minimal account view returned by the API.
// Credential material never appears here.
type AccountSummary struct {
	ID         string     `json:"id"`
	Username   string     `json:"username"`
	Email      string     `json:"email"`
	MFAEnabled bool       `json:"mfa_enabled"`
	LastLogin  *time.Time `json:"last_login,omitempty"`
}

// AuthLoginRequest defines the payload for the login endpoint.
type AuthLoginRequest struct {
	Identifier string `json:"identifier" binding:"required"`
	Password   string `json:"password" binding:"required"`
	MFACode    string `json:"mfa_code"`
}

// AuthLoginResponse describes the response returned for a successful login.
type AuthLoginResponse struct {
	AccessToken    string         `json:"access_token"`
	RefreshToken   string         `json:"refresh_token"`
	TokenType      string         `json:"token_type"`
	ExpiresIn      int            `json:"expires_in"`
	MFAUsed        bool           `json:"mfa_used,omitempty"`
	BackupCodeUsed bool           `json:"backup_code_used,omitempty"`
	Account        AccountSummary `json:"account"`
}

// AccountLockedResponse is returned when the account is under a lockout window.
type AccountLockedResponse struct {
	Error             string `json:"error"`
	RetryAfterMinutes int    `json:"retry_after_minutes"`
	TraceID           string `json:"trace_id,omitempty"`
}

// TokenRefreshRequest represents the payload to refresh an access token.
type TokenRefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// TokenRefreshResponse contains the access token issued by the refresh endpoint.
type TokenRefreshResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// LogoutRequest optionally carries the refresh token to revoke alongside the
// presented access token.
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// IntrospectRequest carries the token to examine.
type IntrospectRequest struct {
	Token string `json:"token" binding:"required"`
}

// IntrospectResponse reports token state to out-of-process callers, shaped
// after RFC 7662. Claims are omitted for inactive tokens.
type IntrospectResponse struct {
	Active    bool   `json:"active"`
	Subject   string `json:"sub,omitempty"`
	Username  string `json:"preferred_username,omitempty"`
	TokenType string `json:"token_type,omitempty"`
	JTI       string `json:"jti,omitempty"`
	IssuedAt  int64  `json:"iat,omitempty"`
	ExpiresAt int64  `json:"exp,omitempty"`
}

// MFAEnableResponse returns the provisioning material for a pending TOTP
// enrollment. The secret is shown exactly once.
type MFAEnableResponse struct {
	Secret          string `json:"secret"`
	ProvisioningURI string `json:"provisioning_uri"`
}

// MFAConfirmRequest carries the TOTP code proving the authenticator works.
type MFAConfirmRequest struct {
	Code string `json:"code" binding:"required"`
}

// MFAConfirmResponse returns the single-use backup codes issued on
// enrollment. They are never retrievable again.
type MFAConfirmResponse struct {
	Message     string   `json:"message"`
	BackupCodes []string `json:"backup_codes"`
}

// MFADisableRequest requires the current password to tear down MFA.
type MFADisableRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
}

// PasswordResetRequest represents a password reset initiation payload.
type PasswordResetRequest struct {
	Identifier string `json:"identifier" binding:"required"`
}

// PasswordResetResponse returns information about the reset request. The
// body is shaped identically whether or not the identifier matched an
// account.
type PasswordResetResponse struct {
	Message           string     `json:"message"`
	RequestID         string     `json:"request_id,omitempty"`
	MaskedDestination string     `json:"masked_destination,omitempty"`
	ExpiresAt         *time.Time `json:"expires_at,omitempty"`
	// SECURITY: DevToken and DevLink are ONLY exposed in development mode.
	// In production, reset credentials travel via the notifier alone.
	DevToken *string `json:"dev_token,omitempty"`
	DevLink  *string `json:"dev_link,omitempty"`
}

// PasswordResetConfirmRequest captures a password reset confirmation payload.
type PasswordResetConfirmRequest struct {
	Token       string `json:"token" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

// PasswordResetConfirmResponse indicates that a password reset completed successfully.
type PasswordResetConfirmResponse struct {
	Message string `json:"message"`
}

// WeakPasswordResponse lists every reason the candidate password was
// rejected so the caller can fix them all in one pass.
type WeakPasswordResponse struct {
	Error   string   `json:"error"`
	Reasons []string `json:"reasons"`
	TraceID string   `json:"trace_id,omitempty"`
}

// AuditEventPayload is the API view of one audit trail entry.
type AuditEventPayload struct {
	ID         int64          `json:"id"`
	Actor      string         `json:"actor"`
	Kind       string         `json:"kind"`
	TargetID   *string        `json:"target_id,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
	Details    map[string]any `json:"details,omitempty"`
	IP         *string        `json:"ip,omitempty"`
	UserAgent  *string        `json:"user_agent,omitempty"`
}

// AuditListResponse wraps a page of audit events.
type AuditListResponse struct {
	Events []AuditEventPayload `json:"events"`
	Total  int                 `json:"total"`
}

// newAccountSummary converts a domain account to a summary suitable for API responses.
func newAccountSummary(account domain.Account) AccountSummary {
	summary := AccountSummary{
		ID:         account.ID,
		Username:   account.Username,
		Email:      account.Email,
		MFAEnabled: account.MFAEnabled,
	}

	if account.LastLogin != nil {
		last := *account.LastLogin
		summary.LastLogin = &last
	}

	return summary
}

// newAuditEventPayload converts a domain audit event to its API view.
func newAuditEventPayload(event domain.AuditEvent) AuditEventPayload {
	return AuditEventPayload{
		ID:         event.ID,
		Actor:      event.Actor,
		Kind:       string(event.Kind),
		TargetID:   event.TargetID,
		OccurredAt: event.OccurredAt,
		Details:    event.Details,
		IP:         event.IP,
		UserAgent:  event.UserAgent,
	}
}
