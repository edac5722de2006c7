package handlers

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/odaiidemos/k9-sub001/internal/transport/http/middleware"
	"github.com/odaiidemos/k9-sub001/internal/usecase"
)

const (
	rateLimitProblemType  = "https://auth.k9-records.example.com/errors/rate-limit-exceeded"
	rateLimitProblemTitle = "Rate Limit Exceeded"
)

// AuthHandler exposes authentication endpoints.
type AuthHandler struct {
	auth *usecase.AuthService
}

// NewAuthHandler constructs AuthHandler.
func NewAuthHandler(auth *usecase.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

// RegisterRoutes binds authentication routes, applying optional middleware ahead of handlers.
func (h *AuthHandler) RegisterRoutes(r *gin.RouterGroup, loginMiddlewares ...gin.HandlerFunc) {
	if len(loginMiddlewares) > 0 {
		chain := append([]gin.HandlerFunc{}, loginMiddlewares...)
		chain = append(chain, h.login)
		r.POST("/login", chain...)
	} else {
		r.POST("/login", h.login)
	}

	r.POST("/refresh", h.refresh)
	r.POST("/logout", middleware.RequireAuth(h.auth), h.logout)
	r.POST("/introspect", h.introspect)
}

// Login godoc
// @Summary Authenticate with handler credentials
// @Description Validates identifier and password (plus a TOTP or backup code when MFA is enabled) and returns access and refresh tokens.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body AuthLoginRequest true "Login request"
// @Success 200 {object} AuthLoginResponse "Successfully authenticated"
// @Failure 400 {object} ErrorResponse "Invalid request payload"
// @Failure 401 {object} ErrorResponse "Invalid credentials or MFA code"
// @Failure 403 {object} ErrorResponse "Account inactive"
// @Failure 409 {object} ErrorResponse "MFA code required"
// @Failure 423 {object} AccountLockedResponse "Account locked"
// @Failure 429 {object} middleware.ProblemDetails "Rate limit exceeded"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /api/v1/auth/login [post]
func (h *AuthHandler) login(c *gin.Context) {
	var req AuthLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid login payload"))
		return
	}

	input := usecase.LoginInput{
		Identifier: strings.TrimSpace(req.Identifier),
		Password:   req.Password,
		MFACode:    strings.TrimSpace(req.MFACode),
		IP:         strings.TrimSpace(c.ClientIP()),
		UserAgent:  strings.TrimSpace(c.Request.UserAgent()),
	}

	result, err := h.auth.Login(c.Request.Context(), input)
	if err != nil {
		h.respondLoginError(c, err)
		return
	}

	c.JSON(http.StatusOK, AuthLoginResponse{
		AccessToken:    result.Tokens.AccessToken,
		RefreshToken:   result.Tokens.RefreshToken,
		TokenType:      "Bearer",
		ExpiresIn:      result.Tokens.ExpiresIn,
		MFAUsed:        result.MFAUsed,
		BackupCodeUsed: result.BackupCodeUsed,
		Account:        newAccountSummary(result.Account),
	})
}

func (h *AuthHandler) respondLoginError(c *gin.Context, err error) {
	var lockedErr *usecase.AccountLockedError
	if errors.As(err, &lockedErr) {
		c.Header("Retry-After", strconv.Itoa(lockedErr.RetryAfterMinutes*60))
		c.JSON(http.StatusLocked, AccountLockedResponse{
			Error:             "account locked",
			RetryAfterMinutes: lockedErr.RetryAfterMinutes,
			TraceID:           middleware.GetTraceID(c),
		})
		return
	}

	var rateErr *usecase.RateLimitExceededError
	if errors.As(err, &rateErr) {
		respondRateLimitExceeded(c, rateErr)
		return
	}

	switch {
	case errors.Is(err, usecase.ErrMFARequired):
		c.JSON(http.StatusConflict, NewErrorResponse(c, "mfa code required"))
	case errors.Is(err, usecase.ErrInvalidMFACode):
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "invalid mfa code"))
	case errors.Is(err, usecase.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "invalid credentials"))
	case errors.Is(err, usecase.ErrInactiveAccount):
		c.JSON(http.StatusForbidden, NewErrorResponse(c, "account inactive"))
	default:
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "authentication failed"))
	}
}

func respondRateLimitExceeded(c *gin.Context, rateErr *usecase.RateLimitExceededError) {
	retryAfter := max(int(math.Ceil(rateErr.RetryAfter.Seconds())), 0)
	if retryAfter > 0 {
		c.Header("Retry-After", strconv.Itoa(retryAfter))
	}

	detail := "Too many attempts. Try again later."
	if rateErr.RetryAfter > 0 {
		detail = fmt.Sprintf("Too many attempts. Try again in %d seconds.", retryAfter)
	}

	instance := c.FullPath()
	if instance == "" {
		instance = c.Request.URL.Path
	}

	c.JSON(http.StatusTooManyRequests, middleware.ProblemDetails{
		Type:       rateLimitProblemType,
		Title:      rateLimitProblemTitle,
		Status:     http.StatusTooManyRequests,
		Detail:     detail,
		Instance:   instance,
		RetryAfter: retryAfter,
		TraceID:    middleware.GetTraceID(c),
	})
}

// Refresh godoc
// @Summary Refresh an access token
// @Description Issues a new access token from a valid refresh token.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body TokenRefreshRequest true "Refresh request"
// @Success 200 {object} TokenRefreshResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/auth/refresh [post]
func (h *AuthHandler) refresh(c *gin.Context) {
	var req TokenRefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "refresh_token is required"))
		return
	}

	result, err := h.auth.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, usecase.ErrInvalidToken) {
			c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "invalid refresh token"))
			return
		}
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to refresh token"))
		return
	}

	c.JSON(http.StatusOK, TokenRefreshResponse{
		AccessToken: result.AccessToken,
		TokenType:   "Bearer",
		ExpiresIn:   result.ExpiresIn,
	})
}

// Logout godoc
// @Summary Logout the current session
// @Description Revokes the presented access token and, when supplied, the refresh token for their remaining lifetimes.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body LogoutRequest false "Logout request"
// @Success 204 {string} string ""
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/auth/logout [post]
func (h *AuthHandler) logout(c *gin.Context) {
	accessToken := bearerToken(c)
	if accessToken == "" {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	// The body is optional; a bare POST revokes only the access token.
	var req LogoutRequest
	_ = c.ShouldBindJSON(&req)

	if err := h.auth.Logout(c.Request.Context(), accessToken, strings.TrimSpace(req.RefreshToken)); err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to revoke tokens"))
		return
	}

	c.Status(http.StatusNoContent)
}

// Introspect godoc
// @Summary Introspect an access token
// @Description Reports whether the presented token is active, for the records layer to verify tokens out-of-process.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body IntrospectRequest true "Introspection request"
// @Success 200 {object} IntrospectResponse
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/auth/introspect [post]
func (h *AuthHandler) introspect(c *gin.Context) {
	var req IntrospectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "token is required"))
		return
	}

	result, err := h.auth.Introspect(c.Request.Context(), req.Token)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to introspect token"))
		return
	}

	response := IntrospectResponse{Active: result.Active}
	if result.Active {
		response.Subject = result.Subject
		response.Username = result.Username
		response.TokenType = result.TokenType
		response.JTI = result.JTI
		response.IssuedAt = result.IssuedAt.Unix()
		response.ExpiresAt = result.ExpiresAt.Unix()
	}

	c.JSON(http.StatusOK, response)
}

// bearerToken extracts the raw token from the Authorization header.
func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
