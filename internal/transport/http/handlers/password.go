package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/odaiidemos/k9-sub001/internal/transport/http/middleware"
	"github.com/odaiidemos/k9-sub001/internal/usecase"
)

// PasswordHandler exposes the password reset flow.
type PasswordHandler struct {
	reset *usecase.PasswordResetService
	isDev bool
}

// NewPasswordHandler constructs PasswordHandler.
func NewPasswordHandler(reset *usecase.PasswordResetService, isDev bool) *PasswordHandler {
	return &PasswordHandler{
		reset: reset,
		isDev: isDev,
	}
}

// RegisterRoutes binds reset routes, applying optional middleware ahead of the request endpoint.
func (h *PasswordHandler) RegisterRoutes(r *gin.RouterGroup, requestMiddlewares ...gin.HandlerFunc) {
	if len(requestMiddlewares) > 0 {
		chain := append([]gin.HandlerFunc{}, requestMiddlewares...)
		chain = append(chain, h.requestReset)
		r.POST("/request", chain...)
	} else {
		r.POST("/request", h.requestReset)
	}

	r.POST("/confirm", h.confirmReset)
}

// RequestReset godoc
// @Summary Initiate a password reset
// @Description Issues a single-use reset token. The response is identical whether or not the identifier matches an account.
// @Tags Password
// @Accept json
// @Produce json
// @Param request body PasswordResetRequest true "Password reset request"
// @Success 202 {object} PasswordResetResponse
// @Failure 400 {object} ErrorResponse
// @Failure 429 {object} middleware.ProblemDetails "Rate limit exceeded"
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/password/reset/request [post]
func (h *PasswordHandler) requestReset(c *gin.Context) {
	if h.reset == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "password reset unavailable"))
		return
	}

	var req PasswordResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "identifier is required"))
		return
	}

	input := usecase.ResetRequestInput{
		Identifier: strings.TrimSpace(req.Identifier),
		IP:         strings.TrimSpace(c.ClientIP()),
		UserAgent:  strings.TrimSpace(c.Request.UserAgent()),
	}

	result, err := h.reset.RequestReset(c.Request.Context(), input)
	if err != nil {
		var rateErr *usecase.RateLimitExceededError
		if errors.As(err, &rateErr) {
			respondRateLimitExceeded(c, rateErr)
			return
		}
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to initiate password reset"))
		return
	}

	response := PasswordResetResponse{
		Message:           "If the account exists, a reset link has been sent",
		RequestID:         result.RequestID,
		MaskedDestination: result.MaskedDestination,
	}

	expires := result.ExpiresAt
	response.ExpiresAt = &expires

	// SECURITY: raw tokens leave the service only in development mode.
	if h.isDev {
		if token := strings.TrimSpace(result.Token); token != "" {
			response.DevToken = &token
		}
		if link := strings.TrimSpace(result.ResetLink); link != "" {
			response.DevLink = &link
		}
	}

	c.JSON(http.StatusAccepted, response)
}

// ConfirmReset godoc
// @Summary Complete a password reset
// @Description Redeems a reset token for a new password. A weak password leaves the token live so the same link can be retried.
// @Tags Password
// @Accept json
// @Produce json
// @Param request body PasswordResetConfirmRequest true "Password reset confirm request"
// @Success 200 {object} PasswordResetConfirmResponse
// @Failure 400 {object} WeakPasswordResponse "Password rejected by policy"
// @Failure 410 {object} ErrorResponse "Token invalid, expired, or already used"
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/password/reset/confirm [post]
func (h *PasswordHandler) confirmReset(c *gin.Context) {
	if h.reset == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "password reset unavailable"))
		return
	}

	var req PasswordResetConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "token and new_password are required"))
		return
	}

	input := usecase.ResetCompleteInput{
		Token:       strings.TrimSpace(req.Token),
		NewPassword: req.NewPassword,
		IP:          strings.TrimSpace(c.ClientIP()),
		UserAgent:   strings.TrimSpace(c.Request.UserAgent()),
	}

	if err := h.reset.CompleteReset(c.Request.Context(), input); err != nil {
		var weakErr *usecase.WeakPasswordError
		if errors.As(err, &weakErr) {
			c.JSON(http.StatusBadRequest, WeakPasswordResponse{
				Error:   "password does not meet policy",
				Reasons: weakErr.Reasons,
				TraceID: middleware.GetTraceID(c),
			})
			return
		}

		if errors.Is(err, usecase.ErrInvalidOrExpiredResetToken) {
			c.JSON(http.StatusGone, NewErrorResponse(c, "reset token invalid or expired"))
			return
		}

		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to complete password reset"))
		return
	}

	c.JSON(http.StatusOK, PasswordResetConfirmResponse{
		Message: "Password reset successful",
	})
}
