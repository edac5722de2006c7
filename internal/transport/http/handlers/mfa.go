package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/odaiidemos/k9-sub001/internal/transport/http/middleware"
	"github.com/odaiidemos/k9-sub001/internal/usecase"
)

// MFAHandler exposes TOTP enrollment and teardown endpoints. Every route
// requires an authenticated caller; the group carries the auth middleware.
type MFAHandler struct {
	mfa *usecase.MFAService
}

// NewMFAHandler constructs MFAHandler.
func NewMFAHandler(mfa *usecase.MFAService) *MFAHandler {
	return &MFAHandler{mfa: mfa}
}

// RegisterRoutes binds MFA routes onto an already-authenticated group.
func (h *MFAHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/enable", h.enable)
	r.POST("/confirm", h.confirm)
	r.POST("/disable", h.disable)
}

// Enable godoc
// @Summary Start TOTP enrollment
// @Description Generates a TOTP secret and provisioning URI. The account is not MFA-protected until the enrollment is confirmed.
// @Tags MFA
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Success 200 {object} MFAEnableResponse
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/mfa/enable [post]
func (h *MFAHandler) enable(c *gin.Context) {
	accountID, ok := middleware.GetAuthenticatedAccountID(c)
	if !ok || accountID == "" {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	enrollment, err := h.mfa.Enable(c.Request.Context(), accountID)
	if err != nil {
		respondMapped(c, err, []errorMapping{
			{usecase.ErrAccountNotFound, http.StatusNotFound, "account not found"},
			{usecase.ErrMFAAlreadyEnabled, http.StatusConflict, "mfa already enabled"},
		}, "failed to start mfa enrollment")
		return
	}

	c.JSON(http.StatusOK, MFAEnableResponse{
		Secret:          enrollment.Secret,
		ProvisioningURI: enrollment.ProvisioningURI,
	})
}

// Confirm godoc
// @Summary Confirm TOTP enrollment
// @Description Verifies a code from the authenticator, enables MFA, and returns the single-use backup codes.
// @Tags MFA
// @Accept json
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Param request body MFAConfirmRequest true "Confirmation request"
// @Success 200 {object} MFAConfirmResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/mfa/confirm [post]
func (h *MFAHandler) confirm(c *gin.Context) {
	accountID, ok := middleware.GetAuthenticatedAccountID(c)
	if !ok || accountID == "" {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	var req MFAConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "code is required"))
		return
	}

	backupCodes, err := h.mfa.Confirm(c.Request.Context(), accountID, req.Code)
	if err != nil {
		respondMapped(c, err, []errorMapping{
			{usecase.ErrInvalidMFACode, http.StatusUnauthorized, "invalid mfa code"},
			{usecase.ErrMFAEnrollmentNotFound, http.StatusNotFound, "no pending mfa enrollment"},
			{usecase.ErrMFAAlreadyEnabled, http.StatusConflict, "mfa already enabled"},
			{usecase.ErrAccountNotFound, http.StatusNotFound, "account not found"},
		}, "failed to confirm mfa enrollment")
		return
	}

	c.JSON(http.StatusOK, MFAConfirmResponse{
		Message:     "MFA enabled. Store these backup codes securely; they will not be shown again.",
		BackupCodes: backupCodes,
	})
}

// Disable godoc
// @Summary Disable MFA
// @Description Removes TOTP and all backup codes after re-verifying the current password.
// @Tags MFA
// @Accept json
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Param request body MFADisableRequest true "Disable request"
// @Success 204 {string} string ""
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/mfa/disable [post]
func (h *MFAHandler) disable(c *gin.Context) {
	accountID, ok := middleware.GetAuthenticatedAccountID(c)
	if !ok || accountID == "" {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	var req MFADisableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "current_password is required"))
		return
	}

	if err := h.mfa.Disable(c.Request.Context(), accountID, req.CurrentPassword); err != nil {
		respondMapped(c, err, []errorMapping{
			{usecase.ErrInvalidPassword, http.StatusUnauthorized, "current password is incorrect"},
			{usecase.ErrMFANotEnabled, http.StatusConflict, "mfa is not enabled"},
			{usecase.ErrAccountNotFound, http.StatusNotFound, "account not found"},
		}, "failed to disable mfa")
		return
	}

	c.Status(http.StatusNoContent)
}
