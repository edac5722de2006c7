package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/odaiidemos/k9-sub001/internal/core/domain"
	"github.com/odaiidemos/k9-sub001/internal/core/port"
)

const (
	auditDefaultLimit = 50
	auditMaxLimit     = 500
)

// AuditHandler exposes read access to the security audit trail. Queries go
// straight to the log port; there is no write surface here.
type AuditHandler struct {
	log port.AuditLog
}

// NewAuditHandler constructs AuditHandler.
func NewAuditHandler(log port.AuditLog) *AuditHandler {
	return &AuditHandler{log: log}
}

// RegisterRoutes binds audit routes onto an already-authenticated group.
func (h *AuditHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/actor/:id", h.byActor)
	r.GET("/kind/:kind", h.byKind)
}

// ByActor godoc
// @Summary List audit events recorded for an actor
// @Description Returns the most recent audit events attributed to the given account, newest first.
// @Tags Audit
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Param id path string true "Actor account ID"
// @Param limit query int false "Maximum events to return"
// @Success 200 {object} AuditListResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/audit/actor/{id} [get]
func (h *AuditHandler) byActor(c *gin.Context) {
	actor := strings.TrimSpace(c.Param("id"))
	if actor == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "actor id is required"))
		return
	}

	limit, ok := parseAuditLimit(c)
	if !ok {
		return
	}

	events, err := h.log.QueryByActor(c.Request.Context(), actor, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to query audit events"))
		return
	}

	c.JSON(http.StatusOK, newAuditListResponse(events))
}

// ByKind godoc
// @Summary List audit events of a kind
// @Description Returns the most recent audit events of the given kind, optionally narrowed to a target account.
// @Tags Audit
// @Produce json
// @Param Authorization header string true "Bearer access token"
// @Param kind path string true "Audit event kind"
// @Param target query string false "Target account ID"
// @Param limit query int false "Maximum events to return"
// @Success 200 {object} AuditListResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/audit/kind/{kind} [get]
func (h *AuditHandler) byKind(c *gin.Context) {
	kind, ok := parseAuditKind(c.Param("kind"))
	if !ok {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "unknown audit kind"))
		return
	}

	limit, ok := parseAuditLimit(c)
	if !ok {
		return
	}

	target := strings.TrimSpace(c.Query("target"))

	events, err := h.log.QueryByKindAndTarget(c.Request.Context(), kind, target, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to query audit events"))
		return
	}

	c.JSON(http.StatusOK, newAuditListResponse(events))
}

func parseAuditLimit(c *gin.Context) (int, bool) {
	raw := strings.TrimSpace(c.Query("limit"))
	if raw == "" {
		return auditDefaultLimit, true
	}

	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "limit must be a positive integer"))
		return 0, false
	}

	if limit > auditMaxLimit {
		limit = auditMaxLimit
	}

	return limit, true
}

func parseAuditKind(raw string) (domain.AuditKind, bool) {
	kind := domain.AuditKind(strings.ToUpper(strings.TrimSpace(raw)))
	switch kind {
	case domain.AuditSuccessfulLogin,
		domain.AuditFailedLoginAttempt,
		domain.AuditLockedAccountAccessAttempt,
		domain.AuditMFAEnabled,
		domain.AuditMFADisabled,
		domain.AuditBackupCodeUsed,
		domain.AuditPasswordResetRequested,
		domain.AuditPasswordResetCompleted,
		domain.AuditPasswordChanged:
		return kind, true
	default:
		return "", false
	}
}

func newAuditListResponse(events []domain.AuditEvent) AuditListResponse {
	payloads := make([]AuditEventPayload, 0, len(events))
	for _, event := range events {
		payloads = append(payloads, newAuditEventPayload(event))
	}

	return AuditListResponse{
		Events: payloads,
		Total:  len(payloads),
	}
}
