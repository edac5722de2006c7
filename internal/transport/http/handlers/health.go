package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const readinessCheckTimeout = 5 * time.Second

// ProbeResponse is shared by the liveness and readiness endpoints. StartedAt
// is only reported by liveness, Checks only by readiness.
type ProbeResponse struct {
	Status    string            `json:"status"`
	StartedAt *time.Time        `json:"started_at,omitempty"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// HealthHandler exposes liveness and readiness information.
type HealthHandler struct {
	startedAt time.Time
	checks    []readinessCheck
}

type readinessCheck struct {
	name  string
	check func(ctx context.Context) error
}

// HealthOption configures optional readiness checks.
type HealthOption func(*HealthHandler)

// WithReadinessCheck registers a named dependency probe consulted by the
// readiness endpoint.
func WithReadinessCheck(name string, check func(ctx context.Context) error) HealthOption {
	return func(h *HealthHandler) {
		if name == "" || check == nil {
			return
		}
		h.checks = append(h.checks, readinessCheck{name: name, check: check})
	}
}

// NewHealthHandler builds a new health handler instance.
func NewHealthHandler(opts ...HealthOption) *HealthHandler {
	handler := &HealthHandler{startedAt: time.Now().UTC()}

	for _, opt := range opts {
		if opt != nil {
			opt(handler)
		}
	}

	return handler
}

// Status godoc
// @Summary Service health check
// @Description Returns the status and start time of the service.
// @Tags Health
// @Produce json
// @Success 200 {object} ProbeResponse
// @Router /healthz [get]
func (h *HealthHandler) Status(c *gin.Context) {
	started := h.startedAt
	c.JSON(http.StatusOK, ProbeResponse{
		Status:    "ok",
		StartedAt: &started,
		Timestamp: time.Now().UTC(),
	})
}

// Readiness godoc
// @Summary Service readiness check
// @Description Probes every registered dependency and reports per-check results.
// @Tags Health
// @Produce json
// @Success 200 {object} ProbeResponse
// @Failure 503 {object} ProbeResponse
// @Router /readyz [get]
func (h *HealthHandler) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readinessCheckTimeout)
	defer cancel()

	results := make(map[string]string, len(h.checks))
	ready := true

	for _, probe := range h.checks {
		if err := probe.check(ctx); err != nil {
			results[probe.name] = err.Error()
			ready = false
			continue
		}
		results[probe.name] = "ok"
	}

	response := ProbeResponse{
		Status:    "ready",
		Checks:    results,
		Timestamp: time.Now().UTC(),
	}

	if !ready {
		response.Status = "degraded"
		c.JSON(http.StatusServiceUnavailable, response)
		return
	}

	c.JSON(http.StatusOK, response)
}
