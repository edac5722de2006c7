package routes

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/odaiidemos/k9-sub001/internal/core/port"
	"github.com/odaiidemos/k9-sub001/internal/infra/config"
	"github.com/odaiidemos/k9-sub001/internal/transport/http/handlers"
	"github.com/odaiidemos/k9-sub001/internal/transport/http/middleware"
	"github.com/odaiidemos/k9-sub001/internal/usecase"
)

// ServiceSet groups the services the HTTP layer depends on.
type ServiceSet struct {
	Auth          *usecase.AuthService
	MFA           *usecase.MFAService
	PasswordReset *usecase.PasswordResetService
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config      *config.AppConfig
	Logger      *zap.Logger
	RateLimiter *middleware.RateLimiter
	Services    ServiceSet
	AuditLog    port.AuditLog
	Backends    Backends
}

// Backends carries the connection handles probed by /readyz. Nil entries are
// skipped rather than reported as down.
type Backends struct {
	Database interface{ Ping(ctx context.Context) error }
	Cache    interface {
		HealthCheck(ctx context.Context) error
	}
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) *gin.Engine {
	if deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(baseMiddleware(deps)...)

	registerHealth(r, deps)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	registerAPI(r, deps)

	// Swagger UI over the OpenAPI document generated into docs/.
	r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r
}

// baseMiddleware is the chain every request passes through, ordered so the
// request ID and trace context exist before anything logs.
func baseMiddleware(deps Dependencies) []gin.HandlerFunc {
	chain := []gin.HandlerFunc{
		gin.Recovery(),
		middleware.EnrichContext(),
		middleware.RequestID(),
		middleware.Logger(deps.Logger),
		middleware.CORS(deps.Config.CORS.AllowedOrigins),
	}

	metrics, err := middleware.NewHTTPMetrics(nil)
	if err != nil {
		if deps.Logger != nil {
			deps.Logger.Warn("http metrics disabled", zap.Error(err))
		}
		return chain
	}

	return append(chain, metrics.Handler())
}

func registerHealth(r *gin.Engine, deps Dependencies) {
	options := make([]handlers.HealthOption, 0, 2)
	if db := deps.Backends.Database; db != nil {
		options = append(options, handlers.WithReadinessCheck("database", db.Ping))
	}
	if cache := deps.Backends.Cache; cache != nil {
		options = append(options, handlers.WithReadinessCheck("redis", cache.HealthCheck))
	}

	health := handlers.NewHealthHandler(options...)
	r.GET("/healthz", health.Status)
	r.GET("/readyz", health.Readiness)
}

// registerAPI mounts the versioned auth surface. Login and reset requests
// pass per-IP rate limits; MFA management and audit reads require a valid
// access token up front.
func registerAPI(r *gin.Engine, deps Dependencies) {
	requireAuth := middleware.RequireAuth(deps.Services.Auth)

	api := r.Group("/api/v1")

	authGroup := api.Group("/auth")
	handlers.NewAuthHandler(deps.Services.Auth).RegisterRoutes(authGroup,
		rateLimitFor(deps, "auth_login_ip", deps.Config.RateLimit.LoginMaxAttempts)...)

	mfaGroup := api.Group("/mfa")
	mfaGroup.Use(requireAuth)
	handlers.NewMFAHandler(deps.Services.MFA).RegisterRoutes(mfaGroup)

	resetGroup := api.Group("/password/reset")
	handlers.NewPasswordHandler(deps.Services.PasswordReset, deps.Config.App.IsDevelopment()).RegisterRoutes(resetGroup,
		rateLimitFor(deps, "password_reset_ip", deps.Config.RateLimit.ResetMaxAttempts)...)

	if deps.AuditLog != nil {
		auditGroup := api.Group("/audit")
		auditGroup.Use(requireAuth)
		auditHandler := handlers.NewAuditHandler(deps.AuditLog)
		auditHandler.RegisterRoutes(auditGroup)
	}
}

// rateLimitFor builds the per-IP limiter for one endpoint family. A missing
// limiter or a non-positive limit disables it.
func rateLimitFor(deps Dependencies, name string, limit int) []gin.HandlerFunc {
	if deps.RateLimiter == nil || limit <= 0 {
		return nil
	}

	window := deps.Config.RateLimit.WindowDuration
	if window <= 0 {
		window = time.Minute
	}

	return []gin.HandlerFunc{deps.RateLimiter.RateLimit(middleware.RateLimitRule{
		Name:       name,
		Limit:      limit,
		Window:     window,
		Identifier: middleware.ClientIPIdentifier(),
	})}
}
