package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/odaiidemos/k9-sub001/internal/core/port"
	"github.com/odaiidemos/k9-sub001/internal/infra/config"
	"github.com/odaiidemos/k9-sub001/internal/infra/database"
	kafkainfra "github.com/odaiidemos/k9-sub001/internal/infra/kafka"
	"github.com/odaiidemos/k9-sub001/internal/infra/logger"
	redisinfra "github.com/odaiidemos/k9-sub001/internal/infra/redis"
	"github.com/odaiidemos/k9-sub001/internal/infra/security"
	"github.com/odaiidemos/k9-sub001/internal/infra/telemetry"
	postgresrepo "github.com/odaiidemos/k9-sub001/internal/repository/postgres"
	redisrepo "github.com/odaiidemos/k9-sub001/internal/repository/redis"
	transportgrpc "github.com/odaiidemos/k9-sub001/internal/transport/grpc"
	grpcinterceptors "github.com/odaiidemos/k9-sub001/internal/transport/grpc/interceptors"
	"github.com/odaiidemos/k9-sub001/internal/transport/http/handlers"
	"github.com/odaiidemos/k9-sub001/internal/transport/http/middleware"
	"github.com/odaiidemos/k9-sub001/internal/transport/http/routes"
	"github.com/odaiidemos/k9-sub001/internal/usecase"
)

const (
	httpReadHeaderTimeout = 10 * time.Second
	httpReadTimeout       = 30 * time.Second
	httpWriteTimeout      = 30 * time.Second
	httpIdleTimeout       = 60 * time.Second
	shutdownGrace         = 10 * time.Second
)

// Application owns the long-lived resources of the auth service and serves
// the HTTP and gRPC frontends until its context is cancelled.
type Application struct {
	cfg        *config.AppConfig
	engine     *gin.Engine
	logger     *zap.Logger
	pool       *pgxpool.Pool
	redis      *redisinfra.Client
	producer   *kafkainfra.Producer
	tracer     *telemetry.TracerProvider
	grpcServer *grpc.Server
	grpcAddr   string
}

// New assembles the full service graph from configuration. Postgres and redis
// must be reachable; kafka, tracing, and gRPC are optional and degrade to
// stubs or stay off when unconfigured.
func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env, cfg.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	if _, err := telemetry.Attach(ctx, cfg); err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	var tracer *telemetry.TracerProvider
	if strings.TrimSpace(cfg.Telemetry.OTLPEndpoint) != "" {
		tracer, err = telemetry.NewTracerProvider(ctx, cfg.Telemetry, log)
		if err != nil {
			log.Warn("tracing disabled, OTLP exporter unavailable", zap.Error(err))
			tracer = nil
		}
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}

	kit, err := newSecurityKit(cfg, log)
	if err != nil {
		pool.Close()
		return nil, err
	}

	redisClient, err := redisinfra.NewClient(cfg.Redis, log)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init redis: %w", err)
	}

	fail := func(stage string, err error) (*Application, error) {
		_ = redisClient.Close()
		pool.Close()
		return nil, fmt.Errorf("%s: %w", stage, err)
	}

	st := newStores(cfg, pool, redisClient)
	publisher, producer := newEventPublisher(cfg, log)

	authService, err := usecase.NewAuthService(cfg, st.repos.Accounts, st.repos.Audit, st.denylist, st.replayGuard,
		kit.hasher, kit.totp, kit.backup, kit.tokens, publisher, log)
	if err != nil {
		return fail("init auth service", err)
	}

	mfaService, err := usecase.NewMFAService(cfg, st.repos.Accounts, st.pendingMFA, kit.totp, kit.backup,
		kit.hasher, st.repos.Audit, publisher, log)
	if err != nil {
		return fail("init mfa service", err)
	}

	resetNotifier := handlers.NewLoggingResetNotifier(log, cfg.App.IsDevelopment())
	passwordResetService, err := usecase.NewPasswordResetService(cfg, st.repos.Accounts, st.repos.ResetTokens,
		st.repos.Audit, kit.hasher, security.NewPasswordPolicy(), st.rateLimits, resetNotifier, publisher, log)
	if err != nil {
		return fail("init password reset service", err)
	}

	var grpcSrv *grpc.Server
	var grpcAddr string
	if cfg.GRPC.Enabled {
		grpcSrv, grpcAddr, err = newGRPCServer(cfg, tracer, authService, log)
		if err != nil {
			_ = redisClient.Close()
			pool.Close()
			return nil, err
		}
	}

	engine := routes.Register(routes.Dependencies{
		Config:      cfg,
		Logger:      log,
		RateLimiter: middleware.NewRateLimiter(st.rateLimits, log),
		AuditLog:    st.repos.Audit,
		Backends:    routes.Backends{Database: pool, Cache: redisClient},
		Services: routes.ServiceSet{
			Auth:          authService,
			MFA:           mfaService,
			PasswordReset: passwordResetService,
		},
	})

	return &Application{
		cfg:        cfg,
		engine:     engine,
		logger:     log,
		pool:       pool,
		redis:      redisClient,
		producer:   producer,
		tracer:     tracer,
		grpcServer: grpcSrv,
		grpcAddr:   grpcAddr,
	}, nil
}

// securityKit bundles the crypto primitives the services share.
type securityKit struct {
	hasher *security.Argon2Hasher
	tokens *security.TokenManager
	totp   *security.TOTP
	backup *security.BackupCodes
}

func newSecurityKit(cfg *config.AppConfig, log *zap.Logger) (*securityKit, error) {
	hasher, err := security.NewArgon2Hasher(security.Argon2Config{
		Memory:      cfg.Argon2.Memory,
		Iterations:  cfg.Argon2.Iterations,
		Parallelism: cfg.Argon2.Parallelism,
		SaltLength:  cfg.Argon2.SaltLength,
		KeyLength:   cfg.Argon2.KeyLength,
	})
	if err != nil {
		return nil, fmt.Errorf("init argon2 hasher: %w", err)
	}

	secret := strings.TrimSpace(cfg.Token.Secret)
	if secret == "" && cfg.App.IsDevelopment() {
		generated, err := security.GenerateSecureToken(32)
		if err != nil {
			return nil, fmt.Errorf("generate development token secret: %w", err)
		}
		secret = generated
		log.Warn("token.secret not set, generated an ephemeral development secret; issued tokens will not survive a restart")
	}

	tokens, err := security.NewTokenManager(secret, cfg.Token.Issuer, cfg.Token.AccessTokenTTL, cfg.Token.RefreshTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("init token manager: %w", err)
	}

	return &securityKit{
		hasher: hasher,
		tokens: tokens,
		totp:   security.NewTOTP(cfg.MFA.Issuer),
		backup: security.NewBackupCodes(hasher, cfg.MFA.BackupCodeCount),
	}, nil
}

// stores bundles the postgres repositories with the redis-backed ones. Each
// redis store gets its own key namespace under the configured prefix.
type stores struct {
	repos       *postgresrepo.Repositories
	denylist    *redisrepo.TokenDenylistRepository
	pendingMFA  *redisrepo.PendingMFARepository
	replayGuard *redisrepo.TOTPGuardRepository
	rateLimits  *redisrepo.RateLimitRepository
}

func newStores(cfg *config.AppConfig, pool *pgxpool.Pool, redisClient *redisinfra.Client) *stores {
	window := cfg.RateLimit.WindowDuration
	if window <= 0 {
		window = time.Minute
	}

	return &stores{
		repos:       postgresrepo.NewRepositories(pool),
		denylist:    redisrepo.NewTokenDenylistRepository(redisClient.Client(), redisKey(cfg.Redis.KeyPrefix, "denylist")),
		pendingMFA:  redisrepo.NewPendingMFARepository(redisClient.Client(), redisKey(cfg.Redis.KeyPrefix, "mfa_pending")),
		replayGuard: redisrepo.NewTOTPGuardRepository(redisClient.Client(), redisKey(cfg.Redis.KeyPrefix, "totp_guard")),
		rateLimits: redisrepo.NewRateLimitRepository(redisClient.Client(), redisrepo.SlidingWindowConfig{
			KeyPrefix: redisKey(cfg.Redis.KeyPrefix, "rate-limit"),
			TTL:       max(window*2, 2*time.Hour),
		}),
	}
}

// newEventPublisher wires the Kafka producer when brokers are configured and
// falls back to the logging stub otherwise. A broken broker never stops boot.
func newEventPublisher(cfg *config.AppConfig, log *zap.Logger) (port.EventPublisher, *kafkainfra.Producer) {
	if !cfg.Kafka.Enabled || len(cfg.Kafka.Brokers) == 0 {
		log.Info("kafka disabled, using stub publisher")
		return kafkainfra.NewStubPublisher(log), nil
	}

	producer, err := kafkainfra.NewProducer(cfg.Kafka, log)
	if err != nil {
		log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
		return kafkainfra.NewStubPublisher(log), nil
	}

	log.Info("kafka event publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
	return kafkainfra.NewEventPublisher(producer, cfg.App), producer
}

func newGRPCServer(cfg *config.AppConfig, tracer *telemetry.TracerProvider, auth *usecase.AuthService, log *zap.Logger) (*grpc.Server, string, error) {
	metrics, err := grpcinterceptors.NewGRPCMetrics(nil)
	if err != nil {
		return nil, "", fmt.Errorf("init grpc metrics: %w", err)
	}

	var tracing *grpcinterceptors.TracingInterceptor
	if tracer != nil {
		tracing = grpcinterceptors.NewTracingInterceptor(grpcinterceptors.TracingOptions{
			TracerProvider: tracer.TracerProvider(),
		})
	}

	srv, err := transportgrpc.NewServer(transportgrpc.ServerDependencies{
		Auth:    auth,
		Logger:  log,
		Metrics: metrics,
		Tracing: tracing,
	})
	if err != nil {
		return nil, "", fmt.Errorf("init grpc server: %w", err)
	}

	return srv, fmt.Sprintf("%s:%d", cfg.GRPC.Host, cfg.GRPC.Port), nil
}

// Run serves HTTP (and gRPC when enabled) until ctx is cancelled or a server
// fails hard, then releases every resource the application owns.
func (a *Application) Run(ctx context.Context) error {
	defer a.close()

	grpcErr := make(chan error, 1)
	grpcListener, err := a.startGRPC(grpcErr)
	if err != nil {
		return err
	}
	defer func() {
		if grpcListener != nil {
			_ = grpcListener.Close()
		}
		if a.grpcServer != nil {
			a.grpcServer.GracefulStop()
		}
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: httpReadHeaderTimeout,
		ReadTimeout:       httpReadTimeout,
		WriteTimeout:      httpWriteTimeout,
		IdleTimeout:       httpIdleTimeout,
	}

	a.logger.Info("starting auth API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	httpErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErr <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		return a.drain(srv, grpcListener)
	case err := <-httpErr:
		return err
	case err := <-grpcErr:
		return err
	}
}

// startGRPC begins serving on the configured address when gRPC is enabled.
// Serve errors and panics are reported on errCh so Run can stop the world.
func (a *Application) startGRPC(errCh chan<- error) (net.Listener, error) {
	if a.grpcServer == nil || a.grpcAddr == "" {
		return nil, nil
	}

	lis, err := net.Listen("tcp", a.grpcAddr)
	if err != nil {
		return nil, fmt.Errorf("listen grpc: %w", err)
	}

	a.logger.Info("starting gRPC server", zap.String("address", a.grpcAddr))

	go func() {
		defer func() {
			if r := recover(); r != nil {
				a.logger.Error("gRPC server panicked", zap.Any("panic", r))
				errCh <- fmt.Errorf("grpc server panicked: %v", r)
			}
		}()
		if err := a.grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			a.logger.Error("gRPC server error", zap.Error(err))
			errCh <- fmt.Errorf("run grpc server: %w", err)
		}
	}()

	return lis, nil
}

// drain stops both servers, giving in-flight HTTP requests the grace period.
func (a *Application) drain(srv *http.Server, grpcListener net.Listener) error {
	if a.grpcServer != nil {
		a.grpcServer.GracefulStop()
	}
	if grpcListener != nil {
		_ = grpcListener.Close()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown server: %w", err)
	}
	return nil
}

// close releases pooled connections, flushes the producer, and stops the
// tracer. Tolerates partially constructed applications.
func (a *Application) close() {
	if a.tracer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		if err := a.tracer.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
		cancel()
	}
	if a.producer != nil {
		_ = a.producer.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
	_ = a.logger.Sync()
}

func redisKey(prefix, name string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return name
	}
	return prefix + ":" + name
}
