package database

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/odaiidemos/k9-sub001/internal/infra/config"
)

const authSchema = "auth"

// setIfPositive overwrites the pool default only when the configured value is
// set; zero and negative values keep the pgx defaults.
func setIfPositive[T int32 | time.Duration](dst *T, value T) {
	if value > 0 {
		*dst = value
	}
}

// NewPostgresPool opens a pgx pool scoped to the auth schema and verifies
// connectivity before returning it.
func NewPostgresPool(ctx context.Context, cfg config.PostgresSettings, log *zap.Logger) (*pgxpool.Pool, error) {
	dsn := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:     "/" + cfg.Database,
		RawQuery: url.Values{"sslmode": {cfg.SSLMode}}.Encode(),
	}

	poolConfig, err := pgxpool.ParseConfig(dsn.String())
	if err != nil {
		return nil, fmt.Errorf("parse pgx pool config: %w", err)
	}

	setIfPositive(&poolConfig.MaxConns, cfg.Pool.MaxConns)
	setIfPositive(&poolConfig.MinConns, cfg.Pool.MinConns)
	setIfPositive(&poolConfig.MaxConnLifetime, cfg.Pool.MaxConnLifetime)
	setIfPositive(&poolConfig.MaxConnIdleTime, cfg.Pool.MaxConnIdleTime)
	setIfPositive(&poolConfig.HealthCheckPeriod, cfg.Pool.HealthCheckPeriod)

	params := poolConfig.ConnConfig.RuntimeParams
	if params == nil {
		params = make(map[string]string)
		poolConfig.ConnConfig.RuntimeParams = params
	}
	params["search_path"] = authSchema + ",public"
	params["application_name"] = "k9-auth"

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	log.Info("connected to postgres",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.String("database", cfg.Database),
		zap.Int32("max_conns", poolConfig.MaxConns),
		zap.Int32("min_conns", poolConfig.MinConns),
	)

	return pool, nil
}
