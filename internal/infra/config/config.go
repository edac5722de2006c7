package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type AppConfig struct {
	App           AppSettings           `mapstructure:"app"`
	Postgres      PostgresSettings      `mapstructure:"postgres"`
	Redis         RedisSettings         `mapstructure:"redis"`
	Kafka         KafkaSettings         `mapstructure:"kafka"`
	Token         TokenSettings         `mapstructure:"token"`
	GRPC          GRPCSettings          `mapstructure:"grpc"`
	Telemetry     TelemetrySettings     `mapstructure:"telemetry"`
	RateLimit     RateLimitSettings     `mapstructure:"rate_limit"`
	CORS          CORSSettings          `mapstructure:"cors"`
	Argon2        Argon2Settings        `mapstructure:"argon2"`
	Lockout       LockoutSettings       `mapstructure:"lockout"`
	MFA           MFASettings           `mapstructure:"mfa"`
	PasswordReset PasswordResetSettings `mapstructure:"password_reset"`
	Degradation   DegradationSettings   `mapstructure:"degradation"`
	Log           LogSettings           `mapstructure:"log"`
}

type AppSettings struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// IsDevelopment reports whether the process runs with relaxed guard rails
// (dev-only reset token surfacing, generated token secret).
func (a AppSettings) IsDevelopment() bool {
	return strings.EqualFold(a.Env, "development")
}

type GRPCSettings struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
}

// PostgresSettings names the target database; pool tuning lives one level
// down so deployments that only care about credentials never touch it.
type PostgresSettings struct {
	Host     string       `mapstructure:"host"`
	Port     int          `mapstructure:"port"`
	User     string       `mapstructure:"user"`
	Password string       `mapstructure:"password"`
	Database string       `mapstructure:"database"`
	SSLMode  string       `mapstructure:"ssl_mode"`
	Pool     PoolSettings `mapstructure:"pool"`
}

// PoolSettings tunes the pgx connection pool. Zero values defer to pgx.
type PoolSettings struct {
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
}

// RedisSettings configures Redis connection and TLS
type RedisSettings struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Password   string `mapstructure:"password"`
	DB         int    `mapstructure:"db"`
	TLSEnabled bool   `mapstructure:"tls_enabled"`
	KeyPrefix  string `mapstructure:"key_prefix"`
}

// KafkaSettings configures the Kafka producer
type KafkaSettings struct {
	Enabled     bool     `mapstructure:"enabled"`
	Brokers     []string `mapstructure:"brokers"`
	TopicPrefix string   `mapstructure:"topic_prefix"`
	Async       bool     `mapstructure:"async"`
}

// TokenSettings configures the HMAC token signer
type TokenSettings struct {
	Secret          string        `mapstructure:"secret"`
	Issuer          string        `mapstructure:"issuer"`
	AccessTokenTTL  time.Duration `mapstructure:"access_ttl"`
	RefreshTokenTTL time.Duration `mapstructure:"refresh_ttl"`
}

// RateLimitSettings configures the per-IP sliding windows applied by the
// transport middleware. The per-identifier reset throttle is configured
// separately under password_reset.
type RateLimitSettings struct {
	WindowDuration     time.Duration `mapstructure:"window_duration"`
	LoginMaxAttempts   int           `mapstructure:"login_max_attempts"`
	RefreshMaxAttempts int           `mapstructure:"refresh_max_attempts"`
	ResetMaxAttempts   int           `mapstructure:"reset_max_attempts"`
}

// CORSSettings lists the origins allowed to call the HTTP API from a browser
type CORSSettings struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Argon2Settings configures Argon2id password hashing parameters
type Argon2Settings struct {
	Memory      uint32 `mapstructure:"memory"`
	Iterations  uint32 `mapstructure:"iterations"`
	Parallelism uint8  `mapstructure:"parallelism"`
	SaltLength  uint32 `mapstructure:"salt_length"`
	KeyLength   uint32 `mapstructure:"key_length"`
}

// LockoutSettings configures the failed-login lockout policy
type LockoutSettings struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	Duration    time.Duration `mapstructure:"duration"`
}

// MFASettings configures TOTP enrollment and backup codes
type MFASettings struct {
	Issuer          string        `mapstructure:"issuer"`
	BackupCodeCount int           `mapstructure:"backup_code_count"`
	PendingTTL      time.Duration `mapstructure:"pending_ttl"`
}

// PasswordResetSettings configures single-use reset tokens
type PasswordResetSettings struct {
	TokenTTL   time.Duration `mapstructure:"ttl"`
	BaseURL    string        `mapstructure:"base_url"`
	MaxPerHour int           `mapstructure:"max_per_hour"`
}

// DegradationSettings selects the stance taken when auxiliary backends
// (denylist, replay guard, rate limiter) are unreachable
type DegradationSettings struct {
	Mode string `mapstructure:"mode"`
}

type LogSettings struct {
	Level string `mapstructure:"level"`
}

type TelemetrySettings struct {
	MetricsPort     int     `mapstructure:"metrics_port"`
	TracingEndpoint string  `mapstructure:"tracing_endpoint"`
	OTLPEndpoint    string  `mapstructure:"otlp_endpoint"`
	ServiceName     string  `mapstructure:"service_name"`
	SamplingRate    float64 `mapstructure:"sampling_rate"`
}

func Load() (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("K9AUTH")

	setDefaults(v)

	// Every key carries a default, so AllKeys covers the full surface.
	// Each one is reachable as K9AUTH_SECTION_KEY or the bare alias.
	for _, key := range v.AllKeys() {
		alias := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, "K9AUTH_"+alias, alias); err != nil {
			return nil, fmt.Errorf("bind env for %s: %w", key, err)
		}
	}

	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// validate fails fast on settings that would otherwise surface as confusing
// runtime faults. Secrets are only checked for presence, never logged.
func (c *AppConfig) validate() error {
	if strings.TrimSpace(c.Token.Secret) == "" && !c.App.IsDevelopment() {
		return fmt.Errorf("config: token.secret is required outside development")
	}
	if c.Lockout.MaxAttempts <= 0 {
		return fmt.Errorf("config: lockout.max_attempts must be positive")
	}
	if c.Lockout.Duration <= 0 {
		return fmt.Errorf("config: lockout.duration must be positive")
	}
	if c.PasswordReset.TokenTTL <= 0 {
		return fmt.Errorf("config: password_reset.ttl must be positive")
	}
	switch strings.ToLower(c.Degradation.Mode) {
	case "lenient", "strict":
	default:
		return fmt.Errorf("config: degradation.mode must be lenient or strict, got %q", c.Degradation.Mode)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "k9-auth")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 8080)

	v.SetDefault("grpc.enabled", true)
	v.SetDefault("grpc.host", "0.0.0.0")
	v.SetDefault("grpc.port", 50051)

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "k9auth")
	v.SetDefault("postgres.password", "k9auth_password")
	v.SetDefault("postgres.database", "k9auth")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.pool.max_conns", 16)
	v.SetDefault("postgres.pool.min_conns", 2)
	v.SetDefault("postgres.pool.max_conn_lifetime", "45m")
	v.SetDefault("postgres.pool.max_conn_idle_time", "10m")
	v.SetDefault("postgres.pool.health_check_period", "1m")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.tls_enabled", false)
	v.SetDefault("redis.key_prefix", "k9auth")

	v.SetDefault("kafka.enabled", true)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic_prefix", "k9auth")
	v.SetDefault("kafka.async", true)

	v.SetDefault("token.secret", "")
	v.SetDefault("token.issuer", "k9-auth")
	v.SetDefault("token.access_ttl", "15m")
	v.SetDefault("token.refresh_ttl", "720h")

	v.SetDefault("telemetry.metrics_port", 9090)
	v.SetDefault("telemetry.tracing_endpoint", "http://localhost:4317")
	v.SetDefault("telemetry.otlp_endpoint", "http://localhost:4318")
	v.SetDefault("telemetry.service_name", "k9-auth")
	v.SetDefault("telemetry.sampling_rate", 1.0)

	v.SetDefault("rate_limit.window_duration", "1m")
	v.SetDefault("rate_limit.login_max_attempts", 5)
	v.SetDefault("rate_limit.refresh_max_attempts", 10)
	v.SetDefault("rate_limit.reset_max_attempts", 10)

	v.SetDefault("cors.allowed_origins", []string{"*"})

	v.SetDefault("argon2.memory", 65536) // 64 MB
	v.SetDefault("argon2.iterations", 3)
	v.SetDefault("argon2.parallelism", 4)
	v.SetDefault("argon2.salt_length", 16)
	v.SetDefault("argon2.key_length", 32)

	v.SetDefault("lockout.max_attempts", 5)
	v.SetDefault("lockout.duration", "15m")

	v.SetDefault("mfa.issuer", "k9-records")
	v.SetDefault("mfa.backup_code_count", 10)
	v.SetDefault("mfa.pending_ttl", "10m")

	v.SetDefault("password_reset.ttl", "24h")
	v.SetDefault("password_reset.base_url", "http://localhost:8080/reset")
	v.SetDefault("password_reset.max_per_hour", 3)

	v.SetDefault("degradation.mode", "lenient")

	v.SetDefault("log.level", "info")
}
