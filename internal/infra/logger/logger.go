package logger

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	lg   *zap.Logger
	once sync.Once
)

// New returns the process-wide zap.Logger. The first call decides the
// configuration; later calls return the same instance regardless of
// arguments. The level string follows zap conventions (debug, info, warn,
// error); an empty or unparsable level keeps the environment default.
func New(env, level string) (*zap.Logger, error) {
	var err error
	once.Do(func() {
		lg, err = build(env, level)
	})
	return lg, err
}

func build(env, level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if env != "production" {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	if level != "" {
		if parsed, err := zapcore.ParseLevel(level); err == nil {
			cfg.Level = zap.NewAtomicLevelAt(parsed)
		}
	}

	return cfg.Build()
}

// WithContext attaches request scoped fields to the logger.
func WithContext(ctx context.Context) *zap.Logger {
	log := lg
	if log == nil {
		log, _ = zap.NewDevelopment()
	}
	if ctx == nil {
		return log
	}
	return log.With(zap.String("request_id", requestIDFromContext(ctx)))
}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(RequestIDKey{}).(string)
	return id
}

// RequestIDKey is used to store a request identifier on the context.
type RequestIDKey struct{}

// MaskEmail keeps at most the first three characters of the local part plus
// the full domain: john.doe@example.com becomes joh***@example.com. Values
// without a domain mask entirely.
func MaskEmail(email string) string {
	if email == "" {
		return ""
	}

	local, domain, found := strings.Cut(email, "@")
	if !found || domain == "" {
		return "***"
	}
	return local[:min(len(local), 3)] + "***@" + domain
}

// MaskIP keeps the first two IPv4 octets or the first four IPv6 groups:
// 192.168.1.100 becomes 192.168.*.*. Anything else masks entirely.
func MaskIP(ip string) string {
	if ip == "" {
		return ""
	}

	if octets := strings.Split(ip, "."); len(octets) == 4 {
		return octets[0] + "." + octets[1] + ".*.*"
	}
	if groups := strings.Split(ip, ":"); len(groups) >= 4 {
		return strings.Join(groups[:4], ":") + ":*:*:*:*"
	}
	return "***"
}
