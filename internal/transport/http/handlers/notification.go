package handlers

import (
	"context"

	"go.uber.org/zap"

	"github.com/odaiidemos/k9-sub001/internal/core/port"
	appLogger "github.com/odaiidemos/k9-sub001/internal/infra/logger"
)

type noopResetNotifier struct{}

func (noopResetNotifier) SendResetEmail(ctx context.Context, email, resetLink, token string) error {
	return nil
}

// NewNoopResetNotifier returns a notifier that silently drops every message.
func NewNoopResetNotifier() port.ResetNotifier {
	return noopResetNotifier{}
}

// LoggingResetNotifier records reset dispatches for observability without
// delivering them. Stands in for a mail integration in environments that
// have none.
type LoggingResetNotifier struct {
	logger *zap.Logger
	isDev  bool
}

// NewLoggingResetNotifier constructs a reset notifier backed by structured logging.
func NewLoggingResetNotifier(logger *zap.Logger, isDev bool) port.ResetNotifier {
	if logger == nil {
		return noopResetNotifier{}
	}
	return &LoggingResetNotifier{logger: logger, isDev: isDev}
}

// SendResetEmail logs the dispatch. The raw link and token reach the log only
// in development mode; production logs carry the masked address alone.
func (n *LoggingResetNotifier) SendResetEmail(ctx context.Context, email, resetLink, token string) error {
	if n == nil || n.logger == nil {
		return nil
	}

	fields := []zap.Field{
		zap.String("email", appLogger.MaskEmail(email)),
	}

	if n.isDev {
		if resetLink != "" {
			fields = append(fields, zap.String("dev_reset_link", resetLink))
		}
		if token != "" {
			fields = append(fields, zap.String("dev_token", token))
		}
	}

	n.logger.Info("dispatch password reset email", fields...)
	return nil
}
