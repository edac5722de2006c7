package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	appLogger "github.com/odaiidemos/k9-sub001/internal/infra/logger"
)

// Logger emits one access log line per request with correlation identifiers
// and a masked client IP. Server errors log at error level even when no
// handler recorded an explicit error.
func Logger(log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}

	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		status := c.Writer.Status()
		fields := accessLogFields(c, status, time.Since(start))

		switch {
		case len(c.Errors) > 0:
			log.Error("request failed", append(fields, zap.String("errors", c.Errors.String()))...)
		case status >= http.StatusInternalServerError:
			log.Error("request completed", fields...)
		default:
			log.Info("request completed", fields...)
		}
	}
}

func accessLogFields(c *gin.Context, status int, latency time.Duration) []zap.Field {
	fields := []zap.Field{
		zap.String("trace_id", GetTraceID(c)),
		zap.String("request_id", requestIDFromContext(c.Request.Context())),
		zap.Int("status", status),
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.Duration("latency", latency),
		zap.String("client_ip", appLogger.MaskIP(c.ClientIP())),
	}
	if ua := c.Request.UserAgent(); ua != "" {
		fields = append(fields, zap.String("user_agent", ua))
	}
	return fields
}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(appLogger.RequestIDKey{}).(string)
	return id
}
