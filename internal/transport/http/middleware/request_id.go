package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/odaiidemos/k9-sub001/internal/infra/logger"
)

const (
	requestIDHeader = "X-Request-ID"
	maxRequestIDLen = 64
)

// RequestID reuses an inbound X-Request-ID or mints one, reflects it in the
// response header, and threads it through the request context so log lines
// correlate across the middleware chain. Oversized inbound values are
// replaced rather than echoed into logs.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := normalizeRequestID(c.GetHeader(requestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}

		c.Writer.Header().Set(requestIDHeader, id)
		c.Request = c.Request.WithContext(
			context.WithValue(c.Request.Context(), logger.RequestIDKey{}, id),
		)

		c.Next()
	}
}

func normalizeRequestID(raw string) string {
	id := strings.TrimSpace(raw)
	if len(id) > maxRequestIDLen {
		return ""
	}
	return id
}
