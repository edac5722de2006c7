package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// TraceIDHeader carries the trace ID between services.
	TraceIDHeader = "X-Trace-ID"
	// TraceIDKey is the Gin context key holding the trace ID.
	TraceIDKey = "trace_id"
	// AccountIDKey is the Gin context key holding the authenticated account ID.
	AccountIDKey = "account_id"

	requestContextKey = "request_context"
)

// RequestContext bundles the request metadata that audit entries and security
// events record alongside auth decisions.
type RequestContext struct {
	TraceID   string
	AccountID string
	IP        string
	UserAgent string
}

// EnrichContext propagates an inbound trace ID or mints one, reflects it in
// the response header, and captures client IP and user agent for downstream
// handlers.
func EnrichContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqCtx := &RequestContext{
			TraceID:   traceIDFor(c),
			IP:        c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		}

		c.Set(TraceIDKey, reqCtx.TraceID)
		c.Set(requestContextKey, reqCtx)
		c.Header(TraceIDHeader, reqCtx.TraceID)

		c.Next()
	}
}

// traceIDFor reuses the caller-supplied trace ID so multi-hop requests stay
// correlated, minting a fresh one otherwise.
func traceIDFor(c *gin.Context) string {
	if inbound := c.GetHeader(TraceIDHeader); inbound != "" {
		return inbound
	}
	return uuid.NewString()
}

// GetTraceID retrieves the trace ID from the context.
func GetTraceID(c *gin.Context) string {
	return c.GetString(TraceIDKey)
}

// GetRequestContext retrieves the request metadata captured by EnrichContext.
// It never returns nil; requests outside the middleware chain get an empty
// value.
func GetRequestContext(c *gin.Context) *RequestContext {
	value, _ := c.Get(requestContextKey)
	if reqCtx, ok := value.(*RequestContext); ok {
		return reqCtx
	}

	return &RequestContext{}
}
