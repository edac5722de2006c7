package middleware

import (
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
)

// CORS adds Cross-Origin Resource Sharing headers. Only origins on the
// configured allow list are echoed back; a "*" entry opens the API to any
// origin.
func CORS(allowedOrigins []string) gin.HandlerFunc {
	allowAll := slices.Contains(allowedOrigins, "*")
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[origin] = struct{}{}
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		_, listed := allowed[origin]

		switch {
		case allowAll:
			c.Header("Access-Control-Allow-Origin", "*")
		case listed:
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
		}

		if c.Request.Method == http.MethodOptions {
			preflight(c)
			return
		}

		c.Next()
	}
}

// preflight answers OPTIONS directly. The auth API surface is GET and POST
// only.
func preflight(c *gin.Context) {
	c.Header("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
	c.Header("Access-Control-Allow-Headers", "Origin,Content-Type,Accept,Authorization,X-Request-ID,X-Trace-ID")
	c.Header("Access-Control-Allow-Credentials", "true")
	c.Header("Access-Control-Max-Age", "86400")

	c.AbortWithStatus(http.StatusNoContent)
}
