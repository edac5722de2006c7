package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/odaiidemos/k9-sub001/internal/usecase"
)

// RequireAuth validates the Authorization header, verifies the access token,
// and stores the verified account ID on the request context.
func RequireAuth(authService *usecase.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, problem := bearerToken(c.GetHeader("Authorization"))
		if problem != "" {
			abortWithError(c, http.StatusUnauthorized, problem)
			return
		}

		claims, err := authService.VerifyAccessToken(c.Request.Context(), token)
		if err != nil {
			abortVerifyFailure(c, err)
			return
		}

		c.Set(AccountIDKey, claims.Subject)
		if reqCtx := GetRequestContext(c); reqCtx != nil {
			reqCtx.AccountID = claims.Subject
		}

		c.Next()
	}
}

// bearerToken extracts the token from an Authorization header value. The
// second return is a client-facing problem description, empty on success.
func bearerToken(header string) (string, string) {
	if header == "" {
		return "", "missing authorization header"
	}

	scheme, rest, found := strings.Cut(header, " ")
	if !found {
		return "", "invalid authorization format: expected 'Bearer <token>'"
	}
	if !strings.EqualFold(scheme, "Bearer") {
		return "", "invalid authorization format: must start with 'Bearer'"
	}

	token := strings.TrimSpace(rest)
	if token == "" {
		return "", "missing access token"
	}
	return token, ""
}

// abortWithError halts the request with the same JSON error body the handlers
// package produces, so middleware failures look identical to clients.
func abortWithError(c *gin.Context, status int, message string) {
	body := gin.H{"error": message}
	if traceID := GetTraceID(c); traceID != "" {
		body["trace_id"] = traceID
	}
	c.AbortWithStatusJSON(status, body)
}

func abortVerifyFailure(c *gin.Context, err error) {
	switch {
	case errors.Is(err, usecase.ErrExpiredAccessToken):
		abortWithError(c, http.StatusUnauthorized, "access token expired")
	case errors.Is(err, usecase.ErrInvalidToken):
		abortWithError(c, http.StatusUnauthorized, "invalid access token")
	default:
		abortWithError(c, http.StatusInternalServerError, "authentication failed")
	}
}

// GetAuthenticatedAccountID retrieves the verified account ID placed on the
// context by RequireAuth.
func GetAuthenticatedAccountID(c *gin.Context) (string, bool) {
	value, ok := c.Get(AccountIDKey)
	if !ok {
		return "", false
	}
	accountID, ok := value.(string)
	return accountID, ok && accountID != ""
}
