package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"coworking/internal/pkg/response"
)

// InternalTokenAuth protects the payment and maintenance endpoints with a
// static bearer token shared with the payment collaborator.
func InternalTokenAuth(expected string, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if expected == "" {
			logAuthFailure(log, c, http.StatusInternalServerError, "token_not_configured")
			response.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal token is not configured")
			c.Abort()
			return
		}

		h := c.GetHeader("Authorization")
		if h == "" {
			logAuthFailure(log, c, http.StatusUnauthorized, "missing_auth")
			response.Error(c, http.StatusUnauthorized, "AUTH_HEADER_MISSING", "Authorization header is required")
			c.Abort()
			return
		}

		token, ok := bearer(h)
		if !ok {
			logAuthFailure(log, c, http.StatusUnauthorized, "invalid_auth_format")
			response.Error(c, http.StatusUnauthorized, "INVALID_AUTH_FORMAT", "Authorization header must be 'Bearer <token>'")
			c.Abort()
			return
		}

		if subtle.ConstantTimeCompare([]byte(token), []byte(expected)) != 1 {
			logAuthFailure(log, c, http.StatusForbidden, "invalid_token")
			response.Error(c, http.StatusForbidden, "FORBIDDEN", "Invalid internal token")
			c.Abort()
			return
		}

		c.Next()
	}
}

func logAuthFailure(log zerolog.Logger, c *gin.Context, status int, reason string) {
	log.Warn().
		Int("status", status).
		Str("request_id", requestID(c)).
		Str("client_ip", c.ClientIP()).
		Str("path", c.Request.URL.Path).
		Str("reason", reason).
		Msg("internal auth rejected")
}
