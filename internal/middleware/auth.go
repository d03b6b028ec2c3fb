package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"coworking/internal/pkg/jwt"
	"coworking/internal/pkg/response"
)

// TokenValidator is implemented by *jwt.Service.
type TokenValidator interface {
	ValidateToken(token string) (*jwt.Claims, error)
}

// JWTAuth rejects requests without a valid bearer token and stores the
// caller's user_id and role in the gin context.
func JWTAuth(tokens TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		if h == "" {
			response.Error(c, http.StatusUnauthorized, "AUTH_HEADER_MISSING", "Missing Authorization header")
			c.Abort()
			return
		}

		tokenStr, ok := bearer(h)
		if !ok {
			response.Error(c, http.StatusUnauthorized, "INVALID_AUTH_FORMAT", "Authorization header must be 'Bearer <token>'")
			c.Abort()
			return
		}

		claims, err := tokens.ValidateToken(tokenStr)
		if err != nil {
			response.Error(c, http.StatusUnauthorized, "INVALID_TOKEN", "Invalid or expired token")
			c.Abort()
			return
		}

		c.Set("user_id", claims.UserID)
		c.Set("role", claims.Role)
		c.Next()
	}
}

// OptionalJWTAuth identifies the caller when a valid token is present and
// lets anonymous requests through otherwise. A malformed or invalid token
// is still rejected so clients notice expired sessions.
func OptionalJWTAuth(tokens TokenValidator) gin.HandlerFunc {
	required := JWTAuth(tokens)
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" {
			c.Next()
			return
		}
		required(c)
	}
}

func bearer(header string) (string, bool) {
	if !strings.HasPrefix(header, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	return token, token != ""
}
