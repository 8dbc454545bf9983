package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"mediastore/internal/pkg/jwt"
	"mediastore/internal/pkg/response"
)

const (
	ContextUserID   = "user_id"
	ContextTenantID = "tenant_id"
)

// Missing, malformed and expired credentials all get the same 401 body.
func unauthorized(c *gin.Context) {
	response.Abort(c, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
}

// JWTAuth rejects requests without a valid bearer token.
func JWTAuth(jwtService *jwt.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, malformed := extractToken(c)
		if token == "" || malformed {
			unauthorized(c)
			return
		}
		claims, err := jwtService.ValidateToken(token)
		if err != nil {
			unauthorized(c)
			return
		}
		setIdentity(c, claims)
		c.Next()
	}
}

// OptionalJWTAuth lets anonymous requests through but still rejects a token that fails validation.
func OptionalJWTAuth(jwtService *jwt.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, malformed := extractToken(c)
		if malformed {
			unauthorized(c)
			return
		}
		if token == "" {
			c.Next()
			return
		}
		claims, err := jwtService.ValidateToken(token)
		if err != nil {
			unauthorized(c)
			return
		}
		setIdentity(c, claims)
		c.Next()
	}
}

// UserID returns the authenticated user, or "" for anonymous requests.
func UserID(c *gin.Context) string {
	return c.GetString(ContextUserID)
}

func TenantID(c *gin.Context) string {
	return c.GetString(ContextTenantID)
}

func setIdentity(c *gin.Context, claims *jwt.Claims) {
	c.Set(ContextUserID, claims.UserID)
	c.Set(ContextTenantID, claims.TenantID)
}

// extractToken reads the Authorization header first and falls back to ?token= for
// clients such as <img> tags that cannot set headers.
func extractToken(c *gin.Context) (token string, malformed bool) {
	if header := c.GetHeader("Authorization"); header != "" {
		if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
			return strings.TrimSpace(header[7:]), false
		}
		return "", true
	}
	return c.Query("token"), false
}
