package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/inkwave/core/internal/pkg/response"
)

const contextKeyAdmin = "is_admin"

// Auth returns a middleware that requires the static admin token. Used on
// every mutating route; the read API stays anonymous.
func Auth(adminToken string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !tokenMatches(adminToken, extractToken(c)) {
			response.Unauthorized(c)
			return
		}
		c.Set(contextKeyAdmin, true)
		c.Next()
	}
}

// OptionalAuth flags the request as admin when a valid token is present,
// but never blocks. Read handlers use the flag to widen what they expose
// (drafts, markdown source) without a separate admin route tree.
func OptionalAuth(adminToken string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if tokenMatches(adminToken, extractToken(c)) {
			c.Set(contextKeyAdmin, true)
		}
		c.Next()
	}
}

// IsAdmin reports whether the request carried a valid admin token.
func IsAdmin(c *gin.Context) bool {
	v, _ := c.Get(contextKeyAdmin)
	ok, _ := v.(bool)
	return ok
}

func tokenMatches(adminToken, presented string) bool {
	if adminToken == "" || presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(adminToken), []byte(presented)) == 1
}

func extractToken(c *gin.Context) string {
	auth := c.GetHeader("Authorization")
	if auth != "" {
		return NormalizeToken(auth)
	}
	return NormalizeToken(c.Query("token"))
}

// NormalizeToken trims spaces and strips an optional Bearer prefix.
func NormalizeToken(raw string) string {
	token := strings.TrimSpace(raw)
	if token == "" {
		return ""
	}
	if strings.HasPrefix(strings.ToLower(token), "bearer ") {
		return strings.TrimSpace(token[7:])
	}
	return token
}
