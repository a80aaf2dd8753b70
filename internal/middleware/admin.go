package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// AdminToken guards the reconciliation endpoints with a static bearer token.
// An empty configured token disables the surface entirely rather than
// leaving it open.
func AdminToken(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		header := c.GetHeader("Authorization")
		got := strings.TrimPrefix(header, "Bearer ")
		if got == header || got != token {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "admin token required"})
			return
		}
		c.Next()
	}
}
