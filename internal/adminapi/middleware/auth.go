// Package middleware provides HTTP middleware for the netio admin API:
// API key authentication and structured request logging.
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wavecast/netio/internal/adminapi/models"
)

// RequireAPIKey enforces a simple shared-secret API key. Clients must send
// X-API-Key: <key>. An empty expected key disables the check.
func RequireAPIKey(expected string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.GetHeader("X-API-Key")
		if expected == "" || got == expected {
			c.Next()
			return
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{Error: "unauthorized"})
	}
}
