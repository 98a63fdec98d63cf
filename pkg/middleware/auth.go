package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// BearerAuthMiddleware validates a shared bearer secret. The cron scheduler
// and the admin dashboard both authenticate this way; there are no user
// accounts in this service.
func BearerAuthMiddleware(expectedSecret string) HandlerFunc {
	return func(c Context) {
		auth := c.GetHeader("Authorization")
		if auth == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "No authorization header"})
			c.Abort()
			return
		}

		parts := strings.Split(auth, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header"})
			c.Abort()
			return
		}

		if subtle.ConstantTimeCompare([]byte(parts[1]), []byte(expectedSecret)) != 1 {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid secret"})
			c.Abort()
			return
		}

		c.Next()
	}
}
