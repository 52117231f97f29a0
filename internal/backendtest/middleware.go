package backendtest

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const userKey = "user"

// authMiddleware validates the bearer access token
func (b *Backend) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header"})
			return
		}

		u, err := b.authenticate(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Token expired"})
			return
		}

		c.Set(userKey, u)
		c.Next()
	}
}

// countMiddleware records every request by method and path
func (b *Backend) countMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		b.record(c.Request.Method, c.Request.URL.Path)
		c.Next()
	}
}

func currentUser(c *gin.Context) *user {
	return c.MustGet(userKey).(*user)
}
