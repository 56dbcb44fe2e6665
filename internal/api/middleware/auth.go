package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/adavi-labs/practicegpt/internal/domain"
)

const ownerKey = "owner_id"

// Auth returns a bearer token authentication middleware. Tokens map to
// owner ids; token issuance and verification live outside this service.
func Auth(tokens map[string]string) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		token := strings.TrimPrefix(auth, "Bearer ")
		if token == "" || token == auth {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			c.Abort()
			return
		}

		ownerID, ok := tokens[token]
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": domain.ErrUnauthorized.Error()})
			c.Abort()
			return
		}

		c.Set(ownerKey, ownerID)
		c.Next()
	}
}

// OwnerID returns the authenticated owner id set by Auth
func OwnerID(c *gin.Context) string {
	return c.GetString(ownerKey)
}
