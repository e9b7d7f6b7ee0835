package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/reelpostly/repostly/internal/pkg/response"
	"github.com/reelpostly/repostly/internal/service"
)

// APIKeyAuth authenticates requests by the X-API-Key header (or a Bearer
// token carrying the key) against the account store and aborts unknown or
// revoked keys.
func APIKeyAuth(credits *service.CreditService) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := extractAPIKey(c)
		if key == "" {
			response.Unauthorized(c, "missing api key")
			c.Abort()
			return
		}
		account, err := credits.Account(c.Request.Context(), key)
		if err != nil {
			response.ErrorFrom(c, err)
			c.Abort()
			return
		}
		if account == nil || account.Status != service.AccountStatusActive {
			response.Unauthorized(c, "invalid api key")
			c.Abort()
			return
		}
		c.Set(ctxKeyOwnerKey, account.OwnerKey)
		c.Set(ctxKeyAccount, account)
		c.Next()
	}
}

func extractAPIKey(c *gin.Context) string {
	if key := strings.TrimSpace(c.GetHeader("X-API-Key")); key != "" {
		return key
	}
	auth := c.GetHeader("Authorization")
	if strings.HasPrefix(auth, "Bearer rk_") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return ""
}
