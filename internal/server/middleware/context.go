// Package middleware holds the gin middleware for the public API surface.
package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/reelpostly/repostly/internal/service"
)

// Context keys set by the auth middleware.
const (
	ctxKeyOwnerKey = "auth.owner_key"
	ctxKeyAccount  = "auth.account"
)

// GetOwnerKeyFromContext returns the authenticated owner key.
func GetOwnerKeyFromContext(c *gin.Context) (string, bool) {
	value, ok := c.Get(ctxKeyOwnerKey)
	if !ok {
		return "", false
	}
	ownerKey, ok := value.(string)
	return ownerKey, ok && ownerKey != ""
}

// GetAccountFromContext returns the API-key account behind the request, when
// the request authenticated with an API key.
func GetAccountFromContext(c *gin.Context) (*service.APIKeyAccount, bool) {
	value, ok := c.Get(ctxKeyAccount)
	if !ok {
		return nil, false
	}
	account, ok := value.(*service.APIKeyAccount)
	return account, ok && account != nil
}
