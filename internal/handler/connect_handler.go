package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/reelpostly/repostly/internal/pkg/response"
	"github.com/reelpostly/repostly/internal/server/middleware"
	"github.com/reelpostly/repostly/internal/service"
)

// ConnectHandler exposes the OAuth connect flow and token access.
type ConnectHandler struct {
	credentials *service.CredentialService
}

// NewConnectHandler creates a ConnectHandler.
func NewConnectHandler(credentials *service.CredentialService) *ConnectHandler {
	return &ConnectHandler{credentials: credentials}
}

// AuthorizeURL starts a connect flow and returns the provider consent URL.
// GET /api/v1/connect/:provider/url
func (h *ConnectHandler) AuthorizeURL(c *gin.Context) {
	ownerKey, ok := middleware.GetOwnerKeyFromContext(c)
	if !ok {
		response.Unauthorized(c, "authentication required")
		return
	}
	url, err := h.credentials.AuthorizationURL(ownerKey, c.Param("provider"))
	if err != nil {
		response.ErrorFrom(c, err)
		return
	}
	response.Success(c, gin.H{"authorize_url": url})
}

type exchangeRequest struct {
	State string `json:"state" binding:"required"`
	Code  string `json:"code" binding:"required"`
}

// Exchange redeems the provider callback code and stores the credential.
// POST /api/v1/connect/:provider/exchange
func (h *ConnectHandler) Exchange(c *gin.Context) {
	var req exchangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "state and code are required")
		return
	}
	record, err := h.credentials.CompleteConnect(c.Request.Context(), c.Param("provider"), req.State, req.Code)
	if err != nil {
		response.ErrorFrom(c, err)
		return
	}
	response.Success(c, gin.H{
		"provider":   record.Provider,
		"expires_at": record.ExpiresAt,
	})
}

// Token returns a fresh access token for the caller's credential on the
// given provider.
// GET /api/v1/connect/:provider/token
func (h *ConnectHandler) Token(c *gin.Context) {
	ownerKey, ok := middleware.GetOwnerKeyFromContext(c)
	if !ok {
		response.Unauthorized(c, "authentication required")
		return
	}
	token, err := h.credentials.GetValidAccessToken(c.Request.Context(), ownerKey, c.Param("provider"))
	if err != nil {
		response.ErrorFrom(c, err)
		return
	}
	response.Success(c, gin.H{"access_token": token})
}

// Disconnect removes the stored credential for the provider.
// DELETE /api/v1/connect/:provider
func (h *ConnectHandler) Disconnect(c *gin.Context) {
	ownerKey, ok := middleware.GetOwnerKeyFromContext(c)
	if !ok {
		response.Unauthorized(c, "authentication required")
		return
	}
	if err := h.credentials.Disconnect(c.Request.Context(), ownerKey, c.Param("provider")); err != nil {
		response.ErrorFrom(c, err)
		return
	}
	response.Success(c, gin.H{"disconnected": true})
}

// Limits returns the posting constraints for a platform.
// GET /api/v1/platforms/:provider/limits
func (h *ConnectHandler) Limits(c *gin.Context) {
	provider := c.Param("provider")
	if !service.ValidPlatform(provider) {
		response.BadRequest(c, "unsupported platform")
		return
	}
	limits := service.LimitsFor(provider)
	response.Success(c, gin.H{
		"max_characters":  limits.MaxCharacters,
		"max_hashtags":    limits.MaxHashtags,
		"supported_media": limits.SupportedMedia,
	})
}
