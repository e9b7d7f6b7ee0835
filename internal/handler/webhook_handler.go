package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/reelpostly/repostly/internal/pkg/response"
	"github.com/reelpostly/repostly/internal/service"
)

// maxWebhookBodyBytes bounds webhook payload reads.
const maxWebhookBodyBytes = 1 << 20

// WebhookHandler receives payment provider callbacks.
type WebhookHandler struct {
	webhooks *service.WebhookService
}

// NewWebhookHandler creates a WebhookHandler.
func NewWebhookHandler(webhooks *service.WebhookService) *WebhookHandler {
	return &WebhookHandler{webhooks: webhooks}
}

// Stripe handles a Stripe webhook delivery. Anything after a verified
// signature answers 200 so Stripe does not redeliver events we have already
// recorded.
// POST /api/v1/webhooks/stripe
func (h *WebhookHandler) Stripe(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBodyBytes))
	if err != nil {
		response.BadRequest(c, "failed to read request body")
		return
	}
	if len(payload) == 0 {
		response.BadRequest(c, "request body is empty")
		return
	}

	result, err := h.webhooks.HandleStripeDelivery(c.Request.Context(), payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		response.ErrorFrom(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
