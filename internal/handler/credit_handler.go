// Package handler holds the gin HTTP handlers.
package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/reelpostly/repostly/internal/pkg/response"
	"github.com/reelpostly/repostly/internal/server/middleware"
	"github.com/reelpostly/repostly/internal/service"
)

// CreditHandler exposes the credit ledger.
type CreditHandler struct {
	credits *service.CreditService
}

// NewCreditHandler creates a CreditHandler.
func NewCreditHandler(credits *service.CreditService) *CreditHandler {
	return &CreditHandler{credits: credits}
}

// GetBalance returns the caller's combined available credits.
// GET /api/v1/credits
func (h *CreditHandler) GetBalance(c *gin.Context) {
	ownerKey, ok := middleware.GetOwnerKeyFromContext(c)
	if !ok {
		response.Unauthorized(c, "authentication required")
		return
	}
	summary, err := h.credits.Balance(c.Request.Context(), ownerKey)
	if err != nil {
		response.ErrorFrom(c, err)
		return
	}
	response.Success(c, summary)
}

type consumeRequest struct {
	Amount    int64  `json:"amount"`
	Operation string `json:"operation"`
}

// Consume deducts credits for one operation, preferring the API-key account
// the request authenticated with.
// POST /api/v1/credits/consume
func (h *CreditHandler) Consume(c *gin.Context) {
	ownerKey, ok := middleware.GetOwnerKeyFromContext(c)
	if !ok {
		response.Unauthorized(c, "authentication required")
		return
	}
	var req consumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}

	amount := req.Amount
	if amount <= 0 && req.Operation != "" {
		amount = h.credits.CostFor(req.Operation)
	}
	var preferredAccountID string
	if account, ok := middleware.GetAccountFromContext(c); ok {
		preferredAccountID = account.ID
	}

	result, err := h.credits.Consume(c.Request.Context(), ownerKey, preferredAccountID, amount, service.JournalReasonConsume)
	if err != nil {
		response.ErrorFrom(c, err)
		return
	}
	response.Success(c, result)
}

type createAccountRequest struct {
	PlanID string `json:"plan_id"`
}

// CreateAccount provisions a new API key for the caller.
// POST /api/v1/accounts
func (h *CreditHandler) CreateAccount(c *gin.Context) {
	ownerKey, ok := middleware.GetOwnerKeyFromContext(c)
	if !ok {
		response.Unauthorized(c, "authentication required")
		return
	}
	var req createAccountRequest
	_ = c.ShouldBindJSON(&req)

	account, err := h.credits.CreateAccount(c.Request.Context(), ownerKey, req.PlanID)
	if err != nil {
		response.ErrorFrom(c, err)
		return
	}
	response.Success(c, account)
}
