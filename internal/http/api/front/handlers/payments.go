package handlers

import (
	"io"
	"net/http"

	"github.com/collectit/marketplace/internal/http/respond"
	"github.com/collectit/marketplace/internal/payment"
	"github.com/gin-gonic/gin"
)

// maxWebhookBytes bounds Stripe event payloads.
const maxWebhookBytes = 64 << 10

// PaymentHandler receives Stripe webhooks.
type PaymentHandler struct {
	payments *payment.Service
}

// NewPaymentHandler constructs a PaymentHandler.
func NewPaymentHandler(payments *payment.Service) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

// Webhook verifies and applies a Stripe event.
func (h *PaymentHandler) Webhook(c *gin.Context) {
	if !h.payments.Enabled() {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "payments are not configured"})
		return
	}
	payload, errRead := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBytes))
	if errRead != nil {
		respond.BadRequest(c, "read payload failed")
		return
	}
	if errHandle := h.payments.HandleWebhook(c.Request.Context(), payload, c.GetHeader("Stripe-Signature")); errHandle != nil {
		respond.Error(c, errHandle)
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}
