package handlers

import (
	"net/http"
	"strings"

	"github.com/collectit/marketplace/internal/entitlement"
	"github.com/collectit/marketplace/internal/http/api"
	"github.com/collectit/marketplace/internal/http/respond"
	"github.com/gin-gonic/gin"
)

// CheckoutHandler exposes the ledger of processed payment sessions.
type CheckoutHandler struct {
	entitlements *entitlement.Service
}

// NewCheckoutHandler constructs a CheckoutHandler.
func NewCheckoutHandler(ent *entitlement.Service) *CheckoutHandler {
	return &CheckoutHandler{entitlements: ent}
}

// List returns processed sessions, newest first. Rejected sessions were paid but need a refund.
func (h *CheckoutHandler) List(c *gin.Context) {
	rows, errList := h.entitlements.Checkouts(c.Request.Context(), strings.TrimSpace(c.Query("status")))
	if errList != nil {
		respond.Error(c, errList)
		return
	}
	c.JSON(http.StatusOK, gin.H{"checkouts": api.Checkouts(rows)})
}
