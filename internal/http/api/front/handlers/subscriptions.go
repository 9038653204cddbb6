package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/collectit/marketplace/internal/apperr"
	"github.com/collectit/marketplace/internal/entitlement"
	"github.com/collectit/marketplace/internal/http/api"
	"github.com/collectit/marketplace/internal/http/middleware"
	"github.com/collectit/marketplace/internal/http/respond"
	"github.com/collectit/marketplace/internal/models"
	"github.com/collectit/marketplace/internal/payment"
	"github.com/gin-gonic/gin"
)

// SubscriptionFrontHandler serves the plan catalog to users.
type SubscriptionFrontHandler struct {
	catalog      *entitlement.Catalog
	entitlements *entitlement.Service
	payments     *payment.Service
	now          func() time.Time
}

// NewSubscriptionFrontHandler constructs a SubscriptionFrontHandler. payments may be nil.
func NewSubscriptionFrontHandler(catalog *entitlement.Catalog, ent *entitlement.Service, payments *payment.Service, now func() time.Time) *SubscriptionFrontHandler {
	if now == nil {
		now = time.Now
	}
	return &SubscriptionFrontHandler{catalog: catalog, entitlements: ent, payments: payments, now: now}
}

// List returns the purchasable plans, optionally filtered by type.
func (h *SubscriptionFrontHandler) List(c *gin.Context) {
	var kind models.ResourceType
	if raw := strings.TrimSpace(c.Query("type")); raw != "" {
		parsed, ok := models.ParseResourceType(raw)
		if !ok {
			respond.BadRequest(c, "invalid type")
			return
		}
		kind = parsed
	}
	plans, errList := h.catalog.List(c.Request.Context(), kind, true)
	if errList != nil {
		respond.Error(c, errList)
		return
	}
	c.JSON(http.StatusOK, gin.H{"subscriptions": api.Subscriptions(plans)})
}

// Get returns one purchasable plan.
func (h *SubscriptionFrontHandler) Get(c *gin.Context) {
	id, ok := respond.ParseID(c, "id")
	if !ok {
		return
	}
	plan, errFind := h.catalog.FindByID(c.Request.Context(), id)
	if errFind != nil {
		respond.Error(c, errFind)
		return
	}
	if !plan.Active && !middleware.IsAdmin(c) {
		respond.Error(c, apperr.ErrSubscriptionNotFound)
		return
	}
	c.JSON(http.StatusOK, api.Subscription(plan))
}

// Subscribe activates a plan for the caller directly. When payments are enabled, priced
// plans must go through Checkout instead unless the caller is an admin.
func (h *SubscriptionFrontHandler) Subscribe(c *gin.Context) {
	id, ok := respond.ParseID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	plan, errFind := h.catalog.FindByID(ctx, id)
	if errFind != nil {
		respond.Error(c, errFind)
		return
	}
	if plan.Price > 0 && h.payments.Enabled() && !middleware.IsAdmin(c) {
		c.AbortWithStatusJSON(http.StatusPaymentRequired, gin.H{"error": "subscription requires payment", "kind": "validation"})
		return
	}
	purchase, errSubscribe := h.entitlements.SubscribeUser(ctx, middleware.UserID(c), id)
	if errSubscribe != nil {
		respond.Error(c, errSubscribe)
		return
	}
	c.JSON(http.StatusCreated, api.UserSubscription(purchase, h.now()))
}

// Checkout opens a Stripe checkout session for a paid plan.
func (h *SubscriptionFrontHandler) Checkout(c *gin.Context) {
	id, ok := respond.ParseID(c, "id")
	if !ok {
		return
	}
	if !h.payments.Enabled() {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "payments are not configured"})
		return
	}
	checkout, errCheckout := h.payments.CreateCheckout(c.Request.Context(), middleware.UserID(c), id)
	if errCheckout != nil {
		respond.Error(c, errCheckout)
		return
	}
	c.JSON(http.StatusCreated, checkout)
}
