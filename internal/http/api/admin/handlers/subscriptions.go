package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/collectit/marketplace/internal/entitlement"
	"github.com/collectit/marketplace/internal/http/api"
	"github.com/collectit/marketplace/internal/http/respond"
	"github.com/collectit/marketplace/internal/models"
	"github.com/gin-gonic/gin"
)

// SubscriptionHandler manages the plan catalog.
type SubscriptionHandler struct {
	catalog *entitlement.Catalog
}

// NewSubscriptionHandler constructs a SubscriptionHandler.
func NewSubscriptionHandler(catalog *entitlement.Catalog) *SubscriptionHandler {
	return &SubscriptionHandler{catalog: catalog}
}

// createSubscriptionRequest defines the request body for plan creation.
type createSubscriptionRequest struct {
	Name              string                   `json:"name"`                // Plan name.
	Description       string                   `json:"description"`         // Plan description.
	Type              string                   `json:"type"`                // Resource type the plan covers.
	MaxResourcesCount int                      `json:"max_resources_count"` // Acquisitions per purchase.
	ValidityDays      int                      `json:"validity_days"`       // Validity window in days.
	Price             float64                  `json:"price"`               // Purchase price.
	Restriction       *entitlement.Restriction `json:"restriction"`         // Optional eligibility restriction.
	Active            *bool                    `json:"active"`              // Optional active flag; defaults to true.
}

// Create validates and stores a plan.
func (h *SubscriptionHandler) Create(c *gin.Context) {
	var body createSubscriptionRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		respond.BadRequest(c, "invalid json")
		return
	}
	kind, ok := models.ParseResourceType(body.Type)
	if !ok {
		respond.BadRequest(c, "invalid type")
		return
	}
	ctx := c.Request.Context()
	plan, errCreate := h.catalog.Create(ctx, entitlement.PlanParams{
		Name:              body.Name,
		Description:       body.Description,
		Type:              kind,
		MaxResourcesCount: body.MaxResourcesCount,
		ValidityDays:      body.ValidityDays,
		Price:             body.Price,
		Restriction:       body.Restriction,
	})
	if errCreate != nil {
		respond.Error(c, errCreate)
		return
	}
	if body.Active != nil && !*body.Active {
		if errActive := h.catalog.SetActive(ctx, plan.ID, false); errActive != nil {
			respond.Error(c, errActive)
			return
		}
		plan.Active = false
	}
	c.JSON(http.StatusCreated, api.Subscription(plan))
}

// List returns every plan, including disabled ones.
func (h *SubscriptionHandler) List(c *gin.Context) {
	var kind models.ResourceType
	if raw := strings.TrimSpace(c.Query("type")); raw != "" {
		parsed, ok := models.ParseResourceType(raw)
		if !ok {
			respond.BadRequest(c, "invalid type")
			return
		}
		kind = parsed
	}
	plans, errList := h.catalog.List(c.Request.Context(), kind, false)
	if errList != nil {
		respond.Error(c, errList)
		return
	}
	c.JSON(http.StatusOK, gin.H{"subscriptions": api.Subscriptions(plans)})
}

// Get returns one plan.
func (h *SubscriptionHandler) Get(c *gin.Context) {
	id, ok := respond.ParseID(c, "id")
	if !ok {
		return
	}
	plan, errFind := h.catalog.FindByID(c.Request.Context(), id)
	if errFind != nil {
		respond.Error(c, errFind)
		return
	}
	c.JSON(http.StatusOK, api.Subscription(plan))
}

// updateSubscriptionRequest captures optional fields for plan updates.
type updateSubscriptionRequest struct {
	Name              *string          `json:"name"`                // Optional name update.
	Description       *string          `json:"description"`         // Optional description.
	Type              *string          `json:"type"`                // Rejected unless unchanged.
	MaxResourcesCount *int             `json:"max_resources_count"` // Optional quota.
	ValidityDays      *int             `json:"validity_days"`       // Optional validity window.
	Price             *float64         `json:"price"`               // Optional price.
	Restriction       json.RawMessage  `json:"restriction"`         // Optional restriction; null clears it.
	Active            *bool            `json:"active"`              // Optional active flag.
}

// Update validates and applies plan field updates.
func (h *SubscriptionHandler) Update(c *gin.Context) {
	id, ok := respond.ParseID(c, "id")
	if !ok {
		return
	}
	var body updateSubscriptionRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		respond.BadRequest(c, "invalid json")
		return
	}

	update := entitlement.PlanUpdate{
		Name:              body.Name,
		Description:       body.Description,
		MaxResourcesCount: body.MaxResourcesCount,
		ValidityDays:      body.ValidityDays,
		Price:             body.Price,
	}
	if body.Type != nil {
		kind, okType := models.ParseResourceType(*body.Type)
		if !okType {
			respond.BadRequest(c, "invalid type")
			return
		}
		update.Type = &kind
	}
	if raw := bytes.TrimSpace(body.Restriction); len(raw) > 0 {
		if bytes.Equal(raw, []byte("null")) {
			update.ClearRestriction = true
		} else {
			var restriction entitlement.Restriction
			if errUnmarshal := json.Unmarshal(raw, &restriction); errUnmarshal != nil {
				respond.BadRequest(c, "invalid restriction")
				return
			}
			update.Restriction = &restriction
		}
	}

	ctx := c.Request.Context()
	plan, errUpdate := h.catalog.Update(ctx, id, update)
	if errUpdate != nil {
		respond.Error(c, errUpdate)
		return
	}
	if body.Active != nil && *body.Active != plan.Active {
		if errActive := h.catalog.SetActive(ctx, id, *body.Active); errActive != nil {
			respond.Error(c, errActive)
			return
		}
		plan.Active = *body.Active
	}
	c.JSON(http.StatusOK, api.Subscription(plan))
}

// Delete removes a plan that nobody has purchased.
func (h *SubscriptionHandler) Delete(c *gin.Context) {
	id, ok := respond.ParseID(c, "id")
	if !ok {
		return
	}
	if errDelete := h.catalog.Delete(c.Request.Context(), id); errDelete != nil {
		respond.Error(c, errDelete)
		return
	}
	c.Status(http.StatusNoContent)
}

// Enable marks a plan as purchasable.
func (h *SubscriptionHandler) Enable(c *gin.Context) {
	h.setActive(c, true)
}

// Disable withdraws a plan from sale.
func (h *SubscriptionHandler) Disable(c *gin.Context) {
	h.setActive(c, false)
}

func (h *SubscriptionHandler) setActive(c *gin.Context, active bool) {
	id, ok := respond.ParseID(c, "id")
	if !ok {
		return
	}
	if errActive := h.catalog.SetActive(c.Request.Context(), id, active); errActive != nil {
		respond.Error(c, errActive)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
