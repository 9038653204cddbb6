// Package entitlement owns the subscription catalog and the acquisition ledger.
package entitlement

import (
	"context"
	"strings"

	"github.com/collectit/marketplace/internal/apperr"
	"github.com/collectit/marketplace/internal/models"
	"github.com/collectit/marketplace/internal/store"
)

// PlanParams describes a plan to create.
type PlanParams struct {
	Name              string
	Description       string
	Type              models.ResourceType
	MaxResourcesCount int
	ValidityDays      int
	Price             float64
	Restriction       *Restriction
}

// PlanUpdate lists the plan fields to change; nil fields are left alone.
type PlanUpdate struct {
	Name              *string
	Description       *string
	Type              *models.ResourceType
	MaxResourcesCount *int
	ValidityDays      *int
	Price             *float64
	Restriction       *Restriction
	ClearRestriction  bool
}

// Catalog manages subscription plans.
type Catalog struct {
	store *store.Store
}

// NewCatalog constructs a Catalog.
func NewCatalog(st *store.Store) *Catalog {
	return &Catalog{store: st}
}

// Create validates and stores a plan.
func (c *Catalog) Create(ctx context.Context, params PlanParams) (models.Subscription, error) {
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return models.Subscription{}, apperr.Validation("name is required")
	}
	if !params.Type.Valid() {
		return models.Subscription{}, apperr.Validation("unknown resource type %q", params.Type)
	}
	if errLimits := validateLimits(params.MaxResourcesCount, params.ValidityDays, params.Price); errLimits != nil {
		return models.Subscription{}, errLimits
	}
	if errRestriction := params.Restriction.Validate(); errRestriction != nil {
		return models.Subscription{}, errRestriction
	}
	restriction, errEncode := params.Restriction.Encode()
	if errEncode != nil {
		return models.Subscription{}, apperr.Validation("invalid restriction: %v", errEncode)
	}

	sub := models.Subscription{
		Name:              name,
		Description:       strings.TrimSpace(params.Description),
		Type:              params.Type,
		MaxResourcesCount: params.MaxResourcesCount,
		ValidityDays:      params.ValidityDays,
		Price:             params.Price,
		Restriction:       restriction,
		Active:            true,
	}
	if errInsert := c.store.InsertSubscription(ctx, &sub); errInsert != nil {
		return models.Subscription{}, errInsert
	}
	return sub, nil
}

// FindByID loads a plan.
func (c *Catalog) FindByID(ctx context.Context, id uint64) (models.Subscription, error) {
	return c.store.FindSubscription(ctx, id)
}

// List returns plans ordered by id. An empty type lists every kind.
func (c *Catalog) List(ctx context.Context, t models.ResourceType, activeOnly bool) ([]models.Subscription, error) {
	if t != "" && !t.Valid() {
		return nil, apperr.Validation("unknown resource type %q", t)
	}
	return c.store.ListSubscriptions(ctx, store.SubscriptionFilter{Type: t, ActiveOnly: activeOnly})
}

// Update changes plan fields. The resource type of an existing plan cannot change.
func (c *Catalog) Update(ctx context.Context, id uint64, update PlanUpdate) (models.Subscription, error) {
	var updated models.Subscription
	errTx := c.store.InTx(ctx, func(tx *store.Store) error {
		current, errFind := tx.FindSubscription(ctx, id)
		if errFind != nil {
			return errFind
		}
		if update.Type != nil && *update.Type != current.Type {
			return apperr.Validation("resource type of subscription %d cannot change", id)
		}

		changes := map[string]any{}
		if update.Name != nil {
			name := strings.TrimSpace(*update.Name)
			if name == "" {
				return apperr.Validation("name is required")
			}
			changes["name"] = name
		}
		if update.Description != nil {
			changes["description"] = strings.TrimSpace(*update.Description)
		}
		maxCount, validity, price := current.MaxResourcesCount, current.ValidityDays, current.Price
		if update.MaxResourcesCount != nil {
			maxCount = *update.MaxResourcesCount
			changes["max_resources_count"] = maxCount
		}
		if update.ValidityDays != nil {
			validity = *update.ValidityDays
			changes["validity_days"] = validity
		}
		if update.Price != nil {
			price = *update.Price
			changes["price"] = price
		}
		if errLimits := validateLimits(maxCount, validity, price); errLimits != nil {
			return errLimits
		}
		switch {
		case update.ClearRestriction:
			changes["restriction"] = nil
		case update.Restriction != nil:
			if errRestriction := update.Restriction.Validate(); errRestriction != nil {
				return errRestriction
			}
			encoded, errEncode := update.Restriction.Encode()
			if errEncode != nil {
				return apperr.Validation("invalid restriction: %v", errEncode)
			}
			changes["restriction"] = encoded
		}

		if errUpdate := tx.UpdateSubscription(ctx, id, changes); errUpdate != nil {
			return errUpdate
		}
		reloaded, errReload := tx.FindSubscription(ctx, id)
		if errReload != nil {
			return errReload
		}
		updated = reloaded
		return nil
	})
	if errTx != nil {
		return models.Subscription{}, errTx
	}
	return updated, nil
}

// SetActive enables or disables purchases of a plan.
func (c *Catalog) SetActive(ctx context.Context, id uint64, active bool) error {
	return c.store.UpdateSubscription(ctx, id, map[string]any{"active": active})
}

// Delete removes a plan nobody has purchased.
func (c *Catalog) Delete(ctx context.Context, id uint64) error {
	return c.store.InTx(ctx, func(tx *store.Store) error {
		return tx.DeleteSubscription(ctx, id)
	})
}

func validateLimits(maxCount, validityDays int, price float64) error {
	if maxCount < 1 {
		return apperr.Validation("max resources count must be at least 1")
	}
	if validityDays < 1 {
		return apperr.Validation("validity must be at least 1 day")
	}
	if price < 0 {
		return apperr.Validation("price must not be negative")
	}
	return nil
}
