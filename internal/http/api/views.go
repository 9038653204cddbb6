// Package api holds the JSON views shared by the front and admin route groups.
package api

import (
	"time"

	"github.com/collectit/marketplace/internal/entitlement"
	"github.com/collectit/marketplace/internal/models"
	"github.com/collectit/marketplace/internal/store"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// Resource renders a resource with its typed fields.
func Resource(res models.Resource) gin.H {
	item := gin.H{
		"id":          res.ID,
		"owner_id":    res.OwnerID,
		"type":        res.Type,
		"name":        res.Name,
		"upload_date": res.UploadDate.UTC(),
		"extension":   res.Extension(),
		"tags":        nonNilTags(res.Tags()),
	}
	if res.Type != models.ResourceTypeImage {
		item["duration"] = res.Duration()
	}
	return item
}

// Resources renders a list of resources.
func Resources(rows []models.Resource) []gin.H {
	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, Resource(row))
	}
	return out
}

func nonNilTags(tags models.Tags) models.Tags {
	if tags == nil {
		return models.Tags{}
	}
	return tags
}

// User renders an account without its password hash.
func User(user store.UserWithRoles) gin.H {
	roles := user.Roles
	if roles == nil {
		roles = []string{}
	}
	return gin.H{
		"id":         user.ID,
		"username":   user.Username,
		"email":      user.Email,
		"roles":      roles,
		"active":     !user.LockoutEnabled,
		"created_at": user.CreatedAt.UTC(),
	}
}

// Users renders a list of accounts.
func Users(rows []store.UserWithRoles) []gin.H {
	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, User(row))
	}
	return out
}

// Subscription renders a catalog plan. An unreadable restriction is logged and omitted.
func Subscription(plan models.Subscription) gin.H {
	item := gin.H{
		"id":                  plan.ID,
		"name":                plan.Name,
		"description":         plan.Description,
		"type":                plan.Type,
		"max_resources_count": plan.MaxResourcesCount,
		"validity_days":       plan.ValidityDays,
		"price":               plan.Price,
		"active":              plan.Active,
		"restriction":         nil,
		"created_at":          plan.CreatedAt.UTC(),
		"updated_at":          plan.UpdatedAt.UTC(),
	}
	restriction, errParse := entitlement.ParseRestriction(plan.Restriction)
	if errParse != nil {
		log.WithError(errParse).WithField("subscription_id", plan.ID).Warn("invalid subscription restriction")
	} else if restriction != nil {
		item["restriction"] = restriction
	}
	return item
}

// Subscriptions renders a list of catalog plans.
func Subscriptions(rows []models.Subscription) []gin.H {
	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, Subscription(row))
	}
	return out
}

// UserSubscription renders one purchase.
func UserSubscription(row models.UserSubscription, now time.Time) gin.H {
	return gin.H{
		"id":              row.ID,
		"user_id":         row.UserID,
		"subscription_id": row.SubscriptionID,
		"type":            row.Type,
		"purchase_date":   row.PurchaseDate.UTC(),
		"expiry_date":     row.ExpiryDate.UTC(),
		"active":          row.ActiveAt(now),
	}
}

// UserSubscriptions renders a list of purchases.
func UserSubscriptions(rows []models.UserSubscription, now time.Time) []gin.H {
	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, UserSubscription(row, now))
	}
	return out
}

// ActiveSubscriptions renders active purchases with their quota usage.
func ActiveSubscriptions(rows []models.ActiveUserSubscription, now time.Time) []gin.H {
	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		item := UserSubscription(row.UserSubscription, now)
		item["max_resources_count"] = row.MaxResourcesCount
		item["used_count"] = row.UsedCount
		item["remaining"] = row.Remaining()
		out = append(out, item)
	}
	return out
}

// Acquisition renders an acquired resource row.
func Acquisition(row models.AcquiredUserResource) gin.H {
	return gin.H{
		"id":                   row.ID,
		"user_id":              row.UserID,
		"resource_id":          row.ResourceID,
		"user_subscription_id": row.UserSubscriptionID,
		"acquired_date":        row.AcquiredDate.UTC(),
	}
}

// Acquisitions renders a list of acquired resource rows.
func Acquisitions(rows []models.AcquiredUserResource) []gin.H {
	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, Acquisition(row))
	}
	return out
}

// Checkout renders a processed payment session.
func Checkout(row models.Checkout) gin.H {
	return gin.H{
		"id":                   row.ID,
		"session_id":           row.SessionID,
		"user_id":              row.UserID,
		"subscription_id":      row.SubscriptionID,
		"user_subscription_id": row.UserSubscriptionID,
		"status":               row.Status,
		"reason":               row.Reason,
		"created_at":           row.CreatedAt.UTC(),
	}
}

// Checkouts renders processed payment sessions.
func Checkouts(rows []models.Checkout) []gin.H {
	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, Checkout(row))
	}
	return out
}
