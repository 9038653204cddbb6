package models

import (
	"time"

	"gorm.io/datatypes"
)

// Subscription represents a purchasable plan scoped to one resource type.
type Subscription struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Name        string       `gorm:"type:varchar(255);not null"`      // Plan name.
	Description string       `gorm:"type:text"`                       // Plan description.
	Type        ResourceType `gorm:"type:varchar(16);not null;index"` // Resource type the plan covers.

	MaxResourcesCount int     `gorm:"not null"`                              // Acquisitions allowed per purchase.
	ValidityDays      int     `gorm:"not null"`                              // Validity window in days.
	Price             float64 `gorm:"type:decimal(10,2);not null;default:0"` // Purchase price.

	Restriction datatypes.JSON `gorm:"type:jsonb"` // Optional eligibility restriction.

	Active bool `gorm:"not null;default:true"` // Whether the plan can be purchased.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// Validity returns the plan validity as a duration.
func (s Subscription) Validity() time.Duration {
	return time.Duration(s.ValidityDays) * 24 * time.Hour
}

// UserSubscription records one purchase of a subscription plan.
type UserSubscription struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID uint64 `gorm:"not null;index:idx_user_subscriptions_user_type"` // Purchasing user ID.
	User   User   `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`   // Purchasing user record.

	SubscriptionID uint64       `gorm:"not null;index"`                                                   // Purchased plan ID.
	Subscription   Subscription `gorm:"foreignKey:SubscriptionID"`                                        // Purchased plan record.
	Type           ResourceType `gorm:"type:varchar(16);not null;index:idx_user_subscriptions_user_type"` // Plan resource type at purchase time.

	PurchaseDate time.Time `gorm:"not null"`       // Purchase timestamp.
	ExpiryDate   time.Time `gorm:"not null;index"` // Exclusive end of the validity window.
}

// ActiveAt reports whether the subscription is active at now.
func (s UserSubscription) ActiveAt(now time.Time) bool {
	return now.Before(s.ExpiryDate)
}

// ActiveUserSubscription is a read-time projection of a subscription that has not expired.
type ActiveUserSubscription struct {
	UserSubscription
	MaxResourcesCount int64 // Plan quota.
	UsedCount         int64 // Acquisitions recorded under this purchase.
}

// Remaining returns the unused quota.
func (s ActiveUserSubscription) Remaining() int64 {
	if left := s.MaxResourcesCount - s.UsedCount; left > 0 {
		return left
	}
	return 0
}

// AcquiredUserResource records that a user holds a resource.
type AcquiredUserResource struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID uint64 `gorm:"not null;uniqueIndex:idx_acquired_user_resource"` // Acquiring user ID.
	User   User   `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`    // Acquiring user record.

	ResourceID uint64   `gorm:"not null;uniqueIndex:idx_acquired_user_resource;index"` // Acquired resource ID.
	Resource   Resource `gorm:"foreignKey:ResourceID;constraint:OnDelete:CASCADE"`      // Acquired resource record.

	UserSubscriptionID *uint64 `gorm:"index"` // Purchase the acquisition was charged to; nil for direct grants.

	AcquiredDate time.Time `gorm:"not null"` // Acquisition timestamp.
}

// Checkout fulfilment outcomes.
const (
	// CheckoutFulfilled means the paid session produced a user subscription.
	CheckoutFulfilled = "fulfilled"
	// CheckoutRejected means the session was paid but could not be fulfilled and needs a refund.
	CheckoutRejected = "rejected"
)

// Checkout records a paid checkout session so each payment is applied once.
type Checkout struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	SessionID string `gorm:"type:varchar(255);not null;uniqueIndex"` // Payment provider session ID.

	UserID uint64 `gorm:"not null;index"`                                // Buyer ID.
	User   User   `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"` // Buyer record.

	SubscriptionID     uint64  `gorm:"not null;index"` // Purchased plan ID.
	UserSubscriptionID *uint64 `gorm:"index"`          // Resulting purchase; nil when rejected.

	Status string `gorm:"type:varchar(16);not null;index"` // Fulfilment outcome.
	Reason string `gorm:"type:text"`                       // Why a rejected session was not applied.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Processing timestamp.
}
