package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/collectit/marketplace/internal/apperr"
	"github.com/collectit/marketplace/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// activeRow is the scan target for the active subscription projection.
type activeRow struct {
	ID                uint64
	UserID            uint64
	SubscriptionID    uint64
	Type              models.ResourceType
	PurchaseDate      time.Time
	ExpiryDate        time.Time
	MaxResourcesCount int64
	UsedCount         int64
}

// LockUser loads a user row and locks it until the transaction ends.
func (s *Store) LockUser(ctx context.Context, userID uint64) (models.User, error) {
	var user models.User
	if errFind := s.forUpdate(s.conn(ctx)).Where("id = ?", userID).Take(&user).Error; errFind != nil {
		return models.User{}, notFoundOr(errFind, "user %d not found", userID)
	}
	return user, nil
}

// ActiveSubscriptions returns purchases with expiry after now, earliest expiry first.
// An empty type returns purchases of every type.
func (s *Store) ActiveSubscriptions(ctx context.Context, userID uint64, t models.ResourceType, now time.Time) ([]models.ActiveUserSubscription, error) {
	q := s.conn(ctx).Table("user_subscriptions").
		Select(`user_subscriptions.id, user_subscriptions.user_id, user_subscriptions.subscription_id,
			user_subscriptions.type, user_subscriptions.purchase_date, user_subscriptions.expiry_date,
			subscriptions.max_resources_count AS max_resources_count,
			(SELECT COUNT(*) FROM acquired_user_resources
				WHERE acquired_user_resources.user_subscription_id = user_subscriptions.id) AS used_count`).
		Joins("JOIN subscriptions ON subscriptions.id = user_subscriptions.subscription_id").
		Where("user_subscriptions.user_id = ? AND user_subscriptions.expiry_date > ?", userID, now)
	if t != "" {
		q = q.Where("user_subscriptions.type = ?", t)
	}

	var rows []activeRow
	if errScan := q.Order("user_subscriptions.expiry_date ASC, user_subscriptions.id ASC").Scan(&rows).Error; errScan != nil {
		return nil, fmt.Errorf("store: active subscriptions: %w", errScan)
	}
	out := make([]models.ActiveUserSubscription, 0, len(rows))
	for _, row := range rows {
		out = append(out, models.ActiveUserSubscription{
			UserSubscription: models.UserSubscription{
				ID:             row.ID,
				UserID:         row.UserID,
				SubscriptionID: row.SubscriptionID,
				Type:           row.Type,
				PurchaseDate:   row.PurchaseDate,
				ExpiryDate:     row.ExpiryDate,
			},
			MaxResourcesCount: row.MaxResourcesCount,
			UsedCount:         row.UsedCount,
		})
	}
	return out, nil
}

// HasActiveSubscription reports whether the user holds an unexpired purchase of the type.
func (s *Store) HasActiveSubscription(ctx context.Context, userID uint64, t models.ResourceType, now time.Time) (bool, error) {
	var count int64
	if errCount := s.conn(ctx).Model(&models.UserSubscription{}).
		Where("user_id = ? AND type = ? AND expiry_date > ?", userID, t, now).
		Count(&count).Error; errCount != nil {
		return false, fmt.Errorf("store: check active subscription: %w", errCount)
	}
	return count > 0, nil
}

// InsertUserSubscription records a purchase.
func (s *Store) InsertUserSubscription(ctx context.Context, row *models.UserSubscription) error {
	if errCreate := s.conn(ctx).Omit(clause.Associations).Create(row).Error; errCreate != nil {
		return fmt.Errorf("store: insert user subscription: %w", errCreate)
	}
	return nil
}

// LockUserSubscription locks a purchase row so quota checks against it serialize.
func (s *Store) LockUserSubscription(ctx context.Context, id uint64) (models.UserSubscription, error) {
	var row models.UserSubscription
	if errFind := s.forUpdate(s.conn(ctx)).Where("id = ?", id).Take(&row).Error; errFind != nil {
		return models.UserSubscription{}, notFoundOr(errFind, "user subscription %d not found", id)
	}
	return row, nil
}

// CountAcquisitionsUnder counts acquisitions charged to a purchase.
func (s *Store) CountAcquisitionsUnder(ctx context.Context, userSubscriptionID uint64) (int64, error) {
	var count int64
	if errCount := s.conn(ctx).Model(&models.AcquiredUserResource{}).
		Where("user_subscription_id = ?", userSubscriptionID).
		Count(&count).Error; errCount != nil {
		return 0, fmt.Errorf("store: count acquisitions: %w", errCount)
	}
	return count, nil
}

// UserSubscriptions lists every purchase of a user, newest first.
func (s *Store) UserSubscriptions(ctx context.Context, userID uint64) ([]models.UserSubscription, error) {
	var rows []models.UserSubscription
	if errFind := s.conn(ctx).
		Where("user_id = ?", userID).
		Order("purchase_date DESC, id DESC").
		Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("store: list user subscriptions: %w", errFind)
	}
	return rows, nil
}

// FindAcquisition returns the acquisition row for the pair, or nil when absent.
func (s *Store) FindAcquisition(ctx context.Context, userID, resourceID uint64) (*models.AcquiredUserResource, error) {
	var row models.AcquiredUserResource
	errFind := s.conn(ctx).Where("user_id = ? AND resource_id = ?", userID, resourceID).Take(&row).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: find acquisition: %w", errFind)
	}
	return &row, nil
}

// InsertAcquisition records an acquisition. It reports false when the pair already exists.
func (s *Store) InsertAcquisition(ctx context.Context, row *models.AcquiredUserResource) (bool, error) {
	result := s.conn(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "resource_id"}},
			DoNothing: true,
		}).
		Create(row)
	if result.Error != nil {
		return false, fmt.Errorf("store: insert acquisition: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// Acquisitions lists resources a user holds, newest first.
func (s *Store) Acquisitions(ctx context.Context, userID uint64) ([]models.AcquiredUserResource, error) {
	var rows []models.AcquiredUserResource
	if errFind := s.conn(ctx).
		Preload("Resource").
		Where("user_id = ?", userID).
		Order("acquired_date DESC, id DESC").
		Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("store: list acquisitions: %w", errFind)
	}
	return rows, nil
}

// UserExists reports whether a user row exists.
func (s *Store) UserExists(ctx context.Context, userID uint64) error {
	var count int64
	if errCount := s.conn(ctx).Model(&models.User{}).Where("id = ?", userID).Count(&count).Error; errCount != nil {
		return fmt.Errorf("store: check user: %w", errCount)
	}
	if count == 0 {
		return apperr.NotFound("user %d not found", userID)
	}
	return nil
}
