package store

import (
	"context"
	"fmt"

	"github.com/collectit/marketplace/internal/apperr"
	"github.com/collectit/marketplace/internal/models"
	"gorm.io/gorm/clause"
)

// SubscriptionFilter narrows catalog listings.
type SubscriptionFilter struct {
	Type       models.ResourceType
	ActiveOnly bool
}

// InsertSubscription adds a plan to the catalog.
func (s *Store) InsertSubscription(ctx context.Context, sub *models.Subscription) error {
	if errCreate := s.conn(ctx).Create(sub).Error; errCreate != nil {
		return fmt.Errorf("store: insert subscription: %w", errCreate)
	}
	return nil
}

// FindSubscription loads a plan by id.
func (s *Store) FindSubscription(ctx context.Context, id uint64) (models.Subscription, error) {
	var sub models.Subscription
	if errFind := s.conn(ctx).Where("id = ?", id).Take(&sub).Error; errFind != nil {
		return models.Subscription{}, notFoundOr(errFind, "subscription %d not found", id)
	}
	return sub, nil
}

// ListSubscriptions lists plans ordered by ascending id.
func (s *Store) ListSubscriptions(ctx context.Context, filter SubscriptionFilter) ([]models.Subscription, error) {
	q := s.conn(ctx).Model(&models.Subscription{})
	if filter.Type != "" {
		q = q.Where("type = ?", filter.Type)
	}
	if filter.ActiveOnly {
		q = q.Where("active = ?", true)
	}
	var rows []models.Subscription
	if errFind := q.Order("id ASC").Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("store: list subscriptions: %w", errFind)
	}
	return rows, nil
}

// UpdateSubscription applies column updates to a plan.
func (s *Store) UpdateSubscription(ctx context.Context, id uint64, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	result := s.conn(ctx).Model(&models.Subscription{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("store: update subscription: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperr.NotFound("subscription %d not found", id)
	}
	return nil
}

// DeleteSubscription removes a plan that no purchase references.
func (s *Store) DeleteSubscription(ctx context.Context, id uint64) error {
	var sub models.Subscription
	if errFind := s.forUpdate(s.conn(ctx)).Where("id = ?", id).Take(&sub).Error; errFind != nil {
		return notFoundOr(errFind, "subscription %d not found", id)
	}
	var purchases int64
	if errCount := s.conn(ctx).Model(&models.UserSubscription{}).
		Where("subscription_id = ?", id).
		Count(&purchases).Error; errCount != nil {
		return fmt.Errorf("store: count purchases: %w", errCount)
	}
	if purchases > 0 {
		return apperr.Conflict("subscription %d has %d purchases", id, purchases)
	}
	if errDelete := s.conn(ctx).Omit(clause.Associations).Delete(&sub).Error; errDelete != nil {
		return fmt.Errorf("store: delete subscription: %w", errDelete)
	}
	return nil
}
