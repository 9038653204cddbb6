package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/collectit/marketplace/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FindCheckout returns the processed checkout for a session, or nil when the session is new.
func (s *Store) FindCheckout(ctx context.Context, sessionID string) (*models.Checkout, error) {
	var row models.Checkout
	errFind := s.conn(ctx).Where("session_id = ?", sessionID).Take(&row).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: find checkout: %w", errFind)
	}
	return &row, nil
}

// InsertCheckout records a processed checkout session. The session ID is unique.
func (s *Store) InsertCheckout(ctx context.Context, row *models.Checkout) error {
	if errCreate := s.conn(ctx).Omit(clause.Associations).Create(row).Error; errCreate != nil {
		return fmt.Errorf("store: insert checkout: %w", errCreate)
	}
	return nil
}

// ListCheckouts lists processed checkouts newest first, optionally filtered by status.
func (s *Store) ListCheckouts(ctx context.Context, status string) ([]models.Checkout, error) {
	q := s.conn(ctx).Model(&models.Checkout{})
	if status = strings.TrimSpace(status); status != "" {
		q = q.Where("status = ?", status)
	}
	var rows []models.Checkout
	if errFind := q.Order("id DESC").Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("store: list checkouts: %w", errFind)
	}
	return rows, nil
}
