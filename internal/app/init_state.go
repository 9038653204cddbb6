package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/collectit/marketplace/internal/account"
	"github.com/collectit/marketplace/internal/config"
	"github.com/collectit/marketplace/internal/settings"
	log "github.com/sirupsen/logrus"
)

// EnsureAdmin creates the configured administrator when no account holds the Admin role yet.
// It reports whether an account was created.
func EnsureAdmin(ctx context.Context, accounts *account.Service, cfg config.AdminConfig) (bool, error) {
	if accounts == nil {
		return false, fmt.Errorf("nil account service")
	}
	initialized, errCheck := accounts.HasAdmin(ctx)
	if errCheck != nil {
		return false, errCheck
	}
	if initialized {
		return false, nil
	}
	username := strings.TrimSpace(cfg.Username)
	if username == "" || cfg.Password == "" {
		log.Warn("no administrator exists and admin.username/admin.password are not configured")
		return false, nil
	}
	email := strings.TrimSpace(cfg.Email)
	if email == "" {
		email = username + "@localhost.localdomain"
	}
	admin, errCreate := accounts.Create(ctx, username, email, cfg.Password, settings.RoleAdmin, settings.RoleUser)
	if errCreate != nil {
		return false, fmt.Errorf("create admin: %w", errCreate)
	}
	log.WithField("user_id", admin.ID).Infof("created administrator %s", admin.Username)
	return true, nil
}
