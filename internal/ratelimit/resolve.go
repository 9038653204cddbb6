package ratelimit

import (
	"strings"

	"github.com/collectit/marketplace/internal/settings"
)

// ResolveLimit picks the effective per-second limit for a caller and action.
// Admins are never limited; an action-specific limit wins over the global one.
func ResolveLimit(cfg SettingsConfig, roles []string, action string) Decision {
	for _, role := range roles {
		if strings.EqualFold(role, settings.RoleAdmin) {
			return Decision{}
		}
	}
	action = strings.ToLower(strings.TrimSpace(action))
	if action != "" {
		if limit := cfg.Actions[action]; limit > 0 {
			return Decision{Limit: limit, Scope: ScopeAction, Action: action}
		}
	}
	if cfg.Limit > 0 {
		return Decision{Limit: cfg.Limit, Scope: ScopeUser}
	}
	return Decision{}
}
