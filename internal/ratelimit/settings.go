package ratelimit

import (
	"strings"

	internalsettings "github.com/collectit/marketplace/internal/settings"
)

// SettingsConfig captures the rate limit section of the service configuration.
type SettingsConfig struct {
	Limit         int
	Actions       map[string]int
	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
}

// Normalize trims fields and clamps negative values.
func (cfg SettingsConfig) Normalize() SettingsConfig {
	cfg.RedisAddr = strings.TrimSpace(cfg.RedisAddr)
	cfg.RedisPassword = strings.TrimSpace(cfg.RedisPassword)
	cfg.RedisPrefix = strings.TrimSpace(cfg.RedisPrefix)
	if cfg.RedisPrefix == "" {
		cfg.RedisPrefix = internalsettings.DefaultRateLimitRedisPrefix
	}
	if cfg.RedisDB < 0 {
		cfg.RedisDB = 0
	}
	if cfg.Limit < 0 {
		cfg.Limit = internalsettings.DefaultRateLimit
	}
	actions := make(map[string]int, len(cfg.Actions))
	for action, limit := range cfg.Actions {
		action = strings.ToLower(strings.TrimSpace(action))
		if action == "" || limit <= 0 {
			continue
		}
		actions[action] = limit
	}
	cfg.Actions = actions
	return cfg
}

// StaticSettings returns a provider that always yields the normalized cfg.
func StaticSettings(cfg SettingsConfig) SettingsProvider {
	normalized := cfg.Normalize()
	return func() SettingsConfig {
		return normalized
	}
}
