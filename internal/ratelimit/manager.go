// Package ratelimit throttles expensive user actions with a fixed one-second window,
// backed by Redis when configured and by process memory otherwise.
package ratelimit

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

// SettingsProvider supplies the latest settings snapshot.
type SettingsProvider func() SettingsConfig

// Manager resolves the budget for a user and action and charges it against the
// shared Redis window, or the local window while Redis is unavailable.
type Manager struct {
	settings SettingsProvider
	clock    func() time.Time
	local    *MemoryLimiter
	shared   *sharedWindow
}

// NewManager constructs a Manager. A nil dial uses redis.NewClient.
func NewManager(settings SettingsProvider, clock func() time.Time, dial RedisClientFactory) *Manager {
	if settings == nil {
		settings = StaticSettings(SettingsConfig{})
	}
	if clock == nil {
		clock = time.Now
	}
	return &Manager{
		settings: settings,
		clock:    clock,
		local:    NewMemoryLimiter(),
		shared:   newSharedWindow(dial),
	}
}

// Check charges one request by userID to action. Admins and unconfigured actions pass
// with a zero Decision. A failing Redis backend never rejects a request.
func (m *Manager) Check(ctx context.Context, userID uint64, roles []string, action string) (Decision, Result, error) {
	if m == nil {
		return Decision{}, Result{Allowed: true}, nil
	}
	cfg := m.settings()
	decision := ResolveLimit(cfg, roles, action)
	key := KeyForDecision(userID, decision)
	if key == "" {
		return decision, Result{Allowed: true}, nil
	}
	now := m.clock()

	if cfg.RedisEnabled {
		result, errShared := m.shared.allow(ctx, cfg, key, decision.Limit, now)
		if errShared == nil {
			return decision, result, nil
		}
		if errShared != errSharedCoolingDown {
			log.WithError(errShared).WithFields(log.Fields{
				"user_id": userID,
				"action":  decision.Action,
			}).Warn("rate limit: redis unavailable, counting in memory")
		}
	}
	result, errLocal := m.local.Allow(ctx, key, decision.Limit, now)
	return decision, result, errLocal
}

// Close releases the Redis client, if one was opened.
func (m *Manager) Close() error {
	if m == nil {
		return nil
	}
	return m.shared.close()
}
