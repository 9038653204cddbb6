package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/collectit/marketplace/internal/settings"
	"github.com/redis/go-redis/v9"
)

func TestMemoryLimiterFixedWindow(t *testing.T) {
	limiter := NewMemoryLimiter()
	ctx := context.Background()
	now := time.Unix(1700000000, 0)

	for i := 0; i < 2; i++ {
		result, err := limiter.Allow(ctx, "u:1", 2, now)
		if err != nil || !result.Allowed {
			t.Fatalf("request %d: expected allowed, got %+v (%v)", i, result, err)
		}
	}
	result, _ := limiter.Allow(ctx, "u:1", 2, now.Add(500*time.Millisecond))
	if result.Allowed {
		t.Fatalf("expected third request in the same second to be denied")
	}
	if !result.Reset.Equal(time.Unix(1700000001, 0)) {
		t.Fatalf("unexpected reset %v", result.Reset)
	}
	result, _ = limiter.Allow(ctx, "u:1", 2, now.Add(time.Second))
	if !result.Allowed || result.Remaining != 1 {
		t.Fatalf("expected a fresh window, got %+v", result)
	}
	result, _ = limiter.Allow(ctx, "u:2", 2, now)
	if !result.Allowed {
		t.Fatalf("expected keys to be independent")
	}
}

func TestResolveLimit(t *testing.T) {
	cfg := SettingsConfig{Limit: 10, Actions: map[string]int{" Content ": 2, "acquire": 0}}.Normalize()

	if d := ResolveLimit(cfg, []string{settings.RoleAdmin}, ActionContent); d.Limit != 0 {
		t.Fatalf("expected admins to be unlimited, got %+v", d)
	}
	d := ResolveLimit(cfg, []string{settings.RoleUser}, ActionContent)
	if d.Limit != 2 || d.Scope != ScopeAction || d.Action != ActionContent {
		t.Fatalf("unexpected content decision %+v", d)
	}
	d = ResolveLimit(cfg, nil, ActionAcquire)
	if d.Limit != 10 || d.Scope != ScopeUser {
		t.Fatalf("expected global fallback, got %+v", d)
	}
	if d = ResolveLimit(SettingsConfig{}, nil, ActionAcquire); d.Limit != 0 {
		t.Fatalf("expected unlimited without configuration, got %+v", d)
	}
}

func TestKeyForDecision(t *testing.T) {
	if key := KeyForDecision(7, Decision{Limit: 1, Scope: ScopeAction, Action: "content"}); key != "u:7:a:content" {
		t.Fatalf("unexpected action key %q", key)
	}
	if key := KeyForDecision(7, Decision{Limit: 1, Scope: ScopeUser}); key != "u:7" {
		t.Fatalf("unexpected user key %q", key)
	}
	if key := KeyForDecision(0, Decision{Limit: 1, Scope: ScopeUser}); key != "" {
		t.Fatalf("expected no key for anonymous callers, got %q", key)
	}
	if key := KeyForDecision(7, Decision{}); key != "" {
		t.Fatalf("expected no key without a limit, got %q", key)
	}
}

func TestManagerFallsBackToMemoryWhenRedisIsDown(t *testing.T) {
	now := time.Unix(1700000000, 0)
	dialed := 0
	manager := NewManager(StaticSettings(SettingsConfig{
		Limit:        1,
		RedisEnabled: true,
		RedisAddr:    "127.0.0.1:1",
	}), func() time.Time { return now }, func(options *redis.Options) *redis.Client {
		dialed++
		options.DialTimeout = 50 * time.Millisecond
		options.MaxRetries = -1
		return redis.NewClient(options)
	})
	defer func() { _ = manager.Close() }()
	ctx := context.Background()

	_, first, err := manager.Check(ctx, 3, []string{settings.RoleUser}, ActionAcquire)
	if err != nil || !first.Allowed {
		t.Fatalf("expected first request allowed, got %+v (%v)", first, err)
	}
	_, second, err := manager.Check(ctx, 3, []string{settings.RoleUser}, ActionAcquire)
	if err != nil || second.Allowed {
		t.Fatalf("expected second request denied by memory limiter, got %+v (%v)", second, err)
	}
	if dialed != 1 {
		t.Fatalf("expected the breaker to stop further redis attempts, dialed %d times", dialed)
	}
}

func TestRedisLimiterKeyPrefix(t *testing.T) {
	limiter := NewRedisLimiter(nil, " collectit:rl ")
	if key := limiter.buildKey("u:1", 42); key != "collectit:rl:u:1:42" {
		t.Fatalf("unexpected redis key %q", key)
	}
	result, err := limiter.Allow(context.Background(), "u:1", 1, time.Now())
	if err != nil || !result.Allowed {
		t.Fatalf("expected nil client to allow, got %+v (%v)", result, err)
	}
}

func TestManagerRedialsAfterCooldown(t *testing.T) {
	now := time.Unix(1700000000, 0)
	dialed := 0
	manager := NewManager(StaticSettings(SettingsConfig{
		Actions:      map[string]int{ActionUpload: 5},
		RedisEnabled: true,
		RedisAddr:    "127.0.0.1:1",
	}), func() time.Time { return now }, func(options *redis.Options) *redis.Client {
		dialed++
		options.DialTimeout = 50 * time.Millisecond
		options.MaxRetries = -1
		return redis.NewClient(options)
	})
	defer func() { _ = manager.Close() }()
	ctx := context.Background()

	for _, step := range []struct {
		advance time.Duration
		dials   int
	}{{0, 1}, {sharedCooldown - time.Second, 1}, {2 * time.Second, 2}} {
		now = now.Add(step.advance)
		decision, result, err := manager.Check(ctx, 9, []string{settings.RoleUser}, ActionUpload)
		if err != nil || !result.Allowed || decision.Scope != ScopeAction {
			t.Fatalf("unexpected check %+v %+v (%v)", decision, result, err)
		}
		if dialed != step.dials {
			t.Fatalf("after %s expected %d dials, got %d", step.advance, step.dials, dialed)
		}
	}
}

func TestManagerSkipsAdminsAndUnlimitedActions(t *testing.T) {
	now := time.Unix(1700000000, 0)
	manager := NewManager(StaticSettings(SettingsConfig{Actions: map[string]int{ActionAcquire: 1}}), func() time.Time { return now }, nil)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		decision, result, err := manager.Check(ctx, 1, []string{settings.RoleAdmin}, ActionAcquire)
		if err != nil || !result.Allowed || decision.Limit != 0 {
			t.Fatalf("expected admin to bypass the limit, got %+v %+v (%v)", decision, result, err)
		}
		if _, result, _ = manager.Check(ctx, 2, []string{settings.RoleUser}, ActionContent); !result.Allowed {
			t.Fatalf("expected unconfigured action to pass")
		}
	}
	if _, result, _ := manager.Check(ctx, 2, []string{settings.RoleUser}, ActionAcquire); !result.Allowed {
		t.Fatalf("expected first acquire to pass")
	}
	if _, result, _ := manager.Check(ctx, 2, []string{settings.RoleUser}, ActionAcquire); result.Allowed {
		t.Fatalf("expected second acquire in the same second to be limited")
	}
	if err := manager.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
