package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	sharedCooldown    = 30 * time.Second
	sharedPingTimeout = 2 * time.Second
)

var errSharedCoolingDown = errors.New("rate limit redis: cooling down after a failure")

// RedisClientFactory constructs a Redis client for the given options.
type RedisClientFactory func(options *redis.Options) *redis.Client

// sharedWindow owns the Redis connection behind the cross-replica counters.
// After a failure it stays idle for sharedCooldown before dialing again.
type sharedWindow struct {
	dial RedisClientFactory

	mu       sync.Mutex
	limiter  *RedisLimiter
	options  redis.Options
	prefix   string
	idleTill time.Time
}

func newSharedWindow(dial RedisClientFactory) *sharedWindow {
	if dial == nil {
		dial = redis.NewClient
	}
	return &sharedWindow{dial: dial}
}

func (w *sharedWindow) allow(ctx context.Context, cfg SettingsConfig, key string, limit int, now time.Time) (Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	limiter, errConnect := w.connect(ctx, cfg, now)
	if errConnect != nil {
		return Result{}, errConnect
	}
	result, errAllow := limiter.Allow(ctx, key, limit, now)
	if errAllow != nil {
		w.fail(limiter, now)
		return Result{}, errAllow
	}
	return result, nil
}

// connect returns the limiter for cfg, redialing when the address, credentials or prefix change.
func (w *sharedWindow) connect(ctx context.Context, cfg SettingsConfig, now time.Time) (*RedisLimiter, error) {
	if cfg.RedisAddr == "" {
		return nil, errors.New("rate limit redis: missing address")
	}
	want := redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}

	w.mu.Lock()
	defer w.mu.Unlock()
	if now.Before(w.idleTill) {
		return nil, errSharedCoolingDown
	}
	if w.limiter != nil && sameTarget(w.options, want) && w.prefix == cfg.RedisPrefix {
		return w.limiter, nil
	}
	w.dropLocked()

	opts := want
	client := w.dial(&opts)
	pingCtx, cancel := context.WithTimeout(ctx, sharedPingTimeout)
	defer cancel()
	if errPing := client.Ping(pingCtx).Err(); errPing != nil {
		_ = client.Close()
		w.idleTill = now.Add(sharedCooldown)
		return nil, errPing
	}
	w.limiter = NewRedisLimiter(client, cfg.RedisPrefix)
	w.options = want
	w.prefix = cfg.RedisPrefix
	return w.limiter, nil
}

func (w *sharedWindow) fail(limiter *RedisLimiter, now time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.limiter == limiter {
		w.dropLocked()
	}
	w.idleTill = now.Add(sharedCooldown)
}

func (w *sharedWindow) close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dropLocked()
}

func (w *sharedWindow) dropLocked() error {
	if w.limiter == nil {
		return nil
	}
	errClose := w.limiter.client.Close()
	w.limiter = nil
	return errClose
}

func sameTarget(a, b redis.Options) bool {
	return a.Addr == b.Addr && a.Password == b.Password && a.DB == b.DB
}
