// Package app wires configuration, storage and the HTTP API into a runnable server.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/collectit/marketplace/internal/account"
	"github.com/collectit/marketplace/internal/blob"
	"github.com/collectit/marketplace/internal/config"
	"github.com/collectit/marketplace/internal/db"
	"github.com/collectit/marketplace/internal/entitlement"
	"github.com/collectit/marketplace/internal/http/api"
	"github.com/collectit/marketplace/internal/http/api/admin"
	"github.com/collectit/marketplace/internal/http/api/front"
	"github.com/collectit/marketplace/internal/http/middleware"
	"github.com/collectit/marketplace/internal/payment"
	"github.com/collectit/marketplace/internal/ratelimit"
	"github.com/collectit/marketplace/internal/resources"
	"github.com/collectit/marketplace/internal/store"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Server is a fully wired API server.
type Server struct {
	Config  config.Config
	Engine  *gin.Engine
	Store   *store.Store
	limiter *ratelimit.Manager
}

// Migrate opens the database and runs migrations.
func Migrate(ctx context.Context, cfg config.AppConfig) error {
	loaded, err := config.Load(config.ResolveConfigPath(cfg.ConfigPath))
	if err != nil {
		return err
	}
	conn, err := openDatabase(loaded.DSN())
	if err != nil {
		return err
	}
	defer closeDatabase(conn)
	return db.Migrate(conn.WithContext(ctx))
}

var openDatabase = db.Open

// closeDatabase releases the pool behind conn.
func closeDatabase(conn *gorm.DB) {
	sqlDB, errHandle := conn.DB()
	if errHandle != nil {
		return
	}
	if errClose := sqlDB.Close(); errClose != nil {
		log.WithError(errClose).Warn("close database")
	}
}

// NewServer opens the database, builds the services and registers every route.
func NewServer(ctx context.Context, cfg config.Config) (*Server, error) {
	if cfg.JWT.Secret == "" {
		log.Warn("jwt.secret is not configured, using a random secret; tokens will not survive a restart")
		cfg.JWT.Secret = generateJWTSecret()
	}
	conn, err := openDatabase(cfg.DSN())
	if err != nil {
		return nil, err
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		closeDatabase(conn)
		return nil, errMigrate
	}
	blobs, errBlobs := openBlobStorage(cfg.Storage)
	if errBlobs != nil {
		closeDatabase(conn)
		return nil, errBlobs
	}

	st := store.New(conn)
	accounts := account.NewService(st)
	if _, errAdmin := EnsureAdmin(ctx, accounts, cfg.Admin); errAdmin != nil {
		closeDatabase(conn)
		return nil, errAdmin
	}

	catalog := entitlement.NewCatalog(st)
	entitlements := entitlement.NewService(st, nowUTC)
	payments := payment.NewService(payment.Config{
		SecretKey:     cfg.Stripe.SecretKey,
		WebhookSecret: cfg.Stripe.WebhookSecret,
		Currency:      cfg.Stripe.Currency,
		SuccessURL:    cfg.Stripe.SuccessURL,
		CancelURL:     cfg.Stripe.CancelURL,
	}, catalog, entitlements)
	limiter := ratelimit.NewManager(ratelimit.StaticSettings(ratelimit.SettingsConfig{
		Limit:         cfg.RateLimit.Limit,
		Actions:       cfg.RateLimit.Actions,
		RedisEnabled:  cfg.RateLimit.Redis.Enabled,
		RedisAddr:     cfg.RateLimit.Redis.Addr,
		RedisPassword: cfg.RateLimit.Redis.Password,
		RedisDB:       cfg.RateLimit.Redis.DB,
		RedisPrefix:   cfg.RateLimit.Redis.Prefix,
	}), nowUTC, nil)

	storagePath := ""
	if cfg.Storage.Driver == config.StorageDriverLocal {
		storagePath = cfg.Storage.Path
	}
	services := api.Services{
		Store:          st,
		Accounts:       accounts,
		Resources:      resources.NewService(st, blobs, cfg.Storage.Timeout, nowUTC),
		Catalog:        catalog,
		Entitlements:   entitlements,
		Payments:       payments,
		Limiter:        limiter,
		JWT:            cfg.JWT,
		MaxUploadBytes: cfg.Storage.MaxUploadBytes,
		StoragePath:    storagePath,
		Now:            nowUTC,
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.RequestLogger())
	engine.MaxMultipartMemory = 8 << 20
	admin.RegisterAdminRoutes(engine, services)
	front.RegisterFrontRoutes(engine, services)
	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	return &Server{Config: cfg, Engine: engine, Store: st, limiter: limiter}, nil
}

// Close releases the limiter backend and the database pool.
func (s *Server) Close() error {
	errLimiter := s.limiter.Close()
	var errDB error
	if sqlDB, errHandle := s.Store.DB().DB(); errHandle == nil {
		errDB = sqlDB.Close()
	}
	return errors.Join(errLimiter, errDB)
}

func openBlobStorage(cfg config.StorageConfig) (blob.Storage, error) {
	switch cfg.Driver {
	case config.StorageDriverS3:
		s3Storage, errS3 := blob.NewS3Storage(blob.S3Config{
			Region:          cfg.S3.Region,
			Bucket:          cfg.S3.Bucket,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			Endpoint:        cfg.S3.Endpoint,
			Prefix:          cfg.S3.Prefix,
		})
		if errS3 != nil {
			return nil, errS3
		}
		return s3Storage, nil
	case config.StorageDriverLocal:
		local, errLocal := blob.NewLocalStorage(cfg.Path)
		if errLocal != nil {
			return nil, errLocal
		}
		return local, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// RunServer loads the configuration and serves the API until ctx is cancelled.
// port overrides the configured port when positive.
func RunServer(ctx context.Context, cfg config.AppConfig, port int) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	loaded, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if port > 0 {
		loaded.Port = port
	}

	server, err := NewServer(ctx, loaded)
	if err != nil {
		return err
	}
	defer func() {
		if errClose := server.Close(); errClose != nil {
			log.WithError(errClose).Warn("close server resources")
		}
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", loaded.Port),
		Handler:           server.Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if errShutdown := srv.Shutdown(shutdownCtx); errShutdown != nil {
			log.Errorf("server shutdown error: %v", errShutdown)
		}
	}()

	log.Infof("starting collectit on %s with config=%s", srv.Addr, configPath)
	if errListen := srv.ListenAndServe(); errListen != nil && !errors.Is(errListen, http.ErrServerClosed) {
		return errListen
	}
	return nil
}

// nowUTC returns the current UTC time.
func nowUTC() time.Time { return time.Now().UTC() }
