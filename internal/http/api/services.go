package api

import (
	"time"

	"github.com/collectit/marketplace/internal/account"
	"github.com/collectit/marketplace/internal/config"
	"github.com/collectit/marketplace/internal/entitlement"
	"github.com/collectit/marketplace/internal/payment"
	"github.com/collectit/marketplace/internal/ratelimit"
	"github.com/collectit/marketplace/internal/resources"
	"github.com/collectit/marketplace/internal/store"
)

// Services bundles the collaborators the route groups are built from.
type Services struct {
	Store          *store.Store
	Accounts       *account.Service
	Resources      *resources.Service
	Catalog        *entitlement.Catalog
	Entitlements   *entitlement.Service
	Payments       *payment.Service
	Limiter        *ratelimit.Manager
	JWT            config.JWTConfig
	MaxUploadBytes int64
	StoragePath    string
	Now            func() time.Time
}
