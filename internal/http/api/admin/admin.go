// Package admin registers the administrator API.
package admin

import (
	"github.com/collectit/marketplace/internal/http/api"
	handlers "github.com/collectit/marketplace/internal/http/api/admin/handlers"
	"github.com/collectit/marketplace/internal/http/middleware"
	"github.com/collectit/marketplace/internal/settings"
	"github.com/gin-gonic/gin"
)

// RegisterAdminRoutes registers /healthz and the /api/v1/admin routes.
func RegisterAdminRoutes(r *gin.Engine, svc api.Services) {
	if r == nil || svc.Store == nil {
		return
	}

	healthHandler := handlers.NewHealthHandler(svc.Store)
	r.GET("/healthz", healthHandler.Healthz)

	authed := r.Group("/api/v1/admin")
	authed.Use(middleware.UserAuth(svc.JWT.Secret, svc.Accounts))
	authed.Use(middleware.RequireRole(settings.RoleAdmin))

	userHandler := handlers.NewUserHandler(svc.Accounts, svc.Entitlements)
	authed.POST("/users", userHandler.Create)
	authed.POST("/users/:id/roles", userHandler.AddRole)
	authed.DELETE("/users/:id/roles", userHandler.RemoveRole)
	authed.POST("/users/:id/activate", userHandler.Activate)
	authed.POST("/users/:id/deactivate", userHandler.Deactivate)
	authed.POST("/users/:id/resources/:resource_id/grant", userHandler.Grant)

	subscriptionHandler := handlers.NewSubscriptionHandler(svc.Catalog)
	authed.POST("/subscriptions", subscriptionHandler.Create)
	authed.GET("/subscriptions", subscriptionHandler.List)
	authed.GET("/subscriptions/:id", subscriptionHandler.Get)
	authed.PUT("/subscriptions/:id", subscriptionHandler.Update)
	authed.DELETE("/subscriptions/:id", subscriptionHandler.Delete)
	authed.POST("/subscriptions/:id/enable", subscriptionHandler.Enable)
	authed.POST("/subscriptions/:id/disable", subscriptionHandler.Disable)

	checkoutHandler := handlers.NewCheckoutHandler(svc.Entitlements)
	authed.GET("/checkouts", checkoutHandler.List)

	systemHandler := handlers.NewSystemHandler(svc.StoragePath)
	authed.GET("/system/metrics", systemHandler.Metrics)
}
