// Package front registers the user-facing API.
package front

import (
	"github.com/collectit/marketplace/internal/http/api"
	"github.com/collectit/marketplace/internal/http/api/front/handlers"
	"github.com/collectit/marketplace/internal/http/middleware"
	"github.com/collectit/marketplace/internal/models"
	"github.com/collectit/marketplace/internal/ratelimit"
	"github.com/gin-gonic/gin"
)

// resourceRoutes maps URL segments to resource kinds.
var resourceRoutes = []struct {
	path string
	kind models.ResourceType
}{
	{path: "/images", kind: models.ResourceTypeImage},
	{path: "/musics", kind: models.ResourceTypeMusic},
	{path: "/videos", kind: models.ResourceTypeVideo},
}

// RegisterFrontRoutes registers the /api/v1 routes.
func RegisterFrontRoutes(r *gin.Engine, svc api.Services) {
	if r == nil || svc.Accounts == nil {
		return
	}

	group := r.Group("/api/v1")

	accountHandler := handlers.NewAccountHandler(svc.Accounts, svc.JWT, svc.Now)
	group.POST("/account/register", accountHandler.Register)
	group.POST("/account/login", accountHandler.Login)

	paymentHandler := handlers.NewPaymentHandler(svc.Payments)
	group.POST("/payments/webhook", paymentHandler.Webhook)

	authed := group.Group("")
	authed.Use(middleware.UserAuth(svc.JWT.Secret, svc.Accounts))

	for _, route := range resourceRoutes {
		h := handlers.NewResourceHandler(route.kind, svc.Resources, svc.Entitlements, svc.MaxUploadBytes)
		authed.GET(route.path, h.List)
		authed.GET(route.path+"/:id", h.Get)
		authed.POST(route.path, middleware.RateLimit(svc.Limiter, ratelimit.ActionUpload), h.Create)
		authed.PUT(route.path+"/:id/name", h.UpdateName)
		authed.PUT(route.path+"/:id/tags", h.UpdateTags)
		authed.DELETE(route.path+"/:id", h.Delete)
		authed.GET(route.path+"/:id/content", middleware.RateLimit(svc.Limiter, ratelimit.ActionContent), h.Content)
		authed.POST(route.path+"/:id/acquire", middleware.RateLimit(svc.Limiter, ratelimit.ActionAcquire), h.Acquire)
		authed.GET(route.path+"/:id/acquired", h.Acquired)
	}

	subscriptionHandler := handlers.NewSubscriptionFrontHandler(svc.Catalog, svc.Entitlements, svc.Payments, svc.Now)
	authed.GET("/subscriptions", subscriptionHandler.List)
	authed.GET("/subscriptions/:id", subscriptionHandler.Get)
	authed.POST("/subscriptions/:id/subscribe", subscriptionHandler.Subscribe)
	authed.POST("/subscriptions/:id/checkout", subscriptionHandler.Checkout)

	userHandler := handlers.NewUserFrontHandler(svc.Accounts, svc.Entitlements, svc.Now)
	authed.GET("/users", userHandler.List)
	authed.GET("/users/:id", userHandler.Get)
	authed.GET("/users/:id/roles", userHandler.Roles)
	authed.GET("/users/:id/subscriptions", userHandler.Subscriptions)
	authed.GET("/users/:id/active-subscriptions", userHandler.ActiveSubscriptions)
	authed.GET("/users/:id/acquired-resources", userHandler.AcquiredResources)
	authed.POST("/users/:id/username", userHandler.ChangeUsername)
	authed.POST("/users/:id/email", userHandler.ChangeEmail)
}
