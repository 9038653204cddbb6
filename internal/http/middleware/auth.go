// Package middleware holds the gin middleware shared by the front and admin APIs.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/collectit/marketplace/internal/apperr"
	"github.com/collectit/marketplace/internal/security"
	"github.com/collectit/marketplace/internal/settings"
	"github.com/collectit/marketplace/internal/store"
	"github.com/gin-gonic/gin"
)

// Context keys set by UserAuth.
const (
	ContextUserID   = "userID"
	ContextUsername = "username"
	ContextRoles    = "userRoles"
)

// UserLoader resolves the account behind a token.
type UserLoader interface {
	FindByID(ctx context.Context, userID uint64) (store.UserWithRoles, error)
}

// UserAuth validates the bearer token and loads the caller. Roles come from the
// database so role changes apply without reissuing tokens.
func UserAuth(jwtSecret string, users UserLoader) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header", "kind": apperr.KindUnauthorized.String()})
			return
		}
		tokenString := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		if tokenString == "" || tokenString == authHeader {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header", "kind": apperr.KindUnauthorized.String()})
			return
		}

		claims, errParse := security.ParseUserToken(jwtSecret, tokenString)
		if errParse != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token", "kind": apperr.KindUnauthorized.String()})
			return
		}

		user, errFind := users.FindByID(c.Request.Context(), claims.UserID)
		if errFind != nil {
			if apperr.Is(errFind, apperr.KindNotFound) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user not found", "kind": apperr.KindUnauthorized.String()})
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "load user failed", "kind": apperr.KindInternal.String()})
			return
		}
		if user.LockoutEnabled {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "user is disabled", "kind": apperr.KindForbidden.String()})
			return
		}

		c.Set(ContextUserID, user.ID)
		c.Set(ContextUsername, user.Username)
		c.Set(ContextRoles, user.Roles)
		c.Next()
	}
}

// RequireRole rejects callers that do not hold role. It must run after UserAuth.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !HasRole(c, role) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden", "kind": apperr.KindForbidden.String()})
			return
		}
		c.Next()
	}
}

// UserID returns the authenticated caller id, or zero when unauthenticated.
func UserID(c *gin.Context) uint64 {
	return c.GetUint64(ContextUserID)
}

// Roles returns the authenticated caller roles.
func Roles(c *gin.Context) []string {
	return c.GetStringSlice(ContextRoles)
}

// HasRole reports whether the caller holds role, ignoring case.
func HasRole(c *gin.Context, role string) bool {
	for _, r := range Roles(c) {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the caller is an administrator.
func IsAdmin(c *gin.Context) bool {
	return HasRole(c, settings.RoleAdmin)
}
