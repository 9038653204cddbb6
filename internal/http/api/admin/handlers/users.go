package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/collectit/marketplace/internal/account"
	"github.com/collectit/marketplace/internal/entitlement"
	"github.com/collectit/marketplace/internal/http/api"
	"github.com/collectit/marketplace/internal/http/respond"
	"github.com/collectit/marketplace/internal/settings"
	"github.com/gin-gonic/gin"
)

// UserHandler manages accounts on behalf of administrators.
type UserHandler struct {
	accounts     *account.Service
	entitlements *entitlement.Service
}

// NewUserHandler constructs a UserHandler.
func NewUserHandler(accounts *account.Service, ent *entitlement.Service) *UserHandler {
	return &UserHandler{accounts: accounts, entitlements: ent}
}

// createUserRequest defines the request body for user creation.
type createUserRequest struct {
	Username string   `json:"username"` // Login name.
	Email    string   `json:"email"`    // Email address.
	Password string   `json:"password"` // Plain password.
	Roles    []string `json:"roles"`    // Role names; defaults to User.
}

// Create creates an account with the requested roles.
func (h *UserHandler) Create(c *gin.Context) {
	var body createUserRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		respond.BadRequest(c, "invalid json")
		return
	}
	roles := make([]string, 0, len(body.Roles))
	for _, role := range body.Roles {
		if trimmed := strings.TrimSpace(role); trimmed != "" {
			roles = append(roles, trimmed)
		}
	}
	if len(roles) == 0 {
		roles = append(roles, settings.RoleUser)
	}
	user, errCreate := h.accounts.Create(c.Request.Context(), body.Username, body.Email, body.Password, roles...)
	if errCreate != nil {
		respond.Error(c, errCreate)
		return
	}
	c.JSON(http.StatusCreated, api.User(user))
}

// roleRequest defines the request body for role assignment.
type roleRequest struct {
	Role string `json:"role"` // Role name.
}

// AddRole assigns a role to a user.
func (h *UserHandler) AddRole(c *gin.Context) {
	h.changeRole(c, h.accounts.AddRole)
}

// RemoveRole takes a role away from a user. The role may also be passed as ?role=.
func (h *UserHandler) RemoveRole(c *gin.Context) {
	h.changeRole(c, h.accounts.RemoveRole)
}

func (h *UserHandler) changeRole(c *gin.Context, apply func(ctx context.Context, userID uint64, role string) error) {
	id, ok := respond.ParseID(c, "id")
	if !ok {
		return
	}
	role := strings.TrimSpace(c.Query("role"))
	if role == "" {
		var body roleRequest
		if errBind := c.ShouldBindJSON(&body); errBind != nil {
			respond.BadRequest(c, "invalid json")
			return
		}
		role = strings.TrimSpace(body.Role)
	}
	if role == "" {
		respond.BadRequest(c, "role is required")
		return
	}
	ctx := c.Request.Context()
	if errApply := apply(ctx, id, role); errApply != nil {
		respond.Error(c, errApply)
		return
	}
	roles, errRoles := h.accounts.Roles(ctx, id)
	if errRoles != nil {
		respond.Error(c, errRoles)
		return
	}
	c.JSON(http.StatusOK, gin.H{"roles": roles})
}

// Activate clears the lockout flag of a user.
func (h *UserHandler) Activate(c *gin.Context) {
	h.setActive(c, true)
}

// Deactivate locks a user out.
func (h *UserHandler) Deactivate(c *gin.Context) {
	h.setActive(c, false)
}

func (h *UserHandler) setActive(c *gin.Context, active bool) {
	id, ok := respond.ParseID(c, "id")
	if !ok {
		return
	}
	var errToggle error
	if active {
		errToggle = h.accounts.Activate(c.Request.Context(), id)
	} else {
		errToggle = h.accounts.Deactivate(c.Request.Context(), id)
	}
	if errToggle != nil {
		respond.Error(c, errToggle)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Grant gives a user a resource without charging a subscription.
func (h *UserHandler) Grant(c *gin.Context) {
	id, ok := respond.ParseID(c, "id")
	if !ok {
		return
	}
	resourceID, ok := respond.ParseID(c, "resource_id")
	if !ok {
		return
	}
	acquired, errGrant := h.entitlements.GrantResource(c.Request.Context(), id, resourceID)
	if errGrant != nil {
		respond.Error(c, errGrant)
		return
	}
	c.JSON(http.StatusOK, api.Acquisition(acquired))
}
