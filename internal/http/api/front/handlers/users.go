package handlers

import (
	"net/http"
	"time"

	"github.com/collectit/marketplace/internal/account"
	"github.com/collectit/marketplace/internal/entitlement"
	"github.com/collectit/marketplace/internal/http/api"
	"github.com/collectit/marketplace/internal/http/middleware"
	"github.com/collectit/marketplace/internal/http/respond"
	"github.com/gin-gonic/gin"
)

// UserFrontHandler serves account lookups and self-service changes.
type UserFrontHandler struct {
	accounts     *account.Service
	entitlements *entitlement.Service
	now          func() time.Time
}

// NewUserFrontHandler constructs a UserFrontHandler.
func NewUserFrontHandler(accounts *account.Service, ent *entitlement.Service, now func() time.Time) *UserFrontHandler {
	if now == nil {
		now = time.Now
	}
	return &UserFrontHandler{accounts: accounts, entitlements: ent, now: now}
}

// List returns one page of users.
func (h *UserFrontHandler) List(c *gin.Context) {
	number, size, ok := respond.ParsePage(c)
	if !ok {
		return
	}
	users, total, errList := h.accounts.GetPaged(c.Request.Context(), number, size)
	if errList != nil {
		respond.Error(c, errList)
		return
	}
	respond.Paged(c, api.Users(users), total, number, size)
}

// Get returns one user.
func (h *UserFrontHandler) Get(c *gin.Context) {
	id, ok := respond.ParseID(c, "id")
	if !ok {
		return
	}
	user, errFind := h.accounts.FindByID(c.Request.Context(), id)
	if errFind != nil {
		respond.Error(c, errFind)
		return
	}
	c.JSON(http.StatusOK, api.User(user))
}

// Roles returns the role names of a user.
func (h *UserFrontHandler) Roles(c *gin.Context) {
	id, ok := respond.ParseID(c, "id")
	if !ok {
		return
	}
	roles, errRoles := h.accounts.Roles(c.Request.Context(), id)
	if errRoles != nil {
		respond.Error(c, errRoles)
		return
	}
	c.JSON(http.StatusOK, gin.H{"roles": roles})
}

// Subscriptions returns every purchase of a user.
func (h *UserFrontHandler) Subscriptions(c *gin.Context) {
	id, ok := h.selfOrAdmin(c)
	if !ok {
		return
	}
	rows, errList := h.entitlements.Subscriptions(c.Request.Context(), id)
	if errList != nil {
		respond.Error(c, errList)
		return
	}
	c.JSON(http.StatusOK, gin.H{"subscriptions": api.UserSubscriptions(rows, h.now())})
}

// ActiveSubscriptions returns the unexpired purchases of a user with their quota usage.
func (h *UserFrontHandler) ActiveSubscriptions(c *gin.Context) {
	id, ok := h.selfOrAdmin(c)
	if !ok {
		return
	}
	rows, errList := h.entitlements.ActiveSubscriptions(c.Request.Context(), id)
	if errList != nil {
		respond.Error(c, errList)
		return
	}
	c.JSON(http.StatusOK, gin.H{"subscriptions": api.ActiveSubscriptions(rows, h.now())})
}

// AcquiredResources returns the resources a user holds.
func (h *UserFrontHandler) AcquiredResources(c *gin.Context) {
	id, ok := h.selfOrAdmin(c)
	if !ok {
		return
	}
	rows, errList := h.entitlements.AcquiredResources(c.Request.Context(), id)
	if errList != nil {
		respond.Error(c, errList)
		return
	}
	c.JSON(http.StatusOK, gin.H{"acquired_resources": api.Acquisitions(rows)})
}

// changeUsernameRequest defines the request body for renaming an account.
type changeUsernameRequest struct {
	Username string `json:"username"` // New login name.
}

// ChangeUsername renames the caller's account, or any account for admins.
func (h *UserFrontHandler) ChangeUsername(c *gin.Context) {
	id, ok := h.selfOrAdmin(c)
	if !ok {
		return
	}
	var body changeUsernameRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		respond.BadRequest(c, "invalid json")
		return
	}
	if errChange := h.accounts.ChangeUsername(c.Request.Context(), id, body.Username); errChange != nil {
		respond.Error(c, errChange)
		return
	}
	h.writeUser(c, id)
}

// changeEmailRequest defines the request body for changing an email address.
type changeEmailRequest struct {
	Email string `json:"email"` // New email address.
}

// ChangeEmail changes the email of the caller's account, or any account for admins.
func (h *UserFrontHandler) ChangeEmail(c *gin.Context) {
	id, ok := h.selfOrAdmin(c)
	if !ok {
		return
	}
	var body changeEmailRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		respond.BadRequest(c, "invalid json")
		return
	}
	if errChange := h.accounts.ChangeEmail(c.Request.Context(), id, body.Email); errChange != nil {
		respond.Error(c, errChange)
		return
	}
	h.writeUser(c, id)
}

func (h *UserFrontHandler) writeUser(c *gin.Context, id uint64) {
	user, errFind := h.accounts.FindByID(c.Request.Context(), id)
	if errFind != nil {
		respond.Error(c, errFind)
		return
	}
	c.JSON(http.StatusOK, api.User(user))
}

// selfOrAdmin parses the :id parameter and requires it to be the caller unless the caller is an admin.
func (h *UserFrontHandler) selfOrAdmin(c *gin.Context) (uint64, bool) {
	id, ok := respond.ParseID(c, "id")
	if !ok {
		return 0, false
	}
	if id != middleware.UserID(c) && !middleware.IsAdmin(c) {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden", "kind": "forbidden"})
		return 0, false
	}
	return id, true
}
