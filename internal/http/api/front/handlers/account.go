package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/collectit/marketplace/internal/account"
	"github.com/collectit/marketplace/internal/config"
	"github.com/collectit/marketplace/internal/http/api"
	"github.com/collectit/marketplace/internal/http/respond"
	"github.com/collectit/marketplace/internal/security"
	"github.com/collectit/marketplace/internal/store"
	"github.com/gin-gonic/gin"
)

// AccountHandler serves registration and login.
type AccountHandler struct {
	accounts *account.Service
	jwtCfg   config.JWTConfig
	now      func() time.Time
}

// NewAccountHandler constructs an AccountHandler.
func NewAccountHandler(accounts *account.Service, jwtCfg config.JWTConfig, now func() time.Time) *AccountHandler {
	if now == nil {
		now = time.Now
	}
	return &AccountHandler{accounts: accounts, jwtCfg: jwtCfg, now: now}
}

// registerRequest defines the request body for account registration.
type registerRequest struct {
	Username string `json:"username"` // Login name.
	Email    string `json:"email"`    // Email address.
	Password string `json:"password"` // Plain password.
}

// Register creates a User account and returns a token for it.
func (h *AccountHandler) Register(c *gin.Context) {
	var body registerRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		respond.BadRequest(c, "invalid json")
		return
	}
	user, errRegister := h.accounts.Register(c.Request.Context(), strings.TrimSpace(body.Username), strings.TrimSpace(body.Email), body.Password)
	if errRegister != nil {
		respond.Error(c, errRegister)
		return
	}
	h.writeToken(c, http.StatusCreated, user)
}

// loginRequest defines the request body for login.
type loginRequest struct {
	Login    string `json:"login"`    // Username or email.
	Password string `json:"password"` // Plain password.
}

// Login verifies credentials and returns a token.
func (h *AccountHandler) Login(c *gin.Context) {
	var body loginRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		respond.BadRequest(c, "invalid json")
		return
	}
	if strings.TrimSpace(body.Login) == "" || body.Password == "" {
		respond.BadRequest(c, "login and password are required")
		return
	}
	user, errAuth := h.accounts.Authenticate(c.Request.Context(), strings.TrimSpace(body.Login), body.Password)
	if errAuth != nil {
		respond.Error(c, errAuth)
		return
	}
	h.writeToken(c, http.StatusOK, user)
}

func (h *AccountHandler) writeToken(c *gin.Context, status int, user store.UserWithRoles) {
	issuedAt := h.now().UTC()
	token, errToken := security.IssueUserToken(h.jwtCfg.Secret, h.jwtCfg.Expiry, user.ID, user.Username, user.Roles, issuedAt)
	if errToken != nil {
		respond.Error(c, errToken)
		return
	}
	c.JSON(status, gin.H{
		"token":      token,
		"expires_at": issuedAt.Add(h.jwtCfg.Expiry),
		"user":       api.User(user),
	})
}
