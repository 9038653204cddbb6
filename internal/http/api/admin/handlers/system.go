package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/collectit/marketplace/internal/store"
	"github.com/collectit/marketplace/internal/sysmetrics"
	"github.com/gin-gonic/gin"
)

// SystemHandler reports host and process usage.
type SystemHandler struct {
	storagePath string
}

// NewSystemHandler constructs a SystemHandler. storagePath is the local content root, if any.
func NewSystemHandler(storagePath string) *SystemHandler {
	return &SystemHandler{storagePath: storagePath}
}

// Metrics returns a usage sample.
func (h *SystemHandler) Metrics(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()
	c.JSON(http.StatusOK, sysmetrics.Capture(ctx, h.storagePath))
}

// HealthHandler reports database reachability.
type HealthHandler struct {
	store *store.Store
}

// NewHealthHandler constructs a HealthHandler.
func NewHealthHandler(st *store.Store) *HealthHandler {
	return &HealthHandler{store: st}
}

// Healthz pings the database.
func (h *HealthHandler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if errPing := h.store.Ping(ctx); errPing != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": "database unreachable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
